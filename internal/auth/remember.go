package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RememberCookieName はログイン状態保持トークンを格納するCookieの名前。
const RememberCookieName = "sipa_remember"

const rememberIssuer = "sipa"

// ErrInvalidToken はトークンの署名・期限・内容が不正であることを表す。
var ErrInvalidToken = errors.New("invalid or expired remember token")

// RememberClaims はログイン状態保持トークンのクレーム。
type RememberClaims struct {
	Division string `json:"division"`
	UID      string `json:"uid"`
	jwt.RegisteredClaims
}

// RememberTokens はHS256署名のログイン状態保持トークンを発行・検証する。
type RememberTokens struct {
	secretKey []byte
	maxAge    time.Duration
	now       func() time.Time
}

// NewRememberTokens はRememberTokensを生成する。
func NewRememberTokens(secretKey string, maxAge time.Duration) *RememberTokens {
	return &RememberTokens{
		secretKey: []byte(secretKey),
		maxAge:    maxAge,
		now:       time.Now,
	}
}

// Issue はディビジョンとUIDを含むトークンを発行する。
func (t *RememberTokens) Issue(division, uid string) (string, error) {
	now := t.now()
	claims := &RememberClaims{
		Division: division,
		UID:      uid,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    rememberIssuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(t.maxAge)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign remember token: %w", err)
	}
	return signed, nil
}

// Parse はトークンを検証してクレームを返す。
func (t *RememberTokens) Parse(tokenString string) (*RememberClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &RememberClaims{},
		func(token *jwt.Token) (interface{}, error) {
			return t.secretKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(rememberIssuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*RememberClaims)
	if !ok || !token.Valid || claims.Division == "" || claims.UID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Cookie はトークンを格納するCookieを返す。tokenが空の場合は削除用のCookieを返す。
func (t *RememberTokens) Cookie(token string, secure bool, domain string) *http.Cookie {
	maxAge := int(t.maxAge / time.Second)
	if token == "" {
		maxAge = -1
	}
	return &http.Cookie{
		Name:     RememberCookieName,
		Value:    token,
		Path:     "/",
		Domain:   domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}
