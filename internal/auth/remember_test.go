package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestRememberTokens_IssueAndParse(t *testing.T) {
	tokens := NewRememberTokens("test-secret", time.Hour)

	token, err := tokens.Issue("wu", "jdoe")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	claims, err := tokens.Parse(token)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if claims.Division != "wu" {
		t.Errorf("Division = %q, want %q", claims.Division, "wu")
	}
	if claims.UID != "jdoe" {
		t.Errorf("UID = %q, want %q", claims.UID, "jdoe")
	}
}

func TestRememberTokens_Expired(t *testing.T) {
	tokens := NewRememberTokens("test-secret", time.Hour)
	issuedAt := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tokens.now = func() time.Time { return issuedAt }

	token, err := tokens.Issue("wu", "jdoe")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	tokens.now = func() time.Time { return issuedAt.Add(2 * time.Hour) }
	if _, err := tokens.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Parse() error = %v, want ErrInvalidToken", err)
	}
}

func TestRememberTokens_WrongSecret(t *testing.T) {
	token, err := NewRememberTokens("secret-a", time.Hour).Issue("wu", "jdoe")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if _, err := NewRememberTokens("secret-b", time.Hour).Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Parse() error = %v, want ErrInvalidToken", err)
	}
}

func TestRememberTokens_RejectsOtherAlgorithms(t *testing.T) {
	claims := &RememberClaims{
		Division: "wu",
		UID:      "jdoe",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    rememberIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	if _, err := NewRememberTokens("test-secret", time.Hour).Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Parse() error = %v, want ErrInvalidToken", err)
	}
}

func TestRememberTokens_Garbage(t *testing.T) {
	if _, err := NewRememberTokens("test-secret", time.Hour).Parse("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Parse() error = %v, want ErrInvalidToken", err)
	}
}

func TestRememberTokens_Cookie(t *testing.T) {
	tokens := NewRememberTokens("test-secret", 48*time.Hour)

	c := tokens.Cookie("abc", true, "example.com")
	if c.Name != RememberCookieName {
		t.Errorf("Name = %q, want %q", c.Name, RememberCookieName)
	}
	if c.MaxAge != 48*3600 {
		t.Errorf("MaxAge = %d, want %d", c.MaxAge, 48*3600)
	}
	if !c.HttpOnly || !c.Secure {
		t.Errorf("HttpOnly = %v, Secure = %v, want both true", c.HttpOnly, c.Secure)
	}

	expired := tokens.Cookie("", false, "")
	if expired.MaxAge != -1 {
		t.Errorf("MaxAge = %d, want -1", expired.MaxAge)
	}
}
