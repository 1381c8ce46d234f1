// Package auth はディビジョンのユーザーバックエンドとセッションを橋渡しする。
//
// ログイン・ログアウト・現在ユーザーの解決と、ログイン状態保持トークンの
// 発行・検証を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/sipa/internal/division"
	"github.com/hitoshi/sipa/internal/model"
	"github.com/hitoshi/sipa/internal/session"
)

// ログイン結果のラベル。
const (
	LoginSuccess = "success"
	LoginFailure = "failure"
	LoginError   = "error"
)

// unknownDivision は未登録のディビジョン名を記録する際のラベル。
const unknownDivision = "unknown"

// LoginRecorder はログイン試行の結果を記録する。
type LoginRecorder interface {
	RecordLogin(division, result string)
}

// Bridge はセッションとディビジョンのユーザーバックエンドを結びつける。
type Bridge struct {
	registry *division.Registry
	tokens   *RememberTokens
	recorder LoginRecorder
}

// NewBridge はBridgeを生成する。
func NewBridge(registry *division.Registry, tokens *RememberTokens, recorder LoginRecorder) *Bridge {
	return &Bridge{
		registry: registry,
		tokens:   tokens,
		recorder: recorder,
	}
}

// Login は資格情報を検証し、成功時にセッションへディビジョンとUIDを保存する。
// rememberがtrueの場合はログイン状態保持トークンを返す。
//
// 未登録のディビジョンはmodel.ErrUserNotFoundとして扱う。
// 資格情報の誤りはmodel.ErrUserNotFoundまたはmodel.ErrPasswordInvalidを返し、
// セッションは変更しない。
func (b *Bridge) Login(ctx context.Context, sess *session.Session, divisionName, username, password string, remember bool) (string, error) {
	d, ok := b.registry.FromName(divisionName)
	if !ok {
		b.record(unknownDivision, LoginFailure)
		return "", model.ErrUserNotFound
	}

	acc, err := d.Backend.Authenticate(ctx, username, password)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) || errors.Is(err, model.ErrPasswordInvalid) {
			b.record(d.Name, LoginFailure)
		} else {
			b.record(d.Name, LoginError)
		}
		return "", err
	}
	if !d.Backend.Accepts(acc) {
		b.record(d.Name, LoginError)
		return "", fmt.Errorf("division %s returned an account it does not accept", d.Name)
	}

	sess.SetPrincipal(d.Name, acc.UID())
	b.record(d.Name, LoginSuccess)
	slog.Info("user logged in",
		slog.String("division", d.Name),
		slog.String("uid", acc.UID()),
	)

	if !remember {
		return "", nil
	}
	token, err := b.tokens.Issue(d.Name, acc.UID())
	if err != nil {
		return "", err
	}
	return token, nil
}

// Logout はセッションからログイン情報を削除する。
func (b *Bridge) Logout(sess *session.Session) {
	if division, uid, ok := sess.Principal(); ok {
		slog.Info("user logged out",
			slog.String("division", division),
			slog.String("uid", uid),
		)
	}
	sess.ClearPrincipal()
}

// CurrentUser はセッションのログインユーザーを返す。
//
// 未ログイン・未登録のディビジョン・バックエンドにユーザーが存在しない場合は(nil, nil)を返す。
// セッションが空で有効なrememberTokenがある場合は、トークンからログイン状態を復元して
// セッションに書き戻す。インフラ障害のエラーはそのまま返す。
func (b *Bridge) CurrentUser(ctx context.Context, sess *session.Session, rememberToken string) (division.Account, error) {
	divisionName, uid, ok := sess.Principal()
	restored := false
	if !ok {
		if rememberToken == "" {
			return nil, nil
		}
		claims, err := b.tokens.Parse(rememberToken)
		if err != nil {
			return nil, nil
		}
		divisionName, uid, restored = claims.Division, claims.UID, true
	}

	d, found := b.registry.FromName(divisionName)
	if !found {
		if !restored {
			sess.ClearPrincipal()
		}
		return nil, nil
	}

	acc, err := d.Backend.Get(ctx, uid)
	if errors.Is(err, model.ErrUserNotFound) {
		if !restored {
			sess.ClearPrincipal()
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !d.Backend.Accepts(acc) {
		return nil, fmt.Errorf("division %s returned an account it does not accept", d.Name)
	}

	if restored {
		sess.SetPrincipal(d.Name, acc.UID())
		slog.Info("login restored from remember token",
			slog.String("division", d.Name),
			slog.String("uid", acc.UID()),
		)
	}
	return acc, nil
}

// Reauthenticate はログイン中のユーザーのパスワードを、所属ディビジョンのバックエンドで再確認する。
func (b *Bridge) Reauthenticate(ctx context.Context, acc division.Account, password string) error {
	d, ok := b.registry.FromName(acc.Division())
	if !ok {
		return model.ErrUserNotFound
	}
	_, err := d.Backend.Authenticate(ctx, acc.UID(), password)
	return err
}

// RememberCookie はトークンを格納するCookieを返す。tokenが空の場合は削除用。
func (b *Bridge) RememberCookie(token string, secure bool, domain string) *http.Cookie {
	return b.tokens.Cookie(token, secure, domain)
}

func (b *Bridge) record(division, result string) {
	if b.recorder != nil {
		b.recorder.RecordLogin(division, result)
	}
}
