package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// CookieName はセッションIDを保持するCookieの名前。
const CookieName = "sipa_session"

// Config はManagerの設定。
type Config struct {
	MaxAge       time.Duration
	CookieSecure bool
	CookieDomain string
}

// Manager はリクエストごとにセッションを読み込み、変更をStoreへ書き戻す。
type Manager struct {
	store Store
	cfg   Config
}

// NewManager はManagerを生成する。
func NewManager(store Store, cfg Config) *Manager {
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 24 * time.Hour
	}
	return &Manager{store: store, cfg: cfg}
}

// Load はCookieのセッションIDでセッションを読み込む。
// Cookieがない・期限切れ・Storeの障害時は空のセッションを返す。
func (m *Manager) Load(r *http.Request) *Session {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return New()
	}

	data, err := m.store.Load(r.Context(), cookie.Value)
	if err != nil {
		slog.Error("failed to load session",
			slog.String("error", err.Error()),
		)
		s := New()
		s.cookieID = cookie.Value
		return s
	}
	if data == nil {
		s := New()
		s.cookieID = cookie.Value
		return s
	}
	return loaded(cookie.Value, *data)
}

// Commit はセッションの変更をStoreへ保存し、Cookieを設定する。
// 変更がない場合は何もしない。
func (m *Manager) Commit(ctx context.Context, w http.ResponseWriter, s *Session) error {
	for _, id := range s.stale {
		if err := m.store.Delete(ctx, id); err != nil {
			return fmt.Errorf("failed to delete stale session: %w", err)
		}
	}
	s.stale = nil

	if !s.dirty {
		return nil
	}
	s.dirty = false

	if s.data.empty() {
		if s.id != "" {
			if err := m.store.Delete(ctx, s.id); err != nil {
				return fmt.Errorf("failed to delete session: %w", err)
			}
			s.id = ""
		}
		if s.cookieID != "" {
			http.SetCookie(w, m.cookie("", -1))
			s.cookieID = ""
		}
		return nil
	}

	if s.id == "" {
		id, err := generateID()
		if err != nil {
			return fmt.Errorf("failed to generate session ID: %w", err)
		}
		s.id = id
	}
	if err := m.store.Save(ctx, s.id, s.data, m.cfg.MaxAge); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	if s.cookieID != s.id {
		http.SetCookie(w, m.cookie(s.id, int(m.cfg.MaxAge/time.Second)))
		s.cookieID = s.id
	}
	return nil
}

func (m *Manager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		Domain:   m.cfg.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}
