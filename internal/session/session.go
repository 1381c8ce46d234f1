// Package session はサーバーサイドセッションを提供する。
//
// Cookieにはランダムなセッションのみを保持し、ディビジョン・UID・ロケール・
// フラッシュメッセージはStoreに保存する。セッションは変更があった場合のみ保存される。
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"github.com/hitoshi/sipa/internal/model"
)

// Data はセッションに保存する値。
type Data struct {
	Division string        `json:"division,omitempty"`
	Locale   string        `json:"locale,omitempty"`
	UID      string        `json:"uid,omitempty"`
	Flashes  []model.Flash `json:"flashes,omitempty"`
}

func (d Data) empty() bool {
	return d.Division == "" && d.Locale == "" && d.UID == "" && len(d.Flashes) == 0
}

// Session は1リクエスト分のセッション状態。
// 並行アクセスは想定しない。
type Session struct {
	id       string
	cookieID string
	stale    []string
	data     Data
	dirty    bool
}

// New は空のセッションを生成する。IDは保存時に採番する。
func New() *Session {
	return &Session{}
}

func loaded(id string, data Data) *Session {
	return &Session{id: id, cookieID: id, data: data}
}

// ID は現在のセッションIDを返す。未保存の場合は空文字列。
func (s *Session) ID() string { return s.id }

// Principal はログイン中のディビジョン名とUIDを返す。
func (s *Session) Principal() (division, uid string, ok bool) {
	if s.data.UID == "" || s.data.Division == "" {
		return "", "", false
	}
	return s.data.Division, s.data.UID, true
}

// SetPrincipal はログインユーザーを設定し、セッションIDを振り直す。
func (s *Session) SetPrincipal(division, uid string) {
	s.renew()
	s.data.Division = division
	s.data.UID = uid
	s.dirty = true
}

// ClearPrincipal はログイン情報を削除する。ロケールとフラッシュは残す。
func (s *Session) ClearPrincipal() {
	if s.data.UID == "" && s.data.Division == "" {
		return
	}
	s.renew()
	s.data.Division = ""
	s.data.UID = ""
	s.dirty = true
}

// Locale はセッションに保存されたロケールを返す。
func (s *Session) Locale() string { return s.data.Locale }

// SetLocale はロケールを保存する。
func (s *Session) SetLocale(locale string) {
	if s.data.Locale == locale {
		return
	}
	s.data.Locale = locale
	s.dirty = true
}

// AddFlash はフラッシュメッセージを追加する。
func (s *Session) AddFlash(category, message string) {
	s.data.Flashes = append(s.data.Flashes, model.Flash{Category: category, Message: message})
	s.dirty = true
}

// Flashes は未表示のフラッシュメッセージを消費せずに返す。
func (s *Session) Flashes() []model.Flash {
	out := make([]model.Flash, len(s.data.Flashes))
	copy(out, s.data.Flashes)
	return out
}

// PopFlashes はフラッシュメッセージを返し、セッションから削除する。
func (s *Session) PopFlashes() []model.Flash {
	flashes := s.data.Flashes
	if len(flashes) > 0 {
		s.data.Flashes = nil
		s.dirty = true
	}
	return flashes
}

// Clear はセッション全体を破棄する。以降の変更は新しいセッションとして保存される。
func (s *Session) Clear() {
	s.renew()
	s.data = Data{}
	s.dirty = true
}

func (s *Session) renew() {
	if s.id != "" {
		s.stale = append(s.stale, s.id)
		s.id = ""
	}
}

type contextKey struct{}

// NewContext はセッションを格納したコンテキストを返す。
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext はコンテキストからセッションを取得する。
// セッションミドルウェアを通過していない場合は空のセッションを返す。
func FromContext(ctx context.Context) *Session {
	if s, ok := ctx.Value(contextKey{}).(*Session); ok {
		return s
	}
	return New()
}

// generateID は暗号的に安全なセッションIDを生成する。
func generateID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
