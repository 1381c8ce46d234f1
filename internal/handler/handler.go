// Package handler はHTTPハンドラーを提供する。
//
// ハンドラーはフォームの検証、1つの処理の委譲、フラッシュメッセージの設定、
// リダイレクトという形をとる。インフラ障害とHTTPステータスのエラーは
// wrapでフラッシュメッセージとトップページへのリダイレクトに変換する。
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/sipa/internal/division"
	"github.com/hitoshi/sipa/internal/mailer"
	"github.com/hitoshi/sipa/internal/metrics"
	"github.com/hitoshi/sipa/internal/model"
	"github.com/hitoshi/sipa/internal/session"
	"github.com/hitoshi/sipa/internal/usage"
	"github.com/hitoshi/sipa/internal/view"
)

// Divisions はディビジョンの一覧とIPからのユーザー特定を提供する。
type Divisions interface {
	All() []*division.Division
	UserFromIP(ctx context.Context, ip string) (division.Account, error)
}

// Authenticator はログイン・ログアウトと現在ユーザーの解決を行う。
type Authenticator interface {
	Login(ctx context.Context, sess *session.Session, divisionName, username, password string, remember bool) (string, error)
	Logout(sess *session.Session)
	CurrentUser(ctx context.Context, sess *session.Session, rememberToken string) (division.Account, error)
	Reauthenticate(ctx context.Context, acc division.Account, password string) error
	RememberCookie(token string, secure bool, domain string) *http.Cookie
}

// GaugeQuerier はクレジットゲージのデータを返す。
type GaugeQuerier interface {
	QueryGauge(ctx context.Context, principal division.Account, ip string) usage.Gauge
}

// NewsSource はトップページのお知らせを返す。
type NewsSource interface {
	Latest(ctx context.Context) ([]model.NewsItem, error)
}

// DirectoryWriter はユーザー自身の権限でディレクトリを書き換える。
type DirectoryWriter interface {
	ChangePassword(ctx context.Context, uid, oldPassword, newPassword string) error
	ChangeEmail(ctx context.Context, uid, password, mail string) error
}

// MACUpdater はIPアドレスに登録されたMACアドレスを書き換える。
type MACUpdater interface {
	UpdateMAC(ctx context.Context, ip, oldMAC, newMAC string) error
}

// MailSender はメールを送信する。
type MailSender interface {
	Send(ctx context.Context, msg mailer.Message) error
}

// HostingManager はユーザーのホスティング用データベースを管理する。
type HostingManager interface {
	HasDatabase(ctx context.Context, uid string) (bool, error)
	Create(ctx context.Context, uid, password string) error
	ChangePassword(ctx context.Context, uid, password string) error
	Drop(ctx context.Context, uid string) error
}

// TextSanitizer はユーザー入力からHTMLを除去する。
type TextSanitizer interface {
	PlainText(raw string) string
}

// Config はハンドラーの設定。
type Config struct {
	CookieSecure   bool
	CookieDomain   string
	SupportAddress string
}

// Deps はHandlerに必要な依存関係をまとめた構造体。
type Deps struct {
	Divisions     Divisions
	Auth          Authenticator
	Gauge         GaugeQuerier
	News          NewsSource
	Directory     DirectoryWriter
	Accounts      MACUpdater
	Mailer        MailSender
	Composer      mailer.Composer
	UserDatabases HostingManager
	Sanitizer     TextSanitizer
	Metrics       metrics.MetricsCollector
	Renderer      *view.Renderer
	Config        Config

	// HealthCheck はnilの場合、常に正常と報告する。
	HealthCheck func(ctx context.Context) error
}

const healthTimeout = 3 * time.Second

// Handler はすべてのルートのハンドラーを持つ。
type Handler struct {
	Deps
}

// New はHandlerを生成する。
func New(deps Deps) *Handler {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Noop{}
	}
	return &Handler{Deps: deps}
}
