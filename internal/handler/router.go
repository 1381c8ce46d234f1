package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/sipa/internal/middleware"
	"github.com/hitoshi/sipa/internal/session"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Handler *Handler

	// ミドルウェア依存
	Sessions    *session.Manager
	RateLimiter *middleware.RateLimiter
	Logger      *slog.Logger
	TrustProxy  bool
	HSTS        bool

	// MetricsHandler はnilの場合/metricsを公開しない。
	MetricsHandler http.Handler
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP(TRUST_PROXY時) → SecurityHeaders → Session → Logging → Recovery → RateLimit(General) → CSRF
//
// /metricsと/healthはミドルウェアチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	h := deps.Handler
	r := chi.NewRouter()

	// --- ミドルウェア不要のルート ---
	r.Get("/health", h.Health)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		if deps.TrustProxy {
			r.Use(chimiddleware.RealIP)
		}
		r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
		r.Use(middleware.NewSessionMiddleware(deps.Sessions))
		r.Use(middleware.NewLoggingMiddleware(deps.Logger, h.Metrics))
		r.Use(middleware.NewRecoveryMiddleware(http.HandlerFunc(h.InternalError)))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.GeneralMiddleware())
		}
		r.Use(middleware.NewCSRFMiddleware(middleware.CSRFConfig{
			CookieSecure: h.Config.CookieSecure,
			CookieDomain: h.Config.CookieDomain,
			OnFailure:    http.HandlerFunc(h.Forbidden),
		}))

		r.NotFound(h.NotFound)
		r.MethodNotAllowed(h.MethodNotAllowed)

		r.Get("/", h.wrap(h.Index))
		r.Get("/index.php", h.wrap(h.Index))
		r.Get("/language/{lang}", h.wrap(h.SetLanguage))
		r.Get("/usertraffic", h.wrap(h.Usertraffic))
		r.Get("/logout", h.wrap(h.Logout))

		// POST /loginはログイン専用のレート制限を追加する
		r.Group(func(r chi.Router) {
			if deps.RateLimiter != nil {
				r.Use(deps.RateLimiter.LoginMiddleware())
			}
			r.Get("/login", h.wrap(h.Login))
			r.Post("/login", h.wrap(h.Login))
		})

		r.Get("/usersuite", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/usersuite/", http.StatusMovedPermanently)
		})
		r.Get("/usersuite/", h.wrap(h.Usersuite))
		r.Get("/usersuite/contact", h.wrap(h.Contact))
		r.Post("/usersuite/contact", h.wrap(h.Contact))
		r.Get("/usersuite/change-password", h.wrap(h.ChangePassword))
		r.Post("/usersuite/change-password", h.wrap(h.ChangePassword))
		r.Get("/usersuite/change-mail", h.wrap(h.ChangeMail))
		r.Post("/usersuite/change-mail", h.wrap(h.ChangeMail))
		r.Get("/usersuite/delete-mail", h.wrap(h.DeleteMail))
		r.Post("/usersuite/delete-mail", h.wrap(h.DeleteMail))
		r.Get("/usersuite/change-mac", h.wrap(h.ChangeMAC))
		r.Post("/usersuite/change-mac", h.wrap(h.ChangeMAC))

		r.Get("/usersuite/hosting", h.wrap(h.Hosting))
		r.Post("/usersuite/hosting", h.wrap(h.Hosting))
		r.Post("/usersuite/hosting/confirm", h.wrap(h.HostingConfirm))
		r.Get("/usersuite/hosting/{action}", h.wrap(h.Hosting))
	})

	return r
}
