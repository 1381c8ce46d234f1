package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/sipa/internal/logger"
	"github.com/hitoshi/sipa/internal/metrics"
	"github.com/hitoshi/sipa/internal/model"
	"github.com/hitoshi/sipa/internal/session"
	"github.com/hitoshi/sipa/internal/usage"
	"github.com/hitoshi/sipa/internal/view"
)

// 障害とHTTPエラーのフラッシュメッセージ。
const (
	msgDirectoryDown = "Verbindung zum LDAP-Server konnte nicht hergestellt werden!"
	msgDatabaseDown  = "Verbindung zum SQL-Server konnte nicht hergestellt werden!"
	msgNotFound      = "Seite nicht gefunden!"
	msgForbidden     = "Du hast nicht die notwendigen Rechte um die Seite zu sehen!"
	msgGeneric       = "Es ist ein Fehler aufgetreten!"
)

// HTTPError はHTTPステータスコードを伴うエラー。
type HTTPError struct {
	Code int
	Err  error
}

// Error はerrorインターフェースを実装する。
func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("http %d: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("http %d", e.Code)
}

// Unwrap は元のエラーを返す。
func (e *HTTPError) Unwrap() error {
	return e.Err
}

// handlerFunc はエラーを返すハンドラー。
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

// wrap はハンドラーのエラーをフラッシュメッセージとトップページへのリダイレクトに変換する。
func (h *Handler) wrap(fn handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}

		// クライアント切断後のエラーは障害として扱わない
		if r.Context().Err() != nil {
			slog.Debug("request canceled",
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
			return
		}

		h.recordFailure(w, r, err)

		// トップページ自体の失敗ではリダイレクトがループするので、未ログインとして描画する
		if r.URL.Path == "/" || r.URL.Path == "/index.php" {
			h.renderFallbackIndex(w, r)
			return
		}
		http.Redirect(w, r, "/", http.StatusFound)
	}
}

func (h *Handler) renderFallbackIndex(w http.ResponseWriter, r *http.Request) {
	data := indexData{Gauge: usage.Gauge{Error: usage.MsgQueryFailed}}
	if err := h.render(w, r, view.PageIndex, "", nil, data); err != nil {
		slog.Error("failed to render fallback index", slog.String("error", err.Error()))
		http.Error(w, msgGeneric, http.StatusServiceUnavailable)
	}
}

// recordFailure はエラーの種類に応じてログ・メトリクス・フラッシュメッセージを記録する。
// ディレクトリ障害の場合はセッションとログイン状態保持Cookieも破棄する。
func (h *Handler) recordFailure(w http.ResponseWriter, r *http.Request, err error) {
	sess := session.FromContext(r.Context())

	var httpErr *HTTPError
	switch {
	case model.IsDirectoryUnavailable(err):
		// ログイン中にディレクトリが落ちるとユーザー解決で毎回失敗するため、セッションごと破棄する
		sess.Clear()
		http.SetCookie(w, h.Auth.RememberCookie("", h.Config.CookieSecure, h.Config.CookieDomain))
		sess.AddFlash(model.FlashError, msgDirectoryDown)
		h.Metrics.RecordOutage(metrics.SystemDirectory)
		slog.Log(r.Context(), logger.LevelCritical, "unable to connect to directory server",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)

	case model.IsDatabaseUnavailable(err):
		sess.AddFlash(model.FlashError, msgDatabaseDown)
		h.Metrics.RecordOutage(metrics.SystemDatabase)
		slog.Log(r.Context(), logger.LevelCritical, "unable to connect to database server",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)

	case errors.As(err, &httpErr):
		switch httpErr.Code {
		case http.StatusNotFound:
			sess.AddFlash(model.FlashWarning, msgNotFound)
		case http.StatusUnauthorized, http.StatusForbidden:
			sess.AddFlash(model.FlashWarning, msgForbidden)
		default:
			sess.AddFlash(model.FlashError, msgGeneric)
		}
		level := slog.LevelInfo
		if httpErr.Code >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		slog.Log(r.Context(), level, "request failed",
			slog.Int("status", httpErr.Code),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)

	default:
		sess.AddFlash(model.FlashError, msgGeneric)
		slog.Error("unhandled error",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
}

// NotFound はchiの未定義ルートのハンドラー。
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.wrap(func(w http.ResponseWriter, r *http.Request) error {
		return &HTTPError{Code: http.StatusNotFound}
	})(w, r)
}

// MethodNotAllowed はchiのメソッド不一致のハンドラー。
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.wrap(func(w http.ResponseWriter, r *http.Request) error {
		return &HTTPError{Code: http.StatusMethodNotAllowed}
	})(w, r)
}

// Forbidden はCSRF検証失敗時のハンドラー。
func (h *Handler) Forbidden(w http.ResponseWriter, r *http.Request) {
	h.wrap(func(w http.ResponseWriter, r *http.Request) error {
		return &HTTPError{Code: http.StatusForbidden}
	})(w, r)
}

// InternalError はpanic回復時のハンドラー。
func (h *Handler) InternalError(w http.ResponseWriter, r *http.Request) {
	h.wrap(func(w http.ResponseWriter, r *http.Request) error {
		return &HTTPError{Code: http.StatusInternalServerError}
	})(w, r)
}
