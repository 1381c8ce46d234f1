package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/sipa/internal/division"
	"github.com/hitoshi/sipa/internal/form"
	"github.com/hitoshi/sipa/internal/i18n"
	"github.com/hitoshi/sipa/internal/middleware"
	"github.com/hitoshi/sipa/internal/model"
	"github.com/hitoshi/sipa/internal/session"
	"github.com/hitoshi/sipa/internal/usage"
	"github.com/hitoshi/sipa/internal/view"
)

const (
	msgLoginFailed  = "Anmeldedaten fehlerhaft!"
	msgLoginSuccess = "Anmeldung erfolgreich!"

	msgIPNotInNetwork   = "Deine IP gehört nicht zum Wohnheim!"
	msgTrafficInSuite   = "Da du angemeldet bist, kannst du deinen Traffic hier in der Usersuite einsehen."
	msgTrafficNeedLogin = "Um deinen Traffic von außerhalb einsehen zu können, musst du dich anmelden."
	msgOtherUser        = "Ein anderer Nutzer als der für diesen Anschluss Eingetragene ist angemeldet!"
	msgTrafficOfPort    = "Hier werden die Trafficdaten dieses Anschlusses angezeigt"
)

type indexData struct {
	Gauge usage.Gauge
	News  []model.NewsItem
}

// Index はトップページを表示する。
// ユーザー解決時の障害はセッションを破棄したうえで未ログインとして描画する。
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	user, err := h.currentUser(r)
	if err != nil {
		if !model.IsDirectoryUnavailable(err) && !model.IsDatabaseUnavailable(err) {
			return err
		}
		h.recordFailure(w, r, err)
		user = nil
	}

	data := indexData{Gauge: h.Gauge.QueryGauge(ctx, user, middleware.ClientIP(r))}

	if h.News != nil {
		items, err := h.News.Latest(ctx)
		if err != nil {
			slog.Warn("failed to load news", slog.String("error", err.Error()))
		}
		data.News = items
	}

	return h.render(w, r, view.PageIndex, "", user, data)
}

type loginData struct {
	Divisions []*division.Division
}

// Login はログインフォームの表示と送信を扱う。
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) error {
	data := loginData{Divisions: h.Divisions.All()}

	if r.Method != http.MethodPost {
		// 解決の失敗はフォーム送信時に改めて表面化する
		if user, err := h.currentUser(r); err == nil && user != nil {
			http.Redirect(w, r, "/usersuite/", http.StatusFound)
			return nil
		}
		return h.render(w, r, view.PageLogin, "Anmelden", nil, data)
	}

	var f form.LoginForm
	ok, err := decodeForm(r, &f)
	if err != nil {
		return err
	}
	if !ok {
		return h.render(w, r, view.PageLogin, "Anmelden", nil, data)
	}

	sess := session.FromContext(r.Context())
	token, err := h.Auth.Login(r.Context(), sess, f.Division, f.Username, f.Password, f.Remember)
	if errors.Is(err, model.ErrUserNotFound) || errors.Is(err, model.ErrPasswordInvalid) {
		return flashRedirect(w, r, model.FlashError, msgLoginFailed, "/login")
	}
	if err != nil {
		return err
	}

	if token != "" {
		http.SetCookie(w, h.Auth.RememberCookie(token, h.Config.CookieSecure, h.Config.CookieDomain))
	}
	return flashRedirect(w, r, model.FlashSuccess, msgLoginSuccess, "/usersuite/")
}

// Logout はログアウトしてトップページへリダイレクトする。
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) error {
	if _, err := h.requireUser(r); err != nil {
		return err
	}

	h.Auth.Logout(session.FromContext(r.Context()))
	http.SetCookie(w, h.Auth.RememberCookie("", h.Config.CookieSecure, h.Config.CookieDomain))
	http.Redirect(w, r, "/", http.StatusFound)
	return nil
}

// SetLanguage は表示言語をセッションに保存し、同一ホストのリファラーへ戻す。
// 未対応の言語は無視する。
func (h *Handler) SetLanguage(w http.ResponseWriter, r *http.Request) error {
	if lang, ok := i18n.Supported(chi.URLParam(r, "lang")); ok {
		session.FromContext(r.Context()).SetLocale(lang)
	}

	target := "/"
	if ref, err := url.Parse(r.Referer()); err == nil && ref.Host == r.Host && ref.Path != "" {
		target = ref.RequestURI()
	}
	http.Redirect(w, r, target, http.StatusFound)
	return nil
}

type trafficData struct {
	Traffic model.TrafficData
}

// Usertraffic は接続元IPに紐づくユーザーの通信量を表示する。
func (h *Handler) Usertraffic(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	user, err := h.currentUser(r)
	if err != nil {
		return err
	}

	ipUser, err := h.Divisions.UserFromIP(ctx, middleware.ClientIP(r))
	if errors.Is(err, model.ErrUserNotFound) {
		addFlash(r, model.FlashError, msgIPNotInNetwork)
		if user != nil {
			return flashRedirect(w, r, model.FlashInfo, msgTrafficInSuite, "/usersuite/")
		}
		return flashRedirect(w, r, model.FlashInfo, msgTrafficNeedLogin, "/login")
	}
	if err != nil {
		return err
	}

	if user != nil && (user.Division() != ipUser.Division() || user.UID() != ipUser.UID()) {
		addFlash(r, model.FlashWarning, msgOtherUser)
		addFlash(r, model.FlashInfo, msgTrafficOfPort)
	}

	traffic, err := ipUser.TrafficData(ctx)
	if err != nil {
		return err
	}
	return h.render(w, r, view.PageUsertraffic, "Traffic", user, trafficData{Traffic: traffic})
}

// Health はデータベースへの疎通を確認する。
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if h.HealthCheck != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := h.HealthCheck(ctx); err != nil {
			slog.Warn("health check failed", slog.String("error", err.Error()))
			status, code = "unavailable", http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}
