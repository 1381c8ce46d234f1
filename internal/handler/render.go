package handler

import (
	"errors"
	"net/http"

	"github.com/hitoshi/sipa/internal/auth"
	"github.com/hitoshi/sipa/internal/division"
	"github.com/hitoshi/sipa/internal/form"
	"github.com/hitoshi/sipa/internal/i18n"
	"github.com/hitoshi/sipa/internal/middleware"
	"github.com/hitoshi/sipa/internal/model"
	"github.com/hitoshi/sipa/internal/session"
	"github.com/hitoshi/sipa/internal/view"
)

// currentUser はセッションまたはログイン状態保持Cookieからログインユーザーを解決する。
// 未ログインの場合は(nil, nil)を返す。
func (h *Handler) currentUser(r *http.Request) (division.Account, error) {
	var token string
	if c, err := r.Cookie(auth.RememberCookieName); err == nil {
		token = c.Value
	}
	return h.Auth.CurrentUser(r.Context(), session.FromContext(r.Context()), token)
}

// requireUser はログインユーザーを返す。未ログインの場合は401のHTTPErrorを返す。
func (h *Handler) requireUser(r *http.Request) (division.Account, error) {
	user, err := h.currentUser(r)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, &HTTPError{Code: http.StatusUnauthorized}
	}
	return user, nil
}

// render はレイアウト共通データを組み立ててページを描画する。
// フラッシュメッセージはここで取り出される。
func (h *Handler) render(w http.ResponseWriter, r *http.Request, name, title string, user division.Account, data any) error {
	sess := session.FromContext(r.Context())

	page := view.Page{
		Title:     title,
		Locale:    i18n.Negotiate(sess.Locale(), r.Header.Get("Accept-Language")),
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
		Flashes:   sess.PopFlashes(),
		Data:      data,
	}
	if user != nil {
		page.User = &view.User{UID: user.UID(), Name: user.Name(), Division: user.Division()}
	}
	return h.Renderer.Render(w, http.StatusOK, name, page)
}

// decodeForm はフォームをデコードする。検証エラーはフィールドごとにフラッシュし、okにfalseを返す。
func decodeForm(r *http.Request, dst any) (ok bool, err error) {
	err = form.Decode(r, dst)
	if err == nil {
		return true, nil
	}

	var ferrs form.Errors
	if !errors.As(err, &ferrs) {
		return false, err
	}
	sess := session.FromContext(r.Context())
	for _, fe := range ferrs {
		sess.AddFlash(model.FlashError, fe.String())
	}
	return false, nil
}

// flashRedirect はフラッシュメッセージを積んでリダイレクトする。
func flashRedirect(w http.ResponseWriter, r *http.Request, category, message, to string) error {
	session.FromContext(r.Context()).AddFlash(category, message)
	http.Redirect(w, r, to, http.StatusFound)
	return nil
}

func addFlash(r *http.Request, category, message string) {
	session.FromContext(r.Context()).AddFlash(category, message)
}
