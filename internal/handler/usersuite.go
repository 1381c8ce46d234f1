package handler

import (
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/sipa/internal/division"
	"github.com/hitoshi/sipa/internal/form"
	"github.com/hitoshi/sipa/internal/mailer"
	"github.com/hitoshi/sipa/internal/model"
	"github.com/hitoshi/sipa/internal/view"
)

const (
	msgQueryError       = "Es gab einen Fehler bei der Datenbankanfrage!"
	msgMailSent         = "Nachricht wurde versandt."
	msgMailFailed       = "Es gab einen Fehler beim Versenden der Nachricht. Bitte schicke uns direkt eine E-Mail an "
	msgPasswordMismatch = "Neue Passwörter stimmen nicht überein!"
	msgOldPasswordWrong = "Altes Passwort war inkorrekt!"
	msgPasswordChanged  = "Passwort wurde geändert"
	msgUserNotFound     = "Nutzer nicht gefunden!"
	msgPasswordWrong    = "Passwort war inkorrekt!"
	msgDirectoryRights  = "Nicht genügend LDAP-Rechte!"
	msgMailChanged      = "E-Mail-Adresse wurde geändert"
	msgMailReset        = "E-Mail-Adresse wurde zurückgesetzt"
	msgMACChanged       = "MAC-Adresse wurde geändert!"
	msgReadOnly         = "Diese Aktion ist für Beispielnutzer nicht verfügbar."
	msgDatabaseCreated  = "Deine Datenbank wurde erstellt."
	msgDatabaseDropped  = "Deine Datenbank wurde gelöscht."
	msgDatabasePassword = "Das Passwort deiner Datenbank wurde geändert."
)

// 送信メールの種類。メトリクスのラベルに使う。
const (
	mailKindContact    = "contact"
	mailKindMACChanged = "mac_change"
)

type usersuiteData struct {
	Info    model.UserInfo
	Traffic model.TrafficData
}

// Usersuite はアカウント情報と通信量を表示する。
func (h *Handler) Usersuite(w http.ResponseWriter, r *http.Request) error {
	user, err := h.requireUser(r)
	if err != nil {
		return err
	}
	ctx := r.Context()

	info, err := user.Info(ctx)
	if errors.Is(err, model.ErrQueryEmpty) {
		return flashRedirect(w, r, model.FlashError, msgQueryError, "/")
	}
	if err != nil {
		return err
	}

	traffic, err := user.TrafficData(ctx)
	if errors.Is(err, model.ErrQueryEmpty) {
		return flashRedirect(w, r, model.FlashError, msgQueryError, "/")
	}
	if err != nil {
		return err
	}

	return h.render(w, r, view.PageUsersuite, "Usersuite", user, usersuiteData{Info: info, Traffic: traffic})
}

// Contact はサポートへの問い合わせを送信する。
func (h *Handler) Contact(w http.ResponseWriter, r *http.Request) error {
	user, err := h.requireUser(r)
	if err != nil {
		return err
	}
	if r.Method != http.MethodPost {
		return h.render(w, r, view.PageContact, "Kontakt", user, nil)
	}

	var f form.ContactForm
	ok, err := decodeForm(r, &f)
	if err != nil {
		return err
	}
	if !ok {
		return h.render(w, r, view.PageContact, "Kontakt", user, nil)
	}

	msg := h.Composer.Contact(
		user.UID(),
		f.Email,
		mailer.ContactCategory(f.Type),
		h.Sanitizer.PlainText(f.Subject),
		h.Sanitizer.PlainText(f.Message),
	)
	err = h.Mailer.Send(r.Context(), msg)
	h.Metrics.RecordMail(mailKindContact, err)
	if err != nil {
		return flashRedirect(w, r, model.FlashError, msgMailFailed+h.Config.SupportAddress, "/usersuite/")
	}
	return flashRedirect(w, r, model.FlashSuccess, msgMailSent, "/usersuite/")
}

// ChangePassword はディレクトリ上のパスワードを変更する。
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) error {
	user, err := h.requireUser(r)
	if err != nil {
		return err
	}
	if r.Method != http.MethodPost {
		return h.render(w, r, view.PageChangePassword, "Passwort ändern", user, nil)
	}

	var f form.ChangePasswordForm
	ok, err := decodeForm(r, &f)
	if err != nil {
		return err
	}
	if ok && !rejectReadOnly(r, user) {
		if f.New != f.New2 {
			addFlash(r, model.FlashError, msgPasswordMismatch)
		} else {
			err := h.Directory.ChangePassword(r.Context(), user.UID(), f.Old, f.New)
			switch {
			case err == nil:
				slog.Info("password changed", slog.String("uid", user.UID()))
				return flashRedirect(w, r, model.FlashSuccess, msgPasswordChanged, "/usersuite/")
			case errors.Is(err, model.ErrPasswordInvalid):
				addFlash(r, model.FlashError, msgOldPasswordWrong)
			case errors.Is(err, model.ErrUserNotFound):
				addFlash(r, model.FlashError, msgUserNotFound)
			default:
				return err
			}
		}
	}
	return h.render(w, r, view.PageChangePassword, "Passwort ändern", user, nil)
}

// ChangeMail は転送先メールアドレスを変更する。
func (h *Handler) ChangeMail(w http.ResponseWriter, r *http.Request) error {
	return h.writeMail(w, r, view.PageChangeMail, "E-Mail ändern", msgMailChanged, func(r *http.Request) (string, string, bool, error) {
		var f form.ChangeMailForm
		ok, err := decodeForm(r, &f)
		return f.Password, f.Email, ok, err
	})
}

// DeleteMail は転送先メールアドレスを削除する。空アドレスでの変更と同じ処理。
func (h *Handler) DeleteMail(w http.ResponseWriter, r *http.Request) error {
	return h.writeMail(w, r, view.PageDeleteMail, "E-Mail zurücksetzen", msgMailReset, func(r *http.Request) (string, string, bool, error) {
		var f form.DeleteMailForm
		ok, err := decodeForm(r, &f)
		return f.Password, "", ok, err
	})
}

type mailFormDecoder func(r *http.Request) (password, mail string, ok bool, err error)

func (h *Handler) writeMail(w http.ResponseWriter, r *http.Request, page, title, success string, decode mailFormDecoder) error {
	user, err := h.requireUser(r)
	if err != nil {
		return err
	}
	if r.Method != http.MethodPost {
		return h.render(w, r, page, title, user, nil)
	}

	password, mail, ok, err := decode(r)
	if err != nil {
		return err
	}
	if ok && !rejectReadOnly(r, user) {
		err := h.Directory.ChangeEmail(r.Context(), user.UID(), password, mail)
		switch {
		case err == nil:
			slog.Info("mail forwarding changed", slog.String("uid", user.UID()))
			return flashRedirect(w, r, model.FlashSuccess, success, "/usersuite/")
		case errors.Is(err, model.ErrUserNotFound):
			addFlash(r, model.FlashError, msgUserNotFound)
		case errors.Is(err, model.ErrPasswordInvalid):
			addFlash(r, model.FlashError, msgPasswordWrong)
		case errors.Is(err, model.ErrDirectoryRights):
			addFlash(r, model.FlashError, msgDirectoryRights)
		default:
			return err
		}
	}
	return h.render(w, r, page, title, user, nil)
}

// rejectReadOnly は書き込み先を持たないアカウントならフラッシュを積んでtrueを返す。
func rejectReadOnly(r *http.Request, user division.Account) bool {
	if !division.IsReadOnly(user) {
		return false
	}
	addFlash(r, model.FlashError, msgReadOnly)
	return true
}

type changeMACData struct {
	OldMAC string
}

// ChangeMAC はパスワードを再確認したうえで登録MACアドレスを変更し、サポートへ通知する。
func (h *Handler) ChangeMAC(w http.ResponseWriter, r *http.Request) error {
	user, err := h.requireUser(r)
	if err != nil {
		return err
	}
	ctx := r.Context()

	info, err := user.Info(ctx)
	if errors.Is(err, model.ErrQueryEmpty) {
		return flashRedirect(w, r, model.FlashError, msgQueryError, "/")
	}
	if err != nil {
		return err
	}
	data := changeMACData{OldMAC: info.MAC}

	if r.Method != http.MethodPost {
		return h.render(w, r, view.PageChangeMAC, "MAC ändern", user, data)
	}

	var f form.ChangeMACForm
	ok, err := decodeForm(r, &f)
	if err != nil {
		return err
	}
	if !ok || rejectReadOnly(r, user) {
		return h.render(w, r, view.PageChangeMAC, "MAC ändern", user, data)
	}
	// IPの割り当てがないアカウントには書き換え対象の行がない
	if info.IP == "" {
		addFlash(r, model.FlashError, msgQueryError)
		return h.render(w, r, view.PageChangeMAC, "MAC ändern", user, data)
	}

	if err := h.Auth.Reauthenticate(ctx, user, f.Password); err != nil {
		if !errors.Is(err, model.ErrPasswordInvalid) {
			return err
		}
		slog.Info("wrong password on mac change", slog.String("uid", user.UID()))
		addFlash(r, model.FlashError, msgPasswordWrong)
		return h.render(w, r, view.PageChangeMAC, "MAC ändern", user, data)
	}

	hw, err := net.ParseMAC(f.MAC)
	if err != nil {
		return &HTTPError{Code: http.StatusBadRequest, Err: err}
	}
	newMAC := hw.String()

	err = h.Accounts.UpdateMAC(ctx, info.IP, info.MAC, newMAC)
	if errors.Is(err, model.ErrQueryEmpty) {
		slog.Warn("no host row for mac change",
			slog.String("uid", user.UID()),
			slog.String("ip", info.IP),
		)
		addFlash(r, model.FlashError, msgQueryError)
		return h.render(w, r, view.PageChangeMAC, "MAC ändern", user, data)
	}
	if err != nil {
		return err
	}
	slog.Info("mac address changed",
		slog.String("uid", user.UID()),
		slog.String("mac", newMAC),
	)

	err = h.Mailer.Send(ctx, h.Composer.MACChanged(user.UID(), user.Name(), info.MAC, newMAC))
	h.Metrics.RecordMail(mailKindMACChanged, err)
	if err != nil {
		return flashRedirect(w, r, model.FlashError, msgMailFailed+h.Config.SupportAddress, "/usersuite/")
	}
	return flashRedirect(w, r, model.FlashSuccess, msgMACChanged, "/usersuite/")
}

type hostingData struct {
	Action      string
	HasDatabase bool
}

// Hosting はホスティング用データベースの状態を表示し、作成とパスワード変更を受け付ける。
// /usersuite/hosting/deleteでは削除の確認を表示する。
func (h *Handler) Hosting(w http.ResponseWriter, r *http.Request) error {
	user, err := h.requireUser(r)
	if err != nil {
		return err
	}
	ctx := r.Context()

	action := chi.URLParam(r, "action")
	if action != "" && action != "delete" {
		return &HTTPError{Code: http.StatusNotFound}
	}

	if r.Method == http.MethodPost && action == "" {
		if err := h.applyHosting(r, user); err != nil {
			return err
		}
	}

	has, err := h.UserDatabases.HasDatabase(ctx, user.UID())
	if err != nil {
		return err
	}
	return h.render(w, r, view.PageHosting, "Datenbank", user, hostingData{Action: action, HasDatabase: has})
}

func (h *Handler) applyHosting(r *http.Request, user division.Account) error {
	var f form.HostingForm
	ok, err := decodeForm(r, &f)
	if err != nil || !ok {
		return err
	}
	if f.Password1 != f.Password2 {
		addFlash(r, model.FlashError, msgPasswordMismatch)
		return nil
	}

	switch f.Action {
	case "create":
		if err := h.UserDatabases.Create(r.Context(), user.UID(), f.Password1); err != nil {
			return err
		}
		addFlash(r, model.FlashMessage, msgDatabaseCreated)
	case "change":
		if err := h.UserDatabases.ChangePassword(r.Context(), user.UID(), f.Password1); err != nil {
			return err
		}
		addFlash(r, model.FlashMessage, msgDatabasePassword)
	}
	return nil
}

// HostingConfirm はホスティング用データベースを削除する。
func (h *Handler) HostingConfirm(w http.ResponseWriter, r *http.Request) error {
	user, err := h.requireUser(r)
	if err != nil {
		return err
	}

	if err := h.UserDatabases.Drop(r.Context(), user.UID()); err != nil {
		return err
	}
	slog.Info("hosting database dropped", slog.String("uid", user.UID()))
	return flashRedirect(w, r, model.FlashMessage, msgDatabaseDropped, "/usersuite/hosting")
}
