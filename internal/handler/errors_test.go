package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/sipa/internal/auth"
	"github.com/hitoshi/sipa/internal/metrics"
	"github.com/hitoshi/sipa/internal/model"
	"github.com/hitoshi/sipa/internal/session"
	"github.com/hitoshi/sipa/internal/usage"
)

func failWith(err error) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error { return err }
}

func TestWrap_DirectoryOutage_ClearsSession(t *testing.T) {
	h, d := newTestHandler(t)

	sess := session.New()
	sess.SetPrincipal("wu", "jdoe")
	outage := &model.DirectoryUnavailableError{Addr: "ldap://ldap:389", Err: errors.New("connection refused")}

	w := serve(h, failWith(fmt.Errorf("lookup: %w", outage)), httptest.NewRequest(http.MethodGet, "/usersuite/", nil), sess)

	assertRedirect(t, w, "/")
	if _, _, ok := sess.Principal(); ok {
		t.Error("principal should be cleared on directory outage")
	}
	assertFlash(t, sess, model.FlashError, msgDirectoryDown)

	c := findCookie(w, auth.RememberCookieName)
	if c == nil || c.MaxAge >= 0 {
		t.Errorf("remember cookie = %+v, want expired cookie", c)
	}
	if len(d.metrics.outages) != 1 || d.metrics.outages[0] != metrics.SystemDirectory {
		t.Errorf("outages = %v, want [%s]", d.metrics.outages, metrics.SystemDirectory)
	}
}

func TestWrap_DatabaseOutage(t *testing.T) {
	h, d := newTestHandler(t)

	sess := session.New()
	sess.SetPrincipal("sample", "alice")
	outage := &model.DatabaseUnavailableError{Err: errors.New("dial tcp: refused")}

	w := serve(h, failWith(outage), httptest.NewRequest(http.MethodGet, "/usersuite/", nil), sess)

	assertRedirect(t, w, "/")
	assertFlash(t, sess, model.FlashError, msgDatabaseDown)
	if _, _, ok := sess.Principal(); !ok {
		t.Error("principal should survive a database outage")
	}
	if len(d.metrics.outages) != 1 || d.metrics.outages[0] != metrics.SystemDatabase {
		t.Errorf("outages = %v, want [%s]", d.metrics.outages, metrics.SystemDatabase)
	}
}

func TestWrap_HTTPErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		category string
		message  string
	}{
		{"not found", &HTTPError{Code: http.StatusNotFound}, model.FlashWarning, msgNotFound},
		{"unauthorized", &HTTPError{Code: http.StatusUnauthorized}, model.FlashWarning, msgForbidden},
		{"forbidden", &HTTPError{Code: http.StatusForbidden}, model.FlashWarning, msgForbidden},
		{"internal", &HTTPError{Code: http.StatusInternalServerError}, model.FlashError, msgGeneric},
		{"plain error", errors.New("boom"), model.FlashError, msgGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandler(t)
			sess := session.New()

			w := serve(h, failWith(tt.err), httptest.NewRequest(http.MethodGet, "/usersuite/contact", nil), sess)

			assertRedirect(t, w, "/")
			assertFlash(t, sess, tt.category, tt.message)
		})
	}
}

func TestWrap_IndexFailureRendersAnonymousIndex(t *testing.T) {
	for _, path := range []string{"/", "/index.php"} {
		t.Run(path, func(t *testing.T) {
			h, _ := newTestHandler(t)
			sess := session.New()
			sess.SetPrincipal("wu", "jdoe")
			outage := &model.DirectoryUnavailableError{Addr: "ldap://ldap:389", Err: errors.New("connection refused")}

			w := serve(h, failWith(outage), httptest.NewRequest(http.MethodGet, path, nil), sess)

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
			}
			if loc := w.Header().Get("Location"); loc != "" {
				t.Errorf("Location = %q, want none", loc)
			}
			body := w.Body.String()
			if !strings.Contains(body, msgDirectoryDown) {
				t.Errorf("body does not contain flash %q", msgDirectoryDown)
			}
			if !strings.Contains(body, usage.MsgQueryFailed) {
				t.Errorf("body does not contain gauge message %q", usage.MsgQueryFailed)
			}
			if len(sess.Flashes()) != 0 {
				t.Errorf("flashes = %+v, want consumed by render", sess.Flashes())
			}
		})
	}
}

func TestWrap_CanceledRequestIsNotTreatedAsOutage(t *testing.T) {
	h, d := newTestHandler(t)

	sess := session.New()
	sess.SetPrincipal("wu", "jdoe")
	outage := &model.DirectoryUnavailableError{Addr: "ldap://ldap:389", Err: errors.New("connection closed")}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/usersuite/", nil).WithContext(ctx)

	w := serve(h, failWith(outage), req, sess)

	if _, _, ok := sess.Principal(); !ok {
		t.Error("principal should survive a canceled request")
	}
	if len(sess.Flashes()) != 0 {
		t.Errorf("flashes = %+v, want none", sess.Flashes())
	}
	if c := findCookie(w, auth.RememberCookieName); c != nil {
		t.Errorf("remember cookie = %+v, want untouched", c)
	}
	if len(d.metrics.outages) != 0 {
		t.Errorf("outages = %v, want none", d.metrics.outages)
	}
}

func TestHTTPError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	err := &HTTPError{Code: http.StatusBadRequest, Err: inner}

	if !errors.Is(err, inner) {
		t.Error("errors.Is(HTTPError, inner) = false, want true")
	}
	if err.Error() != "http 400: inner" {
		t.Errorf("Error() = %q, want %q", err.Error(), "http 400: inner")
	}
}
