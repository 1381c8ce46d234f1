package view

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/sipa/internal/model"
)

func TestNew_ParsesAllPages(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for _, name := range []string{
		PageIndex, PageLogin, PageUsertraffic, PageUsersuite, PageContact,
		PageChangePassword, PageChangeMail, PageDeleteMail, PageChangeMAC, PageHosting,
	} {
		if _, ok := r.pages[name]; !ok {
			t.Errorf("page %q not parsed", name)
		}
	}
}

func TestRender_LayoutAndFlashes(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	w := httptest.NewRecorder()
	err = r.Render(w, http.StatusOK, PageChangePassword, Page{
		Title:     "Passwort ändern",
		Locale:    "de",
		CSRFToken: "tok123",
		User:      &User{UID: "alice", Name: "Alice"},
		Flashes:   []model.Flash{{Category: model.FlashError, Message: "Altes Passwort war inkorrekt!"}},
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	body := w.Body.String()
	for _, want := range []string{
		`<html lang="de">`,
		`value="tok123"`,
		`Altes Passwort war inkorrekt!`,
		`flash-error`,
		`/logout`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body does not contain %q", want)
		}
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestRender_EscapesUserInput(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	w := httptest.NewRecorder()
	err = r.Render(w, http.StatusOK, PageUsertraffic, Page{
		Flashes: []model.Flash{{Category: "error", Message: "<script>alert(1)</script>"}},
		Data: struct{ Traffic model.TrafficData }{
			Traffic: model.TrafficData{Days: []model.TrafficDay{{Date: time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), Input: 2048}}},
		},
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	body := w.Body.String()
	if strings.Contains(body, "<script>alert(1)</script>") {
		t.Error("flash message was not escaped")
	}
	if !strings.Contains(body, "09.03.2024") || !strings.Contains(body, "2.00 GiB") {
		t.Errorf("traffic table not rendered: %s", body)
	}
}

func TestRender_UnknownPage(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	w := httptest.NewRecorder()
	if err := r.Render(w, http.StatusOK, "missing.html", Page{}); err == nil {
		t.Error("Render() error = nil, want error")
	}
	if w.Body.Len() != 0 {
		t.Error("nothing should be written on error")
	}
}

func TestFormatMiB(t *testing.T) {
	tests := map[float64]string{
		0:    "0.0 MiB",
		512:  "512.0 MiB",
		1024: "1.00 GiB",
		1536: "1.50 GiB",
	}
	for in, want := range tests {
		if got := formatMiB(in); got != want {
			t.Errorf("formatMiB(%v) = %q, want %q", in, got, want)
		}
	}
}
