package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/sipa/internal/session"
)

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestSessionMiddleware_InjectsSessionAndCommitsOnRedirect(t *testing.T) {
	store := session.NewMemoryStore()
	mw := NewSessionMiddleware(session.NewManager(store, session.Config{MaxAge: time.Hour}))

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := session.FromContext(r.Context())
		sess.SetPrincipal("sample", "alice")
		sess.AddFlash("success", "Anmeldung erfolgreich!")
		http.Redirect(w, r, "/", http.StatusFound)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))

	if w.Result().StatusCode != http.StatusFound {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusFound)
	}
	cookie := findCookie(w.Result(), session.CookieName)
	if cookie == nil {
		t.Fatal("session cookie should be set before headers are sent")
	}
	if store.Len() != 1 {
		t.Errorf("store.Len() = %d, want 1", store.Len())
	}

	// 次のリクエストでセッションが復元される
	var division, uid string
	var ok bool
	next := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		division, uid, ok = session.FromContext(r.Context()).Principal()
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	next.ServeHTTP(httptest.NewRecorder(), req)

	if !ok || division != "sample" || uid != "alice" {
		t.Errorf("Principal() = (%q, %q, %v)", division, uid, ok)
	}
}

func TestSessionMiddleware_CommitsWhenHandlerWritesNothing(t *testing.T) {
	store := session.NewMemoryStore()
	mw := NewSessionMiddleware(session.NewManager(store, session.Config{MaxAge: time.Hour}))

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session.FromContext(r.Context()).SetLocale("en")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/language/en", nil))

	if findCookie(w.Result(), session.CookieName) == nil {
		t.Error("session cookie should be set")
	}
	if store.Len() != 1 {
		t.Errorf("store.Len() = %d, want 1", store.Len())
	}
}

func TestSessionMiddleware_AnonymousRequest_NoCookie(t *testing.T) {
	store := session.NewMemoryStore()
	mw := NewSessionMiddleware(session.NewManager(store, session.Config{MaxAge: time.Hour}))

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if findCookie(w.Result(), session.CookieName) != nil {
		t.Error("anonymous request without changes should not set a session cookie")
	}
}
