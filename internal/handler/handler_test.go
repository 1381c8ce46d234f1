package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/sipa/internal/auth"
	"github.com/hitoshi/sipa/internal/division"
	"github.com/hitoshi/sipa/internal/mailer"
	"github.com/hitoshi/sipa/internal/model"
	"github.com/hitoshi/sipa/internal/session"
	"github.com/hitoshi/sipa/internal/usage"
	"github.com/hitoshi/sipa/internal/view"
)

// --- モック ---

type fakeAccount struct {
	uid       string
	name      string
	division  string
	infoFn    func(ctx context.Context) (model.UserInfo, error)
	trafficFn func(ctx context.Context) (model.TrafficData, error)
}

func (a *fakeAccount) UID() string      { return a.uid }
func (a *fakeAccount) Name() string     { return a.name }
func (a *fakeAccount) Division() string { return a.division }

func (a *fakeAccount) Info(ctx context.Context) (model.UserInfo, error) {
	if a.infoFn != nil {
		return a.infoFn(ctx)
	}
	return model.UserInfo{ID: 1234, Login: a.uid, Name: a.name, IP: "141.30.228.39", MAC: "aa:bb:cc:dd:ee:ff"}, nil
}

func (a *fakeAccount) CurrentCredit(ctx context.Context) (model.Credit, error) {
	return model.Credit{Amount: 100, Max: 1000}, nil
}

func (a *fakeAccount) TrafficData(ctx context.Context) (model.TrafficData, error) {
	if a.trafficFn != nil {
		return a.trafficFn(ctx)
	}
	return model.TrafficData{Credit: 100}, nil
}

var alice = &fakeAccount{uid: "alice", name: "Alice", division: "sample"}

type mockAuth struct {
	loginFn       func(ctx context.Context, sess *session.Session, divisionName, username, password string, remember bool) (string, error)
	currentUserFn func(ctx context.Context, sess *session.Session, rememberToken string) (division.Account, error)
	reauthFn      func(ctx context.Context, acc division.Account, password string) error

	loginCalls  int
	logoutCalls int
}

func (m *mockAuth) Login(ctx context.Context, sess *session.Session, divisionName, username, password string, remember bool) (string, error) {
	m.loginCalls++
	if m.loginFn != nil {
		return m.loginFn(ctx, sess, divisionName, username, password, remember)
	}
	return "", nil
}

func (m *mockAuth) Logout(sess *session.Session) {
	m.logoutCalls++
	sess.ClearPrincipal()
}

func (m *mockAuth) CurrentUser(ctx context.Context, sess *session.Session, rememberToken string) (division.Account, error) {
	if m.currentUserFn != nil {
		return m.currentUserFn(ctx, sess, rememberToken)
	}
	return nil, nil
}

func (m *mockAuth) Reauthenticate(ctx context.Context, acc division.Account, password string) error {
	if m.reauthFn != nil {
		return m.reauthFn(ctx, acc, password)
	}
	return nil
}

func (m *mockAuth) RememberCookie(token string, secure bool, domain string) *http.Cookie {
	c := &http.Cookie{Name: auth.RememberCookieName, Value: token, Path: "/"}
	if token == "" {
		c.MaxAge = -1
	}
	return c
}

// loggedIn はaccを常に返すCurrentUserを設定する。
func (m *mockAuth) loggedIn(acc division.Account) *mockAuth {
	m.currentUserFn = func(ctx context.Context, sess *session.Session, rememberToken string) (division.Account, error) {
		return acc, nil
	}
	return m
}

type mockDivisions struct {
	userFromIPFn func(ctx context.Context, ip string) (division.Account, error)
}

func (m *mockDivisions) All() []*division.Division {
	return []*division.Division{{Name: "sample", DisplayName: "Beispielsektion"}}
}

func (m *mockDivisions) UserFromIP(ctx context.Context, ip string) (division.Account, error) {
	if m.userFromIPFn != nil {
		return m.userFromIPFn(ctx, ip)
	}
	return nil, model.ErrUserNotFound
}

type mockGauge struct{}

func (mockGauge) QueryGauge(ctx context.Context, principal division.Account, ip string) usage.Gauge {
	return usage.Gauge{Credit: &model.Credit{Amount: 100, Max: 1000}}
}

type mockNews struct {
	items []model.NewsItem
	err   error
}

func (m *mockNews) Latest(ctx context.Context) ([]model.NewsItem, error) {
	return m.items, m.err
}

type mockDirectory struct {
	changePasswordFn func(ctx context.Context, uid, oldPassword, newPassword string) error
	changeEmailFn    func(ctx context.Context, uid, password, mail string) error

	passwordCalls int
	emailCalls    int
	lastMail      string
}

func (m *mockDirectory) ChangePassword(ctx context.Context, uid, oldPassword, newPassword string) error {
	m.passwordCalls++
	if m.changePasswordFn != nil {
		return m.changePasswordFn(ctx, uid, oldPassword, newPassword)
	}
	return nil
}

func (m *mockDirectory) ChangeEmail(ctx context.Context, uid, password, mail string) error {
	m.emailCalls++
	m.lastMail = mail
	if m.changeEmailFn != nil {
		return m.changeEmailFn(ctx, uid, password, mail)
	}
	return nil
}

type mockMACUpdater struct {
	calls  int
	ip     string
	oldMAC string
	newMAC string
	err    error
}

func (m *mockMACUpdater) UpdateMAC(ctx context.Context, ip, oldMAC, newMAC string) error {
	m.calls++
	m.ip, m.oldMAC, m.newMAC = ip, oldMAC, newMAC
	return m.err
}

type mockMailer struct {
	sent []mailer.Message
	err  error
}

func (m *mockMailer) Send(ctx context.Context, msg mailer.Message) error {
	m.sent = append(m.sent, msg)
	return m.err
}

type mockHosting struct {
	has bool
	err error

	created  []string
	changed  []string
	dropped  []string
	password string
}

func (m *mockHosting) HasDatabase(ctx context.Context, uid string) (bool, error) {
	return m.has, m.err
}

func (m *mockHosting) Create(ctx context.Context, uid, password string) error {
	m.created = append(m.created, uid)
	m.password = password
	return m.err
}

func (m *mockHosting) ChangePassword(ctx context.Context, uid, password string) error {
	m.changed = append(m.changed, uid)
	m.password = password
	return m.err
}

func (m *mockHosting) Drop(ctx context.Context, uid string) error {
	m.dropped = append(m.dropped, uid)
	return m.err
}

type plainSanitizer struct{}

func (plainSanitizer) PlainText(raw string) string { return raw }

type mockMetrics struct {
	outages []string
	mails   []string
}

func (m *mockMetrics) RecordLogin(division, result string) {}

func (m *mockMetrics) RecordMail(kind string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.mails = append(m.mails, kind+":"+result)
}

func (m *mockMetrics) RecordOutage(system string) {
	m.outages = append(m.outages, system)
}

func (m *mockMetrics) RecordHTTPRequest(method string, status int, duration time.Duration) {}

// --- ヘルパー ---

type testDeps struct {
	auth      *mockAuth
	divisions *mockDivisions
	news      *mockNews
	directory *mockDirectory
	accounts  *mockMACUpdater
	mailer    *mockMailer
	hosting   *mockHosting
	metrics   *mockMetrics
}

func newTestHandler(t *testing.T) (*Handler, *testDeps) {
	t.Helper()

	renderer, err := view.New()
	if err != nil {
		t.Fatalf("view.New() error = %v", err)
	}

	d := &testDeps{
		auth:      &mockAuth{},
		divisions: &mockDivisions{},
		news:      &mockNews{},
		directory: &mockDirectory{},
		accounts:  &mockMACUpdater{},
		mailer:    &mockMailer{},
		hosting:   &mockHosting{},
		metrics:   &mockMetrics{},
	}
	h := New(Deps{
		Divisions:     d.divisions,
		Auth:          d.auth,
		Gauge:         mockGauge{},
		News:          d.news,
		Directory:     d.directory,
		Accounts:      d.accounts,
		Mailer:        d.mailer,
		Composer:      mailer.Composer{SupportAddress: "support@wh2.tu-dresden.de", UserDomain: "wh2.tu-dresden.de"},
		UserDatabases: d.hosting,
		Sanitizer:     plainSanitizer{},
		Metrics:       d.metrics,
		Renderer:      renderer,
		Config:        Config{SupportAddress: "support@wh2.tu-dresden.de"},
	})
	return h, d
}

// serve はセッションを注入してハンドラーを実行する。
func serve(h *Handler, fn handlerFunc, req *http.Request, sess *session.Session) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req = req.WithContext(session.NewContext(req.Context(), sess))
	h.wrap(fn).ServeHTTP(w, req)
	return w
}

func postForm(target string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func assertRedirect(t *testing.T, w *httptest.ResponseRecorder, want string) {
	t.Helper()
	if w.Code != http.StatusFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusFound)
	}
	if got := w.Header().Get("Location"); got != want {
		t.Errorf("Location = %q, want %q", got, want)
	}
}

func assertFlash(t *testing.T, sess *session.Session, category, message string) {
	t.Helper()
	for _, f := range sess.Flashes() {
		if f.Category == category && f.Message == message {
			return
		}
	}
	t.Errorf("flash (%s) %q not found in %+v", category, message, sess.Flashes())
}

func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
