// Package view は埋め込みのHTMLテンプレートを描画する。
package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/sipa/internal/model"
)

//go:embed templates
var templatesFS embed.FS

// テンプレート名。
const (
	PageIndex          = "index.html"
	PageLogin          = "login.html"
	PageUsertraffic    = "usertraffic.html"
	PageUsersuite      = "usersuite/index.html"
	PageContact        = "usersuite/contact.html"
	PageChangePassword = "usersuite/change_password.html"
	PageChangeMail     = "usersuite/change_mail.html"
	PageDeleteMail     = "usersuite/delete_mail.html"
	PageChangeMAC      = "usersuite/change_mac.html"
	PageHosting        = "usersuite/hosting.html"
)

// User はレイアウトのナビゲーションに表示するログインユーザー。
type User struct {
	UID      string
	Name     string
	Division string
}

// Page はすべてのページに共通する描画データ。
type Page struct {
	Title     string
	Locale    string
	CSRFToken string
	User      *User
	Flashes   []model.Flash
	Data      any
}

// Renderer はページごとにレイアウトと結合済みのテンプレートを保持する。
type Renderer struct {
	pages map[string]*template.Template
}

var funcs = template.FuncMap{
	"mib":      formatMiB,
	"percent":  func(v float64) string { return fmt.Sprintf("%.0f", v) },
	"date":     func(t time.Time) string { return t.Format("02.01.2006") },
	"safeHTML": func(s string) template.HTML { return template.HTML(s) },
}

// New は埋め込みテンプレートをすべてパースする。
func New() (*Renderer, error) {
	shared := []string{"templates/layout.html", "templates/partials.html"}

	r := &Renderer{pages: make(map[string]*template.Template)}
	err := fs.WalkDir(templatesFS, "templates", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		name := strings.TrimPrefix(path, "templates/")
		if name == "layout.html" || name == "partials.html" {
			return nil
		}

		t, err := template.New(name).Funcs(funcs).ParseFS(templatesFS, append(shared, path)...)
		if err != nil {
			return fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		r.pages[name] = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Render はページを描画してステータスコードとともに書き込む。
// 描画に失敗した場合は何も書き込まずにエラーを返す。
func (r *Renderer) Render(w http.ResponseWriter, status int, name string, p Page) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown template %q", name)
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", p); err != nil {
		return fmt.Errorf("failed to render %s: %w", name, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

func formatMiB(v float64) string {
	if v >= 1024 || v <= -1024 {
		return fmt.Sprintf("%.2f GiB", v/1024)
	}
	return fmt.Sprintf("%.1f MiB", v)
}
