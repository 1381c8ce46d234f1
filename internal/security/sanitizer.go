// Package security はアプリケーションのセキュリティ機能を提供する。
//
// 外部フィード由来のHTMLのサニタイズと、ユーザー入力からのHTML除去、
// 内部ネットワークに到達しない外向きHTTPクライアントを扱う。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer はHTMLのサニタイズを行う。並行利用可能。
type Sanitizer struct {
	news   *bluemonday.Policy
	strict *bluemonday.Policy
}

// NewSanitizer はSanitizerを生成する。
//
// ニュース用ポリシー:
//   - 許可タグ: p, br, a, ul, ol, li, strong, em, b, i
//   - aタグ: http/httpsの絶対URLのみ、target="_blank"とrel="noopener noreferrer"を付与
//   - 画像・スクリプト・iframe・style・on*属性は除去
func NewSanitizer() *Sanitizer {
	p := bluemonday.NewPolicy()
	p.AllowElements("p", "br", "ul", "ol", "li", "strong", "em", "b", "i")
	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https")
	p.AllowRelativeURLs(false)
	p.RequireParseableURLs(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &Sanitizer{
		news:   p,
		strict: bluemonday.StrictPolicy(),
	}
}

// NewsHTML はニュース本文のHTMLを表示可能な範囲に絞り込む。
func (s *Sanitizer) NewsHTML(raw string) string {
	return strings.TrimSpace(s.news.Sanitize(raw))
}

// PlainText はすべてのタグを除去したテキストを返す。
// 問い合わせメールの本文や件名に使う。
func (s *Sanitizer) PlainText(raw string) string {
	return html.UnescapeString(s.strict.Sanitize(raw))
}
