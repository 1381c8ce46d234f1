// Package i18n は表示言語の決定を行う。
package i18n

import (
	"golang.org/x/text/language"
)

// Default は既定の表示言語。
const Default = "de"

var supported = []language.Tag{
	language.German,
	language.English,
}

var matcher = language.NewMatcher(supported)

// Supported はlangが対応言語であれば正規化した言語コードを返す。
func Supported(lang string) (string, bool) {
	tag, err := language.Parse(lang)
	if err != nil {
		return "", false
	}
	base, _ := tag.Base()
	for _, s := range supported {
		if sb, _ := s.Base(); sb == base {
			return sb.String(), true
		}
	}
	return "", false
}

// Negotiate はセッションの言語、なければAccept-Languageヘッダーから表示言語を決める。
func Negotiate(sessionLocale, acceptLanguage string) string {
	if lang, ok := Supported(sessionLocale); ok {
		return lang
	}
	if acceptLanguage == "" {
		return Default
	}

	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return Default
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return Default
	}
	base, _ := supported[idx].Base()
	return base.String()
}
