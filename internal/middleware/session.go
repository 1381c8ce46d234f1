// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"log/slog"
	"net/http"

	"github.com/hitoshi/sipa/internal/session"
)

// commitWriter はレスポンスヘッダーの送信直前にセッションを保存する。
// Set-Cookieはヘッダー送信前にしか書けないため、WriteHeaderをフックする。
type commitWriter struct {
	http.ResponseWriter
	commit    func()
	committed bool
}

func (cw *commitWriter) WriteHeader(code int) {
	cw.flush()
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *commitWriter) Write(b []byte) (int, error) {
	cw.flush()
	return cw.ResponseWriter.Write(b)
}

func (cw *commitWriter) flush() {
	if !cw.committed {
		cw.committed = true
		cw.commit()
	}
}

// NewSessionMiddleware はCookieからセッションを読み込み、コンテキストに注入するミドルウェアを返す。
// ハンドラーでの変更はレスポンス送信前にStoreへ保存される。
func NewSessionMiddleware(manager *session.Manager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := manager.Load(r)

			cw := &commitWriter{ResponseWriter: w}
			cw.commit = func() {
				if err := manager.Commit(r.Context(), w, sess); err != nil {
					slog.Error("failed to commit session",
						slog.String("error", err.Error()),
						slog.String("path", r.URL.Path),
					)
				}
			}

			next.ServeHTTP(cw, r.WithContext(session.NewContext(r.Context(), sess)))

			// 本文を書かなかったハンドラー向け
			cw.flush()
		})
	}
}
