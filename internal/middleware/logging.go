package middleware

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/sipa/internal/session"
)

type contextKey string

var requestIDContextKey = contextKey("request_id")

// RequestIDFromContext はリクエストIDを返す。ロギングミドルウェア外では空文字列。
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

// statusRecorder はhttp.ResponseWriterをラップし、ステータスコードを記録する。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// WriteHeader はステータスコードを記録してから委譲する。
func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

// Write はデータを書き込む。WriteHeaderが未呼び出しの場合は200を記録する。
func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

// RequestRecorder はリクエストの結果をメトリクスとして記録する。
type RequestRecorder interface {
	RecordHTTPRequest(method string, status int, duration time.Duration)
}

// NewLoggingMiddleware はリクエストごとにhttp_requestログを出力するミドルウェアを返す。
// ログにはmethod、path、status、duration_ms、request_id、ip、uid（ログイン中の場合）を含む。
// recorderがnilでない場合はステータスと処理時間も記録する。
func NewLoggingMiddleware(logger *slog.Logger, recorder RequestRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := uuid.New().String()
			w.Header().Set("X-Request-ID", requestID)
			r = r.WithContext(context.WithValue(r.Context(), requestIDContextKey, requestID))

			rec := &statusRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rec, r)

			elapsed := time.Since(start)
			durationMs := float64(elapsed.Nanoseconds()) / float64(time.Millisecond)
			if recorder != nil {
				recorder.RecordHTTPRequest(r.Method, rec.statusCode, elapsed)
			}

			args := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Float64("duration_ms", durationMs),
				slog.String("request_id", requestID),
				slog.String("ip", ClientIP(r)),
			}
			if division, uid, ok := session.FromContext(r.Context()).Principal(); ok {
				args = append(args, slog.String("uid", uid), slog.String("division", division))
			}

			level := slog.LevelInfo
			if rec.statusCode >= 500 {
				level = slog.LevelError
			} else if rec.statusCode >= 400 {
				level = slog.LevelWarn
			}

			logger.Log(r.Context(), level, "http_request", args...)
		})
	}
}

// ClientIP はRemoteAddrからポートを除いたIPアドレスを返す。
// TRUST_PROXY有効時はchiのRealIPがRemoteAddrを書き換えている。
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
