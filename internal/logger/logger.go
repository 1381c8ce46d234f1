package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// LevelCritical はLDAP/SQLサーバーの停止など、運用者の即時対応が必要な障害のログレベル。
const LevelCritical = slog.Level(12)

// Options はロガーの出力形式とレベルを指定する。
type Options struct {
	// Format は "json"（デフォルト）または "text"（tintによるカラー出力）。
	Format string
	Level  slog.Level
}

// Setup は構造化ログ出力のslog.Loggerを生成して返す。
// writerが指定された場合はそのwriterに出力する。
func Setup(w io.Writer, opts Options) *slog.Logger {
	if strings.EqualFold(opts.Format, "text") {
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      opts.Level,
			TimeFormat: time.Kitchen,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.LevelKey && len(groups) == 0 {
					if lvl, ok := a.Value.Any().(slog.Level); ok && lvl >= LevelCritical {
						return slog.String(a.Key, "CRIT")
					}
				}
				return a
			},
		}))
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       opts.Level,
		ReplaceAttr: replaceCriticalLevel,
	})
	return slog.New(handler)
}

// SetupDefault は構造化ログ出力をグローバルロガーとして設定する。
// 本番ではos.Stdoutを渡すことを想定している。
func SetupDefault(w io.Writer, opts Options) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(Setup(w, opts))
}

// ParseLevel はLOG_LEVELの文字列をslog.Levelに変換する。未知の値はINFO。
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "critical":
		return LevelCritical
	default:
		return slog.LevelInfo
	}
}

// replaceCriticalLevel はJSON出力で "ERROR+4" ではなく "CRITICAL" と出力させる。
func replaceCriticalLevel(groups []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey || len(groups) != 0 {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl >= LevelCritical {
		return slog.String(slog.LevelKey, "CRITICAL")
	}
	return a
}
