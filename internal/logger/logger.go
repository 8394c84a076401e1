// Package logger はslogベースの構造化ログ出力を提供する。
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	charmlog "github.com/charmbracelet/log"
)

// DefaultLevel はLOG_LEVEL未指定時のログレベル。
const DefaultLevel = slog.LevelWarn

// Options はロガーの生成オプション。
type Options struct {
	// Level は出力する最低ログレベル。
	Level slog.Level
	// Debug がtrueの場合は人が読みやすいテキスト形式で出力する。
	// falseの場合はJSON構造化ログを出力する。
	Debug bool
}

// ParseLevel はLOG_LEVELの文字列をslog.Levelに変換する。
// 大文字小文字は区別しない。WARNING/CRITICALといった表記も受け付ける。
// 不明な値の場合はDefaultLevelとfalseを返す。
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug, true
	case "INFO":
		return slog.LevelInfo, true
	case "WARN", "WARNING":
		return slog.LevelWarn, true
	case "ERROR", "CRITICAL", "FATAL":
		return slog.LevelError, true
	default:
		return DefaultLevel, false
	}
}

// Setup はオプションに応じたslog.Loggerを生成して返す。
// writerが指定された場合はそのwriterに出力する。
func Setup(w io.Writer, opts Options) *slog.Logger {
	if opts.Debug {
		// charmbracelet/log の Logger は slog.Handler を実装している
		handler := charmlog.NewWithOptions(w, charmlog.Options{
			ReportTimestamp: true,
			Level:           charmlog.Level(opts.Level),
		})
		return slog.New(handler)
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: opts.Level,
	})
	return slog.New(handler)
}

// SetupDefault はSetupで生成したロガーをグローバルロガーとして設定する。
// writerがnilの場合はos.Stdoutに出力する。
func SetupDefault(w io.Writer, opts Options) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	l := Setup(w, opts)
	slog.SetDefault(l)
	return l
}
