// Package logger exposes a process-wide leveled logger on top of slog.
// Packages call the printf-style helpers directly; main wires the level and
// destination once from config.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

var (
	minLevel slog.LevelVar
	sink     atomic.Pointer[slog.Logger]
)

func init() {
	minLevel.Set(slog.LevelInfo)
	sink.Store(build(os.Stdout))
}

func build(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: &minLevel}))
}

// SetOutput redirects every subsequent log line to w.
func SetOutput(w io.Writer) {
	sink.Store(build(w))
}

var levelNames = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// SetLevel sets the minimum level by name. Unknown names select info.
func SetLevel(name string) {
	lv, ok := levelNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		lv = slog.LevelInfo
	}
	minLevel.Set(lv)
}

func Debugf(format string, v ...any) {
	sink.Load().Debug(fmt.Sprintf(format, v...))
}

func Infof(format string, v ...any) {
	sink.Load().Info(fmt.Sprintf(format, v...))
}

func Warnf(format string, v ...any) {
	sink.Load().Warn(fmt.Sprintf(format, v...))
}

func Errorf(format string, v ...any) {
	sink.Load().Error(fmt.Sprintf(format, v...))
}
