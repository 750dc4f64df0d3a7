package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// New builds the process-wide root logger. levelName mirrors the `-l`
// CLI flag (off, fatal, error, warn, info, debug, trace, all); an
// unrecognised value falls back to info.
func New(w io.Writer, levelName string) Modular {
	opts := &slog.HandlerOptions{Level: parseLevel(levelName)}
	handler := slog.NewJSONHandler(w, opts)
	return NewAdapter(slog.New(handler))
}

func parseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace", "debug", "all":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "fatal":
		return slog.LevelError
	case "off":
		return slog.Level(100)
	default:
		return slog.LevelInfo
	}
}

type logHandler struct {
	slog *slog.Logger
}

// NewAdapter wraps a *slog.Logger as a Modular logger.
func NewAdapter(l *slog.Logger) Modular {
	return &logHandler{slog: l}
}

func (l *logHandler) WithFields(fields map[string]string) Modular {
	tmp := l.slog
	for k, v := range fields {
		tmp = tmp.With(slog.String(k, v))
	}
	c := l.clone()
	c.slog = tmp
	return c
}

func (l *logHandler) With(keyValues ...any) Modular {
	c := l.clone()
	c.slog = l.slog.With(keyValues...)
	return c
}

func (l *logHandler) Fatalf(format string, v ...any) {
	l.slog.Error(fmt.Sprintf(format, v...))
	os.Exit(1)
}

func (l *logHandler) Errorf(format string, v ...any) { l.slog.Error(fmt.Sprintf(format, v...)) }
func (l *logHandler) Warnf(format string, v ...any)  { l.slog.Warn(fmt.Sprintf(format, v...)) }
func (l *logHandler) Infof(format string, v ...any)  { l.slog.Info(fmt.Sprintf(format, v...)) }
func (l *logHandler) Debugf(format string, v ...any) { l.slog.Debug(fmt.Sprintf(format, v...)) }
func (l *logHandler) Tracef(format string, v ...any) { l.slog.Debug(fmt.Sprintf(format, v...)) }

func (l *logHandler) Fatalln(message string) {
	l.slog.Error(message)
	os.Exit(1)
}

func (l *logHandler) Errorln(message string) { l.slog.Error(message) }
func (l *logHandler) Warnln(message string)  { l.slog.Warn(message) }
func (l *logHandler) Infoln(message string)  { l.slog.Info(message) }
func (l *logHandler) Debugln(message string) { l.slog.Debug(message) }
func (l *logHandler) Traceln(message string) { l.slog.Debug(message) }

func (l *logHandler) clone() *logHandler {
	c := *l
	return &c
}
