// Package logger provides the structured logging convention shared by
// every storage-layer component: a logrus.Logger with a compact
// single-line formatter carrying timestamp, level and caller.
//
// Unlike a package-level singleton, New returns an independent *logrus.Logger
// per caller so tests can capture or silence output without cross-test
// interference; components accept a *logrus.Logger (or fall back to
// Discard()) rather than reaching for a global.
package logger

import (
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// Formatter renders log entries as "[15:04:05.000] [INFO] (file:func:line) msg",
// with the level cut to its first four letters (DEBU, INFO, WARN, ERRO).
type Formatter struct{}

// Format implements logrus.Formatter.
func (Formatter) Format(entry *logrus.Entry) ([]byte, error) {
	level := strings.ToUpper(entry.Level.String())
	if len(level) > 4 {
		level = level[:4]
	}
	return []byte(fmt.Sprintf("[%s] [%s] (%s) %s\n",
		entry.Time.Format("15:04:05.000"), level, caller(), entry.Message)), nil
}

func caller() string {
	for i := 2; i < 20; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		if strings.Contains(file, "/logrus/") || strings.Contains(file, "/logger/logger.go") {
			continue
		}
		fn := runtime.FuncForPC(pc)
		name := "unknown"
		if fn != nil {
			name = fn.Name()
		}
		return fmt.Sprintf("%s:%s:%d", filepath.Base(file), name, line)
	}
	return "unknown:unknown:0"
}

// New builds a logger writing to w at the given level ("debug", "info",
// "warn", "error"; anything else defaults to "info").
func New(w io.Writer, level string) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(Formatter{})
	l.SetOutput(w)
	l.SetLevel(parseLevel(level))
	return l
}

func parseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Discard returns a logger that drops everything, used as the default
// when a component isn't given one explicitly.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
