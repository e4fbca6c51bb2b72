package core

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Logger is the engine logger. It is created once by the owner of the
// renderer and handed to every subsystem constructor. A logger and every
// logger derived from it with Named share one level.
type Logger struct {
	*log.Logger
	family *loggerFamily
}

type loggerFamily struct {
	mutex   sync.Mutex
	members []*log.Logger
}

func newLogger(l *log.Logger) *Logger {
	return &Logger{Logger: l, family: &loggerFamily{members: []*log.Logger{l}}}
}

// NewLogger creates a logger writing to w. A nil writer means stderr.
func NewLogger(w io.Writer, cfg LogConfig) *Logger {
	if w == nil {
		w = os.Stderr
	}
	l := log.NewWithOptions(w, log.Options{
		ReportCaller:    cfg.ReportCaller,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Prefix:          cfg.Prefix,
	})
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		level = log.InfoLevel
	}
	l.SetLevel(level)
	return newLogger(l)
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() *Logger {
	l := log.NewWithOptions(io.Discard, log.Options{})
	l.SetLevel(log.FatalLevel)
	return newLogger(l)
}

// SetLevelString changes the verbosity using the names accepted in the
// configuration file ("debug", "info", "warn", "error").
func (l *Logger) SetLevelString(level string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return err
	}
	l.SetLevel(lvl)
	return nil
}

// SetLevel changes the level of the whole family of l.
func (l *Logger) SetLevel(level log.Level) {
	l.family.mutex.Lock()
	defer l.family.mutex.Unlock()
	for _, member := range l.family.members {
		member.SetLevel(level)
	}
}

func (l *Logger) GetLevel() log.Level {
	l.family.mutex.Lock()
	defer l.family.mutex.Unlock()
	return l.Logger.GetLevel()
}

// Named returns a child logger whose prefix is extended with name.
func (l *Logger) Named(name string) *Logger {
	prefix := l.GetPrefix()
	if prefix != "" {
		prefix += "/"
	}
	l.family.mutex.Lock()
	defer l.family.mutex.Unlock()
	child := l.WithPrefix(prefix + name)
	l.family.members = append(l.family.members, child)
	return &Logger{Logger: child, family: l.family}
}
