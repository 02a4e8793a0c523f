// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package logging provides a component-scoped structured logger for the
// supervisor. It wraps log/slog so every subsystem (C1-C10) tags its
// lines with the component name, and supports reopening the underlying
// log file on SIGHUP without losing in-flight handlers.
package logging

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

// Config controls where and how the logger writes.
type Config struct {
	// Path is the log file path. Empty means stderr.
	Path string
	// Level is the minimum level that is emitted.
	Level slog.Level
	// JSON selects structured JSON output instead of text.
	JSON bool
}

// DefaultConfig returns the logger configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{Level: slog.LevelInfo}
}

var (
	mu      sync.RWMutex
	root    *Logger
	rootCfg Config
	file    *os.File
)

func init() {
	root = New(DefaultConfig())
}

// Logger is a component-scoped wrapper around *slog.Logger.
type Logger struct {
	component string
	inner     *slog.Logger
}

// New constructs a root logger from cfg and installs it as the process
// default used by WithComponent.
func New(cfg Config) *Logger {
	mu.Lock()
	defer mu.Unlock()

	var w io.Writer = os.Stderr
	if cfg.Path != "" {
		f, err := os.OpenFile(cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err == nil {
			if file != nil {
				file.Close()
			}
			file = f
			w = f
		}
	}

	opts := &slog.HandlerOptions{Level: cfg.Level}
	var h slog.Handler
	if cfg.JSON {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}

	l := &Logger{inner: slog.New(h)}
	rootCfg = cfg
	root = l
	return l
}

// Reopen closes and reopens the configured log file. It is a no-op when
// logging to stderr. Called from the SIGHUP handler per the event loop's
// signal contract (spec C1): SIGHUP must not otherwise touch process state.
func Reopen() error {
	mu.Lock()
	cfg := rootCfg
	mu.Unlock()
	if cfg.Path == "" {
		return nil
	}
	New(cfg)
	return nil
}

// WithComponent returns a logger tagged with the given component name,
// derived from the current process-wide root logger.
func WithComponent(component string) *Logger {
	mu.RLock()
	r := root
	mu.RUnlock()
	return &Logger{component: component, inner: r.inner}
}

func (l *Logger) with(kv []any) *slog.Logger {
	if l.component == "" {
		return l.inner.With(kv...)
	}
	mu.RLock()
	inner := root.inner
	mu.RUnlock()
	return inner.With("component", l.component).With(kv...)
}

// Debug logs at debug level with optional key/value pairs.
func (l *Logger) Debug(msg string, kv ...any) { l.with(kv).Debug(msg) }

// Info logs at info level with optional key/value pairs.
func (l *Logger) Info(msg string, kv ...any) { l.with(kv).Info(msg) }

// Warn logs at warn level with optional key/value pairs.
func (l *Logger) Warn(msg string, kv ...any) { l.with(kv).Warn(msg) }

// Error logs at error level with optional key/value pairs.
func (l *Logger) Error(msg string, kv ...any) { l.with(kv).Error(msg) }
