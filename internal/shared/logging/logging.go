// Package logging provides the component-tagged Logger used across the
// context window orchestrator and RAG engine.
package logging

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Logger is the minimal printf-style logging contract consumed by domain
// code.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// componentLogger writes single-line entries tagged with a component name
// and category, in the text shape parseTextLogLine reads. It writes no log
// id and no source file:line.
type componentLogger struct {
	mu        sync.Mutex
	component string
	category  string
	out       *log.Logger
}

// Option configures a componentLogger.
type Option func(*componentLogger)

// WithCategory sets the bracketed category tag (defaults to "SERVICE").
func WithCategory(category string) Option {
	return func(c *componentLogger) { c.category = category }
}

// WithOutput overrides the destination writer (defaults to stderr).
func WithOutput(out *log.Logger) Option {
	return func(c *componentLogger) { c.out = out }
}

// NewComponentLogger returns a Logger tagged with the given component name.
func NewComponentLogger(component string, opts ...Option) Logger {
	c := &componentLogger{
		component: component,
		category:  "SERVICE",
		out:       log.New(os.Stderr, "", 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *componentLogger) write(level, format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := fmt.Sprintf(format, args...)
	ts := time.Now().Format("2006-01-02 15:04:05")
	c.out.Printf("%s [%s] [%s] [%s] %s", ts, level, c.category, c.component, msg)
}

func (c *componentLogger) Debug(format string, args ...interface{}) { c.write("DEBUG", format, args...) }
func (c *componentLogger) Info(format string, args ...interface{})  { c.write("INFO", format, args...) }
func (c *componentLogger) Warn(format string, args ...interface{})  { c.write("WARN", format, args...) }
func (c *componentLogger) Error(format string, args ...interface{}) { c.write("ERROR", format, args...) }

// nopLogger discards everything.
type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

// Nop is a shared no-op Logger.
var Nop Logger = nopLogger{}

// IsNil reports whether l is a nil Logger interface or a nil concrete value
// boxed in the interface (the latter happens when a typed nil pointer is
// passed through an option).
func IsNil(l Logger) bool {
	if l == nil {
		return true
	}
	if cl, ok := l.(*componentLogger); ok {
		return cl == nil
	}
	return false
}

// OrNop returns l, or Nop when l is nil, so call sites never need a nil
// check before logging.
func OrNop(l Logger) Logger {
	if IsNil(l) {
		return Nop
	}
	return l
}

// splitKV splits a "key=value" token at its first '=', e.g.
// "log_id=abc" -> ("log_id", "abc"). Surrounding brackets are not stripped.
func splitKV(bracketed string) (string, string, bool) {
	idx := strings.IndexByte(bracketed, '=')
	if idx < 0 {
		return "", "", false
	}
	return bracketed[:idx], bracketed[idx+1:], true
}
