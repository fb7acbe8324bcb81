package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func ParseLevel(s string) Level {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "debug":
		return Debug
	case "warn":
		return Warn
	case "error":
		return Error
	default:
		return Info
	}
}

// Logger is a small leveled logger. A nil *Logger discards everything, so
// packages can hold one without checking.
type Logger struct {
	min  Level
	json bool
	name string
	mu   *sync.Mutex
	out  io.Writer
}

func New(level string, jsonOut bool) *Logger {
	out := io.Writer(os.Stderr)
	if jsonOut {
		out = os.Stdout
	}
	return NewWithWriter(level, jsonOut, out)
}

// NewWithWriter builds a logger that writes to out.
func NewWithWriter(level string, jsonOut bool, out io.Writer) *Logger {
	if out == nil {
		out = io.Discard
	}
	return &Logger{min: ParseLevel(level), json: jsonOut, out: out, mu: &sync.Mutex{}}
}

// NewFile appends to the log file at path, creating parent directories. The
// TUI owns the terminal, so it logs here instead of stderr.
func NewFile(level string, jsonOut bool, path string) (*Logger, io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return NewWithWriter(level, jsonOut, f), f, nil
}

// Discard returns a logger that drops all output.
func Discard() *Logger { return NewWithWriter("error", false, io.Discard) }

// Named returns a child logger that tags every line with component.
func (l *Logger) Named(component string) *Logger {
	if l == nil {
		return nil
	}
	c := *l
	if c.name != "" {
		c.name = c.name + "." + component
	} else {
		c.name = component
	}
	return &c
}

func (l *Logger) Enabled(v Level) bool { return l != nil && v >= l.min }

func (l *Logger) Debugf(format string, a ...any) { l.log(Debug, format, a...) }
func (l *Logger) Infof(format string, a ...any)  { l.log(Info, format, a...) }
func (l *Logger) Warnf(format string, a ...any)  { l.log(Warn, format, a...) }
func (l *Logger) Errorf(format string, a ...any) { l.log(Error, format, a...) }

func (l *Logger) log(level Level, format string, a ...any) {
	if !l.Enabled(level) {
		return
	}
	msg := fmt.Sprintf(format, a...)
	lvl := levelString(level)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.json {
		payload := map[string]any{
			"ts":    time.Now().Format(time.RFC3339Nano),
			"level": lvl,
			"msg":   msg,
		}
		if l.name != "" {
			payload["component"] = l.name
		}
		_ = json.NewEncoder(l.out).Encode(payload)
		return
	}
	if l.name != "" {
		fmt.Fprintf(l.out, "%s\t[%s] %s\n", strings.ToUpper(lvl), l.name, msg)
		return
	}
	fmt.Fprintf(l.out, "%s\t%s\n", strings.ToUpper(lvl), msg)
}

func levelString(l Level) string {
	switch l {
	case Debug:
		return "debug"
	case Warn:
		return "warn"
	case Error:
		return "error"
	default:
		return "info"
	}
}
