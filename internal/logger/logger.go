package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/term"
)

// Logger interface defines the logging methods
type Logger interface {
	Info(format string, args ...any)
	Debug(format string, args ...any)
	Success(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
	// With returns a logger that prefixes every line with the component name.
	With(component string) Logger
	SetOutput(out io.Writer)
	SetErrOutput(out io.Writer)
	SetVerbose(enabled bool)
	SetQuiet(enabled bool)
	IsVerbose() bool
	IsQuiet() bool
}

// sink is shared by a root logger and all of its component loggers.
type sink struct {
	mu      sync.Mutex
	output  io.Writer
	errOut  io.Writer
	verbose atomic.Bool
	quiet   atomic.Bool
	colors  bool
}

// ConsoleLogger implements the Logger interface
type ConsoleLogger struct {
	*sink
	component string
}

var (
	instance Logger
	once     sync.Once
)

// New returns a console logger writing to out and errOut.
// Colors are enabled only when out is a terminal.
func New(out, errOut io.Writer) *ConsoleLogger {
	s := &sink{output: out, errOut: errOut}
	if f, ok := out.(*os.File); ok {
		s.colors = term.IsTerminal(int(f.Fd()))
	}
	return &ConsoleLogger{sink: s}
}

// GetLogger returns the singleton instance
func GetLogger() Logger {
	once.Do(func() {
		instance = New(os.Stdout, os.Stderr)
	})
	return instance
}

// SetVerbose enables or disables verbose mode globally
func SetVerbose(verbose bool) {
	GetLogger().SetVerbose(verbose)
}

func IsVerbose() bool {
	return GetLogger().IsVerbose()
}

func SetQuiet(quiet bool) {
	GetLogger().SetQuiet(quiet)
}

func IsQuiet() bool {
	return GetLogger().IsQuiet()
}

// SetLevel maps a textual level onto the verbose and quiet switches.
// Unknown levels leave the logger at "info".
func SetLevel(level string) {
	l := GetLogger()
	switch level {
	case "debug":
		l.SetQuiet(false)
		l.SetVerbose(true)
	case "error", "quiet":
		l.SetVerbose(false)
		l.SetQuiet(true)
	default:
		l.SetVerbose(false)
		l.SetQuiet(false)
	}
}

// Global helper functions for convenience
func Info(format string, args ...any)    { GetLogger().Info(format, args...) }
func Debug(format string, args ...any)   { GetLogger().Debug(format, args...) }
func Success(format string, args ...any) { GetLogger().Success(format, args...) }
func Warn(format string, args ...any)    { GetLogger().Warn(format, args...) }
func Error(format string, args ...any)   { GetLogger().Error(format, args...) }
func With(component string) Logger      { return GetLogger().With(component) }

// -------------------- Implementation --------------------

func (l *ConsoleLogger) With(component string) Logger {
	if l.component != "" {
		component = l.component + "." + component
	}
	return &ConsoleLogger{sink: l.sink, component: component}
}

func (l *ConsoleLogger) SetOutput(out io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = out
	l.colors = false
}

func (l *ConsoleLogger) SetErrOutput(out io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errOut = out
}

func (l *ConsoleLogger) SetVerbose(enabled bool) {
	l.verbose.Store(enabled)
}

func (l *ConsoleLogger) IsVerbose() bool {
	return l.verbose.Load()
}

func (l *ConsoleLogger) SetQuiet(enabled bool) {
	l.quiet.Store(enabled)
}

func (l *ConsoleLogger) IsQuiet() bool {
	return l.quiet.Load()
}

func (l *ConsoleLogger) timestamp() string {
	return time.Now().Format("2006-01-02 15:04:05.000")
}

func (l *ConsoleLogger) log(toErr bool, icon, plain, color, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if l.component != "" {
		msg = "[" + l.component + "] " + msg
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.output
	if toErr {
		out = l.errOut
	}
	if l.colors {
		fmt.Fprintf(out, "%s%s %s%s\n", color, icon, msg, resetColor)
	} else {
		fmt.Fprintf(out, "%s %s %s\n", l.timestamp(), plain, msg)
	}
}

const (
	blueColor   = "\033[34m"
	greenColor  = "\033[32m"
	yellowColor = "\033[33m"
	redColor    = "\033[31m"
	grayColor   = "\033[90m"
	resetColor  = "\033[0m"
)

func (l *ConsoleLogger) Info(format string, args ...any) {
	if l.IsQuiet() {
		return
	}
	l.log(false, "ℹ️", "INFO", blueColor, format, args...)
}

func (l *ConsoleLogger) Debug(format string, args ...any) {
	if !l.IsVerbose() {
		return
	}
	l.log(false, fmt.Sprintf("[%s] 🔍", l.timestamp()), "DEBUG", grayColor, format, args...)
}

func (l *ConsoleLogger) Success(format string, args ...any) {
	if l.IsQuiet() {
		return
	}
	l.log(false, "✓", "SUCCESS", greenColor, format, args...)
}

func (l *ConsoleLogger) Warn(format string, args ...any) {
	if l.IsQuiet() {
		return
	}
	l.log(false, "⚠", "WARN", yellowColor, format, args...)
}

func (l *ConsoleLogger) Error(format string, args ...any) {
	l.log(true, "✗", "ERROR", redColor, format, args...)
}
