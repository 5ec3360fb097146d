// Package logger provides leveled logging for the service.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

// Level represents a logging level.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// ParseLevel maps a config string onto a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel
	case "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

var (
	level Level = InfoLevel
	out   *log.Logger
)

// Init initializes the package logger with the specified level and format.
// The "text" format adds source locations; "json" stays terse for collectors.
func Init(levelName, format string) {
	level = ParseLevel(levelName)
	flags := log.LstdFlags | log.Lmicroseconds
	if strings.ToLower(format) == "text" {
		flags |= log.Lshortfile
	}
	out = log.New(os.Stderr, "", flags)
}

// SetOutput redirects log output; used by tests.
func SetOutput(w io.Writer) {
	if out == nil {
		Init("info", "json")
	}
	out.SetOutput(w)
}

func logf(l Level, tag, format string, args ...any) {
	if out == nil || level > l {
		return
	}
	_ = out.Output(3, fmt.Sprintf(tag+" "+format, args...))
}

func Debug(format string, args ...any) { logf(DebugLevel, "[DEBUG]", format, args...) }
func Info(format string, args ...any)  { logf(InfoLevel, "[INFO]", format, args...) }
func Warn(format string, args ...any)  { logf(WarnLevel, "[WARN]", format, args...) }
func Error(format string, args ...any) { logf(ErrorLevel, "[ERROR]", format, args...) }

// Fatal logs at error level and exits.
func Fatal(format string, args ...any) {
	if out != nil {
		_ = out.Output(3, fmt.Sprintf("[FATAL] "+format, args...))
	}
	os.Exit(1)
}
