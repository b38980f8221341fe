// Package logger provides the leveled, package-level logger used by every
// component of vfscore, with JSON output added for pkg/config's
// LoggingConfig.Format option.
package logger

import (
	"encoding/json"
	"fmt"
	stdlog "log"
	"os"
	"strings"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

type Format int

const (
	FormatText Format = iota
	FormatJSON
)

var (
	currentLevel  = LevelInfo
	currentFormat = FormatText
	logger        = stdlog.New(os.Stdout, "", 0)
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// SetLevel sets the minimum level logged. Invalid values are ignored.
func SetLevel(level string) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		currentLevel = LevelDebug
	case "INFO":
		currentLevel = LevelInfo
	case "WARN":
		currentLevel = LevelWarn
	case "ERROR":
		currentLevel = LevelError
	}
}

// SetFormat selects "text" (default) or "json" output.
func SetFormat(format string) {
	if strings.ToLower(format) == "json" {
		currentFormat = FormatJSON
	} else {
		currentFormat = FormatText
	}
}

// SetOutput redirects log output, e.g. to a file opened by the caller.
func SetOutput(w *os.File) {
	logger = stdlog.New(w, "", 0)
}

func log(level Level, format string, v ...any) {
	if level < currentLevel {
		return
	}

	message := fmt.Sprintf(format, v...)
	if currentFormat == FormatJSON {
		line, err := json.Marshal(struct {
			Time    string `json:"time"`
			Level   string `json:"level"`
			Message string `json:"message"`
		}{
			Time:    time.Now().Format(time.RFC3339),
			Level:   level.String(),
			Message: message,
		})
		if err != nil {
			logger.Println(message)
			return
		}
		logger.Println(string(line))
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	prefix := fmt.Sprintf("[%s] [%s] ", timestamp, level.String())
	logger.Println(prefix + message)
}

func Debug(format string, v ...any) { log(LevelDebug, format, v...) }
func Info(format string, v ...any)  { log(LevelInfo, format, v...) }
func Warn(format string, v ...any)  { log(LevelWarn, format, v...) }
func Error(format string, v ...any) { log(LevelError, format, v...) }
