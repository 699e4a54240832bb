package util

import (
	"io"
	"log"
	"os"
	"sync/atomic"
)

var currentLevel atomic.Int32

func init() {
	currentLevel.Store(int32(LogLevelInfo))
}

func SetLevel(level LogLevel) {
	currentLevel.Store(int32(level))
}

func GetLevel() LogLevel {
	return LogLevel(currentLevel.Load())
}

// SetOutput redirects every leveled logger to w.
func SetOutput(w io.Writer) {
	log.SetOutput(w)
}

// SetLogFile appends log output to path, creating it when missing. The caller
// closes the returned file on shutdown.
func SetLogFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	SetOutput(f)
	return f, nil
}

func enabled(level LogLevel) bool {
	return LogLevel(currentLevel.Load()) <= level
}

func Debug(format string, v ...interface{}) {
	if enabled(LogLevelDebug) {
		log.Printf("[DEBUG] "+format, v...)
	}
}

func Info(format string, v ...interface{}) {
	if enabled(LogLevelInfo) {
		log.Printf("[INFO] "+format, v...)
	}
}

func Warn(format string, v ...interface{}) {
	if enabled(LogLevelWarn) {
		log.Printf("[WARN] "+format, v...)
	}
}

func Error(format string, v ...interface{}) {
	if enabled(LogLevelError) {
		log.Printf("[ERROR] "+format, v...)
	}
}

func Fatal(format string, v ...interface{}) {
	log.Printf("[FATAL] "+format, v...)
	os.Exit(1)
}
