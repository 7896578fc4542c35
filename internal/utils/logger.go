package utils

import (
	"fmt"
	"io"
	"log"
	"os"
)

type Logger struct {
	debug       bool
	debugLogger *log.Logger
	infoLogger  *log.Logger
	warnLogger  *log.Logger
	errorLogger *log.Logger
	fatalLogger *log.Logger
}

// NewLogger writes every level to w. A nil w means stdout for info and debug,
// stderr for the rest.
func NewLogger(debug bool, w io.Writer) *Logger {
	out, errOut := w, w
	if w == nil {
		out, errOut = os.Stdout, os.Stderr
	}
	flags := log.Ldate | log.Ltime | log.Lshortfile

	return &Logger{
		debug:       debug,
		debugLogger: log.New(out, "DEBUG: ", flags),
		infoLogger:  log.New(out, "INFO: ", flags),
		warnLogger:  log.New(errOut, "WARN: ", flags),
		errorLogger: log.New(errOut, "ERROR: ", flags),
		fatalLogger: log.New(errOut, "FATAL: ", flags),
	}
}

// NewNopLogger discards everything. Handy in tests.
func NewNopLogger() *Logger {
	return NewLogger(false, io.Discard)
}

func (l *Logger) Debug(v ...interface{}) {
	if !l.debug {
		return
	}
	l.debugLogger.Output(2, fmt.Sprintln(v...))
}

func (l *Logger) Info(v ...interface{}) {
	l.infoLogger.Output(2, fmt.Sprintln(v...))
}

func (l *Logger) Warn(v ...interface{}) {
	l.warnLogger.Output(2, fmt.Sprintln(v...))
}

func (l *Logger) Error(v ...interface{}) {
	l.errorLogger.Output(2, fmt.Sprintln(v...))
}

func (l *Logger) Fatal(v ...interface{}) {
	l.fatalLogger.Output(2, fmt.Sprintln(v...))
	os.Exit(1)
}

func (l *Logger) DebugEnabled() bool {
	return l.debug
}
