// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// M3U8Downloader - HLS/M3U8 流下载工具

package logger

import (
	"io"
	"log"
	"os"

	"github.com/fatih/color"
)

// Logger provides a simple logging interface
type Logger interface {
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
	Debug(format string, args ...interface{})
}

var (
	tagInfo  = color.New(color.FgCyan).SprintFunc()
	tagWarn  = color.New(color.FgYellow).SprintFunc()
	tagError = color.New(color.FgRed, color.Bold).SprintFunc()
	tagDebug = color.New(color.FgHiBlack).SprintFunc()
)

type defaultLogger struct {
	prefix string
	debug  bool
	out    *log.Logger
}

// New returns a Logger writing to stderr. Debug lines are dropped unless debug is set.
func New(prefix string, debug bool) Logger {
	return NewWriter(os.Stderr, prefix, debug)
}

// NewWriter is New with an explicit destination.
func NewWriter(w io.Writer, prefix string, debug bool) Logger {
	if prefix != "" {
		prefix = "[" + prefix + "] "
	}
	return &defaultLogger{
		prefix: prefix,
		debug:  debug,
		out:    log.New(w, "", log.LstdFlags),
	}
}

func (l *defaultLogger) Info(format string, args ...interface{}) {
	l.out.Printf(tagInfo("[INFO] ")+l.prefix+format, args...)
}

func (l *defaultLogger) Warn(format string, args ...interface{}) {
	l.out.Printf(tagWarn("[WARN] ")+l.prefix+format, args...)
}

func (l *defaultLogger) Error(format string, args ...interface{}) {
	l.out.Printf(tagError("[ERROR] ")+l.prefix+format, args...)
}

func (l *defaultLogger) Debug(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	l.out.Printf(tagDebug("[DEBUG] "+l.prefix+format), args...)
}

// Nop discards everything.
func Nop() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Info(format string, args ...interface{})  {}
func (nopLogger) Warn(format string, args ...interface{})  {}
func (nopLogger) Error(format string, args ...interface{}) {}
func (nopLogger) Debug(format string, args ...interface{}) {}
