// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// M3U8Downloader - HLS/M3U8 流下载工具
//
// Package process wraps exec.Cmd for supervising one run of an external tool.

package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"
)

var (
	ErrNoBinary       = errors.New("no valid binary given")
	ErrAlreadyStarted = errors.New("process already started")
)

// EventType classifies what the child reported.
type EventType int

const (
	EventProgress EventType = iota
	EventError
	EventEnd
)

func (t EventType) String() string {
	switch t {
	case EventProgress:
		return "progress"
	case EventError:
		return "error"
	case EventEnd:
		return "end"
	}
	return "unknown"
}

// Event is one item of the child's event stream. Error and End are terminal
// and each process emits exactly one of them.
type Event struct {
	Type    EventType
	Percent float64
	Message string
}

// Process represents one run of an external program
type Process interface {
	Start() error
	Events() <-chan Event
	Kill() error
	Close()
	Usage() (cpu float64, memory uint64)
}

// Config for a process
type Config struct {
	Binary  string
	Args    []string
	Parser  Parser
	Stdout  io.Writer
	Monitor Monitor
	Logger  Logger
}

// Logger interface
type Logger interface {
	Error(format string, args ...interface{})
	Debug(format string, args ...interface{})
}

type process struct {
	binary string
	args   []string
	cmd    *exec.Cmd
	stderr io.ReadCloser
	stdout io.Writer

	parser   Parser
	monitor  Monitor
	logger   Logger
	lastLine string

	events    chan Event
	closed    chan struct{}
	closeOnce sync.Once
	killOnce  sync.Once
	lock      sync.Mutex
}

// New creates a new process
func New(config Config) (Process, error) {
	p := &process{
		binary:  config.Binary,
		args:    config.Args,
		stdout:  config.Stdout,
		parser:  config.Parser,
		monitor: config.Monitor,
		logger:  config.Logger,
		events:  make(chan Event, 16),
		closed:  make(chan struct{}),
	}

	if len(p.binary) == 0 {
		return nil, ErrNoBinary
	}

	if p.parser == nil {
		p.parser = &nullParser{}
	}

	if p.monitor == nil {
		p.monitor = NewNullMonitor()
	}

	if p.logger == nil {
		p.logger = &nopLogger{}
	}

	return p, nil
}

func (p *process) Start() error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.cmd != nil {
		return ErrAlreadyStarted
	}

	cmd := exec.Command(p.binary, p.args...)
	cmd.Stdout = p.stdout

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return err
	}

	p.cmd = cmd
	p.stderr = stderr

	if err := p.monitor.Start(cmd.Process.Pid); err != nil {
		p.logger.Debug("can't monitor pid %d: %v", cmd.Process.Pid, err)
	}

	go p.reader()

	return nil
}

func (p *process) Events() <-chan Event {
	return p.events
}

// Kill sends SIGKILL once. Later calls and calls on an exited process are no-ops.
func (p *process) Kill() error {
	p.lock.Lock()
	cmd := p.cmd
	p.lock.Unlock()

	if cmd == nil {
		return nil
	}

	var err error
	p.killOnce.Do(func() {
		err = cmd.Process.Kill()
		if errors.Is(err, os.ErrProcessDone) {
			err = nil
		}
	})
	return err
}

// Close releases the reader when nobody consumes events anymore.
func (p *process) Close() {
	p.closeOnce.Do(func() {
		close(p.closed)
	})
}

func (p *process) Usage() (float64, uint64) {
	return p.monitor.Current()
}

func (p *process) emit(ev Event) {
	select {
	case p.events <- ev:
	case <-p.closed:
	}
}

func (p *process) reader() {
	scanner := bufio.NewScanner(p.stderr)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	scanner.Split(scanLine)

	p.parser.ResetStats()
	p.parser.ResetLog()

	for scanner.Scan() {
		line := scanner.Text()
		if n := p.parser.Parse(line); n != 0 {
			p.emit(Event{Type: EventProgress, Percent: p.parser.Percent()})
			continue
		}
		if strings.TrimSpace(line) != "" {
			p.lastLine = strings.TrimSpace(line)
		}
	}
	if err := scanner.Err(); err != nil {
		p.logger.Debug("reading %s output: %v", p.name(), err)
	}

	p.waiter()
}

func (p *process) waiter() {
	err := p.cmd.Wait()
	p.monitor.Stop()

	if err == nil {
		p.emit(Event{Type: EventEnd})
		return
	}

	var exiterr *exec.ExitError
	if !errors.As(err, &exiterr) {
		p.emit(Event{Type: EventError, Message: err.Error()})
		return
	}

	// ExitCode is -1 when the child was terminated by a signal.
	if code := exiterr.ExitCode(); code >= 0 {
		msg := fmt.Sprintf("%s exited with code %d", p.name(), code)
		if p.lastLine != "" {
			msg += ": " + p.lastLine
		}
		p.emit(Event{Type: EventError, Message: msg})
		return
	}
	p.emit(Event{Type: EventError, Message: fmt.Sprintf("%s was killed: %s", p.name(), exiterr)})
}

func (p *process) name() string {
	return filepath.Base(p.binary)
}

// CommandLine renders binary and args the way a shell user would type them.
func CommandLine(binary string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, quoteArg(binary))
	for _, a := range args {
		parts = append(parts, quoteArg(a))
	}
	return strings.Join(parts, " ")
}

func quoteArg(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`&|;<>()*?[]{}!#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// scanLine splits on \n and \r, dropping empty tokens. ffmpeg redraws its
// progress line with a bare carriage return.
func scanLine(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	for start < len(data) {
		r, w := utf8.DecodeRune(data[start:])
		if r != '\n' && r != '\r' {
			break
		}
		start += w
	}

	for i := start; i < len(data); {
		r, w := utf8.DecodeRune(data[i:])
		if r == '\n' || r == '\r' {
			return i + w, data[start:i], nil
		}
		i += w
	}

	if atEOF && len(data) > start {
		return len(data), data[start:], nil
	}
	return start, nil, nil
}

type nullParser struct{}

func (p *nullParser) Parse(line string) uint64 { return 0 }
func (p *nullParser) Percent() float64         { return 0 }
func (p *nullParser) ResetStats()              {}
func (p *nullParser) ResetLog()                {}
func (p *nullParser) Log() []Line              { return nil }

type nopLogger struct{}

func (l *nopLogger) Error(format string, args ...interface{}) {}
func (l *nopLogger) Debug(format string, args ...interface{}) {}
