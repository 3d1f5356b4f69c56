// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// M3U8Downloader - HLS/M3U8 流下载工具

package process

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

type frameParser struct {
	lines []string
}

func (p *frameParser) Parse(line string) uint64 {
	p.lines = append(p.lines, line)
	if strings.HasPrefix(line, "frame=") {
		return 1
	}
	return 0
}
func (p *frameParser) Percent() float64 { return 50 }
func (p *frameParser) ResetStats()      {}
func (p *frameParser) ResetLog()        {}
func (p *frameParser) Log() []Line      { return nil }

func shell(t *testing.T, script string, parser Parser) Process {
	t.Helper()
	p, err := New(Config{Binary: "/bin/sh", Args: []string{"-c", script}, Parser: parser})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

func requireShell(t *testing.T) {
	t.Helper()
	p := shell(t, "exit 0", nil)
	if err := p.Start(); err != nil {
		t.Skipf("no usable /bin/sh: %v", err)
	}
	drain(t, p)
}

func drain(t *testing.T, p Process) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev := <-p.Events():
			out = append(out, ev)
			if ev.Type != EventProgress {
				return out
			}
		case <-timeout:
			t.Fatalf("no terminal event, got %v", out)
		}
	}
}

func TestNewRequiresBinary(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrNoBinary) {
		t.Fatalf("error = %v, want %v", err, ErrNoBinary)
	}
}

func TestProcessEnd(t *testing.T) {
	requireShell(t)

	parser := &frameParser{}
	p := shell(t, `echo "Duration: 00:00:10.00" >&2; printf 'frame=1 time=00:00:05.00\r' >&2; echo done >&2`, parser)
	defer p.Close()
	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	events := drain(t, p)
	if len(events) != 2 {
		t.Fatalf("events = %+v, want progress then end", events)
	}
	if events[0].Type != EventProgress || events[0].Percent != 50 {
		t.Errorf("first event = %+v", events[0])
	}
	if events[1].Type != EventEnd {
		t.Errorf("last event = %+v, want end", events[1])
	}
	if len(parser.lines) != 3 {
		t.Errorf("parsed lines = %q", parser.lines)
	}
}

func TestProcessExitCode(t *testing.T) {
	requireShell(t)

	p := shell(t, `echo "https://example.com/x.m3u8: Invalid data found" >&2; exit 3`, nil)
	defer p.Close()
	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	events := drain(t, p)
	last := events[len(events)-1]
	if last.Type != EventError {
		t.Fatalf("last event = %+v, want error", last)
	}
	want := "sh exited with code 3: https://example.com/x.m3u8: Invalid data found"
	if last.Message != want {
		t.Fatalf("message = %q, want %q", last.Message, want)
	}
}

func TestProcessKill(t *testing.T) {
	requireShell(t)

	p := shell(t, "exec sleep 30", nil)
	defer p.Close()
	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := p.Kill(); err != nil {
		t.Fatalf("Kill() error = %v", err)
	}
	if err := p.Kill(); err != nil {
		t.Fatalf("second Kill() error = %v", err)
	}

	events := drain(t, p)
	last := events[len(events)-1]
	if last.Type != EventError || !strings.Contains(last.Message, "was killed") {
		t.Fatalf("last event = %+v, want killed error", last)
	}
}

func TestProcessSpawnFailure(t *testing.T) {
	p, err := New(Config{Binary: "/nonexistent/bin/ffmpeg"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := p.Start(); err == nil {
		t.Fatal("expected spawn error")
	}
	if err := p.Kill(); err != nil {
		t.Fatalf("Kill() on unstarted process = %v", err)
	}
}

func TestProcessDoubleStart(t *testing.T) {
	requireShell(t)

	p := shell(t, "exit 0", nil)
	defer p.Close()
	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := p.Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second Start() = %v, want %v", err, ErrAlreadyStarted)
	}
	drain(t, p)
}

func TestProcessStdoutSink(t *testing.T) {
	requireShell(t)

	var out bytes.Buffer
	p, err := New(Config{Binary: "/bin/sh", Args: []string{"-c", "printf hello"}, Stdout: &out})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer p.Close()
	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	events := drain(t, p)
	if events[len(events)-1].Type != EventEnd {
		t.Fatalf("events = %+v", events)
	}
	if out.String() != "hello" {
		t.Fatalf("stdout = %q, want hello", out.String())
	}
}

func TestCloseUnblocksReader(t *testing.T) {
	requireShell(t)

	// More progress lines than the event buffer holds, never consumed.
	p := shell(t, `i=0; while [ $i -lt 64 ]; do echo "frame=$i" >&2; i=$((i+1)); done`, &frameParser{})
	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	p.Close()
	p.Close()
}

func TestScanLine(t *testing.T) {
	scanner := bufio.NewScanner(strings.NewReader("\r\nframe=1\rframe=2\r\n\nlast"))
	scanner.Split(scanLine)

	var got []string
	for scanner.Scan() {
		got = append(got, scanner.Text())
	}
	want := []string{"frame=1", "frame=2", "last"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("tokens = %q, want %q", got, want)
	}
}

func TestCommandLine(t *testing.T) {
	got := CommandLine("ffmpeg", []string{"-f", "concat", "-i", "/tmp/my chunks/all.txt", "out.mp4"})
	want := "ffmpeg -f concat -i '/tmp/my chunks/all.txt' out.mp4"
	if got != want {
		t.Fatalf("CommandLine() = %q, want %q", got, want)
	}
}
