// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// M3U8Downloader - HLS/M3U8 流下载工具

package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ZSC714725/m3u8downloader/internal/indicator"
	"github.com/ZSC714725/m3u8downloader/internal/logger"
	"github.com/ZSC714725/m3u8downloader/internal/process"
)

type fakeProcess struct {
	events   chan process.Event
	startErr error
	kills    atomic.Int32
	closed   chan struct{}
	once     sync.Once
	config   process.Config
}

func newFakeProcess(events ...process.Event) *fakeProcess {
	fp := &fakeProcess{
		events: make(chan process.Event, len(events)+8),
		closed: make(chan struct{}),
	}
	for _, ev := range events {
		fp.events <- ev
	}
	return fp
}

func (p *fakeProcess) Start() error                 { return p.startErr }
func (p *fakeProcess) Events() <-chan process.Event { return p.events }
func (p *fakeProcess) Kill() error                  { p.kills.Add(1); return nil }
func (p *fakeProcess) Close()                       { p.once.Do(func() { close(p.closed) }) }
func (p *fakeProcess) Usage() (float64, uint64)     { return 12.5, 4096 }

func newTestRunner(t *testing.T, fp *fakeProcess) *Runner {
	t.Helper()
	r, err := New(Config{
		Binary: "ffmpeg",
		NewProcess: func(c process.Config) (process.Process, error) {
			fp.config = c
			return fp, nil
		},
		NewMonitor: process.NewNullMonitor,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return r
}

func progress(p float64) process.Event { return process.Event{Type: process.EventProgress, Percent: p} }

func TestNewRequiresBinary(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for empty binary")
	}
}

func TestExecuteSuccess(t *testing.T) {
	fp := newFakeProcess(progress(10.2), progress(0), progress(99.01), process.Event{Type: process.EventEnd})
	r := newTestRunner(t, fp)
	rec := &indicator.Recorder{}

	job := Job{Source: "https://example.com/master.m3u8", Output: "/tmp/x/chunks/%04d.ts", OutputOptions: []string{"-map p:0", "-c copy"}}
	o := r.Execute(context.Background(), job, "Downloading", rec)

	if o.Failed || o.Message != "Downloading succeeded!" {
		t.Fatalf("outcome = %+v", o)
	}
	if o.State != StateSucceeded || o.Err != nil {
		t.Fatalf("state = %s err = %v", o.State, o.Err)
	}
	if fp.kills.Load() != 0 {
		t.Fatalf("kills = %d, want 0", fp.kills.Load())
	}

	want := []string{"Downloading", "Downloading: 11%", "Downloading", "Downloading: 100%"}
	if got := rec.Updates(); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("updates = %q, want %q", got, want)
	}
	if starts, stops := rec.Counts(); starts != 1 || stops != 1 {
		t.Fatalf("starts/stops = %d/%d, want 1/1", starts, stops)
	}
	if o.Usage.MemoryPeak != 4096 {
		t.Errorf("memory peak = %d, want 4096", o.Usage.MemoryPeak)
	}

	wantArgs := []string{"-i", "https://example.com/master.m3u8", "-map", "p:0", "-c", "copy", "/tmp/x/chunks/%04d.ts"}
	if strings.Join(fp.config.Args, " ") != strings.Join(wantArgs, " ") {
		t.Fatalf("args = %q, want %q", fp.config.Args, wantArgs)
	}
}

func TestExecuteToolError(t *testing.T) {
	fp := newFakeProcess(progress(40), process.Event{Type: process.EventError, Message: "ffmpeg exited with code 1: Invalid data found when processing input"})
	r := newTestRunner(t, fp)
	rec := &indicator.Recorder{}

	o := r.Execute(context.Background(), Job{Source: "all.txt", Output: "out.mp4"}, "Merging", rec)

	want := "An error occurred while Merging: ffmpeg exited with code 1: Invalid data found when processing input"
	if !o.Failed || o.Message != want {
		t.Fatalf("outcome = %+v, want message %q", o, want)
	}
	if !errors.Is(o.Err, ErrToolReported) || o.State != StateFailed {
		t.Fatalf("err = %v state = %s", o.Err, o.State)
	}
	if fp.kills.Load() != 1 {
		t.Fatalf("kills = %d, want 1", fp.kills.Load())
	}
	if _, stops := rec.Counts(); stops != 1 {
		t.Fatalf("stops = %d, want 1", stops)
	}
}

func TestExecuteTimeout(t *testing.T) {
	fp := newFakeProcess()
	r := newTestRunner(t, fp)
	rec := &indicator.Recorder{}

	timeout := 20 * time.Millisecond
	o := r.Execute(context.Background(), Job{Source: "in.m3u8", Output: "out", Timeout: timeout}, "Downloading", rec)

	want := fmt.Sprintf("%s minutes timeout reached!", TimeoutMinutes(timeout))
	if !o.Failed || o.Message != want {
		t.Fatalf("outcome = %+v, want %q", o, want)
	}
	if o.State != StateTimedOut || !errors.Is(o.Err, ErrTimeout) {
		t.Fatalf("state = %s err = %v", o.State, o.Err)
	}
	if fp.kills.Load() != 1 {
		t.Fatalf("kills = %d, want 1", fp.kills.Load())
	}

	// Late events from the dying child are never observed.
	fp.events <- process.Event{Type: process.EventError, Message: "ffmpeg was killed: signal: killed"}
	fp.events <- process.Event{Type: process.EventEnd}
	if fp.kills.Load() != 1 {
		t.Fatalf("kills after late events = %d, want 1", fp.kills.Load())
	}
	if starts, stops := rec.Counts(); starts != 1 || stops != 1 {
		t.Fatalf("starts/stops = %d/%d, want 1/1", starts, stops)
	}
}

func TestExecuteTimeoutDespiteProgress(t *testing.T) {
	fp := newFakeProcess()
	r := newTestRunner(t, fp)

	go func() {
		ticker := time.NewTicker(2 * time.Millisecond)
		defer ticker.Stop()
		for i := 1; ; i++ {
			select {
			case <-fp.closed:
				return
			case <-ticker.C:
				select {
				case fp.events <- progress(float64(i % 100)):
				case <-fp.closed:
					return
				}
			}
		}
	}()

	o := r.Execute(context.Background(), Job{Source: "in.m3u8", Output: "out", Timeout: 60 * time.Millisecond}, "Downloading", nil)
	if o.State != StateTimedOut {
		t.Fatalf("state = %s, want %s", o.State, StateTimedOut)
	}
	if fp.kills.Load() != 1 {
		t.Fatalf("kills = %d, want 1", fp.kills.Load())
	}
}

func TestExecuteFirstTerminalEventWins(t *testing.T) {
	fp := newFakeProcess(
		process.Event{Type: process.EventEnd},
		process.Event{Type: process.EventError, Message: "late"},
		process.Event{Type: process.EventEnd},
	)
	r := newTestRunner(t, fp)

	o := r.Execute(context.Background(), Job{Source: "in", Output: "out"}, "Downloading", nil)
	if o.Failed || o.State != StateSucceeded {
		t.Fatalf("outcome = %+v", o)
	}
	if fp.kills.Load() != 0 {
		t.Fatalf("kills = %d, want 0", fp.kills.Load())
	}
	select {
	case <-fp.closed:
	default:
		t.Fatal("process not closed after resolution")
	}
}

func TestExecuteSpawnFailure(t *testing.T) {
	fp := newFakeProcess()
	fp.startErr = errors.New(`exec: "ffmpeg": executable file not found in $PATH`)
	r := newTestRunner(t, fp)
	rec := &indicator.Recorder{}

	o := r.Execute(context.Background(), Job{Source: "in", Output: "out"}, "Downloading", rec)
	if !o.Failed || !errors.Is(o.Err, ErrSpawn) || o.State != StateFailed {
		t.Fatalf("outcome = %+v", o)
	}
	if !strings.HasPrefix(o.Message, "Unable to start ffmpeg: ") {
		t.Fatalf("message = %q", o.Message)
	}
	if starts, _ := rec.Counts(); starts != 0 {
		t.Fatalf("indicator started %d times on spawn failure", starts)
	}
}

func TestExecuteCancelled(t *testing.T) {
	fp := newFakeProcess()
	r := newTestRunner(t, fp)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	o := r.Execute(ctx, Job{Source: "in", Output: "out"}, "Merging", nil)
	if !o.Failed || !errors.Is(o.Err, ErrCancelled) || !errors.Is(o.Err, context.Canceled) {
		t.Fatalf("outcome = %+v", o)
	}
	if fp.kills.Load() != 1 {
		t.Fatalf("kills = %d, want 1", fp.kills.Load())
	}
}

func TestExecuteLabelFallback(t *testing.T) {
	fp := newFakeProcess(process.Event{Type: process.EventEnd})
	r := newTestRunner(t, fp)

	o := r.Execute(context.Background(), Job{Source: "in", Output: "out"}, "", nil)
	if o.Message != "processing succeeded!" {
		t.Fatalf("message = %q", o.Message)
	}

	fp = newFakeProcess(process.Event{Type: process.EventEnd})
	r = newTestRunner(t, fp)
	o = r.Execute(context.Background(), Job{Source: "in", Output: "out", Label: "Merging"}, "", nil)
	if o.Message != "Merging succeeded!" {
		t.Fatalf("message = %q", o.Message)
	}
}

func TestStateChangesAreReported(t *testing.T) {
	fp := newFakeProcess(process.Event{Type: process.EventEnd})
	var transitions []string
	r, err := New(Config{
		Binary:     "ffmpeg",
		NewProcess: func(process.Config) (process.Process, error) { return fp, nil },
		NewMonitor: process.NewNullMonitor,
		OnStateChange: func(label string, from, to State) {
			transitions = append(transitions, fmt.Sprintf("%s:%s->%s", label, from, to))
		},
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	r.Execute(context.Background(), Job{Source: "in", Output: "out"}, "Downloading", nil)
	want := "Downloading:idle->running|Downloading:running->succeeded"
	if got := strings.Join(transitions, "|"); got != want {
		t.Fatalf("transitions = %q, want %q", got, want)
	}
}

func TestProgressMessage(t *testing.T) {
	tests := []struct {
		percent float64
		want    string
	}{
		{0, "Downloading"},
		{-3, "Downloading"},
		{0.01, "Downloading: 1%"},
		{10, "Downloading: 10%"},
		{10.5, "Downloading: 11%"},
		{99.2, "Downloading: 100%"},
	}
	for _, tt := range tests {
		if got := ProgressMessage("Downloading", tt.percent); got != tt.want {
			t.Errorf("ProgressMessage(%v) = %q, want %q", tt.percent, got, tt.want)
		}
	}
}

func TestTimeoutMinutes(t *testing.T) {
	if got := TimeoutMinutes(DefaultTimeout); got != "30" {
		t.Fatalf("TimeoutMinutes(30m) = %q", got)
	}
	if got := TimeoutMinutes(90 * time.Second); got != "1.5" {
		t.Fatalf("TimeoutMinutes(90s) = %q", got)
	}
}

func TestStateMachine(t *testing.T) {
	m := newMachine(nil)
	if err := m.transition(StateSucceeded); err == nil {
		t.Fatal("idle -> succeeded must be rejected")
	}
	if err := m.transition(StateRunning); err != nil {
		t.Fatalf("idle -> running: %v", err)
	}
	if err := m.transition(StateTimedOut); err != nil {
		t.Fatalf("running -> timedout: %v", err)
	}
	for _, to := range []State{StateRunning, StateSucceeded, StateFailed} {
		if err := m.transition(to); err == nil {
			t.Fatalf("timedout -> %s must be rejected", to)
		}
	}
	if m.current() != StateTimedOut {
		t.Fatalf("state = %s", m.current())
	}
}

// fakeTool writes an executable shell script standing in for ffmpeg.
func fakeTool(t *testing.T, script string) string {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}
	path := filepath.Join(t.TempDir(), "fake-ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestExecuteRealProcess(t *testing.T) {
	bin := fakeTool(t, `echo "  Duration: 00:00:10.00, start: 0.000000" >&2
printf 'frame=  10 fps=0.0 q=-1.0 size=       1kB time=00:00:05.00 bitrate=   1.0kbits/s speed=10x\r' >&2
exit 0`)
	var logs bytes.Buffer
	r, err := New(Config{Binary: bin, NewMonitor: process.NewNullMonitor, Logger: logger.NewWriter(&logs, "", false)})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	rec := &indicator.Recorder{}

	o := r.Execute(context.Background(), Job{Source: "in.m3u8", Output: "out.mp4"}, "Testing", rec)
	if o.Failed || o.State != StateSucceeded {
		t.Fatalf("outcome = %+v", o)
	}
	updates := rec.Updates()
	if len(updates) != 2 || updates[1] != "Testing: 50%" {
		t.Fatalf("updates = %q", updates)
	}
	if len(o.Log) != 2 {
		t.Fatalf("log = %+v", o.Log)
	}
	if o.Progress.Frame != 10 || o.Progress.Size != 1024 || o.Progress.Speed != 10 || o.Progress.Duration != 10 {
		t.Errorf("progress = %+v", o.Progress)
	}
	// the invocation is logged even without debug
	if !strings.Contains(logs.String(), "with command: "+bin+" -i in.m3u8 out.mp4") {
		t.Errorf("logs = %q", logs.String())
	}
}

func TestExecuteRealProcessError(t *testing.T) {
	bin := fakeTool(t, `echo "in.m3u8: No such file or directory" >&2; exit 1`)
	r, err := New(Config{Binary: bin, NewMonitor: process.NewNullMonitor})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	o := r.Execute(context.Background(), Job{Source: "in.m3u8", Output: "out.mp4"}, "Downloading", nil)
	want := "An error occurred while Downloading: fake-ffmpeg exited with code 1: in.m3u8: No such file or directory"
	if !o.Failed || o.Message != want {
		t.Fatalf("message = %q, want %q", o.Message, want)
	}
}

func TestExecuteRealProcessTimeout(t *testing.T) {
	bin := fakeTool(t, `exec sleep 30`)
	r, err := New(Config{Binary: bin, NewMonitor: process.NewNullMonitor})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	start := time.Now()
	o := r.Execute(context.Background(), Job{Source: "in.m3u8", Output: "out.mp4", Timeout: 100 * time.Millisecond}, "Downloading", nil)
	if o.State != StateTimedOut {
		t.Fatalf("outcome = %+v", o)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("Execute took %s after timeout", elapsed)
	}
}

func TestExecuteMissingBinary(t *testing.T) {
	r, err := New(Config{Binary: filepath.Join(t.TempDir(), "no-ffmpeg"), NewMonitor: process.NewNullMonitor})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	o := r.Execute(context.Background(), Job{Source: "in", Output: "out"}, "Downloading", nil)
	if !errors.Is(o.Err, ErrSpawn) {
		t.Fatalf("err = %v, want %v", o.Err, ErrSpawn)
	}
}

func TestJobCommand(t *testing.T) {
	job := Job{
		Source:        "/tmp/job/chunks/all.txt",
		Output:        "/tmp/my videos/clip.mp4",
		GlobalOptions: []string{"-y"},
		InputOptions:  []string{"-f concat", "-safe 0"},
		OutputOptions: []string{"-c copy", " ", "-segment_list /tmp/my videos/out.list"},
	}
	want := []string{"-y", "-f", "concat", "-safe", "0", "-i", "/tmp/job/chunks/all.txt", "-c", "copy", "-segment_list", "/tmp/my videos/out.list", "/tmp/my videos/clip.mp4"}
	if got := job.Command(); strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("Command() = %q, want %q", got, want)
	}

	job = Job{Source: "in.m3u8", Output: "ignored", Sink: os.Stdout}
	got := job.Command()
	if got[len(got)-1] != "pipe:1" {
		t.Fatalf("Command() with sink = %q", got)
	}
}
