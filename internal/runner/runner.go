// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// M3U8Downloader - HLS/M3U8 流下载工具
//
// Package runner executes one external tool invocation to completion, error,
// timeout or cancellation and reports a single Outcome.

package runner

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ZSC714725/m3u8downloader/internal/ffmpeg/parse"
	"github.com/ZSC714725/m3u8downloader/internal/indicator"
	"github.com/ZSC714725/m3u8downloader/internal/logger"
	"github.com/ZSC714725/m3u8downloader/internal/process"
)

// DefaultTimeout is the hard ceiling of one execution.
const DefaultTimeout = 30 * time.Minute

const defaultLabel = "processing"

// usageInterval limits how often CPU and memory are sampled.
const usageInterval = time.Second

// Config for a Runner
type Config struct {
	Binary   string
	Timeout  time.Duration
	LogLines int
	Logger   logger.Logger
	// NewProcess and NewMonitor default to process.New and process.NewSysMonitor.
	NewProcess    func(config process.Config) (process.Process, error)
	NewMonitor    func() process.Monitor
	OnStateChange func(label string, from, to State)
}

// Usage is resource consumption of the child sampled during a run.
type Usage struct {
	CPU        float64 `json:"cpu_usage"`
	MemoryPeak uint64  `json:"memory_peak_bytes"`
}

// Outcome is the terminal result of one Execute call.
type Outcome struct {
	Failed   bool
	Message  string
	State    State
	Err      error
	Command  string
	Log      []process.Line
	Usage    Usage
	Progress parse.Progress
	Duration time.Duration
}

// Runner executes Jobs against one binary. It holds no per-run state and is
// safe for concurrent use.
type Runner struct {
	binary        string
	timeout       time.Duration
	logLines      int
	logger        logger.Logger
	newProcess    func(config process.Config) (process.Process, error)
	newMonitor    func() process.Monitor
	onStateChange func(label string, from, to State)
}

// New creates a Runner
func New(config Config) (*Runner, error) {
	if len(config.Binary) == 0 {
		return nil, process.ErrNoBinary
	}

	r := &Runner{
		binary:        config.Binary,
		timeout:       config.Timeout,
		logLines:      config.LogLines,
		logger:        config.Logger,
		newProcess:    config.NewProcess,
		newMonitor:    config.NewMonitor,
		onStateChange: config.OnStateChange,
	}

	if r.timeout <= 0 {
		r.timeout = DefaultTimeout
	}
	if r.logger == nil {
		r.logger = logger.Nop()
	}
	if r.newProcess == nil {
		r.newProcess = process.New
	}
	if r.newMonitor == nil {
		r.newMonitor = process.NewSysMonitor
	}

	return r, nil
}

// Execute runs job until the first of end, tool error, timeout or ctx
// cancellation. The sink is started once the child is running and is always
// stopped before Execute returns.
func (r *Runner) Execute(ctx context.Context, job Job, label string, sink indicator.Indicator) Outcome {
	if label == "" {
		label = job.Label
	}
	if label == "" {
		label = defaultLabel
	}
	if sink == nil {
		sink = indicator.Nop()
	}
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}

	m := newMachine(func(from, to State) {
		r.logger.Debug("%s: state %s -> %s", label, from, to)
		if r.onStateChange != nil {
			r.onStateChange(label, from, to)
		}
	})

	parser := parse.New(parse.Config{LogLines: r.logLines})
	args := job.Command()
	commandLine := process.CommandLine(r.binary, args)

	proc, err := r.newProcess(process.Config{
		Binary:  r.binary,
		Args:    args,
		Parser:  parser,
		Stdout:  job.Sink,
		Monitor: r.newMonitor(),
		Logger:  r.logger,
	})
	if err == nil {
		err = proc.Start()
	}
	if err != nil {
		m.transition(StateFailed)
		return Outcome{
			Failed:  true,
			Message: fmt.Sprintf("Unable to start %s: %v", r.name(), err),
			State:   StateFailed,
			Err:     fmt.Errorf("%w: %w", ErrSpawn, err),
			Command: commandLine,
		}
	}
	defer proc.Close()

	started := time.Now()
	m.transition(StateRunning)
	r.logger.Info("Spawned %s with command: %s", r.name(), commandLine)

	sink.Start()
	sink.Update(label)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var usage Usage
	var sampled time.Time

	resolve := func(state State, o Outcome) Outcome {
		sink.Stop()
		if err := m.transition(state); err != nil {
			r.logger.Error("%s: %v", label, err)
		}
		usage.sample(proc)
		o.State = state
		o.Command = commandLine
		o.Log = parser.Log()
		o.Usage = usage
		o.Progress = parser.Progress()
		o.Duration = time.Since(started)
		r.logger.Debug("%s: %s after %s (cpu %.1f%%, peak memory %d bytes)", label, state, o.Duration.Round(time.Millisecond), usage.CPU, usage.MemoryPeak)
		return o
	}

	for {
		select {
		case ev := <-proc.Events():
			switch ev.Type {
			case process.EventProgress:
				sink.Update(ProgressMessage(label, ev.Percent))
				if time.Since(sampled) >= usageInterval {
					usage.sample(proc)
					sampled = time.Now()
				}
			case process.EventError:
				r.kill(proc, label)
				return resolve(StateFailed, Outcome{
					Failed:  true,
					Message: fmt.Sprintf("An error occurred while %s: %s", label, ev.Message),
					Err:     fmt.Errorf("%w: %s", ErrToolReported, ev.Message),
				})
			case process.EventEnd:
				return resolve(StateSucceeded, Outcome{
					Message: fmt.Sprintf("%s succeeded!", label),
				})
			}
		case <-timer.C:
			r.kill(proc, label)
			r.logger.Warn("%s has been killed", r.name())
			return resolve(StateTimedOut, Outcome{
				Failed:  true,
				Message: fmt.Sprintf("%s minutes timeout reached!", TimeoutMinutes(timeout)),
				Err:     ErrTimeout,
			})
		case <-ctx.Done():
			r.kill(proc, label)
			return resolve(StateFailed, Outcome{
				Failed:  true,
				Message: fmt.Sprintf("%s cancelled: %v", label, ctx.Err()),
				Err:     fmt.Errorf("%w: %w", ErrCancelled, ctx.Err()),
			})
		}
	}
}

func (r *Runner) kill(proc process.Process, label string) {
	if err := proc.Kill(); err != nil {
		r.logger.Error("%s: kill %s: %v", label, r.name(), err)
	}
}

func (r *Runner) name() string {
	return filepath.Base(r.binary)
}

func (u *Usage) sample(proc process.Process) {
	cpu, memory := proc.Usage()
	if cpu > 0 {
		u.CPU = cpu
	}
	if memory > u.MemoryPeak {
		u.MemoryPeak = memory
	}
}

// ProgressMessage is "<label>: <ceil(percent)>%", or just the label while no
// positive percentage is known.
func ProgressMessage(label string, percent float64) string {
	p := math.Ceil(percent)
	if p > 0 && !math.IsInf(p, 0) {
		return fmt.Sprintf("%s: %d%%", label, int64(p))
	}
	return label
}

// TimeoutMinutes formats d in minutes without trailing zeros.
func TimeoutMinutes(d time.Duration) string {
	return strconv.FormatFloat(d.Minutes(), 'f', -1, 64)
}
