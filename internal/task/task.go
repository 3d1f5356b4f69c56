// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// M3U8Downloader - HLS/M3U8 流下载工具

package task

import (
	"sync"
	"time"

	"github.com/ZSC714725/m3u8downloader/internal/ffmpeg/parse"
	"github.com/ZSC714725/m3u8downloader/internal/ffmpeg/probe"
	"github.com/ZSC714725/m3u8downloader/internal/logger"
	"github.com/ZSC714725/m3u8downloader/internal/process"
	"github.com/ZSC714725/m3u8downloader/internal/runner"
)

// State of a whole download task
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Task records one download from probe to merge. All setters are safe for
// concurrent use with Snapshot.
type Task struct {
	ID        string
	Source    string
	CreatedAt int64

	logger    logger.Logger
	mu        sync.RWMutex
	state     State
	message   string
	output    string
	variants  []probe.Variant
	selected  *probe.Variant
	phases    []*Phase
	updatedAt int64
}

// SetOutput records where the merged file goes
func (t *Task) SetOutput(path string) {
	t.mu.Lock()
	t.output = path
	t.touch()
	t.mu.Unlock()
}

// SetVariants records the probe result
func (t *Task) SetVariants(variants []probe.Variant) {
	t.mu.Lock()
	t.variants = append([]probe.Variant(nil), variants...)
	t.touch()
	t.mu.Unlock()
}

// Select records the chosen variant
func (t *Task) Select(v probe.Variant) {
	t.mu.Lock()
	t.selected = &v
	t.touch()
	t.mu.Unlock()
}

// Phase opens a new phase. It is the progress sink of that phase's run.
func (t *Task) Phase(name string) *Phase {
	p := &Phase{task: t, name: name, state: runner.StateIdle}

	t.mu.Lock()
	t.phases = append(t.phases, p)
	if t.state == StatePending {
		t.state = StateRunning
	}
	t.touch()
	t.mu.Unlock()

	return p
}

// Done closes the task. A nil err means success.
func (t *Task) Done(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err != nil {
		t.state = StateFailed
		t.message = err.Error()
	} else {
		t.state = StateSucceeded
		t.message = ""
	}
	t.touch()
	if t.logger != nil {
		t.logger.Debug("task %s %s", t.ID, t.state)
	}
}

// State returns the task state
func (t *Task) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

func (t *Task) touch() {
	t.updatedAt = time.Now().Unix()
}

// Phase is one tool invocation of a task: probe, download or merge
type Phase struct {
	task *Task
	name string

	state     runner.State
	progress  string
	message   string
	command   string
	log       []process.Line
	usage     runner.Usage
	stats     parse.Progress
	startedAt int64
	endedAt   int64
}

func (p *Phase) Start() {
	p.task.mu.Lock()
	defer p.task.mu.Unlock()
	if p.state == runner.StateIdle {
		p.state = runner.StateRunning
		p.startedAt = time.Now().Unix()
		p.task.touch()
	}
}

func (p *Phase) Update(text string) {
	p.task.mu.Lock()
	p.progress = text
	p.task.touch()
	p.task.mu.Unlock()
}

// Stop is a no-op, the phase stays open until Finish.
func (p *Phase) Stop() {}

// Finish stores the outcome of the phase's run
func (p *Phase) Finish(o runner.Outcome) {
	p.task.mu.Lock()
	defer p.task.mu.Unlock()

	p.state = o.State
	p.message = o.Message
	p.command = o.Command
	p.log = o.Log
	p.usage = o.Usage
	p.stats = o.Progress
	if p.startedAt == 0 {
		p.startedAt = time.Now().Unix()
	}
	p.endedAt = time.Now().Unix()
	p.task.touch()
}

// Fail closes a phase that never ran a tool, e.g. a probe error
func (p *Phase) Fail(err error) {
	p.Finish(runner.Outcome{Failed: true, State: runner.StateFailed, Message: err.Error()})
}

// PhaseSnapshot is a copy of a phase
type PhaseSnapshot struct {
	Name      string
	State     runner.State
	Progress  string
	Message   string
	Command   string
	Log       []process.Line
	Usage     runner.Usage
	Stats     parse.Progress
	StartedAt int64
	EndedAt   int64
}

// Snapshot is a consistent copy of a task
type Snapshot struct {
	ID        string
	Source    string
	State     State
	Message   string
	Output    string
	Variants  []probe.Variant
	Selected  *probe.Variant
	Phases    []PhaseSnapshot
	CreatedAt int64
	UpdatedAt int64
}

// Snapshot copies the current task record
func (t *Task) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := Snapshot{
		ID:        t.ID,
		Source:    t.Source,
		State:     t.state,
		Message:   t.message,
		Output:    t.output,
		Variants:  append([]probe.Variant(nil), t.variants...),
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.updatedAt,
	}
	if t.selected != nil {
		v := *t.selected
		s.Selected = &v
	}
	for _, p := range t.phases {
		s.Phases = append(s.Phases, PhaseSnapshot{
			Name:      p.name,
			State:     p.state,
			Progress:  p.progress,
			Message:   p.message,
			Command:   p.command,
			Log:       append([]process.Line(nil), p.log...),
			Usage:     p.usage,
			Stats:     p.stats,
			StartedAt: p.startedAt,
			EndedAt:   p.endedAt,
		})
	}
	return s
}
