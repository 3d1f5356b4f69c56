// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// M3U8Downloader - HLS/M3U8 流下载工具

package runner

import (
	"fmt"
	"sync"
)

// State of one execution
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateTimedOut  State = "timedout"
)

func (s State) String() string { return string(s) }

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateTimedOut
}

// machine enforces Idle -> Running -> {Succeeded, Failed, TimedOut}. A spawn
// failure goes Idle -> Failed directly.
type machine struct {
	state    State
	onChange func(from, to State)
	lock     sync.Mutex
}

func newMachine(onChange func(from, to State)) *machine {
	return &machine{state: StateIdle, onChange: onChange}
}

func (m *machine) current() State {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.state
}

func (m *machine) transition(to State) error {
	m.lock.Lock()
	from := m.state
	if !validTransition(from, to) {
		m.lock.Unlock()
		return fmt.Errorf("can't change from %s to %s", from, to)
	}
	m.state = to
	m.lock.Unlock()

	if m.onChange != nil {
		m.onChange(from, to)
	}
	return nil
}

func validTransition(from, to State) bool {
	switch from {
	case StateIdle:
		return to == StateRunning || to == StateFailed
	case StateRunning:
		return to.IsTerminal()
	default:
		return false
	}
}
