// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// M3U8Downloader - HLS/M3U8 流下载工具
//
// Package indicator provides the "in progress" display the runner drives.

package indicator

import (
	"io"
	"sync"
	"time"

	"github.com/briandowns/spinner"
)

// Indicator is a live progress display
type Indicator interface {
	Start()
	Update(text string)
	Stop()
}

var frames = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

type spinnerIndicator struct {
	s      *spinner.Spinner
	active bool
	lock   sync.Mutex
}

// NewSpinner returns a terminal spinner writing to w. On a non-terminal
// writer the spinner library stays silent.
func NewSpinner(w io.Writer) Indicator {
	s := spinner.New(frames, 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " Processing"
	return &spinnerIndicator{s: s}
}

func (i *spinnerIndicator) Start() {
	i.lock.Lock()
	defer i.lock.Unlock()
	if i.active {
		return
	}
	i.active = true
	i.s.Start()
}

func (i *spinnerIndicator) Update(text string) {
	i.s.Lock()
	i.s.Suffix = " " + text
	i.s.Unlock()
}

func (i *spinnerIndicator) Stop() {
	i.lock.Lock()
	defer i.lock.Unlock()
	if !i.active {
		return
	}
	i.active = false
	i.s.Stop()
}

type nop struct{}

// Nop returns an Indicator that shows nothing.
func Nop() Indicator { return nop{} }

func (nop) Start()        {}
func (nop) Update(string) {}
func (nop) Stop()         {}

type tee []Indicator

// Tee fans every call out to all non-nil indicators in order.
func Tee(indicators ...Indicator) Indicator {
	var t tee
	for _, i := range indicators {
		if i != nil {
			t = append(t, i)
		}
	}
	return t
}

func (t tee) Start() {
	for _, i := range t {
		i.Start()
	}
}

func (t tee) Update(text string) {
	for _, i := range t {
		i.Update(text)
	}
}

func (t tee) Stop() {
	for _, i := range t {
		i.Stop()
	}
}

// Recorder keeps every call in memory. It is safe for concurrent use.
type Recorder struct {
	lock    sync.Mutex
	starts  int
	stops   int
	updates []string
}

func (r *Recorder) Start() {
	r.lock.Lock()
	r.starts++
	r.lock.Unlock()
}

func (r *Recorder) Update(text string) {
	r.lock.Lock()
	r.updates = append(r.updates, text)
	r.lock.Unlock()
}

func (r *Recorder) Stop() {
	r.lock.Lock()
	r.stops++
	r.lock.Unlock()
}

// Updates returns a copy of all texts passed to Update.
func (r *Recorder) Updates() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]string(nil), r.updates...)
}

// Counts returns how often Start and Stop were called.
func (r *Recorder) Counts() (starts, stops int) {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.starts, r.stops
}
