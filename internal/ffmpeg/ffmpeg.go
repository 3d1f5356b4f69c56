// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// M3U8Downloader - HLS/M3U8 流下载工具

package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/ZSC714725/m3u8downloader/internal/ffmpeg/probe"
	"github.com/ZSC714725/m3u8downloader/internal/ffmpeg/skills"
	"github.com/ZSC714725/m3u8downloader/internal/indicator"
	"github.com/ZSC714725/m3u8downloader/internal/logger"
	"github.com/ZSC714725/m3u8downloader/internal/runner"
)

// DefaultProbeTimeout bounds one variant listing
const DefaultProbeTimeout = time.Minute

// FFmpeg manages the FFmpeg binary, its skills and its invocations
type FFmpeg interface {
	Binary() string
	Execute(ctx context.Context, job runner.Job, label string, sink indicator.Indicator) runner.Outcome
	ListVariants(ctx context.Context, source string) ([]probe.Variant, error)
	ValidateInput(source string) error
	Skills(ctx context.Context) (skills.Skills, error)
	ReloadSkills(ctx context.Context) error
}

// Config for FFmpeg
type Config struct {
	Binary        string
	Timeout       time.Duration
	ProbeTimeout  time.Duration
	LogLines      int
	Allow         []string
	Block         []string
	Logger        logger.Logger
	OnStateChange func(label string, from, to runner.State)

	// Prober and Detect replace the real ffmpeg invocations, mostly in tests
	Prober probe.CommandRunner
	Detect skills.Runner
}

type ffmpeg struct {
	binary       string
	probeTimeout time.Duration
	runner       *runner.Runner
	prober       *probe.Prober
	validator    Validator
	detect       skills.Runner
	logger       logger.Logger

	skills     *skills.Skills
	skillsLock sync.RWMutex
}

// New resolves the binary and wires the runner, prober and validator.
// Skills are detected lazily on first use.
func New(config Config) (FFmpeg, error) {
	binary, err := exec.LookPath(config.Binary)
	if err != nil {
		return nil, fmt.Errorf("invalid ffmpeg binary: %w", err)
	}

	f := &ffmpeg{
		binary:       binary,
		probeTimeout: config.ProbeTimeout,
		detect:       config.Detect,
		logger:       config.Logger,
	}
	if f.probeTimeout <= 0 {
		f.probeTimeout = DefaultProbeTimeout
	}
	if f.logger == nil {
		f.logger = logger.Nop()
	}

	f.validator, err = NewValidator(config.Allow, config.Block)
	if err != nil {
		return nil, err
	}

	f.runner, err = runner.New(runner.Config{
		Binary:        binary,
		Timeout:       config.Timeout,
		LogLines:      config.LogLines,
		Logger:        f.logger,
		OnStateChange: config.OnStateChange,
	})
	if err != nil {
		return nil, err
	}

	f.prober = probe.New(probe.Config{
		Binary: binary,
		Runner: config.Prober,
	})

	return f, nil
}

func (f *ffmpeg) Binary() string {
	return f.binary
}

func (f *ffmpeg) Execute(ctx context.Context, job runner.Job, label string, sink indicator.Indicator) runner.Outcome {
	return f.runner.Execute(ctx, job, label, sink)
}

func (f *ffmpeg) ListVariants(ctx context.Context, source string) ([]probe.Variant, error) {
	ctx, cancel := context.WithTimeout(ctx, f.probeTimeout)
	defer cancel()

	variants, err := f.prober.List(ctx, source)
	if err != nil {
		return nil, err
	}
	f.logger.Debug("Found %d variants in %s", len(variants), source)
	return variants, nil
}

func (f *ffmpeg) ValidateInput(source string) error {
	return f.validator.Check(source)
}

func (f *ffmpeg) Skills(ctx context.Context) (skills.Skills, error) {
	f.skillsLock.RLock()
	s := f.skills
	f.skillsLock.RUnlock()
	if s != nil {
		return *s, nil
	}

	if err := f.ReloadSkills(ctx); err != nil {
		return skills.Skills{}, err
	}

	f.skillsLock.RLock()
	defer f.skillsLock.RUnlock()
	return *f.skills, nil
}

func (f *ffmpeg) ReloadSkills(ctx context.Context) error {
	var s skills.Skills
	var err error
	if f.detect != nil {
		s, err = skills.Detect(ctx, f.binary, f.detect)
	} else {
		s, err = skills.New(ctx, f.binary)
	}
	if err != nil {
		return fmt.Errorf("reload skills: %w", err)
	}
	f.skillsLock.Lock()
	f.skills = &s
	f.skillsLock.Unlock()
	return nil
}
