// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// M3U8Downloader - HLS/M3U8 流下载工具
//
// Package download runs one playlist download: probe, segment download into
// numbered chunks, and concat merge into a single mp4.

package download

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ZSC714725/m3u8downloader/internal/chunk"
	"github.com/ZSC714725/m3u8downloader/internal/ffmpeg/probe"
	"github.com/ZSC714725/m3u8downloader/internal/ffmpeg/skills"
	"github.com/ZSC714725/m3u8downloader/internal/indicator"
	"github.com/ZSC714725/m3u8downloader/internal/logger"
	"github.com/ZSC714725/m3u8downloader/internal/playlist"
	"github.com/ZSC714725/m3u8downloader/internal/runner"
	"github.com/ZSC714725/m3u8downloader/internal/task"
)

const (
	LabelDownload = "Downloading"
	LabelMerge    = "Merging"

	PhaseProbe    = "probe"
	PhaseDownload = "download"
	PhaseMerge    = "merge"

	chunksDirName   = "chunks"
	segmentListName = "out.list"
	outputExt       = ".mp4"
)

// Tool is the subset of the ffmpeg facade a download needs
type Tool interface {
	Execute(ctx context.Context, job runner.Job, label string, sink indicator.Indicator) runner.Outcome
	ListVariants(ctx context.Context, source string) ([]probe.Variant, error)
	ValidateInput(source string) error
	Skills(ctx context.Context) (skills.Skills, error)
}

// SelectFunc picks one of the probed variants
type SelectFunc func(variants []probe.Variant) (probe.Variant, error)

// Config for a Downloader
type Config struct {
	Tool   Tool
	Store  task.Store
	Logger logger.Logger
	// Timeout per ffmpeg phase, zero means the runner default
	Timeout      time.Duration
	Overwrite    bool
	KeepChunks   bool
	MergeOptions []string
	// CheckSkills fails early when ffmpeg lacks a required muxer or demuxer
	CheckSkills bool
}

// Request is one download
type Request struct {
	Source string
	// Name of the job directory and the output file, defaults to the
	// sha1 of Source
	Name string
	// Dir is the parent of the job directory
	Dir string
	// Variant index to download, negative means Select decides
	Variant  int
	Select   SelectFunc
	Progress indicator.Indicator
	// Notify receives the user facing status lines
	Notify func(message string)
}

// Result of a successful download
type Result struct {
	TaskID  string
	Dir     string
	Output  string
	Variant probe.Variant
	Chunks  int
}

// Downloader orchestrates the probe, download and merge phases
type Downloader struct {
	tool         Tool
	store        task.Store
	logger       logger.Logger
	timeout      time.Duration
	overwrite    bool
	keepChunks   bool
	mergeOptions []string
	checkSkills  bool
}

// New creates a Downloader
func New(config Config) (*Downloader, error) {
	if config.Tool == nil {
		return nil, errors.New("download: no ffmpeg tool")
	}

	d := &Downloader{
		tool:         config.Tool,
		store:        config.Store,
		logger:       config.Logger,
		timeout:      config.Timeout,
		overwrite:    config.Overwrite,
		keepChunks:   config.KeepChunks,
		mergeOptions: config.MergeOptions,
		checkSkills:  config.CheckSkills,
	}
	if d.store == nil {
		d.store = task.NewStore(config.Logger)
	}
	if d.logger == nil {
		d.logger = logger.Nop()
	}
	if len(d.mergeOptions) == 0 {
		d.mergeOptions = []string{"-c copy"}
	}

	return d, nil
}

// DefaultName is the hex sha1 of source
func DefaultName(source string) string {
	sum := sha1.Sum([]byte(source))
	return hex.EncodeToString(sum[:])
}

// Layout of one job on disk
type Layout struct {
	Dir         string
	Chunks      string
	Manifest    string
	SegmentList string
	Output      string
}

// NewLayout places chunks, segment list and output under dir/name
func NewLayout(dir, name string) Layout {
	jobDir := filepath.Join(dir, name)
	chunks := filepath.Join(jobDir, chunksDirName)
	return Layout{
		Dir:         jobDir,
		Chunks:      chunks,
		Manifest:    filepath.Join(chunks, chunk.ManifestName),
		SegmentList: filepath.Join(jobDir, segmentListName),
		Output:      filepath.Join(jobDir, name+outputExt),
	}
}

// Run downloads req.Source. It aborts on the first failed phase.
func (d *Downloader) Run(ctx context.Context, req Request) (res Result, err error) {
	req.Source = strings.TrimSpace(req.Source)
	if err := d.tool.ValidateInput(req.Source); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidSource, err)
	}
	if err := d.precheck(req.Source); err != nil {
		return Result{}, err
	}
	if d.checkSkills {
		if err := d.preflight(ctx); err != nil {
			return Result{}, err
		}
	}

	if req.Name == "" {
		req.Name = DefaultName(req.Source)
	}
	if req.Dir == "" {
		req.Dir = "."
	}
	// concat resolves manifest entries against the manifest's own directory
	if req.Dir, err = filepath.Abs(req.Dir); err != nil {
		return Result{}, fmt.Errorf("resolve %s: %w", req.Dir, err)
	}
	if req.Progress == nil {
		req.Progress = indicator.Nop()
	}
	notify := req.Notify
	if notify == nil {
		notify = func(string) {}
	}

	t, err := d.store.Add(req.Source)
	if err != nil {
		return Result{}, err
	}
	defer func() { t.Done(err) }()

	layout := NewLayout(req.Dir, req.Name)
	res = Result{TaskID: t.ID, Dir: layout.Dir, Output: layout.Output}
	t.SetOutput(layout.Output)

	if err := os.MkdirAll(layout.Chunks, 0o755); err != nil {
		return res, fmt.Errorf("create %s: %w", layout.Chunks, err)
	}
	notify(fmt.Sprintf("File will be saved in: %s", layout.Dir))

	done := false
	defer func() {
		if !done {
			d.cleanup(layout)
		}
	}()

	variant, err := d.selectVariant(ctx, t, req)
	if err != nil {
		return res, err
	}
	res.Variant = variant

	o := d.execute(ctx, t, PhaseDownload, runner.Job{
		Source:        req.Source,
		Output:        filepath.Join(layout.Chunks, chunk.Pattern),
		GlobalOptions: d.globalOptions(),
		OutputOptions: []string{
			"-map " + variant.Selector(),
			"-c copy",
			"-f segment",
			"-segment_list " + layout.SegmentList,
		},
		Label:   LabelDownload,
		Timeout: d.timeout,
	}, req.Progress)
	if o.Failed {
		return res, &PhaseError{Phase: PhaseDownload, Outcome: o}
	}
	notify(o.Message)

	chunks, err := chunk.List(layout.Chunks)
	if err != nil {
		return res, fmt.Errorf("list chunks: %w", err)
	}
	if len(chunks) == 0 {
		return res, fmt.Errorf("%w in %s", ErrNoChunks, layout.Chunks)
	}
	res.Chunks = len(chunks)
	if err := chunk.WriteFile(layout.Manifest, chunks); err != nil {
		return res, fmt.Errorf("write manifest: %w", err)
	}
	d.logger.Debug("Wrote %d chunks to %s", len(chunks), layout.Manifest)

	o = d.execute(ctx, t, PhaseMerge, runner.Job{
		Source:        layout.Manifest,
		Output:        layout.Output,
		GlobalOptions: d.globalOptions(),
		InputOptions:  []string{"-f concat", "-safe 0"},
		OutputOptions: d.mergeOptions,
		Label:         LabelMerge,
		Timeout:       d.timeout,
	}, req.Progress)
	if o.Failed {
		return res, &PhaseError{Phase: PhaseMerge, Outcome: o}
	}
	notify(o.Message)

	done = true
	d.cleanup(layout)
	return res, nil
}

func (d *Downloader) selectVariant(ctx context.Context, t *task.Task, req Request) (probe.Variant, error) {
	phase := t.Phase(PhaseProbe)
	phase.Start()

	variants, err := d.tool.ListVariants(ctx, req.Source)
	if err != nil {
		phase.Fail(err)
		return probe.Variant{}, err
	}
	if len(variants) == 0 {
		phase.Fail(ErrNoVariants)
		return probe.Variant{}, fmt.Errorf("%w in %s", ErrNoVariants, req.Source)
	}
	t.SetVariants(variants)
	phase.Finish(runner.Outcome{
		State:   runner.StateSucceeded,
		Message: fmt.Sprintf("Found %d variants", len(variants)),
	})

	var v probe.Variant
	switch {
	case req.Variant >= 0:
		if req.Variant >= len(variants) {
			return probe.Variant{}, fmt.Errorf("%w %d, found %d", ErrUnknownVariant, req.Variant, len(variants))
		}
		v = variants[req.Variant]
	case req.Select != nil:
		if v, err = req.Select(variants); err != nil {
			return probe.Variant{}, err
		}
	default:
		v = variants[0]
	}

	t.Select(v)
	d.logger.Debug("Selected variant %s (%s)", v.Title, v.Selector())
	return v, nil
}

func (d *Downloader) execute(ctx context.Context, t *task.Task, name string, job runner.Job, progress indicator.Indicator) runner.Outcome {
	phase := t.Phase(name)
	o := d.tool.Execute(ctx, job, job.Label, indicator.Tee(progress, phase))
	phase.Finish(o)
	if o.Failed {
		d.logger.Error("%s", o.Message)
	}
	return o
}

func (d *Downloader) globalOptions() []string {
	if d.overwrite {
		return []string{"-y"}
	}
	return nil
}

// precheck decodes local playlists before ffmpeg sees them. Remote sources
// are left to ffmpeg.
func (d *Downloader) precheck(source string) error {
	if playlist.IsRemote(source) {
		return nil
	}
	if _, err := os.Stat(source); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSource, err)
	}

	info, err := playlist.Inspect(source)
	if err != nil {
		d.logger.Warn("Unable to decode %s, leaving it to ffmpeg: %v", source, err)
		return nil
	}
	switch info.Kind {
	case playlist.KindMaster:
		d.logger.Debug("%s is a master playlist with %d renditions", source, len(info.Renditions))
	case playlist.KindMedia:
		d.logger.Debug("%s is a media playlist with %d segments (%.0fs)", source, info.Segments, info.Duration)
		if info.Live {
			d.logger.Warn("%s has no end tag, the download stops at the timeout", source)
		}
	}
	return nil
}

func (d *Downloader) preflight(ctx context.Context) error {
	s, err := d.tool.Skills(ctx)
	if err != nil {
		d.logger.Warn("Skipping capability check: %v", err)
		return nil
	}
	if !s.FormatsDetected() {
		d.logger.Warn("Skipping capability check: ffmpeg listed no formats")
		return nil
	}
	if missing := s.Missing(); len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingSkills, strings.Join(missing, ", "))
	}
	return nil
}

func (d *Downloader) cleanup(l Layout) {
	if d.keepChunks {
		return
	}
	if err := os.RemoveAll(l.Chunks); err != nil {
		d.logger.Warn("Unable to remove %s: %v", l.Chunks, err)
	}
	if err := os.Remove(l.SegmentList); err != nil && !os.IsNotExist(err) {
		d.logger.Warn("Unable to remove %s: %v", l.SegmentList, err)
	}
}
