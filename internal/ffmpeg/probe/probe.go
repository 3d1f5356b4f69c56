// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// M3U8Downloader - HLS/M3U8 流下载工具

package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
)

// Variant is one selectable rendition found in the probe output
type Variant struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Index       int    `json:"index"`
}

// Selector is the stream-map value selecting this variant.
func (v Variant) Selector() string {
	return "p:" + strconv.Itoa(v.Index)
}

// Parser turns raw diagnostic text into variants.
type Parser interface {
	Parse(text string) []Variant
}

// ParserFunc adapts a function to Parser.
type ParserFunc func(text string) []Variant

func (f ParserFunc) Parse(text string) []Variant { return f(text) }

var (
	reStream     = regexp.MustCompile(`Stream.+?Video.*`)
	reResolution = regexp.MustCompile(`(\d{2,4}x\d{2,4})`)
)

// Parse scans ffmpeg diagnostics for video stream lines. Duplicated
// resolutions stay separate variants.
func Parse(text string) []Variant {
	var variants []Variant
	for i, line := range reStream.FindAllString(text, -1) {
		v := Variant{Title: line, Index: i}
		if m := reResolution.FindStringSubmatch(line); m != nil {
			v.Title = m[1]
			v.Description = line
		}
		variants = append(variants, v)
	}
	return variants
}

// CommandRunner runs the inspection command and returns its stderr.
type CommandRunner interface {
	Run(ctx context.Context, binary string, args ...string) (stderr []byte, err error)
}

type execRunner struct{}

// Run ignores the exit status: "ffmpeg -i" without an output always fails
// after printing the stream listing.
func (execRunner) Run(ctx context.Context, binary string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	var exiterr *exec.ExitError
	if err != nil && !errors.As(err, &exiterr) {
		return stderr.Bytes(), err
	}
	if ctx.Err() != nil {
		return stderr.Bytes(), ctx.Err()
	}
	return stderr.Bytes(), nil
}

// Config for a Prober
type Config struct {
	Binary string
	Runner CommandRunner
	Parser Parser
}

// Prober lists the variants of a playlist
type Prober struct {
	binary string
	runner CommandRunner
	parser Parser
}

// New creates a Prober
func New(config Config) *Prober {
	p := &Prober{
		binary: config.Binary,
		runner: config.Runner,
		parser: config.Parser,
	}
	if p.runner == nil {
		p.runner = execRunner{}
	}
	if p.parser == nil {
		p.parser = ParserFunc(Parse)
	}
	return p
}

// List inspects source and returns its variants in scan order. Finding none
// is not an error.
func (p *Prober) List(ctx context.Context, source string) ([]Variant, error) {
	stderr, err := p.runner.Run(ctx, p.binary, "-hide_banner", "-i", source)
	if err != nil {
		return nil, fmt.Errorf("probe %s: %w", source, err)
	}
	return p.parser.Parse(string(stderr)), nil
}
