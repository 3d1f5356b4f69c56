// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// M3U8Downloader - HLS/M3U8 流下载工具

// Package skills detects what the installed FFmpeg can do for HLS downloads.
package skills

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// Format is a demuxer or muxer
type Format struct {
	Id   string `json:"id"`
	Name string `json:"name"`
}

// Protocol is an input or output protocol
type Protocol struct {
	Id string `json:"id"`
}

// Library is a linked av library
type Library struct {
	Name     string `json:"name"`
	Compiled string `json:"compiled"`
	Linked   string `json:"linked"`
}

// Info describes the ffmpeg build
type Info struct {
	Version       string    `json:"version"`
	Compiler      string    `json:"compiler"`
	Configuration string    `json:"configuration"`
	Libraries     []Library `json:"libraries"`
}

// Skills are the detected capabilities of FFmpeg
type Skills struct {
	FFmpeg  Info `json:"ffmpeg"`
	Formats struct {
		Demuxers []Format `json:"demuxers"`
		Muxers   []Format `json:"muxers"`
	} `json:"formats"`
	Protocols struct {
		Input  []Protocol `json:"input"`
		Output []Protocol `json:"output"`
	} `json:"protocols"`
}

// Required lists the demuxers and muxers the download pipeline depends on.
var Required = struct {
	Demuxers []string
	Muxers   []string
}{
	Demuxers: []string{"hls", "concat"},
	Muxers:   []string{"segment", "mp4"},
}

// Runner returns the combined output of binary with args.
type Runner func(ctx context.Context, binary string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, binary string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, binary, args...).CombinedOutput()
}

// New queries binary for its version, formats and protocols
func New(ctx context.Context, binary string) (Skills, error) {
	return Detect(ctx, binary, execRunner)
}

// Detect is New with a custom Runner
func Detect(ctx context.Context, binary string, run Runner) (Skills, error) {
	s := Skills{}

	out, err := run(ctx, binary, "-version")
	if err != nil {
		return Skills{}, fmt.Errorf("can't parse ffmpeg version: %w", err)
	}
	s.FFmpeg = parseVersion(out)
	if s.FFmpeg.Version == "" {
		return Skills{}, fmt.Errorf("can't parse ffmpeg version")
	}

	// -formats and -protocols are best effort, older builds exit non-zero
	out, _ = run(ctx, binary, "-hide_banner", "-formats")
	s.Formats.Demuxers, s.Formats.Muxers = parseFormats(out)

	out, _ = run(ctx, binary, "-hide_banner", "-protocols")
	s.Protocols.Input, s.Protocols.Output = parseProtocols(out)

	return s, nil
}

// FormatsDetected reports whether "-formats" produced any demuxer or muxer.
func (s Skills) FormatsDetected() bool {
	return len(s.Formats.Demuxers) > 0 || len(s.Formats.Muxers) > 0
}

// Missing returns the required formats this build lacks, prefixed with
// "demuxer:" or "muxer:". It is empty when the formats could not be
// detected at all.
func (s Skills) Missing() []string {
	if !s.FormatsDetected() {
		return nil
	}

	var missing []string
	for _, id := range Required.Demuxers {
		if !hasFormat(s.Formats.Demuxers, id) {
			missing = append(missing, "demuxer:"+id)
		}
	}
	for _, id := range Required.Muxers {
		if !hasFormat(s.Formats.Muxers, id) {
			missing = append(missing, "muxer:"+id)
		}
	}
	return missing
}

// HasInputProtocol reports whether ffmpeg can read from protocol id
func (s Skills) HasInputProtocol(id string) bool {
	for _, p := range s.Protocols.Input {
		if p.Id == id {
			return true
		}
	}
	return false
}

func hasFormat(formats []Format, id string) bool {
	for _, f := range formats {
		if f.Id == id {
			return true
		}
	}
	return false
}

var (
	reVersion       = regexp.MustCompile(`^ffmpeg version n?([0-9]+\.[0-9]+(\.[0-9]+)?)`)
	reCompiler      = regexp.MustCompile(`(?m)^\s*built with (.*)$`)
	reConfiguration = regexp.MustCompile(`(?m)^\s*configuration: (.*)$`)
	reLibrary       = regexp.MustCompile(`(?m)^\s*(lib(?:[a-z]+))\s+([0-9]+\.\s*[0-9]+\.\s*[0-9]+) /\s+([0-9]+\.\s*[0-9]+\.\s*[0-9]+)`)
	reFormat        = regexp.MustCompile(`^\s([D. ])([E. ])[d ]?\s+([0-9A-Za-z_,]+)\s+(.*?)$`)
)

func parseVersion(data []byte) Info {
	f := Info{}

	if m := reVersion.FindSubmatch(data); m != nil {
		f.Version = string(m[1])
		if len(m[2]) == 0 {
			f.Version += ".0"
		}
	}
	if m := reCompiler.FindSubmatch(data); m != nil {
		f.Compiler = strings.TrimSpace(string(m[1]))
	}
	if m := reConfiguration.FindSubmatch(data); m != nil {
		f.Configuration = strings.TrimSpace(string(m[1]))
	}
	for _, m := range reLibrary.FindAllSubmatch(data, -1) {
		f.Libraries = append(f.Libraries, Library{
			Name:     string(m[1]),
			Compiled: string(m[2]),
			Linked:   string(m[3]),
		})
	}
	return f
}

// parseFormats reads "ffmpeg -formats". Aliases like "mov,mp4,m4a" are split
// so every name can be looked up.
func parseFormats(data []byte) (demuxers, muxers []Format) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	started := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			started = true
			continue
		}
		if !started {
			continue
		}
		m := reFormat.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		for _, id := range strings.Split(m[3], ",") {
			format := Format{Id: id, Name: m[4]}
			if m[1] == "D" {
				demuxers = append(demuxers, format)
			}
			if m[2] == "E" {
				muxers = append(muxers, format)
			}
		}
	}
	return demuxers, muxers
}

func parseProtocols(data []byte) (input, output []Protocol) {
	mode := ""
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "Input:":
			mode = "input"
			continue
		case "Output:":
			mode = "output"
			continue
		case "":
			continue
		}
		switch mode {
		case "input":
			input = append(input, Protocol{Id: line})
		case "output":
			output = append(output, Protocol{Id: line})
		}
	}
	return input, output
}
