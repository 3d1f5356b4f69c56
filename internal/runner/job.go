// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// M3U8Downloader - HLS/M3U8 流下载工具

package runner

import (
	"io"
	"strings"
	"time"
)

// pipeOutput makes ffmpeg write the muxed result to its stdout.
const pipeOutput = "pipe:1"

// Job describes one invocation of the external tool
type Job struct {
	Source string
	Output string
	// Sink receives the tool's stdout; when set, Output is ignored.
	Sink          io.Writer
	GlobalOptions []string
	InputOptions  []string
	OutputOptions []string
	Label         string
	// Timeout of zero means the runner default.
	Timeout time.Duration
}

// Command builds the argument list: global options, input options, -i source,
// output options, output.
func (j *Job) Command() []string {
	var cmd []string
	cmd = append(cmd, splitOptions(j.GlobalOptions)...)
	cmd = append(cmd, splitOptions(j.InputOptions)...)
	cmd = append(cmd, "-i", j.Source)
	cmd = append(cmd, splitOptions(j.OutputOptions)...)
	if j.Sink != nil {
		cmd = append(cmd, pipeOutput)
	} else {
		cmd = append(cmd, j.Output)
	}
	return cmd
}

// splitOptions turns "-f concat" into "-f", "concat". Only the first space
// separates flag from value so paths with spaces survive.
func splitOptions(options []string) []string {
	var out []string
	for _, o := range options {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		flag, value, found := strings.Cut(o, " ")
		out = append(out, flag)
		if found {
			if value = strings.TrimSpace(value); value != "" {
				out = append(out, value)
			}
		}
	}
	return out
}
