// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// M3U8Downloader - HLS/M3U8 流下载工具

package api

import (
	"github.com/ZSC714725/m3u8downloader/internal/ffmpeg/parse"
	"github.com/ZSC714725/m3u8downloader/internal/ffmpeg/probe"
	"github.com/ZSC714725/m3u8downloader/internal/ffmpeg/skills"
)

// Job is a download task in API responses
type Job struct {
	ID        string          `json:"id"`
	Source    string          `json:"source"`
	State     string          `json:"state"`
	Message   string          `json:"message,omitempty"`
	Output    string          `json:"output,omitempty"`
	Variants  []probe.Variant `json:"variants"`
	Selected  *probe.Variant  `json:"selected,omitempty"`
	Phases    []Phase         `json:"phases"`
	CreatedAt int64           `json:"created_at"`
	UpdatedAt int64           `json:"updated_at"`
}

// Phase is one ffmpeg run of a job
type Phase struct {
	Name      string         `json:"name"`
	State     string         `json:"exec"`
	Progress  string         `json:"progress"`
	Message   string         `json:"message,omitempty"`
	Command   string         `json:"command,omitempty"`
	Stats     parse.Progress `json:"stats"`
	Memory    uint64         `json:"memory_peak_bytes"`
	CPU       float64        `json:"cpu_usage"`
	Runtime   int64          `json:"runtime_seconds"`
	StartedAt int64          `json:"started_at"`
}

// PhaseReport holds the log tail of one phase
type PhaseReport struct {
	Name    string      `json:"name"`
	Command string      `json:"command"`
	Log     [][2]string `json:"log"`
}

// JobReport for logs
type JobReport struct {
	ID     string        `json:"id"`
	Phases []PhaseReport `json:"phases"`
}

// SkillsResponse is the detected ffmpeg build plus what it lacks for downloads
type SkillsResponse struct {
	skills.Skills
	Missing []string `json:"missing"`
}

// ErrorResponse for API errors
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}
