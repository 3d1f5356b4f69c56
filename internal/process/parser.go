// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// M3U8Downloader - HLS/M3U8 流下载工具

package process

import "time"

// Parser parses process output (e.g. FFmpeg stderr)
type Parser interface {
	// Parse consumes one line and returns non-zero if it was a progress line.
	Parse(line string) uint64
	// Percent is the completion percentage, 0 while unknown.
	Percent() float64
	ResetStats()
	ResetLog()
	Log() []Line
}

// Line is a timestamped log line
type Line struct {
	Timestamp time.Time
	Data      string
}
