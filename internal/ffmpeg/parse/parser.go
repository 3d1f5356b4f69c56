// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// M3U8Downloader - HLS/M3U8 流下载工具

package parse

import (
	"container/ring"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ZSC714725/m3u8downloader/internal/process"
)

// Progress holds FFmpeg progress info parsed from stderr
type Progress struct {
	Frame    uint64  `json:"frame"`
	Size     uint64  `json:"size_bytes"`
	Time     float64 `json:"time_seconds"`
	Duration float64 `json:"duration_seconds"`
	Bitrate  float64 `json:"bitrate_kbit"`
	Speed    float64 `json:"speed"`
	Percent  float64 `json:"percent"`
}

// Parser implements process.Parser and parses FFmpeg stderr
type Parser interface {
	process.Parser
	Progress() Progress
}

type parser struct {
	re struct {
		duration *regexp.Regexp
		frame    *regexp.Regexp
		size     *regexp.Regexp
		time     *regexp.Regexp
		bitrate  *regexp.Regexp
		speed    *regexp.Regexp
	}

	log      *ring.Ring
	logLines int

	progress Progress
	lock     sync.RWMutex
}

// Config for the parser
type Config struct {
	LogLines int
}

// New creates a Parser
func New(config Config) Parser {
	p := &parser{
		logLines: config.LogLines,
	}
	if p.logLines <= 0 {
		p.logLines = 100
	}
	p.re.duration = regexp.MustCompile(`Duration:\s*([0-9]+):([0-9]{2}):([0-9]{2})(?:\.([0-9]+))?`)
	p.re.frame = regexp.MustCompile(`frame=\s*([0-9]+)`)
	p.re.size = regexp.MustCompile(`size=\s*([0-9]+)(?:kB|KiB)`)
	p.re.time = regexp.MustCompile(`time=\s*(-?[0-9]+):([0-9]{2}):([0-9]{2})(?:\.([0-9]+))?`)
	p.re.bitrate = regexp.MustCompile(`bitrate=\s*([0-9\.]+)kbits/s`)
	p.re.speed = regexp.MustCompile(`speed=\s*([0-9\.]+)x`)

	p.log = ring.New(p.logLines)
	return p
}

// Parse returns 1 for progress lines (those carrying time=), 0 otherwise.
func (p *parser) Parse(line string) uint64 {
	now := time.Now()

	p.lock.Lock()
	defer p.lock.Unlock()

	p.log.Value = process.Line{Timestamp: now, Data: line}
	p.log = p.log.Next()

	if m := p.re.duration.FindStringSubmatch(line); m != nil && p.progress.Duration == 0 {
		p.progress.Duration = clock(m[1], m[2], m[3], m[4])
		return 0
	}

	// segment 与 -progress 以外的统计行都带 time=
	if !strings.Contains(line, "time=") {
		return 0
	}

	if m := p.re.frame.FindStringSubmatch(line); m != nil {
		if x, err := strconv.ParseUint(m[1], 10, 64); err == nil {
			p.progress.Frame = x
		}
	}
	if m := p.re.size.FindStringSubmatch(line); m != nil {
		if x, err := strconv.ParseUint(m[1], 10, 64); err == nil {
			p.progress.Size = x * 1024
		}
	}
	if m := p.re.time.FindStringSubmatch(line); m != nil {
		p.progress.Time = clock(m[1], m[2], m[3], m[4])
	}
	if m := p.re.bitrate.FindStringSubmatch(line); m != nil {
		if x, err := strconv.ParseFloat(m[1], 64); err == nil {
			p.progress.Bitrate = x
		}
	}
	if m := p.re.speed.FindStringSubmatch(line); m != nil {
		if x, err := strconv.ParseFloat(m[1], 64); err == nil {
			p.progress.Speed = x
		}
	}

	p.progress.Percent = 0
	if p.progress.Duration > 0 && p.progress.Time > 0 {
		p.progress.Percent = p.progress.Time / p.progress.Duration * 100
		if p.progress.Percent > 100 {
			p.progress.Percent = 100
		}
	}

	return 1
}

// clock converts HH, MM, SS and a decimal fraction into seconds.
func clock(hh, mm, ss, frac string) float64 {
	h, _ := strconv.Atoi(hh)
	m, _ := strconv.Atoi(mm)
	s, _ := strconv.Atoi(ss)
	seconds := float64(h*3600 + m*60 + s)
	if h < 0 {
		return 0
	}
	if frac != "" {
		if x, err := strconv.ParseFloat("0."+frac, 64); err == nil {
			seconds += x
		}
	}
	return seconds
}

func (p *parser) Percent() float64 {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.progress.Percent
}

func (p *parser) ResetStats() {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.progress = Progress{}
}

func (p *parser) ResetLog() {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.log = ring.New(p.logLines)
}

func (p *parser) Log() []process.Line {
	var out []process.Line
	p.lock.RLock()
	p.log.Do(func(v interface{}) {
		if v != nil {
			out = append(out, v.(process.Line))
		}
	})
	p.lock.RUnlock()
	return out
}

func (p *parser) Progress() Progress {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.progress
}
