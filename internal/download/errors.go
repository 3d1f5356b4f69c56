// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// M3U8Downloader - HLS/M3U8 流下载工具

package download

import (
	"errors"

	"github.com/ZSC714725/m3u8downloader/internal/runner"
)

var (
	ErrInvalidSource  = errors.New("invalid playlist source")
	ErrNoVariants     = errors.New("no video variants found")
	ErrUnknownVariant = errors.New("unknown variant")
	ErrNoChunks       = errors.New("no chunks downloaded")
	ErrMissingSkills  = errors.New("ffmpeg lacks required formats")
)

// PhaseError is a failed ffmpeg run. Its text is the run's message.
type PhaseError struct {
	Phase   string
	Outcome runner.Outcome
}

func (e *PhaseError) Error() string {
	return e.Outcome.Message
}

func (e *PhaseError) Unwrap() error {
	return e.Outcome.Err
}
