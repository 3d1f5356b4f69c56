// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// M3U8Downloader - HLS/M3U8 流下载工具

package runner

import "errors"

var (
	ErrSpawn        = errors.New("unable to spawn process")
	ErrToolReported = errors.New("tool reported an error")
	ErrTimeout      = errors.New("timeout reached")
	ErrCancelled    = errors.New("cancelled")
)
