// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// M3U8Downloader - HLS/M3U8 流下载工具

package task

import "errors"

var (
	ErrNotFound    = errors.New("task not found")
	ErrEmptySource = errors.New("task source is empty")
)
