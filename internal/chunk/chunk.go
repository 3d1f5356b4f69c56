// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// M3U8Downloader - HLS/M3U8 流下载工具
//
// Package chunk handles downloaded segment files and the concat manifest
// that joins them.

package chunk

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	// Ext is the extension of every chunk file.
	Ext = ".ts"
	// Pattern is the segment muxer output template relative to the chunk dir.
	Pattern = "%04d" + Ext
	// ManifestName is the concat manifest written next to the chunks.
	ManifestName = "all.txt"
)

// List returns the chunk files of dir in playback order. Names are compared
// by numeric value so the order survives past 9999 chunks, where the
// zero padding stops lining up lexically.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != Ext {
			continue
		}
		names = append(names, e.Name())
	}

	sort.SliceStable(names, func(i, j int) bool {
		a, aErr := strconv.Atoi(strings.TrimSuffix(names[i], Ext))
		b, bErr := strconv.Atoi(strings.TrimSuffix(names[j], Ext))
		if aErr == nil && bErr == nil && a != b {
			return a < b
		}
		return names[i] < names[j]
	})

	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
	}
	return paths, nil
}

// Write emits one "file <path>" line per chunk.
func Write(w io.Writer, paths []string) error {
	bw := bufio.NewWriter(w)
	for _, p := range paths {
		if _, err := bw.WriteString("file " + quote(p) + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile writes the manifest for paths to path.
func WriteFile(path string, paths []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, paths); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// quote leaves plain paths untouched and single-quotes the rest the way the
// concat demuxer tokenizes them.
func quote(path string) string {
	if !strings.ContainsAny(path, " \t'\"\\#") {
		return path
	}
	return "'" + strings.ReplaceAll(path, "'", `'\''`) + "'"
}
