// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// M3U8Downloader - HLS/M3U8 流下载工具
//
// Package playlist sanity-checks local playlist files before ffmpeg sees them.

package playlist

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/grafov/m3u8"
)

var ErrUnsupported = errors.New("unsupported playlist type")

// Kind of playlist
type Kind string

const (
	KindMaster Kind = "master"
	KindMedia  Kind = "media"
)

// Rendition is one variant stream declared by a master playlist.
type Rendition struct {
	Bandwidth  uint32 `json:"bandwidth"`
	Resolution string `json:"resolution"`
	Codecs     string `json:"codecs"`
	URI        string `json:"uri"`
}

// Info summarizes a decoded playlist
type Info struct {
	Kind       Kind        `json:"kind"`
	Renditions []Rendition `json:"renditions,omitempty"`
	Segments   int         `json:"segments"`
	Duration   float64     `json:"duration_seconds"`
	Live       bool        `json:"live"`
}

// IsRemote reports whether source is a URI ffmpeg fetches itself.
func IsRemote(source string) bool {
	u, err := url.Parse(source)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "http", "https", "rtmp", "rtsp", "ftp", "tcp", "udp":
		return u.Host != ""
	}
	return false
}

// Inspect decodes a local playlist file.
func Inspect(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()

	p, t, err := m3u8.DecodeFrom(bufio.NewReader(f), false)
	if err != nil {
		return Info{}, fmt.Errorf("decode %s: %w", path, err)
	}

	switch t {
	case m3u8.MASTER:
		master := p.(*m3u8.MasterPlaylist)
		info := Info{Kind: KindMaster}
		for _, v := range master.Variants {
			if v == nil {
				continue
			}
			info.Renditions = append(info.Renditions, Rendition{
				Bandwidth:  v.Bandwidth,
				Resolution: v.Resolution,
				Codecs:     v.Codecs,
				URI:        v.URI,
			})
		}
		return info, nil
	case m3u8.MEDIA:
		media := p.(*m3u8.MediaPlaylist)
		info := Info{Kind: KindMedia, Live: !media.Closed}
		for _, s := range media.Segments {
			if s == nil {
				continue
			}
			info.Segments++
			info.Duration += s.Duration
		}
		return info, nil
	}
	return Info{}, fmt.Errorf("%w: %d", ErrUnsupported, t)
}
