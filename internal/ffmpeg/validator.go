// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// M3U8Downloader - HLS/M3U8 流下载工具

package ffmpeg

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrEmptySource = errors.New("empty playlist source")
	ErrBlocked     = errors.New("playlist source is blocked")
	ErrNotAllowed  = errors.New("not a valid M3U8 source")
)

// Validator decides whether a playlist source may be handed to FFmpeg
type Validator interface {
	Check(source string) error
}

type validator struct {
	allow []*regexp.Regexp
	block []*regexp.Regexp
}

// NewValidator compiles allow and block expressions. Empty expressions are
// ignored. A block match always rejects; without allow expressions every
// source that is not blocked passes.
func NewValidator(allow, block []string) (Validator, error) {
	v := &validator{}

	var err error
	if v.allow, err = compileAll("allow", allow); err != nil {
		return nil, err
	}
	if v.block, err = compileAll("block", block); err != nil {
		return nil, err
	}

	return v, nil
}

func compileAll(kind string, expressions []string) ([]*regexp.Regexp, error) {
	var out []*regexp.Regexp
	for _, exp := range expressions {
		exp = strings.TrimSpace(exp)
		if exp == "" {
			continue
		}
		re, err := regexp.Compile(exp)
		if err != nil {
			return nil, fmt.Errorf("invalid %s expression '%s': %w", kind, exp, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func (v *validator) Check(source string) error {
	source = strings.TrimSpace(source)
	if source == "" {
		return ErrEmptySource
	}
	for _, e := range v.block {
		if e.MatchString(source) {
			return fmt.Errorf("%w: %s matches %q", ErrBlocked, source, e.String())
		}
	}
	if len(v.allow) == 0 {
		return nil
	}
	for _, e := range v.allow {
		if e.MatchString(source) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNotAllowed, source)
}
