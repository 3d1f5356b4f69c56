// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// M3U8Downloader - HLS/M3U8 流下载工具

package main

import (
	"strings"

	"github.com/manifoldco/promptui"

	"github.com/ZSC714725/m3u8downloader/internal/ffmpeg/probe"
)

// prompter asks for whatever the command line left out
type prompter struct {
	validate func(source string) error
}

func (p prompter) playlist() (string, error) {
	prompt := promptui.Prompt{
		Label: "M3U8 file",
		Validate: func(s string) error {
			if p.validate == nil {
				return nil
			}
			return p.validate(s)
		},
	}
	source, err := prompt.Run()
	return strings.TrimSpace(source), err
}

func (p prompter) text(label, initial string) (string, error) {
	prompt := promptui.Prompt{
		Label:     label,
		Default:   initial,
		AllowEdit: true,
	}
	value, err := prompt.Run()
	if err != nil {
		return "", err
	}
	if value = strings.TrimSpace(value); value == "" {
		return initial, nil
	}
	return value, nil
}

func (p prompter) variant(variants []probe.Variant) (probe.Variant, error) {
	sel := promptui.Select{
		Label: "Select version",
		Items: variants,
		Size:  10,
		Templates: &promptui.SelectTemplates{
			Label:    "{{ . }}",
			Active:   "▸ {{ .Title | cyan }}",
			Inactive: "  {{ .Title }}",
			Selected: "✔ {{ .Title | green }}",
			Details:  "{{ .Description | faint }}",
		},
	}
	i, _, err := sel.Run()
	if err != nil {
		return probe.Variant{}, err
	}
	return variants[i], nil
}
