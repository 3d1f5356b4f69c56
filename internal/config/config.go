// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// M3U8Downloader - HLS/M3U8 流下载工具

package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultFFmpegPath   = "ffmpeg"
	defaultTimeout      = 30
	defaultProbeTimeout = 60
	defaultLogLines     = 100
)

// DefaultAllow 默认只接受 .m3u8 播放列表（允许带查询参数）
var DefaultAllow = []string{`\.m3u8(\?.*)?$`}

// Config 应用配置
type Config struct {
	FFmpeg   FFmpegConfig   `yaml:"ffmpeg"`
	Download DownloadConfig `yaml:"download"`
	Input    InputConfig    `yaml:"input"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

// FFmpegConfig FFmpeg 配置
type FFmpegConfig struct {
	Path                string `yaml:"path"`
	TimeoutMinutes      int    `yaml:"timeout_minutes"`
	ProbeTimeoutSeconds int    `yaml:"probe_timeout_seconds"`
	Overwrite           *bool  `yaml:"overwrite"`
	LogLines            int    `yaml:"log_lines"`
}

// DownloadConfig 下载配置
type DownloadConfig struct {
	OutputDir    string   `yaml:"output_dir"`
	KeepChunks   bool     `yaml:"keep_chunks"`
	MergeOptions []string `yaml:"merge_options"`
}

// InputConfig 输入地址校验规则
type InputConfig struct {
	Allow []string `yaml:"allow"`
	Block []string `yaml:"block"`
}

// ServerConfig 状态接口配置，Bind 为空时不启动
type ServerConfig struct {
	Bind string `yaml:"bind"`
}

// LogConfig 日志配置
type LogConfig struct {
	Debug bool `yaml:"debug"`
}

// Default 返回默认配置
func Default() *Config {
	cfg := &Config{}
	cfg.fill()
	return cfg
}

// Load 从 YAML 文件加载配置
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// 填充空值
	cfg.fill()

	return cfg, nil
}

func (c *Config) fill() {
	if c.FFmpeg.Path == "" {
		c.FFmpeg.Path = defaultFFmpegPath
	}
	if c.FFmpeg.TimeoutMinutes <= 0 {
		c.FFmpeg.TimeoutMinutes = defaultTimeout
	}
	if c.FFmpeg.ProbeTimeoutSeconds <= 0 {
		c.FFmpeg.ProbeTimeoutSeconds = defaultProbeTimeout
	}
	if c.FFmpeg.Overwrite == nil {
		overwrite := true
		c.FFmpeg.Overwrite = &overwrite
	}
	if c.FFmpeg.LogLines <= 0 {
		c.FFmpeg.LogLines = defaultLogLines
	}
	if c.Download.OutputDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.Download.OutputDir = home
		} else {
			c.Download.OutputDir = "."
		}
	}
	if len(c.Download.MergeOptions) == 0 {
		c.Download.MergeOptions = []string{"-c copy"}
	}
	if len(c.Input.Allow) == 0 {
		c.Input.Allow = append([]string(nil), DefaultAllow...)
	}
}

// Timeout 单个 ffmpeg 阶段的超时时间
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.FFmpeg.TimeoutMinutes) * time.Minute
}

// ProbeTimeout 探测阶段的超时时间
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.FFmpeg.ProbeTimeoutSeconds) * time.Second
}

// Overwrite 是否覆盖已存在的输出文件
func (c *Config) Overwrite() bool {
	return c.FFmpeg.Overwrite == nil || *c.FFmpeg.Overwrite
}
