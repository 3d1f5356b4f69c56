// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// M3U8Downloader - HLS/M3U8 流下载工具

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/gin-gonic/gin"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/ZSC714725/m3u8downloader/internal/api"
	"github.com/ZSC714725/m3u8downloader/internal/config"
	"github.com/ZSC714725/m3u8downloader/internal/download"
	"github.com/ZSC714725/m3u8downloader/internal/ffmpeg"
	"github.com/ZSC714725/m3u8downloader/internal/indicator"
	"github.com/ZSC714725/m3u8downloader/internal/logger"
	"github.com/ZSC714725/m3u8downloader/internal/task"
)

var (
	info    = color.New(color.FgCyan, color.Bold)
	success = color.New(color.FgGreen, color.Bold)
	failure = color.New(color.FgRed, color.Bold)
)

type options struct {
	configPath string
	ffmpeg     string
	debug      bool

	name       string
	dir        string
	variant    int
	timeout    int
	keepChunks bool
	bind       string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		failure.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "m3u8dl [playlist]",
		Short:         "Download all the HLS/.ts chunks from the provided M3U8 playlist file and merge them into an MP4 file",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDownload(cmd, opts, args)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "Path to YAML config file")
	pf.StringVar(&opts.ffmpeg, "ffmpeg", "", "FFmpeg binary path (overrides config)")
	pf.BoolVar(&opts.debug, "debug", false, "Print ffmpeg command lines and state changes")

	f := root.Flags()
	f.StringVarP(&opts.name, "name", "n", "", "Output file name, defaults to the sha1 of the playlist")
	f.StringVarP(&opts.dir, "dir", "d", "", "Directory the job folder is created in (overrides config)")
	f.IntVar(&opts.variant, "variant", -1, "Variant index to download, asks when unset")
	f.IntVar(&opts.timeout, "timeout", 0, "Timeout in minutes per ffmpeg phase (overrides config)")
	f.BoolVar(&opts.keepChunks, "keep-chunks", false, "Keep the chunks and segment list after merging")
	f.StringVar(&opts.bind, "bind", "", "Serve the job status API on this address (overrides config)")

	root.AddCommand(newVariantsCommand(opts), newCheckCommand(opts))
	return root
}

func newVariantsCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "variants <playlist>",
		Short: "List the video variants of a playlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(opts)
			if err != nil {
				return err
			}
			ff, err := newFFmpeg(cfg, log)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			variants, err := ff.ListVariants(ctx, args[0])
			if err != nil {
				return err
			}
			if len(variants) == 0 {
				return download.ErrNoVariants
			}
			out := cmd.OutOrStdout()
			for _, v := range variants {
				fmt.Fprintf(out, "%d\t%s\t%s\n", v.Index, v.Title, v.Description)
			}
			return nil
		},
	}
}

func newCheckCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Show the ffmpeg build and whether it can download HLS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(opts)
			if err != nil {
				return err
			}
			ff, err := newFFmpeg(cfg, log)
			if err != nil {
				return err
			}

			s, err := ff.Skills(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ffmpeg %s (%s)\n", s.FFmpeg.Version, ff.Binary())
			for _, lib := range s.FFmpeg.Libraries {
				fmt.Fprintf(out, "  %-14s %s\n", lib.Name, lib.Linked)
			}
			fmt.Fprintf(out, "demuxers: %d, muxers: %d, input protocols: %d\n",
				len(s.Formats.Demuxers), len(s.Formats.Muxers), len(s.Protocols.Input))
			if !s.FormatsDetected() {
				fmt.Fprintln(out, "warning: unable to list formats, skipping the format check")
			}
			if !s.HasInputProtocol("https") {
				fmt.Fprintln(out, "warning: no https input protocol, remote playlists will fail")
			}

			if missing := s.Missing(); len(missing) > 0 {
				return fmt.Errorf("%w: %v", download.ErrMissingSkills, missing)
			}
			success.Fprintln(out, "All required formats are available")
			return nil
		},
	}
}

func runDownload(cmd *cobra.Command, opts *options, args []string) error {
	cfg, log, err := setup(opts)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("keep-chunks") {
		cfg.Download.KeepChunks = opts.keepChunks
	}
	if opts.bind != "" {
		cfg.Server.Bind = opts.bind
	}

	out := cmd.OutOrStdout()
	info.Fprintln(out, "M3U8 Downloader")

	ff, err := newFFmpeg(cfg, log)
	if err != nil {
		return err
	}

	interactive := isInteractive()
	p := prompter{validate: ff.ValidateInput}

	source := ""
	if len(args) > 0 {
		source = args[0]
	} else if interactive {
		if source, err = p.playlist(); err != nil {
			return err
		}
	} else {
		return errors.New("no playlist given")
	}

	name := opts.name
	if name == "" && interactive {
		if name, err = p.text("File name", download.DefaultName(source)); err != nil {
			return err
		}
	}
	dir := cfg.Download.OutputDir
	if opts.dir != "" {
		dir = opts.dir
	} else if interactive {
		if dir, err = p.text("Save to", dir); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := task.NewStore(log)
	if cfg.Server.Bind != "" {
		shutdown := serve(cfg.Server.Bind, store, ff, log, cfg.Log.Debug)
		defer shutdown()
	}

	d, err := download.New(download.Config{
		Tool:         ff,
		Store:        store,
		Logger:       log,
		Timeout:      cfg.Timeout(),
		Overwrite:    cfg.Overwrite(),
		KeepChunks:   cfg.Download.KeepChunks,
		MergeOptions: cfg.Download.MergeOptions,
		CheckSkills:  true,
	})
	if err != nil {
		return err
	}

	req := download.Request{
		Source:   source,
		Name:     name,
		Dir:      dir,
		Variant:  opts.variant,
		Progress: indicator.NewSpinner(os.Stderr),
		Notify:   func(message string) { info.Fprintln(out, message) },
	}
	if interactive {
		req.Select = p.variant
	}

	res, err := d.Run(ctx, req)
	if err != nil {
		return err
	}

	success.Fprintln(out, "Job done!")
	fmt.Fprintf(out, "%s (%d chunks, variant %s)\n", res.Output, res.Chunks, res.Variant.Title)
	return nil
}

// setup loads the config, applies the shared flags and builds the logger
func setup(opts *options) (*config.Config, logger.Logger, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		cfg, err = config.Load(opts.configPath)
		if err != nil {
			return nil, nil, fmt.Errorf("load config: %w", err)
		}
	}

	if opts.ffmpeg != "" {
		cfg.FFmpeg.Path = opts.ffmpeg
	}
	if opts.debug {
		cfg.Log.Debug = true
	}
	if opts.timeout > 0 {
		cfg.FFmpeg.TimeoutMinutes = opts.timeout
	}

	return cfg, logger.New("m3u8dl", cfg.Log.Debug), nil
}

func newFFmpeg(cfg *config.Config, log logger.Logger) (ffmpeg.FFmpeg, error) {
	return ffmpeg.New(ffmpeg.Config{
		Binary:       cfg.FFmpeg.Path,
		Timeout:      cfg.Timeout(),
		ProbeTimeout: cfg.ProbeTimeout(),
		LogLines:     cfg.FFmpeg.LogLines,
		Allow:        cfg.Input.Allow,
		Block:        cfg.Input.Block,
		Logger:       log,
	})
}

// serve starts the status API in the background and returns its shutdown
func serve(bind string, store task.Store, ff ffmpeg.FFmpeg, log logger.Logger, debug bool) func() {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := &http.Server{
		Addr:    bind,
		Handler: api.NewRouter(api.NewHandler(store, ff)),
	}
	go func() {
		log.Info("Status API listening on %s", bind)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Status API: %v", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn("Status API shutdown: %v", err)
		}
	}
}

func isInteractive() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
