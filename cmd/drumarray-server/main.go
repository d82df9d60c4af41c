// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/drumarray/lib/config"
	"github.com/bureau-foundation/drumarray/lib/drumserver"
	"github.com/bureau-foundation/drumarray/lib/drumstore"
	"github.com/bureau-foundation/drumarray/lib/logging"
	"github.com/bureau-foundation/drumarray/lib/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "drumarray-server: %v\n", err)
		os.Exit(1)
	}
}

// options is the command line after merging with the config file.
type options struct {
	config       *config.Config
	loadSnapshot string
	saveSnapshot string
	showVersion  bool
}

// parseFlags parses args and applies explicitly set flags over the
// loaded config. It returns pflag.ErrHelp for -h.
func parseFlags(args []string, output io.Writer) (*options, error) {
	var (
		configPath  string
		listen      string
		store       string
		compression string
		idleTimeout string
		logLevel    string
		logFormat   string
		result      options
	)

	flagSet := pflag.NewFlagSet("drumarray-server", pflag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.StringVar(&configPath, "config", "", "config file (default: $"+config.EnvironmentVariable+", else built-in defaults)")
	flagSet.StringVar(&listen, "listen", "", "TCP address to serve on")
	flagSet.StringVar(&store, "store", "", "backing file for the array (default: in memory)")
	flagSet.StringVar(&result.loadSnapshot, "load-snapshot", "", "load this snapshot into the array before serving")
	flagSet.StringVar(&result.saveSnapshot, "save-snapshot", "", "write a snapshot of the array here on shutdown")
	flagSet.StringVar(&compression, "snapshot-compression", "", "snapshot compression: none, lz4, or zstd")
	flagSet.StringVar(&idleTimeout, "idle-timeout", "", "close connections idle this long (0 disables)")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn, or error")
	flagSet.StringVar(&logFormat, "log-format", "", "auto, text, or json")
	flagSet.BoolVar(&result.showVersion, "version", false, "print version and exit")
	flagSet.Usage = func() {
		fmt.Fprintf(output, "Usage: drumarray-server [flags]\n\nFlags:\n")
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	if flagSet.NArg() > 0 {
		return nil, fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}
	if result.showVersion {
		return &result, nil
	}

	cfg, err := config.LoadOptional(configPath)
	if err != nil {
		return nil, err
	}
	overrides := []struct {
		flag  string
		field *string
		value string
	}{
		{"listen", &cfg.Server.Listen, listen},
		{"store", &cfg.Server.Store, store},
		{"snapshot-compression", &cfg.Server.SnapshotCompression, compression},
		{"idle-timeout", &cfg.Server.IdleTimeout, idleTimeout},
		{"log-level", &cfg.Logging.Level, logLevel},
		{"log-format", &cfg.Logging.Format, logFormat},
	}
	for _, override := range overrides {
		if flagSet.Changed(override.flag) {
			*override.field = override.value
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	result.config = cfg
	return &result, nil
}

func run(args []string) error {
	opts, err := parseFlags(args, os.Stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if opts.showVersion {
		fmt.Printf("drumarray-server %s\n", version.Full())
		return nil
	}

	cfg := opts.config
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}

	medium, err := openMedium(cfg.Server.Store)
	if err != nil {
		return err
	}
	defer medium.Close()

	if opts.loadSnapshot != "" {
		summary, err := loadSnapshot(opts.loadSnapshot, medium)
		if err != nil {
			return err
		}
		logger.Info("snapshot loaded",
			"path", opts.loadSnapshot,
			"drums", summary.Drums,
			"stored_bytes", summary.StoredBytes,
		)
	}

	// Validated already.
	compression, _ := drumstore.ParseCompression(cfg.Server.SnapshotCompression)

	server, err := drumserver.New(drumserver.Config{
		Medium:      medium,
		IdleTimeout: cfg.IdleTimeout(),
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Server.Listen, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("drumarray-server starting",
		"version", version.Info(),
		"listen", listener.Addr().String(),
		"store", storeName(medium),
	)
	if err := server.Serve(ctx, listener); err != nil {
		return err
	}

	if opts.saveSnapshot != "" {
		summary, err := saveSnapshot(opts.saveSnapshot, medium, compression)
		if err != nil {
			return err
		}
		logger.Info("snapshot saved",
			"path", opts.saveSnapshot,
			"raw_bytes", summary.RawBytes,
			"stored_bytes", summary.StoredBytes,
			"compressed_drums", summary.Compressed,
		)
	}
	return medium.Sync()
}

// storeName describes where medium keeps the array.
func storeName(medium drumstore.Medium) string {
	if file, ok := medium.(*drumstore.File); ok {
		return file.Path()
	}
	return "memory"
}
