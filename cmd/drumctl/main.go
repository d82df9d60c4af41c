// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/drumarray/lib/config"
	"github.com/bureau-foundation/drumarray/lib/logging"
	"github.com/bureau-foundation/drumarray/lib/session"
	"github.com/bureau-foundation/drumarray/lib/vdisk"
	"github.com/bureau-foundation/drumarray/lib/version"
	"github.com/bureau-foundation/drumarray/lib/wire"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], stdio{in: os.Stdin, out: os.Stdout, err: os.Stderr})
	stop()
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "drumctl: %v\n", err)
		os.Exit(1)
	}
}

// stdio is the process's standard streams, replaceable in tests.
type stdio struct {
	in  io.Reader
	out io.Writer
	err io.Writer
}

// environment is what a command runs with.
type environment struct {
	stdio
	config *config.Config
	logger *slog.Logger
	disk   *vdisk.Synchronized
	client *session.Client
}

// command is one drumctl subcommand. parse checks its arguments
// before anything touches the network.
type command struct {
	usage   string
	summary string
	parse   func(stderr io.Writer, args []string) (action, error)
}

var commands = map[string]command{
	"read":  {"read ADDR LENGTH [-o FILE]", "copy bytes out of the disk", parseRead},
	"write": {"write ADDR [-i FILE]", "copy bytes into the disk", parseWrite},
	"dump":  {"dump ADDR LENGTH [--color WHEN]", "print a hex dump", parseDump},
	"fuse":  {"fuse MOUNTPOINT [--read-only]", "expose the disk as a file until interrupted", parseFuse},
}

func run(ctx context.Context, args []string, streams stdio) error {
	var (
		configPath  string
		peer        string
		cacheLines  int
		dialTimeout string
		logLevel    string
		logFormat   string
		showStats   bool
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("drumctl", pflag.ContinueOnError)
	flagSet.SetOutput(streams.err)
	flagSet.SetInterspersed(false)
	flagSet.StringVar(&configPath, "config", "", "config file (default: $"+config.EnvironmentVariable+", else built-in defaults)")
	flagSet.StringVar(&peer, "peer", "", "drum array peer as host:port")
	flagSet.IntVar(&cacheLines, "cache-lines", 0, "block cache lines (0 disables caching)")
	flagSet.StringVar(&dialTimeout, "dial-timeout", "", "connection timeout for MOUNT")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn, or error")
	flagSet.StringVar(&logFormat, "log-format", "", "auto, text, or json")
	flagSet.BoolVar(&showStats, "stats", false, "print cache and round-trip counters to stderr")
	flagSet.BoolVar(&showVersion, "version", false, "print version and exit")
	flagSet.Usage = func() { printUsage(streams.err, flagSet) }

	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if showVersion {
		fmt.Fprintf(streams.out, "drumctl %s\n", version.Info())
		return nil
	}
	if flagSet.NArg() == 0 {
		printUsage(streams.err, flagSet)
		return errors.New("no command given")
	}
	name := flagSet.Arg(0)
	selected, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q", name)
	}
	runCommand, err := selected.parse(streams.err, flagSet.Args()[1:])
	if err != nil {
		return err
	}

	cfg, err := config.LoadOptional(configPath)
	if err != nil {
		return err
	}
	if flagSet.Changed("peer") {
		host, port, err := splitPeer(peer)
		if err != nil {
			return err
		}
		cfg.Peer.Host, cfg.Peer.Port = host, port
	}
	if flagSet.Changed("cache-lines") {
		cfg.Cache.Lines = cacheLines
	}
	if flagSet.Changed("dial-timeout") {
		cfg.Peer.DialTimeout = dialTimeout
	}
	if flagSet.Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if flagSet.Changed("log-format") {
		cfg.Logging.Format = logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.NewWriter(streams.err, cfg.Logging.Level, cfg.Logging.Format, isTerminal(streams.err))
	if err != nil {
		return err
	}

	client := session.New(session.Config{
		Address: cfg.PeerAddress(),
		Dialer:  &session.TCPDialer{Timeout: cfg.DialTimeout()},
		Logger:  logger,
	})
	disk, err := vdisk.New(vdisk.Options{Client: client, Logger: logger})
	if err != nil {
		return err
	}
	env := &environment{
		stdio:  streams,
		config: cfg,
		logger: logger.With("command", name),
		disk:   vdisk.NewSynchronized(ctx, disk),
		client: client,
	}

	if err := env.disk.Mount(ctx, cfg.Cache.Lines); err != nil {
		return fmt.Errorf("mounting %s: %w", client.Address(), err)
	}
	commandErr := runCommand(ctx, env)
	if showStats {
		printStats(streams.err, env.client, env.disk.Stats())
	}

	// Unmount even when ctx has ended so the peer sees a clean close.
	unmountCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := env.disk.Unmount(unmountCtx); err != nil {
		return errors.Join(commandErr, fmt.Errorf("unmounting: %w", err))
	}
	return commandErr
}

func printUsage(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, "Usage: drumctl [flags] COMMAND [args]\n\nCommands:\n")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-34s %s\n", commands[name].usage, commands[name].summary)
	}
	fmt.Fprintf(w, "\nFlags:\n")
	flagSet.SetOutput(w)
	flagSet.PrintDefaults()
}

func printStats(w io.Writer, client *session.Client, stats vdisk.Stats) {
	fmt.Fprintf(w, "peer: %s (mounted=%t, connected=%t)\n", client.Address(), stats.Mounted, client.Connected())
	cache := stats.Cache
	fmt.Fprintf(w, "cache: %d lookups, %d hits, %d misses, %d inserts, %d evictions\n",
		cache.Lookups(), cache.Hits, cache.Misses, cache.Inserts, cache.Evictions)
	if stats.RoundTrips == nil {
		return
	}
	var parts []string
	for op := wire.OpMount; op <= wire.OpDiskWrite; op++ {
		if count := stats.RoundTrips[op]; count > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", op, count))
		}
	}
	fmt.Fprintf(w, "round trips: %s\n", strings.Join(parts, " "))
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}
