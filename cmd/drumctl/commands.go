// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/drumarray/lib/geometry"
	"github.com/bureau-foundation/drumarray/lib/vdiskfuse"
)

// action runs a parsed command against the mounted disk.
type action func(ctx context.Context, env *environment) error

func parseRead(stderr io.Writer, args []string) (action, error) {
	var outputPath string
	flagSet := newCommandFlags("read", stderr)
	flagSet.StringVarP(&outputPath, "output", "o", "", "write to this file instead of stdout")
	positional, err := parseCommand(flagSet, args, 2)
	if err != nil {
		return nil, err
	}
	addr, length, err := parseSpan(positional[0], positional[1])
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, env *environment) error {
		data := make([]byte, length)
		if err := env.disk.Read(ctx, addr, data); err != nil {
			return fmt.Errorf("reading %d bytes at %d: %w", length, addr, err)
		}
		if outputPath == "" || outputPath == "-" {
			_, err := env.out.Write(data)
			return err
		}
		return os.WriteFile(outputPath, data, 0o644)
	}, nil
}

func parseWrite(stderr io.Writer, args []string) (action, error) {
	var inputPath string
	flagSet := newCommandFlags("write", stderr)
	flagSet.StringVarP(&inputPath, "input", "i", "", "read from this file instead of stdin")
	positional, err := parseCommand(flagSet, args, 1)
	if err != nil {
		return nil, err
	}
	addr, err := parseAddress(positional[0])
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, env *environment) error {
		var data []byte
		var err error
		if inputPath == "" || inputPath == "-" {
			// One byte past the disk is enough to know the input is too big.
			data, err = io.ReadAll(io.LimitReader(env.in, geometry.Capacity+1))
		} else {
			data, err = os.ReadFile(inputPath)
		}
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}
		if err := geometry.CheckRange(addr, len(data)); err != nil {
			return err
		}

		if err := env.disk.Write(ctx, addr, data); err != nil {
			return fmt.Errorf("writing %d bytes at %d: %w", len(data), addr, err)
		}
		env.logger.Info("wrote", "address", uint32(addr), "length", len(data))
		return nil
	}, nil
}

func parseDump(stderr io.Writer, args []string) (action, error) {
	var color string
	flagSet := newCommandFlags("dump", stderr)
	flagSet.StringVar(&color, "color", "auto", "colorize output: auto, always, or never")
	positional, err := parseCommand(flagSet, args, 2)
	if err != nil {
		return nil, err
	}
	addr, length, err := parseSpan(positional[0], positional[1])
	if err != nil {
		return nil, err
	}
	switch color {
	case "auto", "always", "never":
	default:
		return nil, fmt.Errorf("--color must be auto, always, or never, got %q", color)
	}

	return func(ctx context.Context, env *environment) error {
		styled := color == "always" || (color == "auto" && isTerminal(env.out))
		data := make([]byte, length)
		if err := env.disk.Read(ctx, addr, data); err != nil {
			return fmt.Errorf("reading %d bytes at %d: %w", length, addr, err)
		}
		return hexdump(env.out, int64(addr), data, styled)
	}, nil
}

func parseFuse(stderr io.Writer, args []string) (action, error) {
	var readOnly, allowOther bool
	flagSet := newCommandFlags("fuse", stderr)
	flagSet.BoolVar(&readOnly, "read-only", false, "reject writes")
	flagSet.BoolVar(&allowOther, "allow-other", false, "let other users access the mount (needs user_allow_other)")
	positional, err := parseCommand(flagSet, args, 1)
	if err != nil {
		return nil, err
	}
	mountpoint := positional[0]

	return func(ctx context.Context, env *environment) error {
		server, err := vdiskfuse.Mount(vdiskfuse.Options{
			Mountpoint: mountpoint,
			Disk:       env.disk,
			ReadOnly:   readOnly,
			AllowOther: allowOther,
			Logger:     env.logger,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(env.err, "disk mounted at %s; interrupt to unmount\n", mountpoint)

		<-ctx.Done()
		if err := server.Unmount(); err != nil {
			return fmt.Errorf("unmounting %s: %w", mountpoint, err)
		}
		return nil
	}, nil
}

func newCommandFlags(name string, stderr io.Writer) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("drumctl "+name, pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	return flagSet
}

// parseCommand parses a subcommand's flags and requires exactly count
// positional arguments.
func parseCommand(flagSet *pflag.FlagSet, args []string, count int) ([]string, error) {
	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	if flagSet.NArg() != count {
		return nil, fmt.Errorf("%s: expected %d arguments, got %d", flagSet.Name(), count, flagSet.NArg())
	}
	return flagSet.Args(), nil
}

// parseAddress accepts a byte address in any base strconv understands
// (so 0x prefixes work) or DRUM:BLOCK for the start of a block.
func parseAddress(text string) (geometry.Address, error) {
	if drumText, blockText, ok := strings.Cut(text, ":"); ok {
		drum, err := strconv.ParseUint(drumText, 0, 32)
		if err != nil {
			return 0, fmt.Errorf("address %q: bad drum: %w", text, err)
		}
		block, err := strconv.ParseUint(blockText, 0, 32)
		if err != nil {
			return 0, fmt.Errorf("address %q: bad block: %w", text, err)
		}
		location := geometry.Location{Drum: geometry.DrumID(drum), Block: geometry.BlockID(block)}
		if !location.Valid() {
			return 0, fmt.Errorf("address %q: %s is outside the array (%d drums of %d blocks)",
				text, location, geometry.DrumCount, geometry.BlocksPerDrum)
		}
		return location.Address(), nil
	}
	value, err := strconv.ParseUint(text, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("address %q: %w", text, err)
	}
	if value > geometry.Capacity {
		return 0, fmt.Errorf("address %q is past the end of the disk (%d bytes)", text, geometry.Capacity)
	}
	return geometry.Address(value), nil
}

// parseSpan parses an address and a length and checks that the range
// fits the disk.
func parseSpan(addrText, lengthText string) (geometry.Address, int, error) {
	addr, err := parseAddress(addrText)
	if err != nil {
		return 0, 0, err
	}
	length, err := strconv.ParseUint(lengthText, 0, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("length %q: %w", lengthText, err)
	}
	if err := geometry.CheckRange(addr, int(length)); err != nil {
		return 0, 0, err
	}
	return addr, int(length), nil
}

// splitPeer parses --peer.
func splitPeer(peer string) (string, int, error) {
	host, portText, err := net.SplitHostPort(peer)
	if err != nil {
		return "", 0, fmt.Errorf("--peer %q: %w", peer, err)
	}
	port, err := strconv.Atoi(portText)
	if err != nil {
		return "", 0, fmt.Errorf("--peer %q: bad port: %w", peer, err)
	}
	return host, port, nil
}
