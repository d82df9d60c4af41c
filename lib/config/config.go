// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the config file for Load.
const EnvironmentVariable = "DRUMARRAY_CONFIG"

// Config is the full configuration shared by drumctl and
// drumarray-server.
type Config struct {
	Peer    PeerConfig    `yaml:"peer"`
	Cache   CacheConfig   `yaml:"cache"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

// PeerConfig locates the drum array peer the driver connects to.
type PeerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// DialTimeout bounds connection establishment on MOUNT, as a Go
	// duration string. Default: 5s
	DialTimeout string `yaml:"dial_timeout"`
}

// CacheConfig configures the driver's block cache.
type CacheConfig struct {
	// Lines is the number of blocks cached between mount and
	// unmount. Zero disables caching. Default: 64
	Lines int `yaml:"lines"`
}

// ServerConfig configures the reference peer.
type ServerConfig struct {
	// Listen is the TCP address to serve on. Default: 127.0.0.1:19876
	Listen string `yaml:"listen"`

	// Store is the array file. Empty keeps the array in memory.
	Store string `yaml:"store"`

	// SnapshotCompression is none, lz4, or zstd. Default: zstd
	SnapshotCompression string `yaml:"snapshot_compression"`

	// IdleTimeout closes connections that send nothing for this long,
	// as a Go duration string. Empty or "0" disables it.
	IdleTimeout string `yaml:"idle_timeout"`
}

// LoggingConfig configures the process logger (see lib/logging).
type LoggingConfig struct {
	// Level is debug, info, warn, or error. Default: info
	Level string `yaml:"level"`

	// Format is auto, text, or json. Default: auto
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Peer: PeerConfig{
			Host:        "127.0.0.1",
			Port:        19876,
			DialTimeout: "5s",
		},
		Cache: CacheConfig{
			Lines: 64,
		},
		Server: ServerConfig{
			Listen:              "127.0.0.1:19876",
			SnapshotCompression: "zstd",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load loads the file named by DRUMARRAY_CONFIG. It fails if the
// variable is unset.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your config file, or use --config", EnvironmentVariable)
	}
	return LoadFile(path)
}

// LoadFile loads path over the defaults, expands path variables, and
// validates the result.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.expandVariables()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOptional loads path if it is non-empty, else DRUMARRAY_CONFIG if
// that is set, else returns Default().
func LoadOptional(path string) (*Config, error) {
	if path != "" {
		return LoadFile(path)
	}
	if os.Getenv(EnvironmentVariable) != "" {
		return Load()
	}
	return Default(), nil
}

// loadFile merges one file into c.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// expandVariables expands ${VAR} and ${VAR:-default} in path fields.
func (c *Config) expandVariables() {
	c.Server.Store = expandVars(c.Server.Store)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// PeerAddress returns the peer as host:port.
func (c *Config) PeerAddress() string {
	return net.JoinHostPort(c.Peer.Host, strconv.Itoa(c.Peer.Port))
}

// DialTimeout returns the parsed peer dial timeout.
func (c *Config) DialTimeout() time.Duration {
	timeout, _ := parseDuration(c.Peer.DialTimeout)
	return timeout
}

// IdleTimeout returns the parsed server idle timeout.
func (c *Config) IdleTimeout() time.Duration {
	timeout, _ := parseDuration(c.Server.IdleTimeout)
	return timeout
}

// parseDuration treats an empty string as zero.
func parseDuration(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	return time.ParseDuration(value)
}

var (
	logLevels          = []string{"debug", "info", "warn", "error"}
	logFormats         = []string{"auto", "text", "json"}
	snapshotAlgorithms = []string{"none", "lz4", "zstd"}
)

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Peer.Host == "" {
		errs = append(errs, errors.New("peer.host is required"))
	}
	if c.Peer.Port < 1 || c.Peer.Port > 65535 {
		errs = append(errs, fmt.Errorf("peer.port must be 1-65535, got %d", c.Peer.Port))
	}
	if timeout, err := parseDuration(c.Peer.DialTimeout); err != nil || timeout < 0 {
		errs = append(errs, fmt.Errorf("peer.dial_timeout %q is not a non-negative duration", c.Peer.DialTimeout))
	}
	if c.Cache.Lines < 0 {
		errs = append(errs, fmt.Errorf("cache.lines must not be negative, got %d", c.Cache.Lines))
	}
	if _, _, err := net.SplitHostPort(c.Server.Listen); err != nil {
		errs = append(errs, fmt.Errorf("server.listen %q: %w", c.Server.Listen, err))
	}
	if !slices.Contains(snapshotAlgorithms, c.Server.SnapshotCompression) {
		errs = append(errs, fmt.Errorf("server.snapshot_compression must be one of: %v", snapshotAlgorithms))
	}
	if timeout, err := parseDuration(c.Server.IdleTimeout); err != nil || timeout < 0 {
		errs = append(errs, fmt.Errorf("server.idle_timeout %q is not a non-negative duration", c.Server.IdleTimeout))
	}
	if !slices.Contains(logLevels, c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level must be one of: %v", logLevels))
	}
	if !slices.Contains(logFormats, c.Logging.Format) {
		errs = append(errs, fmt.Errorf("logging.format must be one of: %v", logFormats))
	}

	return errors.Join(errs...)
}
