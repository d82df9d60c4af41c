// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set via -ldflags, for example:
//
//	go build -ldflags "-X github.com/bureau-foundation/drumarray/lib/version.GitCommit=$(git rev-parse --short HEAD)"
var (
	GitCommit = "unknown"
	GitDirty  = "false"
	BuildTime = "unknown"
	Version   = "0.1.0-dev"
)

// Info returns the one-line string printed by --version.
func Info() string {
	commit, dirty, built := GitCommit, GitDirty == "true", BuildTime
	if commit == "unknown" {
		commit, dirty, built = fromBuildInfo(commit, dirty, built)
	}
	suffix := ""
	if dirty {
		suffix = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", Version, commit, suffix, built)
}

// Full returns Info plus the Go version and platform.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// fromBuildInfo fills in VCS details the toolchain stamped into the
// binary, keeping the given values where it has none.
func fromBuildInfo(commit string, dirty bool, built string) (string, bool, string) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return commit, dirty, built
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			commit = setting.Value
			if len(commit) > 7 {
				commit = commit[:7]
			}
		case "vcs.modified":
			dirty = setting.Value == "true"
		case "vcs.time":
			built = setting.Value
		}
	}
	return commit, dirty, built
}
