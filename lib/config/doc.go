// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads configuration for the drumarray binaries.
//
// Configuration comes from a single file named by the --config flag
// (via [LoadFile]) or the DRUMARRAY_CONFIG environment variable (via
// [Load]). There is no search path and no per-key environment
// override; flags given on the command line override file values in
// the binaries themselves.
//
// Files are YAML. A file ending in .json or .jsonc is accepted too:
// comments and trailing commas are stripped and the result, being
// JSON, is parsed by the same YAML decoder, so both formats share one
// set of field names.
//
// ${HOME} and ${VAR:-default} references in path fields are expanded
// after loading.
package config
