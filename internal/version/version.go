// Package version exposes build metadata stamped via -ldflags at release
// time. Development builds report "dev".
package version

import (
	"fmt"
	"runtime"
)

// Set at build time:
//
//	go build -ldflags "-X .../internal/version.Version=v0.3.0 \
//	  -X .../internal/version.Commit=abc1234 -X .../internal/version.Date=2026-08-01"
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Short returns the bare version string, e.g. "v0.3.0" or "dev".
func Short() string {
	return Version
}

// Info returns a single-line human-readable build description.
func Info() string {
	return fmt.Sprintf("rocket-telemetry-ai %s (commit %s, built %s, %s)",
		Version, Commit, Date, runtime.Version())
}

// Map returns build metadata as key/value pairs for JSON responses.
func Map() map[string]string {
	return map[string]string{
		"version": Version,
		"commit":  Commit,
		"date":    Date,
		"go":      runtime.Version(),
	}
}
