// Package version exposes build-time version information.
package version

import "fmt"

// Set via -ldflags at build time; "dev" for local builds.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Short returns the bare version string.
func Short() string {
	return Version
}

// Info returns a human-readable version line.
func Info() string {
	return fmt.Sprintf("devscope %s (commit %s, built %s)", Version, Commit, Date)
}
