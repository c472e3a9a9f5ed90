// Package version holds build-time version information.
package version

// Set by ldflags at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
)
