// Package buildinfo holds the version stamped into rbl binaries at link time:
//
//	go build -ldflags "-X github.com/lc/rbl/internal/buildinfo.Version=v0.3.0 -X github.com/lc/rbl/internal/buildinfo.Commit=$(git rev-parse --short HEAD)"
package buildinfo

import "fmt"

// Version is set at link-time with -ldflags.
var Version = "v0.1.0-dev"

// Commit is set at link-time with -ldflags.
var Commit = "unknown"

// String returns the version and commit in one line.
func String() string {
	return fmt.Sprintf("%s (%s)", Version, Commit)
}
