// Package version reports build information injected at link time.
package version

import (
	"fmt"
	"runtime"
)

// Set with -ldflags "-X github.com/rshade/scoutcache/pkg/version.version=...".
//
//nolint:gochecknoglobals // Link-time build metadata.
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// Name is the binary name.
const Name = "scoutcache"

// GetVersion returns the semantic version of the build.
func GetVersion() string {
	return version
}

// GetGitCommit returns the commit the binary was built from.
func GetGitCommit() string {
	return gitCommit
}

// GetBuildDate returns the build timestamp.
func GetBuildDate() string {
	return buildDate
}

// String returns a one-line description of the build.
func String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s, %s/%s)",
		Name, GetVersion(), GetGitCommit(), GetBuildDate(), runtime.GOOS, runtime.GOARCH)
}
