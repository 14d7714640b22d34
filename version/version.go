// Package version holds build metadata stamped at link time via
// -ldflags "-X github.com/ghostline-ai/ghostline/version.GitRelease=...".
package version

import "runtime"

var (
	// GitRelease is the release tag or branch the binary was built from.
	GitRelease = "dev"

	// GitCommit is the short commit hash.
	GitCommit = "unknown"

	// GitCommitDate is the commit date of the build.
	GitCommitDate = "unknown"

	// GoInfo is the Go toolchain the binary was built with.
	GoInfo = runtime.Version()
)
