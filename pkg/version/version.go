// Package version holds agentforge build information, set at build time via
// ldflags by goreleaser.
package version

import "fmt"

// Example: go build -ldflags "-X agentforge/pkg/version.Version=v1.2.3".
//
//nolint:gochecknoglobals // These must be package-level vars for ldflags injection.
var (
	// Version is the semantic version, or "dev" for development builds.
	Version = "dev"

	// Commit is the git commit SHA of the build.
	Commit = "none"

	// Date is the build date in ISO format.
	Date = "unknown"
)

// String renders the build information on three lines.
func String() string {
	return fmt.Sprintf("agentforge %s\n  commit: %s\n  built:  %s\n", Version, Commit, Date)
}
