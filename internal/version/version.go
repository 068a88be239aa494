// Package version provides build-time version information.
package version

import "fmt"

// Set at build time via -ldflags:
//
//	go build -ldflags "-X github.com/otiai10/slackverify/internal/version.CommitHash=abc1234"
var (
	Version    = "dev"
	CommitHash = "unknown"
)

// String formats the version for the CLI.
func String() string {
	return fmt.Sprintf("slackverify %s (%s)", Version, CommitHash)
}
