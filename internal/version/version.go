package version

import "fmt"

// Set via ldflags at build time, e.g.
// -X github.com/allaspectsdev/chatproxy/internal/version.Version=v1.2.0
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// String returns the human-readable build description printed by the CLI.
func String() string {
	return fmt.Sprintf("chatproxy %s (commit: %s, built: %s)", Version, GitCommit, BuildDate)
}

// UserAgent identifies the proxy on outbound calls.
func UserAgent() string {
	return "chatproxy/" + Version
}
