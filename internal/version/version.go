// Package version holds build identity, overridden at link time:
//
//	go build -ldflags "-X github.com/wardenlabs/hostwarden/internal/version.Version=v0.3.0"
package version

var (
	// Version is the semantic version of the running binary.
	Version = "dev"

	// Commit is the git revision the binary was built from.
	Commit = "unknown"

	// BuildTime is the UTC build timestamp.
	BuildTime = "unknown"
)

// Short returns the bare version string for response headers.
func Short() string {
	return Version
}

// Map returns all build identity fields for health endpoints.
func Map() map[string]string {
	return map[string]string{
		"version":    Version,
		"commit":     Commit,
		"build_time": BuildTime,
	}
}
