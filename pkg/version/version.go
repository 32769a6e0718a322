// Package version provides version information for boardlink.
package version

// These variables are set via ldflags during build
//
//nolint:gochecknoglobals // These are intentionally global for ldflags injection
var (
	version = "0.1.0"
	buildID = ""
)

// GetVersion returns the current version
func GetVersion() string {
	return version
}

// UserAgent returns the value sent on agent-facing HTTP requests, so agent
// logs can attribute traffic to a specific library build.
func UserAgent() string {
	if buildID == "" {
		return "boardlink/" + version
	}

	return "boardlink/" + version + " (build " + buildID + ")"
}
