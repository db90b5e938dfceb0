package version

import "fmt"

var (
	// Version is the prf-explore release, set with -ldflags at build time
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String returns the version line printed by -version and stored with runs.
func String() string {
	return fmt.Sprintf("prf-explore %s (%s, built %s)", Version, GitSHA, BuildTime)
}
