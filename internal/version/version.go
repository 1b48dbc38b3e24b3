package version

import "fmt"

var (
	// Version is the station software version, set with -ldflags at build time.
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// Banner returns the short identifier drawn on the overlay footer.
func Banner() string {
	return fmt.Sprintf("anacase@%s", Version)
}

// String returns the full version line logged at startup.
func String() string {
	return fmt.Sprintf("anacase %s (%s, built %s)", Version, GitSHA, BuildTime)
}
