// Package version records the build metadata baked into the covmerge binary.
package version

import "fmt"

// Populated at build time via -ldflags.
var (
	Version = "dev"
	Commit  = "<unknown>"
	Date    = "<unknown>"
)

// String renders the full version line shown by the version command.
func String() string {
	return fmt.Sprintf("covmerge %s (commit: %s, built: %s)", Version, Commit, Date)
}
