package version

import "fmt"

// Set at build time via -ldflags "-X github.com/tiroq/voxbox/internal/version.Version=..."
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func Full(binary string) string {
	return fmt.Sprintf("%s %s, commit %s, built at %s", binary, Version, Commit, Date)
}
