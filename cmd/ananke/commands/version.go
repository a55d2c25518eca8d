package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// BuildInfo holds version information stamped in at build time.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// DefaultBuildInfo is used when no build-time values were injected.
var DefaultBuildInfo = BuildInfo{
	Version: "dev",
	Commit:  "none",
	Date:    "unknown",
}

func newVersionCmd() *cobra.Command {
	buildInfo := DefaultBuildInfo

	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ananke %s (commit: %s, built at: %s)\n", buildInfo.Version, buildInfo.Commit, buildInfo.Date)
		},
	}
}
