package cmd

import (
	"fmt"
	"github.com/spf13/cobra"
	"runtime"
)

// Injected at build time via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "guardex %s (%s, %s)\n", Version, GitCommit, runtime.Version())
	},
}
