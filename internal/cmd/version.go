package cmd

import (
	"github.com/spf13/cobra"
	"github.com/zfogg/photostream/cli/pkg/output"
)

// Version is overridden at build time with -ldflags "-X ...cmd.Version=..."
var Version = "0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		output.Printf("Photostream CLI v%s\n", Version)
	},
}
