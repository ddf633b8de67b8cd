package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set by the release build; "dev" covers unreleased builds.
var Version = "dev"

// VersionCmd prints the running build's version string.
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version info",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(Version)
	},
}
