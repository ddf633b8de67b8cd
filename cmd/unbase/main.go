package main

import (
	"fmt"
	"os"

	"github.com/dnorman/unbase-sub001/cmd/unbase/commands"
)

func main() {
	commands.RootCmd.AddCommand(
		commands.VersionCmd,
		commands.InitFilesCmd,
		commands.RunCmd,
	)

	if err := commands.RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
