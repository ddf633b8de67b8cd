// Package commands assembles the unbase CLI's subcommands, in the same
// cmd/<binary>/commands layout the teacher uses for cmd/tendermint.
package commands

import (
	"github.com/spf13/cobra"
)

// RootCmd is the base command; main.main adds subcommands to it and calls
// Execute.
var RootCmd = &cobra.Command{
	Use:   "unbase",
	Short: "A peer-to-peer eventually-consistent object graph node",
}
