package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dnorman/unbase-sub001/config"
)

var initConfigPath string

// InitFilesCmd writes a default config.toml, named after the teacher's own
// InitFilesCmd (cmd/tendermint/commands/init.go isn't in the retrieved set,
// but the command name and single-file-write shape are the well-known
// tendermint convention this module otherwise follows).
var InitFilesCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.DefaultConfig()
		if err := config.WriteDefaultConfigFile(initConfigPath, cfg); err != nil {
			return err
		}
		fmt.Println("wrote", initConfigPath)
		return nil
	},
}

func init() {
	InitFilesCmd.Flags().StringVar(&initConfigPath, "config", "config.toml", "path to write the default config file")
}
