package cmd

import (
	"github.com/spf13/cobra"
	"github.com/zfogg/photostream/cli/pkg/config"
	"github.com/zfogg/photostream/cli/pkg/output"
)

// shownSettings are the keys printed by 'config show'
var shownSettings = []string{
	"api.base_url",
	"api.connect_timeout",
	"api.timeout",
	"api.page_size",
	"socket.url",
	"socket.reconnect_delay",
	"socket.reconnect_attempts",
	"cache.db_path",
	"cache.image_dir",
	"cache.memory_ttl",
	"progress.dismiss_delay",
	"output.format",
	"log.level",
	"log.file",
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var showConfigCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		record := map[string]interface{}{
			"config_dir":  config.GetConfigDir(),
			"config_file": config.GetConfigFilePath(),
		}
		for _, key := range shownSettings {
			record[key] = config.GetString(key)
		}
		return output.PrintRecord("Configuration", record)
	},
}

var setConfigCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Persist a setting in the user config file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetString(args[0], args[1]); err != nil {
			return err
		}
		output.PrintSuccess("%s = %s", args[0], args[1])
		return nil
	},
}

func init() {
	configCmd.AddCommand(showConfigCmd)
	configCmd.AddCommand(setConfigCmd)
}
