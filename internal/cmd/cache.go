package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/zfogg/photostream/cli/pkg/photostream"
	"github.com/zfogg/photostream/cli/pkg/service"
)

var clearCacheYes bool

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the local cache",
}

var cacheInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show cache usage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *photostream.Client) error {
			return service.NewCacheService(c).Info()
		})
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop cached pages, comments, votes and images",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *photostream.Client) error {
			return service.NewCacheService(c).Clear(clearCacheYes)
		})
	},
}

func init() {
	cacheClearCmd.Flags().BoolVarP(&clearCacheYes, "yes", "y", false, "Skip confirmation")

	cacheCmd.AddCommand(cacheInfoCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}
