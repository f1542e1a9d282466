package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/zfogg/photostream/cli/pkg/config"
	clierrors "github.com/zfogg/photostream/cli/pkg/errors"
	"github.com/zfogg/photostream/cli/pkg/logger"
	"github.com/zfogg/photostream/cli/pkg/metrics"
	"github.com/zfogg/photostream/cli/pkg/output"
	"github.com/zfogg/photostream/cli/pkg/photostream"
	"github.com/zfogg/photostream/cli/pkg/service"
)

var (
	verbose    bool
	configPath string
	outputFmt  string
)

var rootCmd = &cobra.Command{
	Use:   "photostream-cli",
	Short: "Photostream CLI - browse and share photos from the terminal",
	Long: `Photostream CLI is a command-line client for a photostream server.
List and search the stream, upload and delete photos, vote, comment and
watch new activity arrive in real time.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Init(configPath); err != nil {
			return fmt.Errorf("error initializing config: %w", err)
		}

		logger.Init(verbose)
		metrics.Initialize()

		if cmd.Flags().Changed("output") {
			if !output.ValidateOutputFormat(outputFmt) {
				return clierrors.ValidationError("output", "must be one of text, json, table")
			}
			config.Set("output.format", outputFmt)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Close()
	},
}

// Execute runs the command tree and exits non-zero on failure
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprint(os.Stderr, clierrors.FormatError(err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: ~/.config/photostream/cli/config.toml)")
	rootCmd.PersistentFlags().StringVar(&outputFmt, "output", "text", "Output format: text, json, table")

	rootCmd.AddCommand(photosCmd)
	rootCmd.AddCommand(commentsCmd)
	rootCmd.AddCommand(voteCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(installationCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(completionCmd)
}

// withClient binds the shared client for the duration of fn
func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *photostream.Client) error) error {
	ctx := cmd.Context()
	c, err := service.Bind(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := service.Unbind(); err != nil {
			logger.Warn("Failed to release client", "error", err)
		}
	}()
	return fn(ctx, c)
}

func parseID(name, value string) (int, error) {
	id, err := strconv.Atoi(value)
	if err != nil || id < 1 {
		return 0, clierrors.ValidationError(name, fmt.Sprintf("%q is not a valid id", value))
	}
	return id, nil
}
