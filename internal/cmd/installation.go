package cmd

import (
	"github.com/spf13/cobra"
	"github.com/zfogg/photostream/cli/pkg/service"
)

var resetInstallationYes bool

var installationCmd = &cobra.Command{
	Use:   "installation",
	Short: "Show or reset this machine's installation id",
}

var showInstallationCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the installation id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return service.NewInstallationService().Show()
	},
}

var resetInstallationCmd = &cobra.Command{
	Use:   "reset",
	Short: "Generate a new installation id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return service.NewInstallationService().Reset(resetInstallationYes)
	},
}

func init() {
	resetInstallationCmd.Flags().BoolVarP(&resetInstallationYes, "yes", "y", false, "Skip confirmation")

	installationCmd.AddCommand(showInstallationCmd)
	installationCmd.AddCommand(resetInstallationCmd)
}
