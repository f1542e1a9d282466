package service

import (
	"fmt"

	"github.com/zfogg/photostream/cli/pkg/client"
	"github.com/zfogg/photostream/cli/pkg/config"
	"github.com/zfogg/photostream/cli/pkg/formatter"
	"github.com/zfogg/photostream/cli/pkg/installation"
	"github.com/zfogg/photostream/cli/pkg/output"
	"github.com/zfogg/photostream/cli/pkg/prompter"
)

// InstallationService shows and rotates the installation id
type InstallationService struct{}

// NewInstallationService creates an installation service
func NewInstallationService() *InstallationService {
	return &InstallationService{}
}

// Show prints the installation id, creating it on first use
func (is *InstallationService) Show() error {
	id, err := installation.LoadOrCreate()
	if err != nil {
		return fmt.Errorf("failed to load installation id: %w", err)
	}
	return output.PrintRecord("", map[string]interface{}{
		"installation_id": id,
		"path":            config.GetInstallationPath(),
	})
}

// Reset replaces the installation id. Photos and comments created under the
// old id can no longer be deleted from this machine.
func (is *InstallationService) Reset(yes bool) error {
	if !yes {
		ok, err := prompter.PromptConfirm("Reset the installation id? Existing photos will no longer be deletable")
		if err != nil {
			return err
		}
		if !ok {
			formatter.PrintInfo("Cancelled")
			return nil
		}
	}

	id, err := installation.Reset()
	if err != nil {
		return fmt.Errorf("failed to reset installation id: %w", err)
	}
	client.Reset()
	formatter.PrintSuccess("New installation id: %s", id)
	return nil
}
