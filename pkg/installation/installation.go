package installation

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/zfogg/photostream/cli/pkg/config"
)

// Load reads the installation id from disk. It returns "" when none exists yet.
func Load() (string, error) {
	return LoadFrom(config.GetInstallationPath())
}

// LoadOrCreate returns the stored installation id, creating one on first use
func LoadOrCreate() (string, error) {
	return LoadOrCreateAt(config.GetInstallationPath())
}

// Reset discards the stored id and writes a fresh one
func Reset() (string, error) {
	path := config.GetInstallationPath()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return "", err
	}
	return LoadOrCreateAt(path)
}

// LoadFrom reads an installation id from path
func LoadFrom(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}

	id := strings.TrimSpace(string(data))
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("corrupt installation id in %s: %w", path, err)
	}
	return id, nil
}

// LoadOrCreateAt is LoadOrCreate for an explicit path
func LoadOrCreateAt(path string) (string, error) {
	id, err := LoadFrom(path)
	if err != nil || id != "" {
		return id, err
	}

	id = uuid.NewString()
	// Write with restricted permissions (owner read/write only)
	if err := os.WriteFile(path, []byte(id+"\n"), 0600); err != nil {
		return "", err
	}
	return id, nil
}
