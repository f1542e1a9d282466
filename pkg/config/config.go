package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var configDir string
var configFilePath string
var installationPath string

// getConfigDir returns platform-specific config directory
func getConfigDir() (string, error) {
	if runtime.GOOS == "windows" {
		// Windows: %LOCALAPPDATA%\photostream\cli
		appData := os.Getenv("LOCALAPPDATA")
		if appData == "" {
			appData = os.Getenv("APPDATA")
		}
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = home
		}
		return filepath.Join(appData, "photostream", "cli"), nil
	}

	// Unix-like (macOS, Linux): ~/.config/photostream/cli
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "photostream", "cli"), nil
}

// getSystemConfigPaths returns platform-specific system config paths
func getSystemConfigPaths() []string {
	if runtime.GOOS == "windows" {
		return []string{filepath.Join(os.Getenv("ProgramFiles"), "Photostream", "cli", "config.toml")}
	}

	return []string{
		"/etc/photostream/cli/config.toml",
		"/usr/local/etc/photostream/cli/config.toml",
	}
}

// Init initializes the configuration
func Init(configPath string) error {
	var err error
	if configPath != "" {
		configDir = filepath.Dir(configPath)
		configFilePath = configPath
	} else {
		configDir, err = getConfigDir()
		if err != nil {
			return err
		}
		configFilePath = filepath.Join(configDir, "config.toml")
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return err
	}

	installationPath = filepath.Join(configDir, "installation_id")

	// A .env next to the config file feeds the PHOTOSTREAM_* overrides below.
	// Variables already present in the environment win.
	_ = godotenv.Load(filepath.Join(configDir, ".env"))

	viper.Reset()
	viper.SetConfigType("toml")
	viper.SetEnvPrefix("photostream")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// Load system config first (if exists) - serves as foundation
	for _, sysConfigPath := range getSystemConfigPaths() {
		if _, err := os.Stat(sysConfigPath); err == nil {
			viper.SetConfigFile(sysConfigPath)
			_ = viper.ReadInConfig()
			break
		}
	}

	// Load user config second (overrides system config)
	viper.SetConfigFile(configFilePath)
	if _, err := os.Stat(configFilePath); err == nil {
		if err := viper.MergeInConfig(); err != nil {
			return err
		}
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("api.base_url", "http://localhost:8081")
	viper.SetDefault("api.connect_timeout", 6)
	viper.SetDefault("api.timeout", 30)
	viper.SetDefault("api.page_size", 5)

	viper.SetDefault("socket.url", "ws://localhost:8081")
	viper.SetDefault("socket.reconnect_delay", 3000)
	viper.SetDefault("socket.reconnect_attempts", 5)

	viper.SetDefault("cache.db_path", filepath.Join(configDir, "photostream.db"))
	viper.SetDefault("cache.image_dir", filepath.Join(configDir, "images"))
	viper.SetDefault("cache.memory_ttl", 600)

	viper.SetDefault("progress.dismiss_delay", 300)

	viper.SetDefault("output.format", "text")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.file", filepath.Join(configDir, "photostream-cli.log"))
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

func isPathKey(key string) bool {
	switch key {
	case "log.file", "cache.db_path", "cache.image_dir":
		return true
	}
	return false
}

// GetString returns a string configuration value
func GetString(key string) string {
	value := viper.GetString(key)
	if isPathKey(key) {
		return expandPath(value)
	}
	return value
}

// GetInt returns an int configuration value
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool configuration value
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetSeconds reads an integer key holding seconds.
func GetSeconds(key string) time.Duration {
	return time.Duration(viper.GetInt(key)) * time.Second
}

// GetMillis reads an integer key holding milliseconds.
func GetMillis(key string) time.Duration {
	return time.Duration(viper.GetInt(key)) * time.Millisecond
}

// Set overrides a value for the current process only
func Set(key string, value interface{}) {
	viper.Set(key, value)
}

// SetString sets a string configuration value and persists it
func SetString(key string, value string) error {
	viper.Set(key, value)
	return viper.WriteConfigAs(configFilePath)
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() string {
	return configDir
}

// GetConfigFilePath returns the user config file path
func GetConfigFilePath() string {
	return configFilePath
}

// GetInstallationPath returns the path to the installation id file
func GetInstallationPath() string {
	return installationPath
}
