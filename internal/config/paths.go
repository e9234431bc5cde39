package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// ConfigDir is the directory name used under the user config location.
const ConfigDir = "drivectl"

// getConfigDir returns the platform-appropriate config directory.
// - Windows: %APPDATA%\drivectl
// - Unix: ~/.config/drivectl (XDG standard)
func getConfigDir() string {
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, ConfigDir)
		}
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, ConfigDir)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", ConfigDir)
	}
	return ""
}

// GetDefaultConfigPath returns the default config file path.
func GetDefaultConfigPath() string {
	dir := getConfigDir()
	if dir == "" {
		return "config.ini"
	}
	return filepath.Join(dir, "config.ini")
}

// GetDefaultTokenPath returns the default token file path.
// This is where `login` saves the bearer token.
func GetDefaultTokenPath() string {
	dir := getConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "token")
}

// GetDefaultProfilePath returns where the last known user profile is cached.
func GetDefaultProfilePath() string {
	dir := getConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "profile.json")
}

// LogDirectory returns the directory used for rotated log files.
func LogDirectory() string {
	dir := getConfigDir()
	if dir == "" {
		return filepath.Join(os.TempDir(), "drivectl-logs")
	}
	return filepath.Join(dir, "logs")
}

// EnsureConfigDir creates the config directory if it doesn't exist.
func EnsureConfigDir() error {
	dir := getConfigDir()
	if dir == "" {
		return fmt.Errorf("could not determine config directory")
	}
	return os.MkdirAll(dir, 0700)
}
