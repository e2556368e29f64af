package config

import (
	"os"
	"path/filepath"
)

const (
	// EnvConfigPath is the environment variable for explicit config path
	EnvConfigPath = "SCOPESELECT_CONFIG"
	// ConfigFileName is the config file looked up in the working directory
	ConfigFileName = "scopeselect.yaml"
	// AppDirName is the directory name under XDG config and data homes
	AppDirName = "scopeselect"
)

// FindPath searches for a config file in priority order:
// 1. $SCOPESELECT_CONFIG
// 2. ./scopeselect.yaml
// 3. $XDG_CONFIG_HOME/scopeselect/config.yaml
// 4. ~/.config/scopeselect/config.yaml
//
// Returns empty string if no config file found
func FindPath() string {
	if path := os.Getenv(EnvConfigPath); path != "" && fileExists(path) {
		return path
	}

	if fileExists(ConfigFileName) {
		if abs, err := filepath.Abs(ConfigFileName); err == nil {
			return abs
		}
		return ConfigFileName
	}

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		if path := filepath.Join(xdg, AppDirName, "config.yaml"); fileExists(path) {
			return path
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		if path := filepath.Join(home, ".config", AppDirName, "config.yaml"); fileExists(path) {
			return path
		}
	}

	return ""
}

func defaultFirmwareDir() string {
	if dir := dataDir(); dir != "" {
		return filepath.Join(dir, "firmware")
	}
	return "firmware"
}

func defaultHistoryPath() string {
	if dir := dataDir(); dir != "" {
		return filepath.Join(dir, "history.db")
	}
	return "scopeselect-history.db"
}

// dataDir is $XDG_DATA_HOME/scopeselect or ~/.local/share/scopeselect.
func dataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, AppDirName)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", AppDirName)
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
