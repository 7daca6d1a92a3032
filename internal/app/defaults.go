package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths are the default locations nifty reads and writes.
type Paths struct {
	ConfigPath string
	BaseDir    string
	LogDir     string
}

// GetDefaults resolves Paths from the environment, falling back to XDG-style
// locations under the home directory:
//   - NIFTY_CONFIG_PATH: config file (default ~/.config/nifty.toml)
//   - NIFTY_HOME: data directory (default ~/.local/share/nifty)
func GetDefaults() (*Paths, error) {
	var home string
	lookup := func(env string, rel ...string) (string, error) {
		if v := os.Getenv(env); v != "" {
			return v, nil
		}
		if home == "" {
			h, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("cannot determine home directory: %w", err)
			}
			home = h
		}
		return filepath.Join(append([]string{home}, rel...)...), nil
	}

	configPath, err := lookup("NIFTY_CONFIG_PATH", ".config", "nifty.toml")
	if err != nil {
		return nil, err
	}
	baseDir, err := lookup("NIFTY_HOME", ".local", "share", "nifty")
	if err != nil {
		return nil, err
	}

	return &Paths{
		ConfigPath: configPath,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
	}, nil
}
