package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// PassphraseEnv names the environment variable read for the age passphrase
// before falling back to an interactive prompt.
const PassphraseEnv = "FADE_PASSPHRASE"

// Environment overrides for the two locations everything else derives from.
const (
	ConfigPathEnv = "FADE_CONFIG_PATH"
	HomeEnv       = "FADE_HOME"
)

// GetDefaults resolves where fade keeps its files. The config file lives in
// ~/.config/fade.toml unless FADE_CONFIG_PATH says otherwise. The data
// directory (FADE_HOME, default ~/.local/share/fade) holds fade.db, the
// attachments/ blob store, the age keys under keys/ and the log/ directory;
// NewConfig fills in those paths from base_dir.
func GetDefaults() (map[string]string, error) {
	configPath, err := fromEnvOrHome(ConfigPathEnv, ".config", "fade.toml")
	if err != nil {
		return nil, err
	}
	baseDir, err := fromEnvOrHome(HomeEnv, ".local", "share", "fade")
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// fromEnvOrHome returns the value of env, or the path below the user's home
// directory when env is unset.
func fromEnvOrHome(env string, elem ...string) (string, error) {
	if path := os.Getenv(env); path != "" {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving %s: cannot determine home directory: %w", env, err)
	}
	return filepath.Join(append([]string{home}, elem...)...), nil
}
