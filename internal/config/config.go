package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for fade.
type Config struct {
	BaseDir     string            `toml:"base_dir"`
	LogDir      string            `toml:"log_dir"`
	LogLevel    string            `toml:"log_level"` // "debug", "info" (default), "warn", "error"
	Decay       DecayConfig       `toml:"decay"`
	Risk        RiskConfig        `toml:"risk"`
	Database    DatabaseConfig    `toml:"database"`
	Attachments AttachmentsConfig `toml:"attachments"`
	Remote      RemoteConfig      `toml:"remote"`
	Sync        SyncConfig        `toml:"sync"`
	Encryption  EncryptionConfig  `toml:"encryption"`
	Identity    IdentityConfig    `toml:"identity"`
	Server      ServerConfig      `toml:"server"`
}

// DecayConfig sets the defaults used until the user changes the unit.
type DecayConfig struct {
	Unit string `toml:"unit"` // "minutes", "hours" or "days"
	Rate int    `toml:"rate"` // percent per unit
}

// RiskConfig controls the at-risk threshold and notification throttling.
type RiskConfig struct {
	Threshold      int    `toml:"threshold"`
	NotifyMin      int    `toml:"notify_min"`
	NotifyInterval string `toml:"notify_interval"`
}

// DatabaseConfig represents configuration for the local entry database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// AttachmentsConfig represents configuration for the local attachment blob store.
type AttachmentsConfig struct {
	Type   string   `toml:"type"`          // "filesystem" or "memory"
	Dir    string   `toml:"dir,omitempty"` // only used for type=filesystem
	Ignore []string `toml:"ignore"`        // patterns skipped when attaching a directory
}

// RemoteConfig represents configuration for the sync remote.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type RemoteConfig struct {
	Type string `toml:"type"` // "none", "memory", "filesystem", "s3" or "http"
	Name string `toml:"name"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket    string `toml:"s3_bucket,omitempty"`
	S3Prefix    string `toml:"s3_prefix,omitempty"`
	S3Region    string `toml:"s3_region,omitempty"`
	S3Endpoint  string `toml:"s3_endpoint,omitempty"`
	S3AccessKey string `toml:"s3_access_key,omitempty"`
	S3SecretKey string `toml:"s3_secret_key,omitempty"`

	// HTTP-specific fields (only used when Type == "http")
	HTTPURL   string `toml:"http_url,omitempty"`
	TokenPath string `toml:"token_path,omitempty"`
}

// SyncConfig holds scheduler intervals as Go duration strings.
type SyncConfig struct {
	Interval        string `toml:"interval"`
	RefreshInterval string `toml:"refresh_interval"`
	CallTimeout     string `toml:"call_timeout"`
}

// EncryptionConfig holds paths to the age key pair used for attachment encryption.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "none" (default), "age" or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// IdentityConfig selects how the signed-in user is determined.
type IdentityConfig struct {
	Type      string `toml:"type"`                 // "static" or "token"
	UserID    string `toml:"user_id,omitempty"`    // only used for type=static
	TokenPath string `toml:"token_path,omitempty"` // only used for type=token
	Secret    string `toml:"secret,omitempty"`     // HMAC secret for type=token
}

// ServerConfig configures `fade serve`.
type ServerConfig struct {
	Bind    string       `toml:"bind"`
	Port    int          `toml:"port"`
	Secret  string       `toml:"secret"`
	Storage RemoteConfig `toml:"storage"`
}

// Default values written by NewConfig.
const (
	DefaultDecayUnit       = "days"
	DefaultDecayRate       = 5
	DefaultRiskThreshold   = 75
	DefaultNotifyMin       = 50
	DefaultNotifyInterval  = "1h"
	DefaultSyncInterval    = "5m"
	DefaultRefreshInterval = "15s"
	DefaultCallTimeout     = "30s"
	DefaultServerPort      = 8420
)

// NewConfig creates a new Config rooted at baseDir with default values.
func NewConfig(baseDir string) *Config {
	cfg := defaults()
	cfg.BaseDir = baseDir
	cfg.LogDir = filepath.Join(baseDir, "log")
	cfg.Database = DatabaseConfig{
		Type:    "sqlite",
		DataDir: baseDir,
	}
	cfg.Attachments.Dir = filepath.Join(baseDir, "attachments")
	cfg.Encryption.PublicKeyPath = filepath.Join(baseDir, "keys", "fade.pub")
	cfg.Encryption.PrivateKeyPath = filepath.Join(baseDir, "keys", "fade.key")
	cfg.Identity.UserID = "local"
	cfg.Server.Storage = RemoteConfig{
		Type:   "filesystem",
		FSRoot: filepath.Join(baseDir, "server"),
	}
	return cfg
}

// defaults returns the values that do not depend on a base directory. Read
// decodes on top of them, so a file may omit whole tables.
func defaults() *Config {
	return &Config{
		LogLevel: "info",
		Decay: DecayConfig{
			Unit: DefaultDecayUnit,
			Rate: DefaultDecayRate,
		},
		Risk: RiskConfig{
			Threshold:      DefaultRiskThreshold,
			NotifyMin:      DefaultNotifyMin,
			NotifyInterval: DefaultNotifyInterval,
		},
		Attachments: AttachmentsConfig{
			Type:   "filesystem",
			Ignore: []string{".DS_Store", "Thumbs.db", "*.tmp"},
		},
		Remote: RemoteConfig{Type: "none"},
		Sync: SyncConfig{
			Interval:        DefaultSyncInterval,
			RefreshInterval: DefaultRefreshInterval,
			CallTimeout:     DefaultCallTimeout,
		},
		Encryption: EncryptionConfig{Type: "none"},
		Identity:   IdentityConfig{Type: "static"},
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: DefaultServerPort,
		},
	}
}

// Validate checks values that would otherwise fail late, at first use.
func (c *Config) Validate() error {
	var errs []error

	switch c.Decay.Unit {
	case "", "minutes", "hours", "days":
	default:
		errs = append(errs, fmt.Errorf("decay.unit: unknown unit %q", c.Decay.Unit))
	}
	if c.Decay.Rate < 0 {
		errs = append(errs, fmt.Errorf("decay.rate: must not be negative, got %d", c.Decay.Rate))
	}
	if c.Risk.Threshold < 0 || c.Risk.Threshold > 100 {
		errs = append(errs, fmt.Errorf("risk.threshold: must be within 0..100, got %d", c.Risk.Threshold))
	}
	if c.Risk.NotifyMin < 0 || c.Risk.NotifyMin > 100 {
		errs = append(errs, fmt.Errorf("risk.notify_min: must be within 0..100, got %d", c.Risk.NotifyMin))
	}

	durations := map[string]string{
		"risk.notify_interval":  c.Risk.NotifyInterval,
		"sync.interval":         c.Sync.Interval,
		"sync.refresh_interval": c.Sync.RefreshInterval,
		"sync.call_timeout":     c.Sync.CallTimeout,
	}
	for name, value := range durations {
		if _, err := ParseDuration(value, 0); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// ParseDuration parses a Go duration string, returning def for an empty value.
func ParseDuration(value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", value, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid duration %q: must not be negative", value)
	}
	return d, nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader. Keys missing from the input
// keep their default values.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	cfg := defaults()
	if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
