package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		BaseDir:  "/home/user/.local/share/fade",
		LogDir:   "/home/user/.local/share/fade/log",
		LogLevel: "debug",
		Decay:    DecayConfig{Unit: "hours", Rate: 10},
		Risk:     RiskConfig{Threshold: 80, NotifyMin: 40, NotifyInterval: "2h"},
		Database: DatabaseConfig{Type: "sqlite", DataDir: "/home/user/.local/share/fade/db"},
		Attachments: AttachmentsConfig{
			Type:   "filesystem",
			Dir:    "/home/user/.local/share/fade/attachments",
			Ignore: []string{"*.log", ".git"},
		},
		Remote: RemoteConfig{
			Type:     "s3",
			Name:     "cloud",
			S3Bucket: "memories",
			S3Prefix: "fade",
			S3Region: "eu-central-1",
		},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  "/home/user/.local/share/fade/keys/fade.pub",
			PrivateKeyPath: "/home/user/.local/share/fade/keys/fade.key",
		},
		Identity: IdentityConfig{Type: "token", TokenPath: "/tmp/token", Secret: "s3cret"},
		Server: ServerConfig{
			Bind:    "0.0.0.0",
			Port:    9000,
			Storage: RemoteConfig{Type: "memory"},
		},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.BaseDir != original.BaseDir {
		t.Errorf("BaseDir = %q, want %q", got.BaseDir, original.BaseDir)
	}
	if got.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", got.LogLevel, "debug")
	}
	if got.Decay != original.Decay {
		t.Errorf("Decay = %+v, want %+v", got.Decay, original.Decay)
	}
	if got.Risk != original.Risk {
		t.Errorf("Risk = %+v, want %+v", got.Risk, original.Risk)
	}
	if got.Remote.Type != "s3" || got.Remote.S3Bucket != "memories" {
		t.Errorf("Remote = %+v, want s3 bucket memories", got.Remote)
	}
	if got.Encryption.PrivateKeyPath != original.Encryption.PrivateKeyPath {
		t.Errorf("Encryption.PrivateKeyPath = %q, want %q", got.Encryption.PrivateKeyPath, original.Encryption.PrivateKeyPath)
	}
	if got.Identity != original.Identity {
		t.Errorf("Identity = %+v, want %+v", got.Identity, original.Identity)
	}
	if got.Server.Port != 9000 || got.Server.Storage.Type != "memory" {
		t.Errorf("Server = %+v, want port 9000 with memory storage", got.Server)
	}
	if len(got.Attachments.Ignore) != 2 {
		t.Fatalf("len(Attachments.Ignore) = %d, want 2", len(got.Attachments.Ignore))
	}
}

func TestManager_Read_KeepsDefaults(t *testing.T) {
	m := &Manager{}

	t.Run("missing tables", func(t *testing.T) {
		got, err := m.Read(strings.NewReader("log_level = \"debug\"\n"))
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		want := RiskConfig{Threshold: DefaultRiskThreshold, NotifyMin: DefaultNotifyMin, NotifyInterval: DefaultNotifyInterval}
		if got.Risk != want {
			t.Errorf("Risk = %+v, want %+v", got.Risk, want)
		}
		if got.Decay.Unit != DefaultDecayUnit || got.Decay.Rate != DefaultDecayRate {
			t.Errorf("Decay = %+v, want defaults", got.Decay)
		}
		if got.Remote.Type != "none" {
			t.Errorf("Remote.Type = %q, want none", got.Remote.Type)
		}
		if err := got.Validate(); err != nil {
			t.Errorf("Validate() error = %v", err)
		}
	})

	t.Run("explicit zero threshold", func(t *testing.T) {
		got, err := m.Read(strings.NewReader("[risk]\nthreshold = 0\n"))
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if got.Risk.Threshold != 0 {
			t.Errorf("Risk.Threshold = %d, want 0", got.Risk.Threshold)
		}
		if got.Risk.NotifyMin != DefaultNotifyMin {
			t.Errorf("Risk.NotifyMin = %d, want %d", got.Risk.NotifyMin, DefaultNotifyMin)
		}
	})
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/data/fade")

	if cfg.BaseDir != "/data/fade" {
		t.Errorf("BaseDir = %q, want %q", cfg.BaseDir, "/data/fade")
	}
	if cfg.LogDir != "/data/fade/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/fade/log")
	}
	if cfg.Decay.Unit != "days" || cfg.Decay.Rate != 5 {
		t.Errorf("Decay = %+v, want days at 5", cfg.Decay)
	}
	if cfg.Risk.Threshold != 75 {
		t.Errorf("Risk.Threshold = %d, want 75", cfg.Risk.Threshold)
	}
	if cfg.Attachments.Dir != "/data/fade/attachments" {
		t.Errorf("Attachments.Dir = %q, want %q", cfg.Attachments.Dir, "/data/fade/attachments")
	}
	if cfg.Encryption.PublicKeyPath != "/data/fade/keys/fade.pub" {
		t.Errorf("Encryption.PublicKeyPath = %q, want %q", cfg.Encryption.PublicKeyPath, "/data/fade/keys/fade.pub")
	}
	if cfg.Remote.Type != "none" {
		t.Errorf("Remote.Type = %q, want none", cfg.Remote.Type)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaults error = %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown decay unit", func(c *Config) { c.Decay.Unit = "weeks" }, "decay.unit"},
		{"negative rate", func(c *Config) { c.Decay.Rate = -1 }, "decay.rate"},
		{"threshold above 100", func(c *Config) { c.Risk.Threshold = 101 }, "risk.threshold"},
		{"notify min below 0", func(c *Config) { c.Risk.NotifyMin = -5 }, "risk.notify_min"},
		{"bad interval", func(c *Config) { c.Sync.Interval = "soon" }, "sync.interval"},
		{"negative timeout", func(c *Config) { c.Sync.CallTimeout = "-1s" }, "sync.call_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig(t.TempDir())
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	got, err := ParseDuration("", 15*time.Second)
	if err != nil || got != 15*time.Second {
		t.Errorf("ParseDuration(\"\") = %v, %v; want 15s, nil", got, err)
	}

	got, err = ParseDuration("90m", 0)
	if err != nil || got != 90*time.Minute {
		t.Errorf("ParseDuration(\"90m\") = %v, %v; want 1h30m, nil", got, err)
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "fade.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "fade.toml")
		cfg := NewConfig(dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		err := Init(path, cfg)
		if err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "fade.toml")
		cfg := NewConfig(dir)
		cfg.Database = DatabaseConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.Database.Type != "memory" {
			t.Errorf("Database.Type = %q, want %q", got.Database.Type, "memory")
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		_, err := ReadFromFile("/nonexistent/path/fade.toml")
		if err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
