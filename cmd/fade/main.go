package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"fade-go/internal/app"
	"fade-go/internal/config"
	"fade-go/internal/fade"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file named by the defaults.
func loadConfig() (*config.Config, string, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, "", fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, "", fmt.Errorf("reading config (run `fade config init` first): %w", err)
	}
	return cfg, defaults["config_path"], nil
}

// newApp reads the config and creates a FadeApp. The caller must defer closeApp.
// command identifies the CLI command being run (e.g. "add", "sync").
func newApp(cmd *cobra.Command, command string) (*app.FadeApp, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}

	var stderr io.Writer
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		stderr = cmd.ErrOrStderr()
	}

	a, err := app.NewFadeApp(cmd.Context(), cfg, command, app.Options{Stderr: stderr})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	if a.InMemoryFallback() {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning: local database unavailable, changes in this session will not be saved")
	}
	return a, nil
}

// closeApp records the command outcome and closes the app.
func closeApp(a *app.FadeApp, err *error) {
	if *err != nil {
		a.FailSession()
	}
	a.Close()
}

// resolveID expands a unique id prefix into a full entry id.
func resolveID(a *app.FadeApp, prefix string) (string, error) {
	entries, err := a.Store().List()
	if err != nil {
		return "", err
	}
	var matches []string
	for _, e := range entries {
		if e.ID == prefix {
			return e.ID, nil
		}
		if strings.HasPrefix(e.ID, prefix) {
			matches = append(matches, e.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", fade.ErrNotFound, prefix)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("id prefix %q is ambiguous (%d entries)", prefix, len(matches))
	}
}

// unlockIfNeeded unlocks the private key for sessions that download encrypted attachments.
func unlockIfNeeded(cmd *cobra.Command, a *app.FadeApp) error {
	if !a.HasRemote() || !a.EncryptionEnabled() {
		return nil
	}
	passphrase, err := app.ReadPassphrase("Passphrase: ", os.Stdin, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if err := a.UnlockKeys(passphrase); err != nil {
		return fmt.Errorf("unlocking keys: %w", err)
	}
	return nil
}

var rootCmd = &cobra.Command{
	Use:           "fade",
	Short:         "Memories that fade unless you revisit them",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", path)
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Decay:       %d%% per %s\n", cfg.Decay.Rate, strings.TrimSuffix(cfg.Decay.Unit, "s"))
		fmt.Printf("At risk:     %d%% (notify from %d%%, every %s)\n", cfg.Risk.Threshold, cfg.Risk.NotifyMin, cfg.Risk.NotifyInterval)
		fmt.Printf("Database:    %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Attachments: %s %s\n", cfg.Attachments.Type, cfg.Attachments.Dir)
		fmt.Printf("Remote:      %s %s\n", cfg.Remote.Type, cfg.Remote.Name)
		fmt.Printf("Encryption:  %s\n", cfg.Encryption.Type)
		fmt.Printf("Identity:    %s\n", cfg.Identity.Type)
		return nil
	},
}

// settings command
var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage decay settings",
}

var settingsUnitCmd = &cobra.Command{
	Use:       "unit [minutes|hours|days]",
	Short:     "Show or change the decay time unit",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"minutes", "hours", "days"},
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "settings-unit")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		if len(args) == 0 {
			fmt.Println(a.Settings().DecayTimeUnit())
			return nil
		}
		unit, err := fade.ParseDecayTimeUnit(args[0])
		if err != nil {
			return err
		}
		if err := a.Settings().SetDecayTimeUnit(unit); err != nil {
			return err
		}
		fmt.Printf("Decay time unit set to %s\n", unit)
		return nil
	},
}

// backup-db command
var backupDBCmd = &cobra.Command{
	Use:   "backup-db PATH",
	Short: "Write a snapshot of the local database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "backup-db")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		if err := a.BackupDatabase(args[0]); err != nil {
			return fmt.Errorf("backing up database: %w", err)
		}
		fmt.Printf("Database written to %s\n", args[0])
		return nil
	},
}

func isNotFound(err error) bool {
	return errors.Is(err, fade.ErrNotFound)
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Mirror log output to stderr")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	settingsCmd.AddCommand(settingsUnitCmd)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(backupDBCmd)

	initEntryCommands()
	initSyncCommands()
}
