package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"fade-go/internal/app"
	"fade-go/internal/fade"
	"fade-go/internal/identity"

	"github.com/spf13/cobra"
)

// sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync pass with the remote",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "sync")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		if err := unlockIfNeeded(cmd, a); err != nil {
			return err
		}

		report, err := a.Sync(cmd.Context())
		if errors.Is(err, fade.ErrSignedOut) {
			return fmt.Errorf("not signed in: sync needs an identity (see `fade token issue`)")
		}
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}

		fmt.Printf("Uploaded %d, downloaded %d, deleted %d local and %d remote\n",
			report.Uploaded, report.Downloaded, report.DeletedLocal, report.DeletedRemote)
		fmt.Printf("Attachments: %d uploaded, %d already present, %d downloaded\n",
			report.BlobsUploaded, report.BlobsSkipped, report.BlobsDownloaded)
		if report.Failed > 0 {
			fmt.Printf("%d entr%s failed and will be retried\n", report.Failed, plural(report.Failed, "y", "ies"))
		}
		return nil
	},
}

// watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Refresh decay, send reminders and sync in the background until interrupted",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := app.NewFadeApp(cmd.Context(), cfg, "watch", app.Options{Stderr: cmd.ErrOrStderr()})
		if err != nil {
			return fmt.Errorf("initializing app: %w", err)
		}
		defer closeApp(a, &err)

		if err := unlockIfNeeded(cmd, a); err != nil {
			return err
		}
		return a.Watch(cmd.Context())
	},
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP sync service",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if port, _ := cmd.Flags().GetInt("port"); port != 0 {
			cfg.Server.Port = port
		}

		s, err := app.NewSyncServer(cmd.Context(), cfg, version, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer s.Close()

		return s.Run(cmd.Context())
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View sync history",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "history")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		runs, err := a.History(limit)
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No sync runs recorded.")
			return nil
		}

		for _, run := range runs {
			duration := ""
			if run.FinishedAt != nil {
				duration = run.FinishedAt.Sub(run.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %s  %-8s  up:%d down:%d del:%d/%d  %s  %s\n",
				run.ID,
				run.StartedAt.Local().Format("2006-01-02 15:04:05"),
				run.Status,
				run.Uploaded,
				run.Downloaded,
				run.DeletedLocal,
				run.DeletedRemote,
				duration,
				run.Error,
			)
		}
		return nil
	},
}

// token command
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage sync tokens",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue USER_ID",
	Short: "Mint a signed token for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ttl, _ := cmd.Flags().GetDuration("ttl")
		out, _ := cmd.Flags().GetString("out")
		forServer, _ := cmd.Flags().GetBool("server")

		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		secret := cfg.Identity.Secret
		if forServer || secret == "" {
			secret = cfg.Server.Secret
		}
		if secret == "" {
			return fmt.Errorf("no secret configured: set identity.secret or server.secret")
		}

		token, err := identity.Issue(args[0], []byte(secret), ttl, time.Now())
		if err != nil {
			return err
		}

		if out == "" {
			fmt.Println(token)
			return nil
		}
		if err := os.WriteFile(out, []byte(token+"\n"), 0600); err != nil {
			return fmt.Errorf("writing token: %w", err)
		}
		fmt.Printf("Token for %s written to %s (expires %s)\n", args[0], out, time.Now().Add(ttl).Format(time.DateOnly))
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage attachment encryption keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		a, err := newApp(cmd, "keys-init")
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		if !a.EncryptionEnabled() {
			return fmt.Errorf("%w: set encryption.type = \"age\" first", app.ErrNoEncryption)
		}

		passphrase, err := app.ReadPassphrase("New passphrase: ", os.Stdin, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		if os.Getenv(app.PassphraseEnv) == "" && app.IsInteractive(os.Stdin) {
			confirm, err := app.ReadPassphrase("Repeat passphrase: ", os.Stdin, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if confirm != passphrase {
				return fmt.Errorf("passphrases do not match")
			}
		}

		if err := a.SetupKeys(passphrase); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}
		fmt.Printf("Keys written to %s and %s\n", a.Config().Encryption.PublicKeyPath, a.Config().Encryption.PrivateKeyPath)
		return nil
	},
}

func initSyncCommands() {
	serveCmd.Flags().IntP("port", "p", 0, "Listen port (overrides server.port)")
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to show")
	tokenIssueCmd.Flags().Duration("ttl", 365*24*time.Hour, "Token lifetime")
	tokenIssueCmd.Flags().StringP("out", "o", "", "Write the token to this file instead of stdout")
	tokenIssueCmd.Flags().Bool("server", false, "Sign with server.secret instead of identity.secret")

	tokenCmd.AddCommand(tokenIssueCmd)
	keysCmd.AddCommand(keysInitCmd)

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(keysCmd)
}
