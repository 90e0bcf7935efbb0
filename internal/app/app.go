package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"fade-go/internal/blobstore"
	"fade-go/internal/config"
	"fade-go/internal/database"
	"fade-go/internal/encryption"
	"fade-go/internal/fade"
	"fade-go/internal/fs"
	"fade-go/internal/identity"
	"fade-go/internal/remote"
)

// ErrNoRemote is returned by sync operations when no remote is configured.
var ErrNoRemote = errors.New("no remote configured")

// ErrNoEncryption is returned by key operations when encryption is disabled.
var ErrNoEncryption = errors.New("encryption not configured")

// Options adjusts how a FadeApp is assembled. The zero value is what the CLI uses.
type Options struct {
	// Stderr mirrors log output. nil disables mirroring.
	Stderr io.Writer
	// Notifier receives fading reminders. nil prints them to Stderr.
	Notifier fade.Notifier
	Clock    fade.Clock
	IDs      fade.IDGenerator
}

// FadeApp is the application layer between the CLI and the fade core.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw paths, and manages the DB lifecycle on Close.
type FadeApp struct {
	cfg       *config.Config
	db        *database.SQLiteDatabase
	blobs     fade.BlobStore
	remote    fade.Remote
	encryptor fade.Encryptor
	identity  fade.Identity
	collector *fs.Collector

	settings     *fade.Settings
	bus          *fade.Bus
	store        *fade.Store
	restorer     *fade.Restorer
	achievements *fade.AchievementTracker
	monitor      *fade.Monitor
	reconciler   *fade.Reconciler
	scheduler    *fade.Scheduler

	logger     fade.Logger
	clock      fade.Clock
	session    *Session
	logFile    *os.File
	inMemoryDB bool
}

// NewFadeApp creates a fully wired FadeApp from the given config.
// command identifies the CLI command being run (e.g. "add", "sync").
// The caller must call Close when done.
func NewFadeApp(ctx context.Context, cfg *config.Config, command string, opts Options) (*FadeApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if opts.Clock == nil {
		opts.Clock = fade.RealClock{}
	}
	if opts.IDs == nil {
		opts.IDs = fade.UUIDGenerator{}
	}

	session := NewSession(command, opts.Clock.Now())
	slogger, logFile, err := newLogger(cfg.LogDir, session.ID, cfg.LogLevel, opts.Stderr)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	a := &FadeApp{
		cfg:       cfg,
		logger:    logger,
		clock:     opts.Clock,
		session:   session,
		logFile:   logFile,
		collector: fs.NewCollector(cfg.Attachments.Ignore),
	}
	if err := a.wire(ctx, opts); err != nil {
		a.closeResources()
		return nil, err
	}

	logger.Debug("session started", "command", command)
	return a, nil
}

func (a *FadeApp) wire(ctx context.Context, opts Options) error {
	cfg := a.cfg

	a.db = a.openDatabase()

	blobs, err := blobstore.NewBlobStoreFromConfig(cfg.Attachments)
	if err != nil {
		return fmt.Errorf("creating attachment store: %w", err)
	}
	a.blobs = blobs

	unit := fade.UnitDays
	if cfg.Decay.Unit != "" {
		if unit, err = fade.ParseDecayTimeUnit(cfg.Decay.Unit); err != nil {
			return err
		}
	}
	a.settings = fade.NewSettings(a.db, unit, cfg.Decay.Rate)
	if err := a.settings.Load(); err != nil {
		return err
	}

	a.bus = fade.NewBus(a.logger)
	a.store = fade.NewStore(a.db, a.blobs, a.settings, a.bus, a.logger, a.clock, opts.IDs)
	a.restorer = fade.NewRestorer(a.store, a.logger)
	a.achievements = fade.NewAchievementTracker(a.db, a.logger)
	a.achievements.Subscribe(a.bus)

	notifyEvery, err := config.ParseDuration(cfg.Risk.NotifyInterval, fade.DefaultNotifyInterval)
	if err != nil {
		return err
	}
	notifier := opts.Notifier
	if notifier == nil {
		w := opts.Stderr
		if w == nil {
			w = io.Discard
		}
		notifier = NewTerminalNotifier(w, a.logger)
	}
	a.monitor = fade.NewMonitor(a.store, a.settings, notifier, a.bus, a.logger, a.clock, fade.MonitorOptions{
		Threshold:      cfg.Risk.Threshold,
		NotifyMin:      cfg.Risk.NotifyMin,
		NotifyInterval: notifyEvery,
	})
	a.monitor.Subscribe(a.bus)

	if a.identity, err = identity.NewIdentityFromConfig(cfg.Identity, a.clock, a.logger); err != nil {
		return fmt.Errorf("creating identity: %w", err)
	}
	if a.encryptor, err = encryption.NewEncryptorFromConfig(cfg.Encryption); err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	if a.remote, err = remote.NewRemoteFromConfig(ctx, cfg.Remote); err != nil {
		return fmt.Errorf("creating remote: %w", err)
	}

	if a.remote != nil {
		callTimeout, err := config.ParseDuration(cfg.Sync.CallTimeout, fade.DefaultCallTimeout)
		if err != nil {
			return err
		}
		a.reconciler = fade.NewReconciler(a.store, a.remote, a.db, a.identity, a.logger, a.clock, fade.SyncOptions{
			CallTimeout: callTimeout,
			Encryptor:   a.encryptor,
		})
	}

	refreshEvery, err := config.ParseDuration(cfg.Sync.RefreshInterval, fade.DefaultRefreshInterval)
	if err != nil {
		return err
	}
	syncEvery, err := config.ParseDuration(cfg.Sync.Interval, fade.DefaultSyncInterval)
	if err != nil {
		return err
	}
	a.scheduler = fade.NewScheduler(a.monitor, a.reconciler, a.identity, a.logger, refreshEvery, syncEvery)
	return nil
}

// openDatabase opens the configured database. When it cannot be opened or its
// schema is unusable, the session continues on an in-memory database.
func (a *FadeApp) openDatabase() *database.SQLiteDatabase {
	db, err := database.NewDatabaseFromConfig(a.cfg.Database)
	if err == nil {
		if err = db.CheckMigrations(); err != nil {
			db.Close()
		}
	}
	if err == nil {
		return db
	}

	a.logger.Warn("local database unavailable, changes will not persist",
		"error", fmt.Errorf("%w: %w", fade.ErrStorageUnavailable, err))
	a.inMemoryDB = true
	mem, memErr := database.NewDatabaseFromConfig(config.DatabaseConfig{Type: "memory"})
	if memErr != nil {
		// An in-memory SQLite database only fails if the driver itself is broken.
		panic(fmt.Sprintf("opening in-memory database: %v", memErr))
	}
	return mem
}

func (a *FadeApp) Config() *config.Config                 { return a.cfg }
func (a *FadeApp) Store() *fade.Store                     { return a.store }
func (a *FadeApp) Restorer() *fade.Restorer               { return a.restorer }
func (a *FadeApp) Monitor() *fade.Monitor                 { return a.monitor }
func (a *FadeApp) Settings() *fade.Settings               { return a.settings }
func (a *FadeApp) Achievements() *fade.AchievementTracker { return a.achievements }
func (a *FadeApp) Bus() *fade.Bus                         { return a.bus }
func (a *FadeApp) Scheduler() *fade.Scheduler             { return a.scheduler }
func (a *FadeApp) Logger() fade.Logger                    { return a.logger }

// InMemoryFallback reports whether the session is running without persistent storage.
func (a *FadeApp) InMemoryFallback() bool { return a.inMemoryDB }

// HasRemote reports whether sync is configured.
func (a *FadeApp) HasRemote() bool { return a.reconciler != nil }

// AddEntry creates an entry, attaching every file found under attachPaths.
func (a *FadeApp) AddEntry(draft fade.Draft, attachPaths []string, recursive bool) (*fade.Entry, error) {
	files, err := a.collector.Collect(attachPaths, recursive)
	if err != nil {
		return nil, fmt.Errorf("collecting attachments: %w", err)
	}
	sources, closeAll, err := fs.OpenSources(files)
	if err != nil {
		return nil, err
	}
	defer closeAll()

	draft.Attachments = append(draft.Attachments, sources...)
	return a.store.Create(draft)
}

// AttachFiles attaches files to an existing entry. Returns the updated entry
// and the number of files attached.
func (a *FadeApp) AttachFiles(id string, paths []string, recursive bool) (*fade.Entry, int, error) {
	if _, err := a.store.Get(id); err != nil {
		return nil, 0, err
	}
	files, err := a.collector.Collect(paths, recursive)
	if err != nil {
		return nil, 0, fmt.Errorf("collecting attachments: %w", err)
	}
	sources, closeAll, err := fs.OpenSources(files)
	if err != nil {
		return nil, 0, err
	}
	defer closeAll()

	var entry *fade.Entry
	for i, src := range sources {
		entry, err = a.store.AddAttachment(id, src)
		if err != nil {
			return entry, i, fmt.Errorf("attaching %s: %w", src.Name, err)
		}
	}
	if entry == nil {
		entry, err = a.store.Get(id)
	}
	return entry, len(sources), err
}

// DetachAttachment removes one attachment from an entry.
func (a *FadeApp) DetachAttachment(id, attachmentID string) error {
	entry, err := a.store.Get(id)
	if err != nil {
		return err
	}
	if _, ok := entry.Attachments[attachmentID]; !ok {
		return fmt.Errorf("%w: attachment %s of %s", fade.ErrNotFound, attachmentID, id)
	}
	delete(entry.Attachments, attachmentID)
	return a.store.Update(entry)
}

// SaveAttachment writes one attachment of an entry into destDir and returns
// the written path. Nested attachment names recreate their directories.
func (a *FadeApp) SaveAttachment(id, attachmentID, destDir string) (string, error) {
	entry, err := a.store.Get(id)
	if err != nil {
		return "", err
	}
	ref, ok := entry.Attachments[attachmentID]
	if !ok {
		return "", fmt.Errorf("%w: attachment %s of %s", fade.ErrNotFound, attachmentID, id)
	}
	name := filepath.FromSlash(ref.Name)
	if !filepath.IsLocal(name) {
		name = filepath.Base(name)
	}
	dest := filepath.Join(destDir, name)

	rc, err := a.store.OpenAttachment(id, attachmentID)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", fmt.Errorf("creating directory: %w", err)
	}
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", dest, err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		os.Remove(dest)
		return "", fmt.Errorf("%w: writing %s: %w", fade.ErrAttachmentIO, dest, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing %s: %w", dest, err)
	}
	return dest, nil
}

// EncryptionEnabled reports whether attachment blobs are encrypted before upload.
func (a *FadeApp) EncryptionEnabled() bool { return a.encryptor != nil }

// SetupKeys generates the encryption key pair protected by passphrase.
func (a *FadeApp) SetupKeys(passphrase string) error {
	if a.encryptor == nil {
		return ErrNoEncryption
	}
	return a.encryptor.Setup(passphrase)
}

// UnlockKeys unlocks the private key so encrypted downloads can be decrypted
// for the rest of the session.
func (a *FadeApp) UnlockKeys(passphrase string) error {
	if a.encryptor == nil {
		return ErrNoEncryption
	}
	dc, err := a.encryptor.Unlock(passphrase)
	if err != nil {
		return err
	}
	if a.reconciler != nil {
		a.reconciler.SetDecryptor(dc)
	}
	return nil
}

// Sync runs one sync pass.
func (a *FadeApp) Sync(ctx context.Context) (*fade.SyncReport, error) {
	if a.reconciler == nil {
		return nil, ErrNoRemote
	}
	if err := a.reconciler.ValidateRemote(ctx); err != nil {
		return nil, err
	}
	return a.reconciler.Sync(ctx)
}

// Watch runs the refresh and sync loop until ctx is done.
func (a *FadeApp) Watch(ctx context.Context) error {
	err := a.scheduler.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// History returns the most recent sync runs.
func (a *FadeApp) History(limit int) ([]*fade.SyncRun, error) {
	return a.db.ListSyncRuns(limit)
}

// BackupDatabase writes a consistent snapshot of the local database to destPath.
func (a *FadeApp) BackupDatabase(destPath string) error {
	if a.inMemoryDB {
		return fmt.Errorf("%w: nothing to back up", fade.ErrStorageUnavailable)
	}
	abs, err := filepath.Abs(destPath)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}
	return a.db.BackupTo(abs)
}

// FailSession marks the current command as failed in the session log.
func (a *FadeApp) FailSession() {
	a.session.Fail()
}

// Close logs the session outcome and closes all resources.
func (a *FadeApp) Close() error {
	a.logger.Debug("session finished",
		"command", a.session.Command,
		"status", a.session.Status,
		"elapsed", a.session.Elapsed(a.clock.Now()).String(),
	)
	return a.closeResources()
}

func (a *FadeApp) closeResources() error {
	var errs []error
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing database: %w", err))
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return errors.Join(errs...)
}
