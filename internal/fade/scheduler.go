package fade

import (
	"context"
	"errors"
	"sync"
	"time"
)

const (
	DefaultRefreshInterval = 15 * time.Second
	DefaultSyncInterval    = 5 * time.Minute
)

// Scheduler drives the periodic refresh (list plus risk check) and background
// sync. Refresh and sync run on separate goroutines so a slow sync pass never
// holds back a risk check. Errors are logged and the work is simply attempted
// again on the next tick.
type Scheduler struct {
	monitor      *Monitor
	reconciler   *Reconciler
	identity     Identity
	logger       Logger
	refreshEvery time.Duration
	syncEvery    time.Duration
	trigger      chan struct{}

	mu       sync.Mutex
	signedIn bool
}

// NewScheduler creates a Scheduler. reconciler may be nil when no remote is
// configured; identity may be nil when sign-in changes need not be watched.
func NewScheduler(monitor *Monitor, reconciler *Reconciler, identity Identity, logger Logger, refreshEvery, syncEvery time.Duration) *Scheduler {
	if refreshEvery <= 0 {
		refreshEvery = DefaultRefreshInterval
	}
	if syncEvery <= 0 {
		syncEvery = DefaultSyncInterval
	}
	return &Scheduler{
		monitor:      monitor,
		reconciler:   reconciler,
		identity:     identity,
		logger:       logger,
		refreshEvery: refreshEvery,
		syncEvery:    syncEvery,
		trigger:      make(chan struct{}, 1),
	}
}

// TriggerSync requests a sync outside the regular interval. Refresh calls it
// when a user signs in. It never blocks; repeated triggers collapse into one.
func (s *Scheduler) TriggerSync() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run refreshes and syncs once immediately, then keeps doing so on every tick,
// on store changes and on sync triggers until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.signedIn = s.currentlySignedIn()
	s.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.syncLoop(ctx)
	}()
	defer wg.Wait()

	s.Refresh()

	refresh := time.NewTicker(s.refreshEvery)
	defer refresh.Stop()

	for {
		select {
		case <-refresh.C:
			s.Refresh()
		case <-s.monitor.Changes():
			s.Refresh()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Scheduler) syncLoop(ctx context.Context) {
	s.Sync(ctx)

	ticker := time.NewTicker(s.syncEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sync(ctx)
		case <-s.trigger:
			s.Sync(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Refresh runs one risk check and triggers a sync if a user signed in since
// the previous refresh.
func (s *Scheduler) Refresh() {
	if s.observeSignIn() {
		s.logger.Info("signed in, syncing")
		s.TriggerSync()
	}

	result, err := s.monitor.Check()
	if err != nil {
		s.logger.Error("refresh failed", "error", err)
		return
	}
	if result.Changed {
		s.logger.Info("at-risk entries changed", "count", len(result.AtRisk))
	}
}

// observeSignIn records the current sign-in state and reports whether it
// changed from signed out to signed in.
func (s *Scheduler) observeSignIn() bool {
	now := s.currentlySignedIn()

	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.signedIn
	s.signedIn = now
	return now && !prev
}

func (s *Scheduler) currentlySignedIn() bool {
	if s.identity == nil {
		return false
	}
	id, ok := s.identity.CurrentUserID()
	return ok && id != ""
}

// Sync runs one sync pass if a remote is configured.
func (s *Scheduler) Sync(ctx context.Context) {
	if s.reconciler == nil || ctx.Err() != nil {
		return
	}
	report, err := s.reconciler.Sync(ctx)
	switch {
	case errors.Is(err, ErrSignedOut):
		s.logger.Debug("sync skipped, signed out")
	case errors.Is(err, context.Canceled):
		s.logger.Info("sync abandoned")
	case err != nil:
		s.logger.Warn("sync failed, will retry", "error", err)
	case report.Failed > 0:
		s.logger.Warn("sync incomplete, will retry", "failed", report.Failed)
	}
}
