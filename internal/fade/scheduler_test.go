package fade_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fade-go/internal/fade"
	"fade-go/internal/testutil"
)

// runScheduler starts s.Run in the background. The returned stop function
// cancels it and checks that Run exits with context.Canceled.
func runScheduler(t *testing.T, s *fade.Scheduler) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	return func() {
		t.Helper()
		cancel()
		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("Run() error = %v, want context.Canceled", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Run() did not return after cancel")
		}
	}
}

// eventually polls cond until it holds or five seconds pass.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestScheduler_RunStopsOnCancel(t *testing.T) {
	d := newDevice(t, nil)
	notifier := testutil.NewRecordingNotifier()
	d.create(t, fade.Draft{Title: "Fading"})
	d.clock.Advance(16 * day)

	s := fade.NewScheduler(newMonitor(d, notifier), nil, nil, fade.NewNopLogger(), 0, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if len(notifier.Sent()) != 1 {
		t.Errorf("notifications = %d, want 1 from the initial refresh", len(notifier.Sent()))
	}
}

func TestScheduler_SyncsInBackground(t *testing.T) {
	d := newDevice(t, nil)
	rem := testutil.NewTestRemote()
	ident := testutil.NewStaticIdentity("alice")
	r := fade.NewReconciler(d.store, rem, d.db, ident, fade.NewNopLogger(), d.clock, fade.SyncOptions{})
	s := fade.NewScheduler(newMonitor(d, testutil.NewRecordingNotifier()), r, ident, fade.NewNopLogger(), time.Hour, time.Hour)

	d.create(t, fade.Draft{Title: "Picnic"})

	stop := runScheduler(t, s)
	eventually(t, "initial sync", func() bool {
		records, err := rem.ListEntries(context.Background(), "alice")
		return err == nil && len(records) == 1
	})

	s.TriggerSync()
	s.TriggerSync()
	stop()
}

func TestScheduler_SyncsOnSignIn(t *testing.T) {
	d := newDevice(t, nil)
	rem := testutil.NewTestRemote()
	ident := testutil.NewStaticIdentity("")
	r := fade.NewReconciler(d.store, rem, d.db, ident, fade.NewNopLogger(), d.clock, fade.SyncOptions{})
	s := fade.NewScheduler(newMonitor(d, testutil.NewRecordingNotifier()), r, ident, fade.NewNopLogger(), 10*time.Millisecond, time.Hour)

	d.create(t, fade.Draft{Title: "Before sign-in"})

	stop := runScheduler(t, s)
	defer stop()

	// Give the signed-out initial pass time to run and skip.
	time.Sleep(50 * time.Millisecond)
	if records, _ := rem.ListEntries(context.Background(), "alice"); len(records) != 0 {
		t.Fatalf("remote records before sign-in = %d, want 0", len(records))
	}

	ident.SetUserID("alice")
	eventually(t, "sync after sign-in", func() bool {
		records, err := rem.ListEntries(context.Background(), "alice")
		return err == nil && len(records) == 1
	})
}

func TestScheduler_RefreshNotBlockedBySync(t *testing.T) {
	d := newDevice(t, nil)
	notifier := testutil.NewRecordingNotifier()
	rem := newFaultyRemote()
	entered := make(chan struct{})
	var once sync.Once
	rem.listEntries = func(ctx context.Context) error {
		once.Do(func() { close(entered) })
		<-ctx.Done()
		return ctx.Err()
	}
	ident := testutil.NewStaticIdentity("alice")
	r := fade.NewReconciler(d.store, rem, d.db, ident, fade.NewNopLogger(), d.clock, fade.SyncOptions{CallTimeout: time.Hour})
	s := fade.NewScheduler(newMonitor(d, notifier), r, ident, fade.NewNopLogger(), 10*time.Millisecond, time.Hour)

	d.create(t, fade.Draft{Title: "Slowly fading"})

	stop := runScheduler(t, s)
	defer stop()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("sync never reached the remote")
	}

	d.clock.Advance(16 * day)
	eventually(t, "notification while sync is stuck", func() bool {
		return len(notifier.Sent()) == 1
	})
}

func TestScheduler_RefreshesOnStoreChange(t *testing.T) {
	d := newDevice(t, nil)
	m := newMonitor(d, testutil.NewRecordingNotifier())
	m.Subscribe(d.bus)

	changes := make(chan []string, 8)
	d.bus.Subscribe(fade.EventAtRiskChanged, func(ev fade.Event) { changes <- ev.AtRiskIDs })

	e := d.create(t, fade.Draft{Title: "Old friend"})
	d.clock.Advance(16 * day)

	s := fade.NewScheduler(m, nil, nil, fade.NewNopLogger(), time.Hour, time.Hour)
	stop := runScheduler(t, s)
	defer stop()

	next := func() []string {
		t.Helper()
		select {
		case ids := <-changes:
			return ids
		case <-time.After(5 * time.Second):
			t.Fatal("no at-risk change published")
			return nil
		}
	}

	if ids := next(); len(ids) != 1 || ids[0] != e.ID {
		t.Fatalf("initial at-risk ids = %v, want [%s]", ids, e.ID)
	}

	if _, err := d.store.Restore(e.ID); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if ids := next(); len(ids) != 0 {
		t.Errorf("at-risk ids after restore = %v, want none", ids)
	}
}

func TestScheduler_SyncWithoutRemote(t *testing.T) {
	d := newDevice(t, nil)
	s := fade.NewScheduler(newMonitor(d, testutil.NewRecordingNotifier()), nil, nil, fade.NewNopLogger(), 0, 0)

	s.TriggerSync()
	s.TriggerSync()
	s.Sync(context.Background())
	s.Refresh()
}
