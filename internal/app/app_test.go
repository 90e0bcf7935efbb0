package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"fade-go/internal/config"
	"fade-go/internal/fade"
	"fade-go/internal/testutil"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig(t.TempDir())
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, clock fade.Clock, notifier fade.Notifier) *FadeApp {
	t.Helper()
	a, err := NewFadeApp(context.Background(), cfg, "test", Options{Clock: clock, Notifier: notifier})
	if err != nil {
		t.Fatalf("NewFadeApp() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func TestNewFadeApp(t *testing.T) {
	t.Run("persists across sessions", func(t *testing.T) {
		cfg := newTestConfig(t)
		clock := testutil.FixedClock()

		a, err := NewFadeApp(context.Background(), cfg, "add", Options{Clock: clock})
		if err != nil {
			t.Fatalf("NewFadeApp() error = %v", err)
		}
		if a.InMemoryFallback() {
			t.Fatal("InMemoryFallback() = true for a writable data dir")
		}
		created, err := a.Store().Create(fade.Draft{Title: "First day at the lake"})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if err := a.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}

		b := newTestApp(t, cfg, clock, nil)
		got, err := b.Store().Get(created.ID)
		if err != nil {
			t.Fatalf("Get() after reopen error = %v", err)
		}
		if got.Title != "First day at the lake" {
			t.Errorf("Title = %q, want %q", got.Title, "First day at the lake")
		}
		if _, err := os.Stat(filepath.Join(cfg.LogDir, LogFileName)); err != nil {
			t.Errorf("log file not written: %v", err)
		}
	})

	t.Run("falls back to memory when storage is unavailable", func(t *testing.T) {
		cfg := newTestConfig(t)
		blocker := filepath.Join(cfg.BaseDir, "not-a-dir")
		writeTestFile(t, blocker, "x")
		cfg.Database.DataDir = blocker

		a := newTestApp(t, cfg, testutil.FixedClock(), nil)
		if !a.InMemoryFallback() {
			t.Fatal("InMemoryFallback() = false, want true")
		}
		if _, err := a.Store().Create(fade.Draft{Title: "still works"}); err != nil {
			t.Errorf("Create() on fallback database error = %v", err)
		}
		if err := a.BackupDatabase(filepath.Join(cfg.BaseDir, "backup.db")); !errors.Is(err, fade.ErrStorageUnavailable) {
			t.Errorf("BackupDatabase() error = %v, want ErrStorageUnavailable", err)
		}
	})

	t.Run("rejects invalid config", func(t *testing.T) {
		cfg := newTestConfig(t)
		cfg.Decay.Unit = "weeks"
		if _, err := NewFadeApp(context.Background(), cfg, "test", Options{}); err == nil {
			t.Error("NewFadeApp() expected error for invalid decay unit")
		}
	})

	t.Run("uses configured decay unit", func(t *testing.T) {
		cfg := newTestConfig(t)
		cfg.Decay.Unit = "hours"
		a := newTestApp(t, cfg, testutil.FixedClock(), nil)
		if got := a.Settings().DecayTimeUnit(); got != fade.UnitHours {
			t.Errorf("DecayTimeUnit() = %v, want hours", got)
		}
	})
}

func TestFadeApp_AddEntryWithAttachments(t *testing.T) {
	cfg := newTestConfig(t)
	a := newTestApp(t, cfg, testutil.FixedClock(), nil)

	src := filepath.Join(t.TempDir(), "trip")
	writeTestFile(t, filepath.Join(src, "beach.jpg"), "jpeg bytes")
	writeTestFile(t, filepath.Join(src, "draft.tmp"), "ignored")
	writeTestFile(t, filepath.Join(src, "day2", "sunset.jpg"), "more jpeg")

	entry, err := a.AddEntry(fade.Draft{Title: "Trip", Tags: []string{"travel"}}, []string{src}, true)
	if err != nil {
		t.Fatalf("AddEntry() error = %v", err)
	}
	if len(entry.Attachments) != 2 {
		t.Fatalf("len(Attachments) = %d, want 2", len(entry.Attachments))
	}

	out := t.TempDir()
	for attID, ref := range entry.Attachments {
		path, err := a.SaveAttachment(entry.ID, attID, out)
		if err != nil {
			t.Fatalf("SaveAttachment(%s) error = %v", ref.Name, err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("reading saved attachment: %v", err)
		}
		if int64(len(data)) != ref.Size {
			t.Errorf("saved %s has %d bytes, want %d", ref.Name, len(data), ref.Size)
		}
	}
	if _, err := os.Stat(filepath.Join(out, "day2", "sunset.jpg")); err != nil {
		t.Errorf("nested attachment not saved under its directory: %v", err)
	}

	var detachID string
	for id := range entry.Attachments {
		detachID = id
		break
	}
	if err := a.DetachAttachment(entry.ID, detachID); err != nil {
		t.Fatalf("DetachAttachment() error = %v", err)
	}
	got, err := a.Store().Get(entry.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got.Attachments) != 1 {
		t.Errorf("len(Attachments) after detach = %d, want 1", len(got.Attachments))
	}
}

func TestFadeApp_AttachFiles(t *testing.T) {
	a := newTestApp(t, newTestConfig(t), testutil.FixedClock(), nil)

	entry, err := a.Store().Create(fade.Draft{Title: "Concert"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	ticket := filepath.Join(t.TempDir(), "ticket.pdf")
	writeTestFile(t, ticket, "pdf")

	got, n, err := a.AttachFiles(entry.ID, []string{ticket}, false)
	if err != nil {
		t.Fatalf("AttachFiles() error = %v", err)
	}
	if n != 1 || len(got.Attachments) != 1 {
		t.Errorf("AttachFiles() attached %d, entry has %d; want 1, 1", n, len(got.Attachments))
	}

	if _, _, err := a.AttachFiles("missing", []string{ticket}, false); !errors.Is(err, fade.ErrNotFound) {
		t.Errorf("AttachFiles() on missing entry error = %v, want ErrNotFound", err)
	}
}

func TestFadeApp_SyncBetweenDevices(t *testing.T) {
	shared := t.TempDir()
	clock := testutil.FixedClock()

	device := func() *config.Config {
		cfg := newTestConfig(t)
		cfg.Remote = config.RemoteConfig{Type: "filesystem", Name: "shared", FSRoot: shared}
		cfg.Encryption.Type = "test"
		return cfg
	}

	laptop := newTestApp(t, device(), clock, nil)
	phone := newTestApp(t, device(), clock, nil)

	if !laptop.HasRemote() || !laptop.EncryptionEnabled() {
		t.Fatal("remote and encryption should be configured")
	}

	photo := filepath.Join(t.TempDir(), "beach.jpg")
	writeTestFile(t, photo, "sand and sea")
	entry, err := laptop.AddEntry(fade.Draft{Title: "Beach"}, []string{photo}, false)
	if err != nil {
		t.Fatalf("AddEntry() error = %v", err)
	}

	report, err := laptop.Sync(context.Background())
	if err != nil {
		t.Fatalf("laptop Sync() error = %v", err)
	}
	if report.Uploaded != 1 || report.BlobsUploaded != 1 {
		t.Errorf("laptop report = %+v, want 1 entry and 1 blob uploaded", report)
	}

	if err := phone.UnlockKeys("anything"); err != nil {
		t.Fatalf("UnlockKeys() error = %v", err)
	}
	report, err = phone.Sync(context.Background())
	if err != nil {
		t.Fatalf("phone Sync() error = %v", err)
	}
	if report.Downloaded != 1 || report.BlobsDownloaded != 1 {
		t.Errorf("phone report = %+v, want 1 entry and 1 blob downloaded", report)
	}

	got, err := phone.Store().Get(entry.ID)
	if err != nil {
		t.Fatalf("phone Get() error = %v", err)
	}
	for attID := range got.Attachments {
		path, err := phone.SaveAttachment(entry.ID, attID, t.TempDir())
		if err != nil {
			t.Fatalf("SaveAttachment() error = %v", err)
		}
		data, _ := os.ReadFile(path)
		if string(data) != "sand and sea" {
			t.Errorf("downloaded content = %q, want plaintext", data)
		}
	}

	runs, err := phone.History(10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(runs) != 1 || runs[0].Status != "success" {
		t.Errorf("History() = %+v, want one successful run", runs)
	}
}

func TestFadeApp_SyncWithoutRemote(t *testing.T) {
	a := newTestApp(t, newTestConfig(t), testutil.FixedClock(), nil)

	if _, err := a.Sync(context.Background()); !errors.Is(err, ErrNoRemote) {
		t.Errorf("Sync() error = %v, want ErrNoRemote", err)
	}
	if err := a.UnlockKeys("x"); !errors.Is(err, ErrNoEncryption) {
		t.Errorf("UnlockKeys() error = %v, want ErrNoEncryption", err)
	}
}

func TestFadeApp_MonitorNotifies(t *testing.T) {
	clock := testutil.FixedClock()
	notifier := testutil.NewRecordingNotifier()
	a := newTestApp(t, newTestConfig(t), clock, notifier)

	if _, err := a.Store().Create(fade.Draft{Title: "Graduation"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	clock.Advance(16 * 24 * time.Hour)
	result, err := a.Monitor().Check()
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if len(result.AtRisk) != 1 {
		t.Errorf("len(AtRisk) = %d, want 1", len(result.AtRisk))
	}
	if sent := notifier.Sent(); len(sent) != 1 {
		t.Errorf("notifications sent = %d, want 1", len(sent))
	}
}

func TestFadeApp_RestoreUnlocksAchievement(t *testing.T) {
	clock := testutil.FixedClock()
	a := newTestApp(t, newTestConfig(t), clock, nil)

	entry, err := a.Store().Create(fade.Draft{
		Title:              "First bike",
		ChallengeQuestions: []fade.ChallengeQuestion{{Question: "Color?", Answer: "Red"}},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	clock.Advance(48 * time.Hour)

	result, restored, err := a.Restorer().Attempt(entry.ID, []string{" red "})
	if err != nil {
		t.Fatalf("Attempt() error = %v", err)
	}
	if !result.Passed || restored == nil || restored.DecayLevel != 0 {
		t.Fatalf("Attempt() = %+v, %+v; want passed and decay 0", result, restored)
	}

	snap, err := a.Achievements().Snapshot()
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.TotalRestored != 1 || !snap.Achievements[0].Unlocked() {
		t.Errorf("Snapshot() = %+v, want first restore unlocked", snap)
	}
}

func TestFadeApp_BackupDatabase(t *testing.T) {
	cfg := newTestConfig(t)
	a := newTestApp(t, cfg, testutil.FixedClock(), nil)
	if _, err := a.Store().Create(fade.Draft{Title: "Backed up"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	dest := filepath.Join(t.TempDir(), "fade-backup.db")
	if err := a.BackupDatabase(dest); err != nil {
		t.Fatalf("BackupDatabase() error = %v", err)
	}
	if info, err := os.Stat(dest); err != nil || info.Size() == 0 {
		t.Errorf("backup not written: %v", err)
	}
}
