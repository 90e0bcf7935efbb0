package fade_test

import (
	"testing"
	"time"

	"fade-go/internal/fade"
	"fade-go/internal/testutil"
)

func TestSettings(t *testing.T) {
	db := testutil.NewTestDatabase(t)

	s := fade.NewSettings(db, fade.UnitHours, 0)
	if err := s.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.DecayTimeUnit() != fade.UnitHours || s.DecayRate() != fade.DefaultDecayRate {
		t.Errorf("defaults = %s at %d", s.DecayTimeUnit(), s.DecayRate())
	}
	if _, ok := s.LastNotifiedAt(); ok {
		t.Error("LastNotifiedAt() reported a value before any notification")
	}

	if err := s.SetDecayTimeUnit(fade.UnitMinutes); err != nil {
		t.Fatalf("SetDecayTimeUnit() error = %v", err)
	}
	at := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	if err := s.SetLastNotifiedAt(at); err != nil {
		t.Fatalf("SetLastNotifiedAt() error = %v", err)
	}

	reloaded := fade.NewSettings(db, fade.UnitDays, 5)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if reloaded.DecayTimeUnit() != fade.UnitMinutes {
		t.Errorf("reloaded unit = %s, want minutes", reloaded.DecayTimeUnit())
	}
	if got, ok := reloaded.LastNotifiedAt(); !ok || !got.Equal(at) {
		t.Errorf("reloaded LastNotifiedAt() = %v, %v; want %v", got, ok, at)
	}

	if err := s.SetDecayTimeUnit("fortnights"); err == nil {
		t.Error("SetDecayTimeUnit(fortnights) expected error")
	}
}

func TestSettings_InvalidStoredUnit(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	if err := db.SaveSettings(&fade.SettingsRecord{DecayTimeUnit: "weeks"}); err != nil {
		t.Fatalf("SaveSettings() error = %v", err)
	}

	s := fade.NewSettings(db, fade.UnitDays, 5)
	if err := s.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.DecayTimeUnit() != fade.UnitDays {
		t.Errorf("DecayTimeUnit() = %s, want fallback to days", s.DecayTimeUnit())
	}
}
