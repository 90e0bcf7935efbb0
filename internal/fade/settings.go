package fade

import (
	"fmt"
	"sync"
	"time"
)

// SettingsRecord is the persisted settings row.
type SettingsRecord struct {
	DecayTimeUnit  DecayTimeUnit
	LastNotifiedAt *time.Time
}

// Settings holds the process-wide decay configuration and notification bookkeeping.
// It is loaded once at startup and written through on every change.
type Settings struct {
	mu   sync.RWMutex
	db   Database
	rec  SettingsRecord
	rate int
}

// NewSettings creates a Settings object with the given defaults. Call Load to
// pick up the persisted record.
func NewSettings(db Database, defaultUnit DecayTimeUnit, rate int) *Settings {
	if rate <= 0 {
		rate = DefaultDecayRate
	}
	return &Settings{
		db:   db,
		rec:  SettingsRecord{DecayTimeUnit: defaultUnit},
		rate: rate,
	}
}

// Load reads the persisted settings. When nothing is stored yet, the defaults are saved.
func (s *Settings) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.db.LoadSettings()
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	if rec == nil {
		if err := s.db.SaveSettings(&s.rec); err != nil {
			return fmt.Errorf("saving default settings: %w", err)
		}
		return nil
	}
	if _, err := ParseDecayTimeUnit(string(rec.DecayTimeUnit)); err != nil {
		rec.DecayTimeUnit = s.rec.DecayTimeUnit
	}
	s.rec = *rec
	return nil
}

func (s *Settings) DecayTimeUnit() DecayTimeUnit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.DecayTimeUnit
}

func (s *Settings) DecayRate() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rate
}

// SetDecayTimeUnit changes and persists the unit. The change applies retroactively
// to every entry on its next read.
func (s *Settings) SetDecayTimeUnit(u DecayTimeUnit) error {
	if _, err := ParseDecayTimeUnit(string(u)); err != nil {
		return err
	}
	return s.update(func(rec *SettingsRecord) { rec.DecayTimeUnit = u })
}

// LastNotifiedAt returns the time of the last notification request, if any.
func (s *Settings) LastNotifiedAt() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.rec.LastNotifiedAt == nil {
		return time.Time{}, false
	}
	return *s.rec.LastNotifiedAt, true
}

func (s *Settings) SetLastNotifiedAt(t time.Time) error {
	return s.update(func(rec *SettingsRecord) { rec.LastNotifiedAt = &t })
}

func (s *Settings) update(fn func(*SettingsRecord)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.rec
	fn(&next)
	if err := s.db.SaveSettings(&next); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	s.rec = next
	return nil
}
