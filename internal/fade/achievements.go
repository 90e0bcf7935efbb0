package fade

import (
	"fmt"
	"maps"
	"sync"
	"time"
)

// AchievementMetric names the counter an achievement threshold applies to.
type AchievementMetric string

const (
	MetricRestorations AchievementMetric = "restorations"
	MetricStreak       AchievementMetric = "streak"
)

// AchievementDefinition is one entry of the static catalog.
type AchievementDefinition struct {
	ID          string
	Title       string
	Description string
	Metric      AchievementMetric
	Threshold   int
}

// AchievementCatalog lists every achievement that can be unlocked.
var AchievementCatalog = []AchievementDefinition{
	{ID: "first-restore", Title: "Second Chance", Description: "Restore your first memory", Metric: MetricRestorations, Threshold: 1},
	{ID: "restorer", Title: "Restorer", Description: "Restore 10 memories", Metric: MetricRestorations, Threshold: 10},
	{ID: "archivist", Title: "Archivist", Description: "Restore 50 memories", Metric: MetricRestorations, Threshold: 50},
	{ID: "keeper", Title: "Keeper of Memories", Description: "Restore 100 memories", Metric: MetricRestorations, Threshold: 100},
	{ID: "streak-3", Title: "Habit Forming", Description: "Restore memories 3 days in a row", Metric: MetricStreak, Threshold: 3},
	{ID: "streak-7", Title: "Week of Recall", Description: "Restore memories 7 days in a row", Metric: MetricStreak, Threshold: 7},
	{ID: "streak-30", Title: "Unfading", Description: "Restore memories 30 days in a row", Metric: MetricStreak, Threshold: 30},
}

// AchievementState is the persisted streak and unlock state.
type AchievementState struct {
	TotalRestored int
	CurrentStreak int
	LongestStreak int
	LastStreakDay *time.Time // calendar day, midnight UTC
	Unlocked      map[string]time.Time
}

// RecordRestoration applies one successful restoration at the given instant and
// returns the achievements it newly unlocked. The event is dated to its calendar
// day in at's location.
func (s *AchievementState) RecordRestoration(at time.Time) []AchievementDefinition {
	day := dateOf(at)
	if s.LastStreakDay != nil {
		switch daysBetween(*s.LastStreakDay, day) {
		case 0, 1:
			s.CurrentStreak++
		default:
			s.CurrentStreak = 1
		}
	} else {
		s.CurrentStreak = 1
	}
	s.LongestStreak = max(s.LongestStreak, s.CurrentStreak)
	s.TotalRestored++
	s.LastStreakDay = &day

	if s.Unlocked == nil {
		s.Unlocked = make(map[string]time.Time)
	}
	var unlocked []AchievementDefinition
	for _, def := range AchievementCatalog {
		if _, ok := s.Unlocked[def.ID]; ok {
			continue
		}
		if s.metric(def.Metric) >= def.Threshold {
			s.Unlocked[def.ID] = at
			unlocked = append(unlocked, def)
		}
	}
	return unlocked
}

func (s *AchievementState) metric(m AchievementMetric) int {
	switch m {
	case MetricStreak:
		return s.CurrentStreak
	default:
		return s.TotalRestored
	}
}

func (s *AchievementState) clone() *AchievementState {
	c := *s
	if s.LastStreakDay != nil {
		d := *s.LastStreakDay
		c.LastStreakDay = &d
	}
	c.Unlocked = maps.Clone(s.Unlocked)
	return &c
}

// Achievement is a catalog entry with its unlock state.
type Achievement struct {
	AchievementDefinition
	UnlockedAt *time.Time
}

func (a Achievement) Unlocked() bool { return a.UnlockedAt != nil }

// AchievementSnapshot is the read model exposed to collaborators.
type AchievementSnapshot struct {
	TotalRestored int
	CurrentStreak int
	LongestStreak int
	LastStreakDay *time.Time
	Achievements  []Achievement
}

// AchievementTracker maintains achievement state from restoration events.
type AchievementTracker struct {
	mu     sync.Mutex
	db     Database
	logger Logger
}

func NewAchievementTracker(db Database, logger Logger) *AchievementTracker {
	return &AchievementTracker{db: db, logger: logger}
}

// Subscribe makes the tracker react to restoration events on bus. Failures are
// logged and never reach the restoring caller.
func (t *AchievementTracker) Subscribe(bus *Bus) {
	bus.Subscribe(EventRestored, func(ev Event) {
		unlocked, err := t.RecordRestoration(ev.At)
		if err != nil {
			t.logger.Error("recording restoration", "entry", ev.EntryID, "error", err)
			return
		}
		for _, def := range unlocked {
			t.logger.Info("achievement unlocked", "achievement", def.ID)
		}
	})
}

// RecordRestoration updates and persists state for a restoration at the given instant.
func (t *AchievementTracker) RecordRestoration(at time.Time) ([]AchievementDefinition, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, err := t.load()
	if err != nil {
		return nil, err
	}
	unlocked := state.RecordRestoration(at)
	if err := t.db.SaveAchievements(state); err != nil {
		return nil, fmt.Errorf("saving achievements: %w", err)
	}
	return unlocked, nil
}

// Snapshot returns the counters and the full catalog with unlock state.
func (t *AchievementTracker) Snapshot() (*AchievementSnapshot, error) {
	t.mu.Lock()
	state, err := t.load()
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}

	snap := &AchievementSnapshot{
		TotalRestored: state.TotalRestored,
		CurrentStreak: state.CurrentStreak,
		LongestStreak: state.LongestStreak,
		LastStreakDay: state.LastStreakDay,
	}
	for _, def := range AchievementCatalog {
		a := Achievement{AchievementDefinition: def}
		if at, ok := state.Unlocked[def.ID]; ok {
			a.UnlockedAt = &at
		}
		snap.Achievements = append(snap.Achievements, a)
	}
	return snap, nil
}

func (t *AchievementTracker) load() (*AchievementState, error) {
	state, err := t.db.LoadAchievements()
	if err != nil {
		return nil, fmt.Errorf("loading achievements: %w", err)
	}
	if state == nil {
		return &AchievementState{Unlocked: make(map[string]time.Time)}, nil
	}
	return state.clone(), nil
}

// dateOf returns the calendar day of t, in t's location, as midnight UTC.
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysBetween returns the number of calendar days from a to b.
func daysBetween(a, b time.Time) int {
	return int(dateOf(b).Sub(dateOf(a)).Hours() / 24)
}
