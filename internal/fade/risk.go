package fade

import (
	"fmt"
	"slices"
	"sync"
	"time"
)

const (
	// DefaultNotifyMin is the lowest decay level that is still worth a reminder.
	DefaultNotifyMin = 50

	// DefaultNotifyInterval is the minimum time between two notification requests.
	DefaultNotifyInterval = time.Hour
)

// AtRiskEntries returns the entries whose decay level is at or above threshold.
func AtRiskEntries(entries []*Entry, threshold int) []*Entry {
	var out []*Entry
	for _, e := range entries {
		if e.DecayLevel >= threshold {
			out = append(out, e)
		}
	}
	return out
}

// NotificationCandidates returns at-risk entries that are not yet fully decayed
// and have decayed at least notifyMin. Fully decayed entries need a restore, not a reminder.
func NotificationCandidates(entries []*Entry, threshold, notifyMin int) []*Entry {
	var out []*Entry
	for _, e := range AtRiskEntries(entries, threshold) {
		if e.DecayLevel >= notifyMin && e.DecayLevel < MaxDecay {
			out = append(out, e)
		}
	}
	return out
}

// Notification is a single aggregated reminder.
type Notification struct {
	Count      int
	EntryTitle string // set only when Count == 1
	Title      string
	Body       string
}

// BuildNotification aggregates candidates into one notification.
func BuildNotification(candidates []*Entry) Notification {
	n := Notification{Count: len(candidates), Title: "Memories are fading"}
	if n.Count == 1 {
		n.EntryTitle = candidates[0].Title
		n.Title = "A memory is fading"
		n.Body = fmt.Sprintf("%q is fading. Restore it before it is gone.", n.EntryTitle)
		return n
	}
	n.Body = fmt.Sprintf("%d memories are fading. Restore them before they are gone.", n.Count)
	return n
}

// MonitorOptions tunes the risk monitor.
type MonitorOptions struct {
	Threshold      int
	NotifyMin      int
	NotifyInterval time.Duration
}

// DefaultMonitorOptions returns the standard thresholds.
func DefaultMonitorOptions() MonitorOptions {
	return MonitorOptions{
		Threshold:      DefaultRiskThreshold,
		NotifyMin:      DefaultNotifyMin,
		NotifyInterval: DefaultNotifyInterval,
	}
}

// CheckResult reports what one monitor check observed.
type CheckResult struct {
	AtRisk       []*Entry
	Changed      bool
	Notification *Notification
}

// Monitor derives the at-risk subset from the store and throttles notification
// requests globally through the settings' last-notified timestamp.
type Monitor struct {
	store    *Store
	settings *Settings
	notifier Notifier
	bus      *Bus
	logger   Logger
	clock    Clock
	opts     MonitorOptions

	mu         sync.Mutex
	lastAtRisk []string

	changed chan struct{}
}

// NewMonitor creates a Monitor. Threshold and NotifyMin are used as given, so
// start from DefaultMonitorOptions when only some values are configured.
func NewMonitor(store *Store, settings *Settings, notifier Notifier, bus *Bus, logger Logger, clock Clock, opts MonitorOptions) *Monitor {
	if opts.NotifyInterval <= 0 {
		opts.NotifyInterval = DefaultNotifyInterval
	}
	return &Monitor{
		store:    store,
		settings: settings,
		notifier: notifier,
		bus:      bus,
		logger:   logger,
		clock:    clock,
		opts:     opts,
		changed:  make(chan struct{}, 1),
	}
}

// Subscribe makes the monitor follow store changes on bus. Changes are
// collapsed: any number of them between two checks yields one signal on Changes.
func (m *Monitor) Subscribe(bus *Bus) {
	bus.Subscribe(EventEntriesChanged, func(Event) {
		select {
		case m.changed <- struct{}{}:
		default:
		}
	})
}

// Changes signals that the entry set changed since the last signal was received.
func (m *Monitor) Changes() <-chan struct{} { return m.changed }

// Threshold returns the configured at-risk threshold.
func (m *Monitor) Threshold() int { return m.opts.Threshold }

// AtRisk returns the current at-risk entries, newest first.
func (m *Monitor) AtRisk() ([]*Entry, error) {
	entries, err := m.store.List()
	if err != nil {
		return nil, err
	}
	return AtRiskEntries(entries, m.opts.Threshold), nil
}

// Check refreshes the at-risk set, publishes EventAtRiskChanged when it differs
// from the previous check, and requests a notification if one is due.
// Notification failures never fail the check.
func (m *Monitor) Check() (*CheckResult, error) {
	entries, err := m.store.List()
	if err != nil {
		return nil, err
	}

	now := m.clock.Now()
	atRisk := AtRiskEntries(entries, m.opts.Threshold)
	ids := make([]string, len(atRisk))
	for i, e := range atRisk {
		ids[i] = e.ID
	}
	slices.Sort(ids)

	result := &CheckResult{AtRisk: atRisk}

	m.mu.Lock()
	if !slices.Equal(ids, m.lastAtRisk) {
		m.lastAtRisk = ids
		result.Changed = true
	}
	candidates := NotificationCandidates(entries, m.opts.Threshold, m.opts.NotifyMin)
	if len(candidates) > 0 && m.notificationDue(now) {
		n := BuildNotification(candidates)
		if err := m.settings.SetLastNotifiedAt(now); err != nil {
			m.logger.Warn("recording notification time", "error", err)
		}
		result.Notification = &n
	}
	m.mu.Unlock()

	if result.Changed {
		m.bus.Publish(Event{Kind: EventAtRiskChanged, At: now, AtRiskIDs: slices.Clone(ids)})
	}
	if n := result.Notification; n != nil {
		m.notifier.RequestNotification(n.Title, n.Body)
		m.logger.Info("notification requested", "count", n.Count)
	}
	return result, nil
}

// notificationDue reports whether the throttle interval has passed. A last
// notification time in the future (clock moved backwards) does not block.
func (m *Monitor) notificationDue(now time.Time) bool {
	last, ok := m.settings.LastNotifiedAt()
	if !ok || last.After(now) {
		return true
	}
	return now.Sub(last) >= m.opts.NotifyInterval
}
