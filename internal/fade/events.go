package fade

import (
	"sync"
	"time"
)

// EventKind identifies what changed.
type EventKind int

const (
	// EventEntriesChanged fires after any committed change to the entry set.
	EventEntriesChanged EventKind = iota
	// EventRestored fires after an entry was successfully restored.
	EventRestored
	// EventAtRiskChanged fires when the set of at-risk entry ids differs from the previous check.
	EventAtRiskChanged
)

func (k EventKind) String() string {
	switch k {
	case EventEntriesChanged:
		return "entries-changed"
	case EventRestored:
		return "restored"
	case EventAtRiskChanged:
		return "at-risk-changed"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers of a Bus.
type Event struct {
	Kind    EventKind
	EntryID string
	At      time.Time

	// AtRiskIDs is set for EventAtRiskChanged.
	AtRiskIDs []string
}

// Handler receives events. Handlers run synchronously on the publishing goroutine
// after the triggering mutation has committed.
type Handler func(Event)

// Bus fans events out to subscribers. A panicking handler is logged and skipped.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventKind][]Handler
	logger   Logger
}

func NewBus(logger Logger) *Bus {
	return &Bus{
		handlers: make(map[EventKind][]Handler),
		logger:   logger,
	}
}

// Subscribe registers h for events of the given kind.
func (b *Bus) Subscribe(kind EventKind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], h)
}

// Publish delivers ev to every handler subscribed to its kind.
// It is safe to call on a nil Bus.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[ev.Kind]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(h, ev)
	}
}

func (b *Bus) deliver(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "event", ev.Kind.String(), "panic", r)
		}
	}()
	h(ev)
}
