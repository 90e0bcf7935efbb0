package fade_test

import (
	"testing"

	"fade-go/internal/fade"
)

func TestBus(t *testing.T) {
	bus := fade.NewBus(fade.NewNopLogger())

	var got []string
	bus.Subscribe(fade.EventRestored, func(ev fade.Event) { panic("boom") })
	bus.Subscribe(fade.EventRestored, func(ev fade.Event) { got = append(got, ev.EntryID) })
	bus.Subscribe(fade.EventEntriesChanged, func(ev fade.Event) { got = append(got, "changed") })

	bus.Publish(fade.Event{Kind: fade.EventRestored, EntryID: "e1"})

	if len(got) != 1 || got[0] != "e1" {
		t.Errorf("delivered = %v, want [e1]", got)
	}
}

func TestBus_NilPublish(t *testing.T) {
	var bus *fade.Bus
	bus.Publish(fade.Event{Kind: fade.EventEntriesChanged})
}

func TestEventKind_String(t *testing.T) {
	if got := fade.EventAtRiskChanged.String(); got != "at-risk-changed" {
		t.Errorf("String() = %q", got)
	}
	if got := fade.EventKind(42).String(); got != "unknown" {
		t.Errorf("String() = %q, want unknown", got)
	}
}

func TestStore_PublishesEntriesChanged(t *testing.T) {
	d := newDevice(t, nil)
	var events []fade.Event
	d.bus.Subscribe(fade.EventEntriesChanged, func(ev fade.Event) { events = append(events, ev) })

	e := d.create(t, fade.Draft{Title: "Concert"})
	if err := d.store.Delete(e.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if len(events) != 2 || events[0].EntryID != e.ID {
		t.Errorf("events = %+v, want create and delete for %s", events, e.ID)
	}
}
