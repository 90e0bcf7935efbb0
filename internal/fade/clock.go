package fade

import (
	"time"

	"github.com/google/uuid"
)

// Clock is the only source of "now" for decay, restoration, notification
// throttling and sync history. Nothing in this package calls time.Now directly.
type Clock interface {
	Now() time.Time
}

// RealClock reads the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator mints entry and attachment ids. Ids are never reused, so a
// generator must not repeat values across restarts.
type IDGenerator interface {
	New() string
}

// UUIDGenerator mints random (version 4) UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.NewString() }
