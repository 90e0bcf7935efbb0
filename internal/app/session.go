package app

import (
	"time"

	"github.com/google/uuid"
)

// Session tracks one CLI invocation. Its ID tags every log line the
// invocation writes so interleaved runs of `fade watch` and one-shot commands
// can be told apart in fade.log.
type Session struct {
	ID        string
	Command   string
	StartedAt time.Time
	Status    string // "success" or "error"
}

// NewSession creates a session for command starting at now.
func NewSession(command string, now time.Time) *Session {
	return &Session{
		ID:        now.UTC().Format("20060102T150405Z") + "-" + uuid.NewString()[:8],
		Command:   command,
		StartedAt: now,
		Status:    "success",
	}
}

// Fail marks the session as failed.
func (s *Session) Fail() {
	s.Status = "error"
}

// Elapsed returns the time since the session started.
func (s *Session) Elapsed(now time.Time) time.Duration {
	return now.Sub(s.StartedAt)
}
