package fade

import (
	"io"
	"maps"
	"slices"
	"strings"
	"time"
)

// Entry is a single memory record.
//
// DecayLevel is derived: it is recomputed from CreatedAt/RestoredAt every time the
// entry is read through the Store and must not be trusted when set by a caller.
type Entry struct {
	ID                 string
	Title              string
	Content            string
	CreatedAt          time.Time
	RestoredAt         *time.Time
	UpdatedAt          time.Time
	DecayLevel         int
	Tags               []string
	Attachments        map[string]AttachmentRef
	ChallengeQuestions []ChallengeQuestion

	// SyncedAt is the UpdatedAt value last confirmed on the remote. Local only.
	SyncedAt *time.Time
}

// AttachmentRef points at attachment content in the local blob store.
type AttachmentRef struct {
	Name     string
	Checksum string
	Size     int64
}

// ChallengeQuestion is a quiz question that must be answered to restore an entry.
type ChallengeQuestion struct {
	Question string
	Answer   string
}

// AttachmentSource is attachment content supplied by the caller on create or edit.
type AttachmentSource struct {
	Name   string
	Reader io.Reader
}

// Draft holds the user-supplied fields of a new entry.
type Draft struct {
	Title              string
	Content            string
	Tags               []string
	Attachments        []AttachmentSource
	ChallengeQuestions []ChallengeQuestion
}

// AgingSince returns the instant decay is measured from.
func (e *Entry) AgingSince() time.Time {
	if e.RestoredAt != nil {
		return *e.RestoredAt
	}
	return e.CreatedAt
}

// IsDirty reports whether the entry has local changes not yet confirmed on the remote.
func (e *Entry) IsDirty() bool {
	return e.SyncedAt == nil || e.UpdatedAt.After(*e.SyncedAt)
}

// Checksums returns the distinct blob checksums referenced by the entry.
func (e *Entry) Checksums() []string {
	seen := make(map[string]bool, len(e.Attachments))
	var out []string
	for _, ref := range e.Attachments {
		if !seen[ref.Checksum] {
			seen[ref.Checksum] = true
			out = append(out, ref.Checksum)
		}
	}
	slices.Sort(out)
	return out
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	c := *e
	if e.RestoredAt != nil {
		t := *e.RestoredAt
		c.RestoredAt = &t
	}
	if e.SyncedAt != nil {
		t := *e.SyncedAt
		c.SyncedAt = &t
	}
	c.Tags = slices.Clone(e.Tags)
	c.Attachments = maps.Clone(e.Attachments)
	c.ChallengeQuestions = slices.Clone(e.ChallengeQuestions)
	return &c
}

// sameUserContent reports whether two entries carry the same user-editable fields.
func sameUserContent(a, b *Entry) bool {
	return a.Title == b.Title &&
		a.Content == b.Content &&
		slices.Equal(a.Tags, b.Tags) &&
		maps.Equal(a.Attachments, b.Attachments) &&
		slices.Equal(a.ChallengeQuestions, b.ChallengeQuestions)
}

// NormalizeTags trims, deduplicates and sorts a tag list. Tags are case-sensitive.
func NormalizeTags(tags []string) []string {
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		set[t] = struct{}{}
	}
	out := slices.Collect(maps.Keys(set))
	slices.Sort(out)
	return out
}

func validTitle(title string) bool {
	return strings.TrimSpace(title) != ""
}
