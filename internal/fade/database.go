package fade

import "time"

// Tombstone records a local delete that has not yet been propagated to the remote.
type Tombstone struct {
	ID        string
	DeletedAt time.Time
}

// SyncRun is one row of sync history.
type SyncRun struct {
	ID            int64
	StartedAt     time.Time
	FinishedAt    *time.Time
	Status        string // "running", "success", "partial" or "error"
	Uploaded      int
	Downloaded    int
	DeletedLocal  int
	DeletedRemote int
	Error         string
}

// Database provides an interface for local persistence.
// Each mutating method runs in a single transaction. Lookups return nil, nil
// when the row does not exist.
type Database interface {
	// Entry operations

	// FindEntry returns the entry with the given id, or nil if absent.
	FindEntry(id string) (*Entry, error)

	// ListEntries returns all entries ordered by CreatedAt descending.
	ListEntries() ([]*Entry, error)

	// InsertEntry stores a new entry with its tags, attachments and questions.
	InsertEntry(entry *Entry) error

	// ReplaceEntry overwrites every stored field of an existing entry.
	ReplaceEntry(entry *Entry) error

	// DeleteEntry removes an entry. When tombstone is non-nil it is recorded in the
	// same transaction. Returns false if the entry did not exist.
	DeleteEntry(id string, tombstone *Tombstone) (bool, error)

	// MarkEntrySynced sets synced_at for an entry.
	MarkEntrySynced(id string, version time.Time) error

	// ListTags returns the sorted union of all entry tags.
	ListTags() ([]string, error)

	// CountChecksumReferences returns how many attachments reference a blob checksum.
	CountChecksumReferences(checksum string) (int, error)

	// Tombstone operations

	ListTombstones() ([]*Tombstone, error)
	PurgeTombstone(id string) error

	// Settings and achievements are single-row records; Load returns nil, nil before the first Save.

	LoadSettings() (*SettingsRecord, error)
	SaveSettings(rec *SettingsRecord) error
	LoadAchievements() (*AchievementState, error)
	SaveAchievements(state *AchievementState) error

	// Sync history

	CreateSyncRun(startedAt time.Time) (*SyncRun, error)
	FinishSyncRun(run *SyncRun) error
	ListSyncRuns(limit int) ([]*SyncRun, error)

	// Close closes the database connection.
	Close() error
}
