package fade

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"
)

// Store is the sole writer of entries. Every read returns entries with their decay
// level recomputed for the current settings, newest first.
//
// Writes are serialized; reads share the lock so a reader never observes a
// half-applied mutation. Events are published after the lock is released.
type Store struct {
	mu       sync.RWMutex
	db       Database
	blobs    BlobStore
	settings *Settings
	bus      *Bus
	logger   Logger
	clock    Clock
	idgen    IDGenerator
}

// NewStore creates a Store with the provided dependencies.
func NewStore(db Database, blobs BlobStore, settings *Settings, bus *Bus, logger Logger, clock Clock, idgen IDGenerator) *Store {
	return &Store{
		db:       db,
		blobs:    blobs,
		settings: settings,
		bus:      bus,
		logger:   logger,
		clock:    clock,
		idgen:    idgen,
	}
}

// Create saves a new entry. Attachments that cannot be read are logged and
// left out of the created entry.
func (s *Store) Create(draft Draft) (*Entry, error) {
	if !validTitle(draft.Title) {
		return nil, fmt.Errorf("%w: title must not be empty", ErrValidationFailed)
	}

	s.mu.Lock()
	now := s.clock.Now()
	entry := &Entry{
		ID:                 s.idgen.New(),
		Title:              draft.Title,
		Content:            draft.Content,
		CreatedAt:          now,
		UpdatedAt:          now,
		Tags:               NormalizeTags(draft.Tags),
		ChallengeQuestions: cleanQuestions(draft.ChallengeQuestions),
	}
	for _, src := range draft.Attachments {
		ref, err := s.putAttachment(src)
		if err != nil {
			s.logger.Warn("dropping attachment", "entry", entry.ID, "name", src.Name, "error", err)
			continue
		}
		if entry.Attachments == nil {
			entry.Attachments = make(map[string]AttachmentRef)
		}
		entry.Attachments[s.idgen.New()] = ref
	}

	if err := s.db.InsertEntry(entry); err != nil {
		s.releaseBlobs(entry.Checksums())
		s.mu.Unlock()
		return nil, fmt.Errorf("inserting entry: %w", err)
	}
	s.mu.Unlock()

	s.logger.Info("entry created", "entry", entry.ID, "attachments", len(entry.Attachments))
	s.publishChanged(entry.ID, now)
	return s.withDecay(entry), nil
}

// Get returns a single entry.
func (s *Store) Get(id string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, err := s.db.FindEntry(id)
	if err != nil {
		return nil, fmt.Errorf("finding entry: %w", err)
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.withDecay(entry), nil
}

// Update replaces the user-editable fields of an existing entry with those of
// entry. CreatedAt, RestoredAt and sync bookkeeping are kept from the stored
// record. An update that changes nothing is not written.
func (s *Store) Update(entry *Entry) error {
	if !validTitle(entry.Title) {
		return fmt.Errorf("%w: title must not be empty", ErrValidationFailed)
	}

	s.mu.Lock()
	current, err := s.db.FindEntry(entry.ID)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("finding entry: %w", err)
	}
	if current == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, entry.ID)
	}

	next := current.Clone()
	next.Title = entry.Title
	next.Content = entry.Content
	next.Tags = NormalizeTags(entry.Tags)
	next.ChallengeQuestions = cleanQuestions(entry.ChallengeQuestions)
	next.Attachments = s.keepAvailable(entry.ID, current.Attachments, entry.Attachments)

	if sameUserContent(current, next) {
		s.mu.Unlock()
		return nil
	}

	now := s.clock.Now()
	next.UpdatedAt = now
	if err := s.db.ReplaceEntry(next); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("replacing entry: %w", err)
	}
	s.releaseBlobs(removedChecksums(current, next))
	s.mu.Unlock()

	s.logger.Info("entry updated", "entry", entry.ID)
	s.publishChanged(entry.ID, now)
	return nil
}

// AddAttachment stores content and attaches it to an existing entry.
func (s *Store) AddAttachment(id string, src AttachmentSource) (*Entry, error) {
	s.mu.Lock()
	current, err := s.db.FindEntry(id)
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("finding entry: %w", err)
	}
	if current == nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	ref, err := s.putAttachment(src)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	now := s.clock.Now()
	next := current.Clone()
	if next.Attachments == nil {
		next.Attachments = make(map[string]AttachmentRef)
	}
	next.Attachments[s.idgen.New()] = ref
	next.UpdatedAt = now
	if err := s.db.ReplaceEntry(next); err != nil {
		s.releaseBlobs([]string{ref.Checksum})
		s.mu.Unlock()
		return nil, fmt.Errorf("replacing entry: %w", err)
	}
	s.mu.Unlock()

	s.publishChanged(id, now)
	return s.withDecay(next), nil
}

// OpenAttachment returns a reader for the content of one attachment of an entry.
func (s *Store) OpenAttachment(id, attachmentID string) (io.ReadCloser, error) {
	entry, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	ref, ok := entry.Attachments[attachmentID]
	if !ok {
		return nil, fmt.Errorf("%w: attachment %s of %s", ErrNotFound, attachmentID, id)
	}
	rc, err := s.blobs.Open(ref.Checksum)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAttachmentIO, err)
	}
	return rc, nil
}

// Restore resets the entry's decay clock to now.
func (s *Store) Restore(id string) (*Entry, error) {
	s.mu.Lock()
	current, err := s.db.FindEntry(id)
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("finding entry: %w", err)
	}
	if current == nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	now := s.clock.Now()
	restoredAt := now
	if restoredAt.Before(current.CreatedAt) {
		restoredAt = current.CreatedAt
	}
	current.RestoredAt = &restoredAt
	current.UpdatedAt = now
	if err := s.db.ReplaceEntry(current); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("replacing entry: %w", err)
	}
	s.mu.Unlock()

	s.logger.Info("entry restored", "entry", id)
	s.bus.Publish(Event{Kind: EventRestored, EntryID: id, At: now})
	s.publishChanged(id, now)
	return s.withDecay(current), nil
}

// Delete removes an entry and releases its attachment blobs. Deleting an
// absent entry succeeds.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	current, err := s.db.FindEntry(id)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("finding entry: %w", err)
	}
	if current == nil {
		s.mu.Unlock()
		return nil
	}

	now := s.clock.Now()
	if _, err := s.db.DeleteEntry(id, &Tombstone{ID: id, DeletedAt: now}); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("deleting entry: %w", err)
	}
	s.releaseBlobs(current.Checksums())
	s.mu.Unlock()

	s.logger.Info("entry deleted", "entry", id)
	s.publishChanged(id, now)
	return nil
}

// List returns every entry, newest first, with decay recomputed.
func (s *Store) List() ([]*Entry, error) {
	s.mu.RLock()
	entries, err := s.db.ListEntries()
	s.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}

	now := s.clock.Now()
	for _, e := range entries {
		s.applyDecay(e, now)
	}
	sortNewestFirst(entries)
	return entries, nil
}

// AllTags returns the sorted union of every entry's tags.
func (s *Store) AllTags() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tags, err := s.db.ListTags()
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	return tags, nil
}

// Snapshot returns the entries and tombstones a sync pass works from.
func (s *Store) Snapshot() ([]*Entry, []*Tombstone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := s.db.ListEntries()
	if err != nil {
		return nil, nil, fmt.Errorf("listing entries: %w", err)
	}
	tombstones, err := s.db.ListTombstones()
	if err != nil {
		return nil, nil, fmt.Errorf("listing tombstones: %w", err)
	}
	return entries, tombstones, nil
}

// ApplyRemote writes a record received from the remote, marking it synced.
// expected is the local UpdatedAt seen in the sync snapshot, nil if the entry
// was absent. If the local entry changed since then, nothing is written and
// false is returned; the next sync pass picks up the newer state.
func (s *Store) ApplyRemote(entry *Entry, expected *time.Time) (bool, error) {
	s.mu.Lock()
	current, err := s.db.FindEntry(entry.ID)
	if err != nil {
		s.mu.Unlock()
		return false, fmt.Errorf("finding entry: %w", err)
	}
	if !matchesSnapshot(current, expected) {
		s.mu.Unlock()
		return false, nil
	}

	next := entry.Clone()
	synced := next.UpdatedAt
	next.SyncedAt = &synced
	if current == nil {
		err = s.db.InsertEntry(next)
	} else {
		err = s.db.ReplaceEntry(next)
	}
	if err != nil {
		s.mu.Unlock()
		return false, fmt.Errorf("applying remote entry: %w", err)
	}
	if current != nil {
		s.releaseBlobs(removedChecksums(current, next))
	}
	s.mu.Unlock()

	s.publishChanged(entry.ID, s.clock.Now())
	return true, nil
}

// MarkSynced records that the remote holds the entry as of version.
func (s *Store) MarkSynced(id string, version time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.MarkEntrySynced(id, version); err != nil {
		return fmt.Errorf("marking entry synced: %w", err)
	}
	return nil
}

// DropRemoteDeleted removes a local entry whose remote record was deleted
// elsewhere. Like ApplyRemote it is a no-op if the entry changed since the snapshot.
func (s *Store) DropRemoteDeleted(id string, expected time.Time) (bool, error) {
	s.mu.Lock()
	current, err := s.db.FindEntry(id)
	if err != nil {
		s.mu.Unlock()
		return false, fmt.Errorf("finding entry: %w", err)
	}
	if current == nil || !current.UpdatedAt.Equal(expected) {
		s.mu.Unlock()
		return false, nil
	}
	if _, err := s.db.DeleteEntry(id, nil); err != nil {
		s.mu.Unlock()
		return false, fmt.Errorf("deleting entry: %w", err)
	}
	s.releaseBlobs(current.Checksums())
	s.mu.Unlock()

	s.publishChanged(id, s.clock.Now())
	return true, nil
}

// PurgeTombstone forgets a local delete once the remote no longer holds the record.
func (s *Store) PurgeTombstone(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.PurgeTombstone(id); err != nil {
		return fmt.Errorf("purging tombstone: %w", err)
	}
	return nil
}

// ImportBlob stores downloaded attachment content, verifying it against the expected checksum.
func (s *Store) ImportBlob(checksum string, r io.Reader) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	got, _, err := s.blobs.Put(r)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAttachmentIO, err)
	}
	if got != checksum {
		s.releaseBlobs([]string{got})
		return fmt.Errorf("%w: checksum mismatch: got %s, want %s", ErrAttachmentIO, got, checksum)
	}
	return nil
}

// HasBlob reports whether attachment content is available locally.
func (s *Store) HasBlob(checksum string) (bool, error) {
	return s.blobs.Has(checksum)
}

// OpenBlob returns a reader for local attachment content.
func (s *Store) OpenBlob(checksum string) (io.ReadCloser, error) {
	rc, err := s.blobs.Open(checksum)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAttachmentIO, err)
	}
	return rc, nil
}

// putAttachment writes attachment content to the blob store. Caller holds s.mu.
func (s *Store) putAttachment(src AttachmentSource) (AttachmentRef, error) {
	if src.Reader == nil {
		return AttachmentRef{}, fmt.Errorf("%w: no content for %q", ErrAttachmentIO, src.Name)
	}
	checksum, size, err := s.blobs.Put(src.Reader)
	if err != nil {
		return AttachmentRef{}, fmt.Errorf("%w: storing %q: %w", ErrAttachmentIO, src.Name, err)
	}
	return AttachmentRef{Name: src.Name, Checksum: checksum, Size: size}, nil
}

// keepAvailable filters requested attachments down to those whose content is
// stored locally. Attachments already on the entry are always kept.
func (s *Store) keepAvailable(id string, current, requested map[string]AttachmentRef) map[string]AttachmentRef {
	if len(requested) == 0 {
		return nil
	}
	known := make(map[string]bool, len(current))
	for _, ref := range current {
		known[ref.Checksum] = true
	}

	out := make(map[string]AttachmentRef, len(requested))
	for attID, ref := range requested {
		if !known[ref.Checksum] {
			ok, err := s.blobs.Has(ref.Checksum)
			if err != nil || !ok {
				s.logger.Warn("dropping attachment without content", "entry", id, "name", ref.Name, "checksum", ref.Checksum, "error", err)
				continue
			}
		}
		out[attID] = ref
	}
	return out
}

// releaseBlobs removes blobs that no entry references any more. Failures are
// logged; the owning operation still succeeds. Caller holds s.mu.
func (s *Store) releaseBlobs(checksums []string) {
	for _, checksum := range checksums {
		n, err := s.db.CountChecksumReferences(checksum)
		if err != nil {
			s.logger.Warn("counting blob references", "checksum", checksum, "error", err)
			continue
		}
		if n > 0 {
			continue
		}
		if err := s.blobs.Remove(checksum); err != nil {
			s.logger.Warn("removing blob", "checksum", checksum, "error", errors.Join(ErrAttachmentIO, err))
			continue
		}
		s.logger.Debug("blob released", "checksum", checksum)
	}
}

func (s *Store) withDecay(e *Entry) *Entry {
	c := e.Clone()
	s.applyDecay(c, s.clock.Now())
	return c
}

func (s *Store) applyDecay(e *Entry, now time.Time) {
	e.DecayLevel = Decay(e.AgingSince(), s.settings.DecayTimeUnit(), now, s.settings.DecayRate())
}

func (s *Store) publishChanged(id string, at time.Time) {
	s.bus.Publish(Event{Kind: EventEntriesChanged, EntryID: id, At: at})
}

func matchesSnapshot(current *Entry, expected *time.Time) bool {
	if expected == nil {
		return current == nil
	}
	return current != nil && current.UpdatedAt.Equal(*expected)
}

// removedChecksums returns checksums referenced by before but not by after.
func removedChecksums(before, after *Entry) []string {
	keep := make(map[string]bool, len(after.Attachments))
	for _, ref := range after.Attachments {
		keep[ref.Checksum] = true
	}
	var out []string
	for _, checksum := range before.Checksums() {
		if !keep[checksum] {
			out = append(out, checksum)
		}
	}
	return out
}

func cleanQuestions(qs []ChallengeQuestion) []ChallengeQuestion {
	var out []ChallengeQuestion
	for _, q := range qs {
		if q.Question == "" && q.Answer == "" {
			continue
		}
		out = append(out, q)
	}
	return out
}

func sortNewestFirst(entries []*Entry) {
	slices.SortStableFunc(entries, func(a, b *Entry) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
