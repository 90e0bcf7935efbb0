package fade

import (
	"context"
	"io"
	"maps"
	"slices"
	"time"
)

// Remote is the remote copy of a user's entries. Records and blobs are
// namespaced by owner id. Every call honors ctx for cancellation and deadlines.
type Remote interface {
	// PutEntry creates or replaces the record with entry.ID.
	PutEntry(ctx context.Context, owner string, entry *RemoteEntry) error

	// ListEntries returns every record of the owner.
	ListEntries(ctx context.Context, owner string) ([]*RemoteEntry, error)

	// DeleteEntry removes a record. Deleting an absent record succeeds.
	DeleteEntry(ctx context.Context, owner, id string) error

	// HasBlob reports whether a blob with the given name exists.
	HasBlob(ctx context.Context, owner, name string) (bool, error)

	// PutBlob stores a blob. size is the number of bytes that will be read from r.
	PutBlob(ctx context.Context, owner, name string, r io.Reader, size int64) error

	// GetBlob writes the blob content to w.
	GetBlob(ctx context.Context, owner, name string, w io.Writer) error

	// DeleteBlob removes a blob. Deleting an absent blob succeeds.
	DeleteBlob(ctx context.Context, owner, name string) error

	// ValidateSetup verifies that the remote is reachable and configured.
	ValidateSetup(ctx context.Context) error
}

// RemoteEntry is the wire form of an entry.
type RemoteEntry struct {
	ID                 string                      `json:"id"`
	Title              string                      `json:"title"`
	Content            string                      `json:"content"`
	CreatedAt          time.Time                   `json:"created_at"`
	RestoredAt         *time.Time                  `json:"restored_at,omitempty"`
	UpdatedAt          time.Time                   `json:"updated_at"`
	Tags               []string                    `json:"tags,omitempty"`
	Attachments        map[string]RemoteAttachment `json:"attachments,omitempty"`
	ChallengeQuestions []ChallengeQuestion         `json:"challenge_questions,omitempty"`
}

// RemoteAttachment references a remote blob by content checksum.
type RemoteAttachment struct {
	Name      string `json:"name"`
	Checksum  string `json:"checksum"`
	Size      int64  `json:"size"`
	Encrypted bool   `json:"encrypted,omitempty"`
}

// BlobName returns the remote blob name for an attachment. Encrypted and
// plaintext copies of the same content live under different names.
func (a RemoteAttachment) BlobName() string {
	return BlobName(a.Checksum, a.Encrypted)
}

// BlobName returns the remote blob name for content with the given checksum.
func BlobName(checksum string, encrypted bool) string {
	if encrypted {
		return checksum + ".age"
	}
	return checksum
}

// BlobNames returns the distinct blob names referenced by the record.
func (r *RemoteEntry) BlobNames() []string {
	set := make(map[string]struct{}, len(r.Attachments))
	for _, a := range r.Attachments {
		set[a.BlobName()] = struct{}{}
	}
	names := slices.Collect(maps.Keys(set))
	slices.Sort(names)
	return names
}

// ToRemote converts a local entry into its wire form.
func ToRemote(e *Entry, encrypted bool) *RemoteEntry {
	r := &RemoteEntry{
		ID:                 e.ID,
		Title:              e.Title,
		Content:            e.Content,
		CreatedAt:          e.CreatedAt,
		UpdatedAt:          e.UpdatedAt,
		Tags:               slices.Clone(e.Tags),
		ChallengeQuestions: slices.Clone(e.ChallengeQuestions),
	}
	if e.RestoredAt != nil {
		t := *e.RestoredAt
		r.RestoredAt = &t
	}
	if len(e.Attachments) > 0 {
		r.Attachments = make(map[string]RemoteAttachment, len(e.Attachments))
		for id, ref := range e.Attachments {
			r.Attachments[id] = RemoteAttachment{
				Name:      ref.Name,
				Checksum:  ref.Checksum,
				Size:      ref.Size,
				Encrypted: encrypted,
			}
		}
	}
	return r
}

// FromRemote converts a wire record into a local entry. SyncedAt is left unset.
func FromRemote(r *RemoteEntry) *Entry {
	e := &Entry{
		ID:                 r.ID,
		Title:              r.Title,
		Content:            r.Content,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
		Tags:               NormalizeTags(r.Tags),
		ChallengeQuestions: slices.Clone(r.ChallengeQuestions),
	}
	if r.RestoredAt != nil {
		t := *r.RestoredAt
		e.RestoredAt = &t
	}
	if len(r.Attachments) > 0 {
		e.Attachments = make(map[string]AttachmentRef, len(r.Attachments))
		for id, a := range r.Attachments {
			e.Attachments[id] = AttachmentRef{Name: a.Name, Checksum: a.Checksum, Size: a.Size}
		}
	}
	return e
}
