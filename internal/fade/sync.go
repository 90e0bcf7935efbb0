package fade

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
)

// DefaultCallTimeout bounds every individual remote call.
const DefaultCallTimeout = 30 * time.Second

// SyncOptions configures a Reconciler.
type SyncOptions struct {
	CallTimeout time.Duration

	// Encryptor encrypts attachment blobs before upload. nil uploads plaintext.
	Encryptor Encryptor

	// Decryptor decrypts downloaded blobs marked encrypted. It may be set later
	// with SetDecryptor once the user unlocks the private key.
	Decryptor DecryptionContext
}

// SyncReport summarizes one sync pass.
type SyncReport struct {
	Uploaded        int
	Downloaded      int
	DeletedLocal    int
	DeletedRemote   int
	BlobsUploaded   int
	BlobsSkipped    int
	BlobsDownloaded int
	Failed          int
}

// Reconciler brings the local store and the remote copy into agreement.
//
// A pass works from a snapshot taken at its start. Local writes racing with the
// pass are never overwritten; they are picked up by the next pass. Cancellation
// is honored only between records, and each record step runs to completion.
type Reconciler struct {
	store    *Store
	remote   Remote
	db       Database
	identity Identity
	logger   Logger
	clock    Clock
	opts     SyncOptions

	runMu sync.Mutex

	keyMu     sync.RWMutex
	decryptor DecryptionContext
}

// NewReconciler creates a Reconciler with the provided dependencies.
func NewReconciler(store *Store, remote Remote, db Database, identity Identity, logger Logger, clock Clock, opts SyncOptions) *Reconciler {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	return &Reconciler{
		store:     store,
		remote:    remote,
		db:        db,
		identity:  identity,
		logger:    logger,
		clock:     clock,
		opts:      opts,
		decryptor: opts.Decryptor,
	}
}

// SetDecryptor installs the context used to decrypt encrypted blobs.
func (r *Reconciler) SetDecryptor(dc DecryptionContext) {
	r.keyMu.Lock()
	defer r.keyMu.Unlock()
	r.decryptor = dc
}

func (r *Reconciler) currentDecryptor() DecryptionContext {
	r.keyMu.RLock()
	defer r.keyMu.RUnlock()
	return r.decryptor
}

// ValidateRemote checks that the remote is reachable and configured.
func (r *Reconciler) ValidateRemote(ctx context.Context) error {
	return r.call(ctx, "validate setup", r.remote.ValidateSetup)
}

// Sync runs one reconciliation pass for the signed-in user. It returns
// ErrSignedOut without touching anything when nobody is signed in. Per-record
// failures are counted in the report and retried on the next pass.
func (r *Reconciler) Sync(ctx context.Context) (*SyncReport, error) {
	owner, ok := r.identity.CurrentUserID()
	if !ok || owner == "" {
		return nil, ErrSignedOut
	}

	r.runMu.Lock()
	defer r.runMu.Unlock()

	run, err := r.db.CreateSyncRun(r.clock.Now())
	if err != nil {
		r.logger.Warn("recording sync run", "error", err)
	}

	r.logger.Debug("sync started", "owner", owner)
	report, err := r.reconcile(ctx, owner)
	r.finishRun(run, report, err)
	if err != nil {
		return report, err
	}

	r.logger.Info("sync finished",
		"uploaded", report.Uploaded,
		"downloaded", report.Downloaded,
		"deleted_local", report.DeletedLocal,
		"deleted_remote", report.DeletedRemote,
		"failed", report.Failed,
	)
	return report, nil
}

// syncPass carries the working state of one pass.
type syncPass struct {
	owner  string
	report *SyncReport
	remote map[string]*RemoteEntry
}

// blobInUse reports whether any remote record other than exceptID references name.
func (p *syncPass) blobInUse(name, exceptID string) bool {
	for id, rec := range p.remote {
		if id == exceptID {
			continue
		}
		for _, a := range rec.Attachments {
			if a.BlobName() == name {
				return true
			}
		}
	}
	return false
}

func (r *Reconciler) reconcile(ctx context.Context, owner string) (*SyncReport, error) {
	report := &SyncReport{}

	local, tombstones, err := r.store.Snapshot()
	if err != nil {
		return report, fmt.Errorf("taking snapshot: %w", err)
	}

	var remoteList []*RemoteEntry
	err = r.call(ctx, "list entries", func(ctx context.Context) error {
		var err error
		remoteList, err = r.remote.ListEntries(ctx, owner)
		return err
	})
	if err != nil {
		return report, err
	}

	p := &syncPass{owner: owner, report: report, remote: make(map[string]*RemoteEntry, len(remoteList))}
	for _, rec := range remoteList {
		p.remote[rec.ID] = rec
	}
	localByID := make(map[string]*Entry, len(local))
	for _, e := range local {
		localByID[e.ID] = e
	}

	slices.SortFunc(tombstones, func(a, b *Tombstone) int { return strings.Compare(a.ID, b.ID) })
	tombstoned := make(map[string]bool, len(tombstones))
	for _, t := range tombstones {
		tombstoned[t.ID] = true
		if err := ctx.Err(); err != nil {
			return report, err
		}
		r.syncRecord(ctx, p, t.ID, func(ctx context.Context) error {
			return r.syncTombstone(ctx, p, t)
		})
	}

	ids := make(map[string]struct{}, len(localByID)+len(p.remote))
	for id := range localByID {
		ids[id] = struct{}{}
	}
	for id := range p.remote {
		ids[id] = struct{}{}
	}
	for _, id := range slices.Sorted(maps.Keys(ids)) {
		if tombstoned[id] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		l, rem := localByID[id], p.remote[id]
		r.syncRecord(ctx, p, id, func(ctx context.Context) error {
			return r.syncEntry(ctx, p, l, rem)
		})
	}

	return report, nil
}

// syncRecord runs one record step detached from cancellation so that it is
// never abandoned halfway. Individual remote calls stay bounded by the call timeout.
func (r *Reconciler) syncRecord(ctx context.Context, p *syncPass, id string, step func(context.Context) error) {
	if err := step(context.WithoutCancel(ctx)); err != nil {
		p.report.Failed++
		r.logger.Warn("syncing entry failed, will retry", "entry", id, "error", err)
	}
}

func (r *Reconciler) syncTombstone(ctx context.Context, p *syncPass, t *Tombstone) error {
	rec := p.remote[t.ID]
	if rec == nil {
		return r.store.PurgeTombstone(t.ID)
	}

	// Edited elsewhere after the local delete: the later write wins.
	if rec.UpdatedAt.After(t.DeletedAt) {
		if err := r.materialize(ctx, p, rec, nil); err != nil {
			return err
		}
		return r.store.PurgeTombstone(t.ID)
	}

	if err := r.deleteRemote(ctx, p, rec); err != nil {
		return err
	}
	p.report.DeletedRemote++
	return r.store.PurgeTombstone(t.ID)
}

func (r *Reconciler) syncEntry(ctx context.Context, p *syncPass, l *Entry, rec *RemoteEntry) error {
	switch {
	case l != nil && rec != nil:
		switch {
		case l.UpdatedAt.After(rec.UpdatedAt):
			return r.upload(ctx, p, l)
		case rec.UpdatedAt.After(l.UpdatedAt):
			return r.materialize(ctx, p, rec, &l.UpdatedAt)
		case !sameVersion(l, rec):
			// Equal timestamps with different state: the copy that reached the
			// remote first wins.
			return r.materialize(ctx, p, rec, &l.UpdatedAt)
		}
		if err := r.fetchMissingBlobs(ctx, p, rec); err != nil {
			return err
		}
		if l.SyncedAt == nil || !l.SyncedAt.Equal(l.UpdatedAt) {
			return r.store.MarkSynced(l.ID, l.UpdatedAt)
		}
		return nil

	case l != nil:
		if l.IsDirty() {
			return r.upload(ctx, p, l)
		}
		// Synced before and unchanged since: it was deleted on the remote.
		dropped, err := r.store.DropRemoteDeleted(l.ID, l.UpdatedAt)
		if dropped {
			p.report.DeletedLocal++
		}
		return err

	default:
		return r.materialize(ctx, p, rec, nil)
	}
}

// sameVersion reports whether a local entry and a remote record carry the same
// state, ignoring timestamps.
func sameVersion(l *Entry, rec *RemoteEntry) bool {
	remote := FromRemote(rec)
	if (l.RestoredAt == nil) != (remote.RestoredAt == nil) {
		return false
	}
	if l.RestoredAt != nil && !l.RestoredAt.Equal(*remote.RestoredAt) {
		return false
	}
	return sameUserContent(l, remote)
}

// upload pushes every blob the entry references before its index record, so the
// remote never holds a record pointing at a missing blob.
func (r *Reconciler) upload(ctx context.Context, p *syncPass, e *Entry) error {
	encrypted := r.opts.Encryptor != nil
	rec := ToRemote(e, encrypted)

	uploaded := make(map[string]bool)
	for _, ref := range e.Attachments {
		if uploaded[ref.Checksum] {
			continue
		}
		if err := r.uploadBlob(ctx, p, ref, BlobName(ref.Checksum, encrypted)); err != nil {
			return err
		}
		uploaded[ref.Checksum] = true
	}

	previous := p.remote[e.ID]
	if err := r.call(ctx, "put entry", func(ctx context.Context) error {
		return r.remote.PutEntry(ctx, p.owner, rec)
	}); err != nil {
		return err
	}
	p.remote[e.ID] = rec
	p.report.Uploaded++

	if err := r.store.MarkSynced(e.ID, e.UpdatedAt); err != nil {
		return err
	}

	if previous != nil {
		r.collectBlobs(ctx, p, previous)
	}
	return nil
}

func (r *Reconciler) uploadBlob(ctx context.Context, p *syncPass, ref AttachmentRef, name string) error {
	var exists bool
	if err := r.call(ctx, "check blob", func(ctx context.Context) error {
		var err error
		exists, err = r.remote.HasBlob(ctx, p.owner, name)
		return err
	}); err != nil {
		return err
	}
	if exists {
		p.report.BlobsSkipped++
		return nil
	}

	data, err := r.readBlob(ref.Checksum)
	if err != nil {
		return err
	}
	if err := r.call(ctx, "put blob", func(ctx context.Context) error {
		return r.remote.PutBlob(ctx, p.owner, name, bytes.NewReader(data), int64(len(data)))
	}); err != nil {
		return err
	}
	p.report.BlobsUploaded++
	return nil
}

// readBlob loads local content for upload, encrypting it when configured.
func (r *Reconciler) readBlob(checksum string) ([]byte, error) {
	rc, err := r.store.OpenBlob(checksum)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var buf bytes.Buffer
	if r.opts.Encryptor != nil {
		if err := r.opts.Encryptor.Encrypt(rc, &buf); err != nil {
			return nil, fmt.Errorf("%w: encrypting %s: %w", ErrAttachmentIO, checksum, err)
		}
		return buf.Bytes(), nil
	}
	if _, err := io.Copy(&buf, rc); err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrAttachmentIO, checksum, err)
	}
	return buf.Bytes(), nil
}

// materialize downloads a remote record into the local store. Blob failures do
// not block the record; missing blobs are fetched again on a later pass.
func (r *Reconciler) materialize(ctx context.Context, p *syncPass, rec *RemoteEntry, expected *time.Time) error {
	if err := r.fetchMissingBlobs(ctx, p, rec); err != nil {
		r.logger.Warn("attachment download failed, will retry", "entry", rec.ID, "error", err)
	}

	applied, err := r.store.ApplyRemote(FromRemote(rec), expected)
	if err != nil {
		return err
	}
	if !applied {
		r.logger.Debug("entry changed locally during sync, deferring", "entry", rec.ID)
		return nil
	}
	p.report.Downloaded++
	return nil
}

func (r *Reconciler) fetchMissingBlobs(ctx context.Context, p *syncPass, rec *RemoteEntry) error {
	var errs []error
	seen := make(map[string]bool)
	for _, a := range rec.Attachments {
		if seen[a.Checksum] {
			continue
		}
		seen[a.Checksum] = true

		has, err := r.store.HasBlob(a.Checksum)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %w", ErrAttachmentIO, err))
			continue
		}
		if has {
			continue
		}
		if err := r.fetchBlob(ctx, p, a); err != nil {
			errs = append(errs, err)
			continue
		}
		p.report.BlobsDownloaded++
	}
	return errors.Join(errs...)
}

func (r *Reconciler) fetchBlob(ctx context.Context, p *syncPass, a RemoteAttachment) error {
	var body bytes.Buffer
	if err := r.call(ctx, "get blob", func(ctx context.Context) error {
		body.Reset()
		return r.remote.GetBlob(ctx, p.owner, a.BlobName(), &body)
	}); err != nil {
		return err
	}

	var plain io.Reader = &body
	if a.Encrypted {
		dc := r.currentDecryptor()
		if dc == nil {
			return fmt.Errorf("%w: %s is encrypted and the private key is locked", ErrAttachmentIO, a.Name)
		}
		var out bytes.Buffer
		if err := dc.Decrypt(&body, &out); err != nil {
			return fmt.Errorf("%w: decrypting %s: %w", ErrAttachmentIO, a.Name, err)
		}
		plain = &out
	}
	return r.store.ImportBlob(a.Checksum, plain)
}

// deleteRemote removes a record's blobs, then the record itself.
func (r *Reconciler) deleteRemote(ctx context.Context, p *syncPass, rec *RemoteEntry) error {
	for _, name := range rec.BlobNames() {
		if p.blobInUse(name, rec.ID) {
			continue
		}
		if err := r.call(ctx, "delete blob", func(ctx context.Context) error {
			return r.remote.DeleteBlob(ctx, p.owner, name)
		}); err != nil {
			return err
		}
	}
	if err := r.call(ctx, "delete entry", func(ctx context.Context) error {
		return r.remote.DeleteEntry(ctx, p.owner, rec.ID)
	}); err != nil {
		return err
	}
	delete(p.remote, rec.ID)
	return nil
}

// collectBlobs deletes blobs of a superseded record that nothing references any more.
func (r *Reconciler) collectBlobs(ctx context.Context, p *syncPass, previous *RemoteEntry) {
	for _, name := range previous.BlobNames() {
		if p.blobInUse(name, "") {
			continue
		}
		if err := r.call(ctx, "delete blob", func(ctx context.Context) error {
			return r.remote.DeleteBlob(ctx, p.owner, name)
		}); err != nil {
			r.logger.Warn("removing unreferenced remote blob", "blob", name, "error", err)
		}
	}
}

// call runs one remote operation bounded by the per-call timeout.
func (r *Reconciler) call(ctx context.Context, op string, fn func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
	defer cancel()
	if err := fn(cctx); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrRemoteUnavailable, op, err)
	}
	return nil
}

func (r *Reconciler) finishRun(run *SyncRun, report *SyncReport, err error) {
	if run == nil {
		return
	}
	now := r.clock.Now()
	run.FinishedAt = &now
	run.Uploaded = report.Uploaded
	run.Downloaded = report.Downloaded
	run.DeletedLocal = report.DeletedLocal
	run.DeletedRemote = report.DeletedRemote
	switch {
	case err != nil:
		run.Status = "error"
		run.Error = err.Error()
	case report.Failed > 0:
		run.Status = "partial"
		run.Error = fmt.Sprintf("%d entries failed", report.Failed)
	default:
		run.Status = "success"
	}
	if err := r.db.FinishSyncRun(run); err != nil {
		r.logger.Warn("finishing sync run", "error", err)
	}
}
