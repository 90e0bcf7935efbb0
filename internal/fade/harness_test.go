package fade_test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"fade-go/internal/blobstore"
	"fade-go/internal/database"
	"fade-go/internal/fade"
	"fade-go/internal/testutil"
)

// device is one fully wired local installation sharing nothing but the clock
// and, in sync tests, the remote.
type device struct {
	db       *database.SQLiteDatabase
	blobs    *blobstore.MemoryBlobStore
	clock    *testutil.StubClock
	settings *fade.Settings
	bus      *fade.Bus
	store    *fade.Store
}

func newDevice(t *testing.T, clock *testutil.StubClock) *device {
	t.Helper()
	return newDeviceWithIDs(t, clock, testutil.NewStubIDGenerator())
}

// newPeer creates a device whose entry ids are prefixed with name, so that two
// peers syncing through one remote never mint the same id.
func newPeer(t *testing.T, clock *testutil.StubClock, name string) *device {
	t.Helper()
	return newDeviceWithIDs(t, clock, &prefixedIDs{prefix: name})
}

func newDeviceWithIDs(t *testing.T, clock *testutil.StubClock, ids fade.IDGenerator) *device {
	t.Helper()
	if clock == nil {
		clock = testutil.FixedClock()
	}
	logger := fade.NewNopLogger()

	d := &device{
		db:    testutil.NewTestDatabase(t),
		blobs: testutil.NewTestBlobStore(),
		clock: clock,
	}
	d.settings = fade.NewSettings(d.db, fade.UnitDays, fade.DefaultDecayRate)
	if err := d.settings.Load(); err != nil {
		t.Fatalf("Settings.Load() error = %v", err)
	}
	d.bus = fade.NewBus(logger)
	d.store = fade.NewStore(d.db, d.blobs, d.settings, d.bus, logger, clock, ids)
	return d
}

func (d *device) create(t *testing.T, draft fade.Draft) *fade.Entry {
	t.Helper()
	e, err := d.store.Create(draft)
	if err != nil {
		t.Fatalf("Create(%q) error = %v", draft.Title, err)
	}
	return e
}

func (d *device) get(t *testing.T, id string) *fade.Entry {
	t.Helper()
	e, err := d.store.Get(id)
	if err != nil {
		t.Fatalf("Get(%s) error = %v", id, err)
	}
	return e
}

func attachment(name, content string) fade.AttachmentSource {
	return fade.AttachmentSource{Name: name, Reader: strings.NewReader(content)}
}

const day = 24 * time.Hour

type prefixedIDs struct {
	prefix string
	n      int
}

func (g *prefixedIDs) New() string {
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
