package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fade-go/internal/fade"
	"fade-go/internal/identity"
	"fade-go/internal/testutil"
)

var testSecret = []byte("server-test-secret")

type fixture struct {
	server  *Server
	backend fade.Remote
	clock   *testutil.StubClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := testutil.FixedClock()
	backend := testutil.NewTestRemote()
	return &fixture{
		server:  New(backend, testSecret, clock, fade.NewNopLogger(), "test"),
		backend: backend,
		clock:   clock,
	}
}

func (f *fixture) token(t *testing.T, owner string) string {
	t.Helper()
	tok, err := identity.Issue(owner, testSecret, time.Hour, f.clock.Now())
	require.NoError(t, err)
	return tok
}

func (f *fixture) do(t *testing.T, method, path, token string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/health", "", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["storage"])
}

func TestAuth(t *testing.T) {
	f := newFixture(t)

	t.Run("missing token", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/entries", "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("bad signature", func(t *testing.T) {
		tok, err := identity.Issue("alice", []byte("other-secret"), time.Hour, f.clock.Now())
		require.NoError(t, err)
		rec := f.do(t, http.MethodGet, "/api/v1/entries", tok, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		tok := f.token(t, "alice")
		f.clock.Advance(2 * time.Hour)
		defer f.clock.Advance(-2 * time.Hour)

		rec := f.do(t, http.MethodGet, "/api/v1/entries", tok, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestEntries(t *testing.T) {
	f := newFixture(t)
	alice := f.token(t, "alice")
	bob := f.token(t, "bob")

	rec := f.do(t, http.MethodGet, "/api/v1/entries", alice, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	entry := `{"id":"e1","title":"Beach","content":"","created_at":"2024-01-15T10:30:00Z","updated_at":"2024-01-15T10:30:00Z"}`
	rec = f.do(t, http.MethodPut, "/api/v1/entries/e1", alice, entry)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/entries", alice, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []fade.RemoteEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "Beach", got[0].Title)

	// Records are scoped to the token subject.
	rec = f.do(t, http.MethodGet, "/api/v1/entries", bob, "")
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = f.do(t, http.MethodDelete, "/api/v1/entries/e1", alice, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, http.MethodDelete, "/api/v1/entries/e1", alice, "")
	assert.Equal(t, http.StatusNoContent, rec.Code, "deleting an absent entry succeeds")
}

func TestPutEntry_Invalid(t *testing.T) {
	f := newFixture(t)
	alice := f.token(t, "alice")

	rec := f.do(t, http.MethodPut, "/api/v1/entries/e1", alice, `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/v1/entries/e1", alice, `{"id":"e2","title":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBlobs(t *testing.T) {
	f := newFixture(t)
	alice := f.token(t, "alice")
	name := testutil.SHA256Hex([]byte("photo"))

	rec := f.do(t, http.MethodHead, "/api/v1/blobs/"+name, alice, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/v1/blobs/"+name, alice, "photo")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodHead, "/api/v1/blobs/"+name, alice, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/blobs/"+name, alice, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "photo", rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/v1/blobs/"+name, f.token(t, "bob"), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/v1/blobs/"+name, alice, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/blobs/"+name, alice, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
