package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"fade-go/internal/fade"
)

// TokenSource returns the bearer token to present to the sync server.
type TokenSource func() (string, error)

// FileTokenSource reads the token from path on every call, so a refreshed
// token file is picked up without a restart.
func FileTokenSource(path string) TokenSource {
	return func() (string, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return "", fade.ErrSignedOut
			}
			return "", fmt.Errorf("reading token: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
}

// StaticTokenSource always returns token.
func StaticTokenSource(token string) TokenSource {
	return func() (string, error) { return token, nil }
}

// HTTPRemote talks to a `fade serve` instance. The server derives the owner
// from the bearer token; the owner argument is validated but not sent.
type HTTPRemote struct {
	name    string
	baseURL string
	token   TokenSource
	client  *http.Client
}

// NewHTTPRemote creates a client for the sync server at baseURL.
func NewHTTPRemote(name, baseURL string, token TokenSource, client *http.Client) (*HTTPRemote, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid http_url %q", baseURL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPRemote{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/") + "/api/v1",
		token:   token,
		client:  client,
	}, nil
}

func (h *HTTPRemote) PutEntry(ctx context.Context, owner string, entry *fade.RemoteEntry) error {
	if err := validSegments("owner", owner, "entry id", entry.ID); err != nil {
		return err
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding entry: %w", err)
	}
	resp, err := h.do(ctx, http.MethodPut, "/entries/"+url.PathEscape(entry.ID), bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (h *HTTPRemote) ListEntries(ctx context.Context, owner string) ([]*fade.RemoteEntry, error) {
	if err := validSegment("owner", owner); err != nil {
		return nil, err
	}
	resp, err := h.do(ctx, http.MethodGet, "/entries", nil, 0)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out []*fade.RemoteEntry
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding entries: %w", err)
	}
	return out, nil
}

func (h *HTTPRemote) DeleteEntry(ctx context.Context, owner, id string) error {
	if err := validSegments("owner", owner, "entry id", id); err != nil {
		return err
	}
	resp, err := h.do(ctx, http.MethodDelete, "/entries/"+url.PathEscape(id), nil, 0)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (h *HTTPRemote) HasBlob(ctx context.Context, owner, name string) (bool, error) {
	if err := validSegments("owner", owner, "blob name", name); err != nil {
		return false, err
	}
	resp, err := h.do(ctx, http.MethodHead, "/blobs/"+url.PathEscape(name), nil, 0)
	if err != nil {
		if errors.Is(err, fade.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	resp.Body.Close()
	return true, nil
}

func (h *HTTPRemote) PutBlob(ctx context.Context, owner, name string, r io.Reader, size int64) error {
	if err := validSegments("owner", owner, "blob name", name); err != nil {
		return err
	}
	resp, err := h.do(ctx, http.MethodPut, "/blobs/"+url.PathEscape(name), r, size)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (h *HTTPRemote) GetBlob(ctx context.Context, owner, name string, w io.Writer) error {
	if err := validSegments("owner", owner, "blob name", name); err != nil {
		return err
	}
	resp, err := h.do(ctx, http.MethodGet, "/blobs/"+url.PathEscape(name), nil, 0)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("reading blob %s: %w", name, err)
	}
	return nil
}

func (h *HTTPRemote) DeleteBlob(ctx context.Context, owner, name string) error {
	if err := validSegments("owner", owner, "blob name", name); err != nil {
		return err
	}
	resp, err := h.do(ctx, http.MethodDelete, "/blobs/"+url.PathEscape(name), nil, 0)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// ValidateSetup calls the unauthenticated health endpoint.
func (h *HTTPRemote) ValidateSetup(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("sync server not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sync server health check returned %s", resp.Status)
	}
	return nil
}

// errorBody is the JSON error shape returned by the sync server.
type errorBody struct {
	Error string `json:"error"`
}

// do sends an authenticated request and maps non-2xx responses to errors.
// 404 maps to fade.ErrNotFound and 401 to fade.ErrSignedOut.
func (h *HTTPRemote) do(ctx context.Context, method, p string, body io.Reader, size int64) (*http.Response, error) {
	token, err := h.token()
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+p, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.ContentLength = size
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, p, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	var eb errorBody
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&eb)
	msg := eb.Error
	if msg == "" {
		msg = resp.Status
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s %s: %s", fade.ErrNotFound, method, p, msg)
	case http.StatusUnauthorized:
		return nil, fmt.Errorf("%w: %s", fade.ErrSignedOut, msg)
	case http.StatusBadRequest:
		return nil, fmt.Errorf("%w: %s", fade.ErrValidationFailed, msg)
	default:
		return nil, fmt.Errorf("%s %s: %s", method, p, msg)
	}
}

// Compile-time check that HTTPRemote implements fade.Remote interface
var _ fade.Remote = (*HTTPRemote)(nil)
