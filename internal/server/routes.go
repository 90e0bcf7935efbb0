package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fade-go/internal/fade"
)

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := s.backend.ListEntries(r.Context(), ownerFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []*fade.RemoteEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handlePutEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var entry fade.RemoteEntry
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEntryBytes)).Decode(&entry); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if entry.ID == "" {
		entry.ID = id
	}
	if entry.ID != id {
		writeError(w, http.StatusBadRequest, "entry id does not match path")
		return
	}

	if err := s.backend.PutEntry(r.Context(), ownerFrom(r.Context()), &entry); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.DeleteEntry(r.Context(), ownerFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHasBlob(w http.ResponseWriter, r *http.Request) {
	ok, err := s.backend.HasBlob(r.Context(), ownerFrom(r.Context()), chi.URLParam(r, "name"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleGetBlob(w http.ResponseWriter, r *http.Request) {
	owner, name := ownerFrom(r.Context()), chi.URLParam(r, "name")

	ok, err := s.backend.HasBlob(r.Context(), owner, name)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "blob not found")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	if err := s.backend.GetBlob(r.Context(), owner, name, w); err != nil {
		// Headers are already sent; the client sees a truncated body.
		s.logger.Error("streaming blob", "owner", owner, "blob", name, "error", err)
	}
}

func (s *Server) handlePutBlob(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength < 0 {
		writeError(w, http.StatusLengthRequired, "content length required")
		return
	}
	err := s.backend.PutBlob(r.Context(), ownerFrom(r.Context()), chi.URLParam(r, "name"), r.Body, r.ContentLength)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteBlob(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.DeleteBlob(r.Context(), ownerFrom(r.Context()), chi.URLParam(r, "name")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// fail maps backend errors to status codes.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, fade.ErrValidationFailed):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, fade.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
