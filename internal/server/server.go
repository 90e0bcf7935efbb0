package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"fade-go/internal/fade"
)

// maxEntryBytes bounds the size of a single JSON entry record.
const maxEntryBytes = 8 << 20

// Server is the fade sync HTTP API. It exposes a fade.Remote over HTTP with
// every record and blob scoped to the owner named in the bearer token.
type Server struct {
	backend fade.Remote
	secret  []byte
	clock   fade.Clock
	logger  fade.Logger
	router  chi.Router
	version string
	started time.Time
}

// New creates a new Server that stores data in backend and verifies tokens with secret.
func New(backend fade.Remote, secret []byte, clock fade.Clock, logger fade.Logger, version string) *Server {
	s := &Server{
		backend: backend,
		secret:  secret,
		clock:   clock,
		logger:  logger,
		version: version,
		started: clock.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Get("/entries", s.handleListEntries)
			r.Put("/entries/{id}", s.handlePutEntry)
			r.Delete("/entries/{id}", s.handleDeleteEntry)

			r.Head("/blobs/{name}", s.handleHasBlob)
			r.Get("/blobs/{name}", s.handleGetBlob)
			r.Put("/blobs/{name}", s.handlePutBlob)
			r.Delete("/blobs/{name}", s.handleDeleteBlob)
		})
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	backendOK := s.backend.ValidateSetup(r.Context()) == nil

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  s.clock.Now().Sub(s.started).Seconds(),
		"storage": backendOK,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
