package server

import (
	"context"
	"net/http"
	"strings"

	"fade-go/internal/identity"
)

type ownerKey struct{}

// authenticate verifies the bearer token and stores its subject as the request owner.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		owner, err := identity.Verify(token, s.secret, s.clock.Now())
		if err != nil {
			s.logger.Info("rejected token", "remote", r.RemoteAddr, "error", err)
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), ownerKey{}, owner)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ownerFrom returns the owner set by authenticate.
func ownerFrom(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey{}).(string)
	return owner
}
