package identity

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"fade-go/internal/config"
	"fade-go/internal/fade"
)

// StaticIdentity reports a fixed user id. An empty id means signed out.
type StaticIdentity struct {
	UserID string
}

func (s StaticIdentity) CurrentUserID() (string, bool) {
	return s.UserID, s.UserID != ""
}

// TokenIdentity reads a signed token from disk on every call. A missing,
// expired or tampered token means signed out.
type TokenIdentity struct {
	path   string
	secret []byte
	clock  fade.Clock
	logger fade.Logger
}

// NewTokenIdentity creates a TokenIdentity for the token file at path.
func NewTokenIdentity(path string, secret []byte, clock fade.Clock, logger fade.Logger) *TokenIdentity {
	return &TokenIdentity{path: path, secret: secret, clock: clock, logger: logger}
}

func (t *TokenIdentity) CurrentUserID() (string, bool) {
	data, err := os.ReadFile(t.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			t.logger.Warn("reading token file", "path", t.path, "error", err)
		}
		return "", false
	}
	subject, err := Verify(strings.TrimSpace(string(data)), t.secret, t.clock.Now())
	if err != nil {
		t.logger.Info("token rejected, treating as signed out", "error", err)
		return "", false
	}
	return subject, true
}

// NewIdentityFromConfig creates an Identity implementation based on the identity config type.
func NewIdentityFromConfig(cfg config.IdentityConfig, clock fade.Clock, logger fade.Logger) (fade.Identity, error) {
	switch cfg.Type {
	case "", "static":
		return StaticIdentity{UserID: cfg.UserID}, nil
	case "token":
		if cfg.TokenPath == "" {
			return nil, fmt.Errorf("token identity requires token_path to be set")
		}
		if cfg.Secret == "" {
			return nil, fmt.Errorf("token identity requires secret to be set")
		}
		return NewTokenIdentity(cfg.TokenPath, []byte(cfg.Secret), clock, logger), nil
	default:
		return nil, fmt.Errorf("unknown identity type: %s", cfg.Type)
	}
}

// Compile-time checks that both identities implement fade.Identity interface
var (
	_ fade.Identity = StaticIdentity{}
	_ fade.Identity = (*TokenIdentity)(nil)
)
