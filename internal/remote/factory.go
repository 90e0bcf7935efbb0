package remote

import (
	"context"
	"fmt"

	"fade-go/internal/config"
	"fade-go/internal/fade"
)

// NewRemoteFromConfig creates a Remote implementation based on the remote config type.
// Type "none" (or empty) returns a nil Remote and no error: sync is disabled.
func NewRemoteFromConfig(ctx context.Context, cfg config.RemoteConfig) (fade.Remote, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "memory":
		return NewMemoryRemote(cfg.Name), nil
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem remote requires fs_root to be set")
		}
		return NewFileSystemRemote(cfg.Name, cfg.FSRoot)
	case "s3":
		return NewS3Remote(ctx, cfg)
	case "http":
		if cfg.TokenPath == "" {
			return nil, fmt.Errorf("http remote requires token_path to be set")
		}
		return NewHTTPRemote(cfg.Name, cfg.HTTPURL, FileTokenSource(cfg.TokenPath), nil)
	default:
		return nil, fmt.Errorf("unknown remote type: %s", cfg.Type)
	}
}
