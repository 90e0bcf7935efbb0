package app

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"fade-go/internal/config"
	"fade-go/internal/fade"
	"fade-go/internal/remote"
	"fade-go/internal/server"
)

// SyncServer is a configured `fade serve` instance.
type SyncServer struct {
	HTTP    *http.Server
	Logger  fade.Logger
	logFile *os.File
}

// NewSyncServer builds the HTTP sync service from the [server] config section.
func NewSyncServer(ctx context.Context, cfg *config.Config, version string, stderr io.Writer) (*SyncServer, error) {
	if cfg.Server.Secret == "" {
		return nil, fmt.Errorf("server.secret must be set to verify tokens")
	}
	switch cfg.Server.Storage.Type {
	case "", "none", "http":
		return nil, fmt.Errorf("server.storage: unsupported type %q", cfg.Server.Storage.Type)
	}

	session := NewSession("serve", time.Now())
	slogger, logFile, err := newLogger(cfg.LogDir, session.ID, cfg.LogLevel, stderr)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	backend, err := remote.NewRemoteFromConfig(ctx, cfg.Server.Storage)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating server storage: %w", err)
	}
	if err := backend.ValidateSetup(ctx); err != nil {
		logFile.Close()
		return nil, fmt.Errorf("validating server storage: %w", err)
	}

	handler := server.New(backend, []byte(cfg.Server.Secret), fade.RealClock{}, logger, version)
	return &SyncServer{
		HTTP: &http.Server{
			Addr:              net.JoinHostPort(cfg.Server.Bind, strconv.Itoa(cfg.Server.Port)),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		Logger:  logger,
		logFile: logFile,
	}, nil
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *SyncServer) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.Logger.Info("sync server listening", "addr", s.HTTP.Addr)
		errCh <- s.HTTP.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.Logger.Info("sync server shutting down")
	if err := s.HTTP.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

// Close releases the log file.
func (s *SyncServer) Close() error {
	if s.logFile != nil {
		return s.logFile.Close()
	}
	return nil
}
