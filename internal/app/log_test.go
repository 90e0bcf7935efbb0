package app

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestFadeHandler_Handle(t *testing.T) {
	ts := time.Date(2024, 6, 15, 14, 30, 45, 0, time.UTC)

	tests := []struct {
		name      string
		sessionID string
		level     slog.Level
		message   string
		attrs     []slog.Attr
		want      string
	}{
		{
			name:      "basic info message",
			sessionID: "s-123",
			level:     slog.LevelInfo,
			message:   "entry created",
			want:      "2024-06-15T14:30:45Z\tINFO\ts-123\tentry created\n",
		},
		{
			name:      "debug level",
			sessionID: "s-456",
			level:     slog.LevelDebug,
			message:   "sync started",
			want:      "2024-06-15T14:30:45Z\tDEBUG\ts-456\tsync started\n",
		},
		{
			name:      "with record attrs",
			sessionID: "s-789",
			level:     slog.LevelWarn,
			message:   "dropping attachment",
			attrs:     []slog.Attr{slog.String("name", "beach.jpg"), slog.Int("size", 42)},
			want:      "2024-06-15T14:30:45Z\tWARN\ts-789\tdropping attachment\tname=beach.jpg\tsize=42\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := &fadeHandler{w: &buf, sessionID: tt.sessionID}

			r := slog.NewRecord(ts, tt.level, tt.message, 0)
			for _, a := range tt.attrs {
				r.AddAttrs(a)
			}

			if err := h.Handle(context.Background(), r); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}

			if got := buf.String(); got != tt.want {
				t.Errorf("Handle() output =\n%q\nwant:\n%q", got, tt.want)
			}
		})
	}
}

func TestFadeHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := &fadeHandler{mu: &sync.Mutex{}, w: &buf, sessionID: "s-1"}

	h2 := h.WithAttrs([]slog.Attr{slog.String("component", "sync")}).(*fadeHandler)

	r := slog.NewRecord(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), slog.LevelInfo, "upload", 0)
	r.AddAttrs(slog.String("entry", "abc"))

	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "component=sync") {
		t.Errorf("expected pre-set attr component=sync, got: %q", got)
	}
	if !strings.Contains(got, "entry=abc") {
		t.Errorf("expected record attr entry=abc, got: %q", got)
	}
	if len(h.attrs) != 0 {
		t.Errorf("original handler attrs modified: got %d, want 0", len(h.attrs))
	}
}

func TestFadeHandler_Enabled(t *testing.T) {
	h := &fadeHandler{level: slog.LevelWarn}

	tests := []struct {
		level slog.Level
		want  bool
	}{
		{slog.LevelDebug, false},
		{slog.LevelInfo, false},
		{slog.LevelWarn, true},
		{slog.LevelError, true},
	}
	for _, tt := range tests {
		if got := h.Enabled(context.Background(), tt.level); got != tt.want {
			t.Errorf("Enabled(%v) = %v, want %v", tt.level, got, tt.want)
		}
	}

	if !(&fadeHandler{}).Enabled(context.Background(), slog.LevelDebug) {
		t.Error("handler without level should enable everything")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"chatty":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	dir := t.TempDir()
	var stderr bytes.Buffer

	logger, f, err := newLogger(dir, "test-session", "info", &stderr)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}

	logger.Debug("hidden")
	logger.Info("visible", "k", "v")
	f.Close()

	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if strings.Contains(string(data), "hidden") {
		t.Error("debug record written at info level")
	}
	if !strings.Contains(string(data), "visible\tk=v") {
		t.Errorf("log file = %q, want visible record", data)
	}
	if stderr.String() != string(data) {
		t.Errorf("stderr = %q, want same as log file", stderr.String())
	}
}
