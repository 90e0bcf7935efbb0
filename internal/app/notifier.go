package app

import (
	"fmt"
	"io"
	"sync"

	"fade-go/internal/fade"
)

// TerminalNotifier prints notification requests to a writer, usually stderr
// of a running `fade watch`.
type TerminalNotifier struct {
	mu     sync.Mutex
	w      io.Writer
	logger fade.Logger
}

func NewTerminalNotifier(w io.Writer, logger fade.Logger) *TerminalNotifier {
	return &TerminalNotifier{w: w, logger: logger}
}

func (n *TerminalNotifier) RequestNotification(title, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, err := fmt.Fprintf(n.w, "[%s] %s\n", title, body); err != nil {
		n.logger.Warn("delivering notification", "error", err)
	}
}

var _ fade.Notifier = (*TerminalNotifier)(nil)
