package app

import (
	"bytes"
	"testing"

	"fade-go/internal/fade"
)

func TestTerminalNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewTerminalNotifier(&buf, fade.NewNopLogger())

	n.RequestNotification("A memory is fading", `"Beach" is fading.`)

	want := "[A memory is fading] \"Beach\" is fading.\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}
