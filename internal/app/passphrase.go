package app

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ReadPassphrase returns the passphrase from FADE_PASSPHRASE, or prompts for
// it on the terminal without echo. When in is not a terminal, one line is read
// from it instead.
func ReadPassphrase(prompt string, in *os.File, out io.Writer) (string, error) {
	if p := os.Getenv(PassphraseEnv); p != "" {
		return p, nil
	}

	fmt.Fprint(out, prompt)
	fd := int(in.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// IsInteractive reports whether f is a terminal.
func IsInteractive(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
