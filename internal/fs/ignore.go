package fs

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// IgnoreFileName is the per-directory ignore file honored when attaching a directory.
const IgnoreFileName = ".fadeignore"

// DefaultIgnorePatterns are always applied when collecting attachments.
var DefaultIgnorePatterns = []string{IgnoreFileName, ".DS_Store", "Thumbs.db", "desktop.ini"}

type ignorePattern struct {
	pattern   string
	matchPath bool // match against the relative path rather than the basename
}

// IgnoreMatcher checks attachment candidates against glob patterns.
// Patterns without '/' match a basename anywhere in the tree; patterns with
// '/' match the slash-separated path relative to the attached directory.
type IgnoreMatcher struct {
	patterns []ignorePattern
}

// NewIgnoreMatcher creates an IgnoreMatcher from raw pattern strings.
// Blank lines and lines starting with '#' are skipped. Malformed globs are
// rejected up front so a typo does not silently attach everything.
func NewIgnoreMatcher(rawPatterns []string) (*IgnoreMatcher, error) {
	m := &IgnoreMatcher{}
	if err := m.Add(rawPatterns...); err != nil {
		return nil, err
	}
	return m, nil
}

// Add appends patterns to the matcher.
func (m *IgnoreMatcher) Add(rawPatterns ...string) error {
	for _, raw := range rawPatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		raw = strings.TrimSuffix(raw, "/")
		if _, err := filepath.Match(raw, ""); err != nil {
			return fmt.Errorf("invalid ignore pattern %q: %w", raw, err)
		}
		m.patterns = append(m.patterns, ignorePattern{
			pattern:   raw,
			matchPath: strings.Contains(raw, "/"),
		})
	}
	return nil
}

// Match reports whether relativePath, a file or directory under the attached
// root, should be skipped.
func (m *IgnoreMatcher) Match(relativePath string) bool {
	normalized := filepath.ToSlash(relativePath)
	basename := filepath.Base(relativePath)

	for _, p := range m.patterns {
		target := basename
		if p.matchPath {
			target = normalized
		}
		if ok, _ := filepath.Match(p.pattern, target); ok {
			return true
		}
	}
	return false
}

// Len returns the number of active patterns.
func (m *IgnoreMatcher) Len() int {
	return len(m.patterns)
}

// ParseIgnoreFile reads an ignore file and returns the raw pattern lines.
// Returns nil and no error if the file does not exist.
func ParseIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		patterns = append(patterns, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return patterns, nil
}
