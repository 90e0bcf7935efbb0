package remote

import (
	"fmt"
	"strings"

	"fade-go/internal/fade"
)

// validSegment rejects values that cannot be used as a single path or key segment.
func validSegment(kind, value string) error {
	if value == "" || value == "." || value == ".." ||
		strings.ContainsAny(value, `/\`) || strings.ContainsRune(value, 0) {
		return fmt.Errorf("%w: invalid %s %q", fade.ErrValidationFailed, kind, value)
	}
	return nil
}

func validSegments(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if err := validSegment(pairs[i], pairs[i+1]); err != nil {
			return err
		}
	}
	return nil
}
