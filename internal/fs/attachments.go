package fs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"fade-go/internal/fade"
)

// AttachmentFile is a regular file selected for attaching to an entry.
type AttachmentFile struct {
	// Name is the attachment name shown to the user: the basename for a
	// single file, or the slash path relative to the attached directory.
	Name string
	Path string
	Size int64
}

// Collector resolves user-supplied paths into attachment files.
type Collector struct {
	patterns []string
}

// NewCollector creates a Collector applying DefaultIgnorePatterns plus extra.
func NewCollector(extra []string) *Collector {
	patterns := append([]string{}, DefaultIgnorePatterns...)
	return &Collector{patterns: append(patterns, extra...)}
}

// Collect resolves each raw path. A file becomes one attachment; a directory
// contributes its regular files, recursively when recursive is set, minus
// ignored ones and anything listed in the directory's .fadeignore. Symlinks,
// devices, pipes and sockets are rejected when named directly and skipped
// inside directories.
func (c *Collector) Collect(rawPaths []string, recursive bool) ([]AttachmentFile, error) {
	var out []AttachmentFile
	seen := make(map[string]bool)

	for _, raw := range rawPaths {
		abs, err := filepath.Abs(raw)
		if err != nil {
			return nil, fmt.Errorf("resolving absolute path: %w", err)
		}
		info, err := os.Lstat(abs)
		if err != nil {
			return nil, fmt.Errorf("%w: stat %s: %w", fade.ErrAttachmentIO, raw, err)
		}
		if err := checkMode(abs, info.Mode()); err != nil {
			return nil, err
		}

		var files []AttachmentFile
		if info.IsDir() {
			files, err = c.collectDir(abs, recursive)
			if err != nil {
				return nil, err
			}
		} else {
			files = []AttachmentFile{{Name: filepath.Base(abs), Path: abs, Size: info.Size()}}
		}

		for _, f := range files {
			if seen[f.Path] {
				continue
			}
			seen[f.Path] = true
			out = append(out, f)
		}
	}
	return out, nil
}

func (c *Collector) collectDir(root string, recursive bool) ([]AttachmentFile, error) {
	local, err := ParseIgnoreFile(filepath.Join(root, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	matcher, err := NewIgnoreMatcher(append(append([]string{}, c.patterns...), local...))
	if err != nil {
		return nil, err
	}

	var files []AttachmentFile
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !recursive || matcher.Match(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || matcher.Match(rel) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", p, err)
		}
		files = append(files, AttachmentFile{Name: filepath.ToSlash(rel), Path: p, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: walking %s: %w", fade.ErrAttachmentIO, root, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func checkMode(path string, mode fs.FileMode) error {
	switch {
	case mode&os.ModeSymlink != 0:
		return fmt.Errorf("%w: symlinks not supported: %s", fade.ErrValidationFailed, path)
	case mode&os.ModeDevice != 0:
		return fmt.Errorf("%w: device files not supported: %s", fade.ErrValidationFailed, path)
	case mode&os.ModeNamedPipe != 0:
		return fmt.Errorf("%w: named pipes not supported: %s", fade.ErrValidationFailed, path)
	case mode&os.ModeSocket != 0:
		return fmt.Errorf("%w: sockets not supported: %s", fade.ErrValidationFailed, path)
	}
	return nil
}

// OpenSources opens every file for reading. The returned close function
// releases all of them and must be called once the entry has been saved.
func OpenSources(files []AttachmentFile) ([]fade.AttachmentSource, func() error, error) {
	var (
		sources []fade.AttachmentSource
		closers []io.Closer
	)
	closeAll := func() error {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c.Close())
		}
		return errors.Join(errs...)
	}

	for _, f := range files {
		fh, err := os.Open(f.Path)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("%w: opening %s: %w", fade.ErrAttachmentIO, f.Path, err)
		}
		closers = append(closers, fh)
		sources = append(sources, fade.AttachmentSource{Name: f.Name, Reader: fh})
	}
	return sources, closeAll, nil
}
