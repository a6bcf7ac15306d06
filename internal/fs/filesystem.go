package fs

import (
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"

	"backer-go/internal/backer"
)

// IgnoreFileName is the per-tree ignore file read from a tree's root.
const IgnoreFileName = ".backerignore"

// SymlinkError is yielded for symbolic links found during a walk.
// Links are never followed.
type SymlinkError struct {
	Path string
}

func (e *SymlinkError) Error() string {
	return fmt.Sprintf("symlinks not supported: %s", e.Path)
}

// OSFilesystemManager is the real filesystem implementation of FilesystemManager.
type OSFilesystemManager struct {
	matcher Matcher
	ignore  []string
}

// NewOSFilesystemManager creates a filesystem manager whose walks yield the
// files accepted by matcher and not excluded by ignorePatterns.
// A nil matcher selects DefaultMatcher.
func NewOSFilesystemManager(matcher Matcher, ignorePatterns []string) *OSFilesystemManager {
	if matcher == nil {
		matcher = DefaultMatcher()
	}
	return &OSFilesystemManager{matcher: matcher, ignore: ignorePatterns}
}

// ReadFile returns the contents of the file at path.
func (m *OSFilesystemManager) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Walk enumerates matching regular files under root in lexical order.
func (m *OSFilesystemManager) Walk(root string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ignore, err := m.ignoreFor(root)
		if err != nil {
			if !yield("", err) {
				return
			}
			ignore = NewIgnoreMatcher(m.ignore)
		}

		filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				if !yield("", fmt.Errorf("walking %s: %w", p, err)) {
					return fs.SkipAll
				}
				return nil
			}
			if p == root {
				return nil
			}

			rel, err := filepath.Rel(root, p)
			if err != nil {
				if !yield("", fmt.Errorf("relative path of %s: %w", p, err)) {
					return fs.SkipAll
				}
				return nil
			}

			if ignore.Match(rel) {
				if d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}

			switch {
			case d.IsDir():
				return nil
			case d.Type()&fs.ModeSymlink != 0:
				if !yield("", &SymlinkError{Path: filepath.ToSlash(rel)}) {
					return fs.SkipAll
				}
				return nil
			case !d.Type().IsRegular():
				return nil
			}

			if !m.matcher.Match(d) {
				return nil
			}
			if !yield(filepath.ToSlash(rel), nil) {
				return fs.SkipAll
			}
			return nil
		})
	}
}

// ignoreFor combines the configured patterns with the tree's own ignore file.
func (m *OSFilesystemManager) ignoreFor(root string) (*IgnoreMatcher, error) {
	local, err := ParseIgnoreFile(filepath.Join(root, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	patterns := append(append([]string{}, m.ignore...), local...)
	return NewIgnoreMatcher(patterns), nil
}

// Compile-time check that OSFilesystemManager implements backer.FilesystemManager interface
var _ backer.FilesystemManager = (*OSFilesystemManager)(nil)
