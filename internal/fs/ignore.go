package fs

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// defaultIgnorePatterns apply to every tree.
var defaultIgnorePatterns = []string{IgnoreFileName}

type ignorePattern struct {
	glob      string
	wholePath bool // match the slash-separated relative path instead of the basename
}

// IgnoreMatcher excludes files and directories from walks.
// A pattern containing '/' is matched against the relative path from the
// tree root; any other pattern is matched against the basename. An ignored
// directory hides its whole subtree.
type IgnoreMatcher struct {
	patterns []ignorePattern
}

// NewIgnoreMatcher parses raw patterns. Blank lines and '#' comments are skipped.
func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	m := &IgnoreMatcher{}
	for _, raw := range append(append([]string{}, defaultIgnorePatterns...), rawPatterns...) {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		m.patterns = append(m.patterns, ignorePattern{
			glob:      strings.TrimSuffix(raw, "/"),
			wholePath: strings.Contains(strings.TrimSuffix(raw, "/"), "/"),
		})
	}
	return m
}

// Match reports whether relativePath is ignored. Either separator style is accepted.
func (m *IgnoreMatcher) Match(relativePath string) bool {
	if relativePath == "" {
		return false
	}
	slashed := filepath.ToSlash(relativePath)
	base := path.Base(slashed)

	for _, p := range m.patterns {
		subject := base
		if p.wholePath {
			subject = slashed
		}
		// Malformed globs never match.
		if ok, err := path.Match(p.glob, subject); err == nil && ok {
			return true
		}
	}
	return false
}

// ParseIgnoreFile returns the raw lines of an ignore file, or nil if it does not exist.
func ParseIgnoreFile(filename string) ([]string, error) {
	f, err := os.Open(filename)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return lines, nil
}
