package fs

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// Matcher decides whether a directory entry should be scanned.
// Implementations only look at the entry itself.
type Matcher interface {
	Match(entry fs.DirEntry) bool
}

// MatcherFunc adapts a function to Matcher.
type MatcherFunc func(entry fs.DirEntry) bool

func (f MatcherFunc) Match(entry fs.DirEntry) bool { return f(entry) }

// AnyMatcher accepts an entry if any of its matchers does.
// An empty AnyMatcher accepts nothing.
type AnyMatcher []Matcher

func (a AnyMatcher) Match(entry fs.DirEntry) bool {
	for _, m := range a {
		if m.Match(entry) {
			return true
		}
	}
	return false
}

// ExtensionMatcher accepts files whose extension is in its set, ignoring case.
// Names without an extension, including dotfiles such as ".jpg", never match.
type ExtensionMatcher struct {
	exts map[string]struct{}
}

// NewExtensionMatcher creates a matcher for the given extensions, with or
// without a leading dot.
func NewExtensionMatcher(extensions ...string) *ExtensionMatcher {
	exts := make(map[string]struct{}, len(extensions))
	for _, e := range extensions {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		if e != "" {
			exts[e] = struct{}{}
		}
	}
	return &ExtensionMatcher{exts: exts}
}

// DefaultMatcher accepts JPEG files.
func DefaultMatcher() Matcher {
	return AnyMatcher{NewExtensionMatcher("jpg", "jpeg")}
}

func (m *ExtensionMatcher) Match(entry fs.DirEntry) bool {
	name := entry.Name()
	ext := filepath.Ext(name)
	if ext == "" || ext == name {
		return false
	}
	_, ok := m.exts[strings.ToLower(ext[1:])]
	return ok
}
