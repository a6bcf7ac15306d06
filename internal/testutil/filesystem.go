package testutil

import (
	"fmt"
	"io/fs"
	"iter"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"backer-go/internal/backer"
	bfs "backer-go/internal/fs"
)

// MockFile represents a file in the mock filesystem.
type MockFile struct {
	Content []byte
	Symlink bool
	// ReadErr is returned by ReadFile instead of the content.
	ReadErr error
	// WalkErr is yielded by Walk in place of the path.
	WalkErr error
}

// MockFilesystemManager is an in-memory filesystem for testing.
// Paths are keyed as given, so tests should build them with filepath.Join.
type MockFilesystemManager struct {
	mu      sync.Mutex
	files   map[string]*MockFile
	matcher bfs.Matcher
	reads   map[string]int
}

// NewMockFilesystemManager creates a new mock filesystem whose walks yield JPEG files.
func NewMockFilesystemManager() *MockFilesystemManager {
	return &MockFilesystemManager{
		files:   make(map[string]*MockFile),
		matcher: bfs.DefaultMatcher(),
		reads:   make(map[string]int),
	}
}

// AddFile adds or replaces a regular file.
func (m *MockFilesystemManager) AddFile(path string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = &MockFile{Content: content}
}

// AddSymlink adds a symbolic link.
func (m *MockFilesystemManager) AddSymlink(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = &MockFile{Symlink: true}
}

// SetReadError makes ReadFile fail for path. The file must exist.
func (m *MockFilesystemManager) SetReadError(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path].ReadErr = err
}

// SetWalkError makes Walk yield err where path would appear.
func (m *MockFilesystemManager) SetWalkError(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path].WalkErr = err
}

// Remove deletes a file.
func (m *MockFilesystemManager) Remove(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
}

// Reads returns how many times ReadFile was called for path.
func (m *MockFilesystemManager) Reads(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads[path]
}

func (m *MockFilesystemManager) ReadFile(path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reads[path]++
	file, ok := m.files[path]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	if file.ReadErr != nil {
		return nil, file.ReadErr
	}
	if file.Symlink {
		return nil, fmt.Errorf("cannot read symlink: %s", path)
	}
	return append([]byte(nil), file.Content...), nil
}

// Walk yields the files under root in lexical order.
func (m *MockFilesystemManager) Walk(root string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		type entry struct {
			rel  string
			file MockFile
		}

		m.mu.Lock()
		prefix := strings.TrimSuffix(root, string(filepath.Separator)) + string(filepath.Separator)
		var entries []entry
		for path, file := range m.files {
			if strings.HasPrefix(path, prefix) {
				entries = append(entries, entry{rel: strings.TrimPrefix(path, prefix), file: *file})
			}
		}
		m.mu.Unlock()

		sort.Slice(entries, func(i, j int) bool { return entries[i].rel < entries[j].rel })

		for _, e := range entries {
			var err error
			switch {
			case e.file.WalkErr != nil:
				err = e.file.WalkErr
			case e.file.Symlink:
				err = &bfs.SymlinkError{Path: filepath.ToSlash(e.rel)}
			}
			if err != nil {
				if !yield("", err) {
					return
				}
				continue
			}

			info := &mockFileInfo{name: filepath.Base(e.rel), size: int64(len(e.file.Content))}
			if !m.matcher.Match(fs.FileInfoToDirEntry(info)) {
				continue
			}
			if !yield(filepath.ToSlash(e.rel), nil) {
				return
			}
		}
	}
}

// mockFileInfo implements fs.FileInfo for regular files.
type mockFileInfo struct {
	name string
	size int64
}

func (m *mockFileInfo) Name() string       { return m.name }
func (m *mockFileInfo) Size() int64        { return m.size }
func (m *mockFileInfo) Mode() fs.FileMode  { return 0644 }
func (m *mockFileInfo) ModTime() time.Time { return time.Time{} }
func (m *mockFileInfo) IsDir() bool        { return false }
func (m *mockFileInfo) Sys() any           { return nil }

// Compile-time check
var _ backer.FilesystemManager = (*MockFilesystemManager)(nil)
