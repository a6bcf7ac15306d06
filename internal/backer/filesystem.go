package backer

import "iter"

// FilesystemManager provides an interface for filesystem operations.
// It abstracts file access to enable testing without touching the real filesystem.
type FilesystemManager interface {
	// Walk enumerates the matching regular files under root. Paths are
	// relative to root and slash-separated. Symlinks and per-entry failures
	// are yielded as errors; the walk continues after them unless the
	// consumer stops. Each call starts a fresh traversal.
	Walk(root string) iter.Seq2[string, error]

	// ReadFile returns the full contents of the file at path.
	// A missing file yields an error matching fs.ErrNotExist.
	ReadFile(path string) ([]byte, error)
}
