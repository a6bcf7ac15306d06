package backer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"
)

// TreeErrorKind distinguishes an absent tree from a broken one.
type TreeErrorKind int

const (
	// TreeNotFound means the marker file is absent, e.g. the drive is not mounted.
	TreeNotFound TreeErrorKind = iota
	// TreeOther means the marker file exists but could not be read or decoded.
	TreeOther
)

// TreeError is returned when a tree cannot be opened from its marker file.
type TreeError struct {
	Kind TreeErrorKind
	Path string
	Err  error
}

func (e *TreeError) Error() string {
	if e.Kind == TreeNotFound {
		return fmt.Sprintf("tree not found: %s", e.Path)
	}
	return fmt.Sprintf("opening tree %s: %v", e.Path, e.Err)
}

func (e *TreeError) Unwrap() error { return e.Err }

// IsTreeNotFound reports whether err is a TreeError for an absent marker file.
func IsTreeNotFound(err error) bool {
	var te *TreeError
	return errors.As(err, &te) && te.Kind == TreeNotFound
}

// Tree is a marker-rooted directory tree.
type Tree struct {
	// Root is the directory containing the marker file.
	Root string
	// Marker is the stable identity of the tree, independent of Root.
	Marker string
	// MarkerPath is the marker file the tree was opened from.
	MarkerPath string
	// Index is the tree's position in the scan run. Its last digit is the
	// progress tick for ingested files.
	Index int
}

// Abs returns the filesystem path of a slash-separated path relative to the root.
func (t *Tree) Abs(relativePath string) string {
	return filepath.Join(t.Root, filepath.FromSlash(path.Clean(relativePath)))
}

type markerFile struct {
	ID string `json:"id"`
}

// ResolveMarker reads the marker file at markerPath and opens its tree.
func ResolveMarker(fsmgr FilesystemManager, markerPath string) (*Tree, error) {
	data, err := fsmgr.ReadFile(markerPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &TreeError{Kind: TreeNotFound, Path: markerPath, Err: err}
		}
		return nil, &TreeError{Kind: TreeOther, Path: markerPath, Err: err}
	}

	var mf markerFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, &TreeError{Kind: TreeOther, Path: markerPath, Err: fmt.Errorf("decoding marker: %w", err)}
	}
	id := strings.TrimSpace(mf.ID)
	if id == "" {
		return nil, &TreeError{Kind: TreeOther, Path: markerPath, Err: errors.New("marker has no id")}
	}

	return &Tree{
		Root:       filepath.Dir(markerPath),
		Marker:     id,
		MarkerPath: markerPath,
	}, nil
}
