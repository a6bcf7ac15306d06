package backer

import (
	"database/sql"
	"iter"
	"time"
)

// HiddenTag is the well-known tag seeded at catalog initialization.
// Files carrying it (or any other tag flagged hidden) are excluded from
// visible listings.
const HiddenTag = "hidden"

// File is a content-addressed catalog entry. Exactly one File exists per hash.
type File struct {
	ID        int64
	Hash      string
	Date      sql.NullTime
	Thumbnail []byte
}

// FileInfo is the payload of an upsert: what Stage 1 learned about the bytes
// found at one location.
type FileInfo struct {
	Hash      string
	Date      sql.NullTime
	Thumbnail []byte
}

// Location points one (marker, relative path) slot at a content hash.
type Location struct {
	Marker       string
	RelativePath string
	Hash         string
	FileID       int64
}

// Tag is a label attachable to files.
type Tag struct {
	ID     int64
	Name   string
	Hidden bool
}

// TagCount reports how many of a given set of files carry a tag.
type TagCount struct {
	Name   string
	Hidden bool
	Count  int
}

// Selection is the tri-state of a tag over a multi-file selection.
type Selection int

const (
	SelectionNone Selection = iota
	SelectionMixed
	SelectionAll
)

func (s Selection) String() string {
	switch s {
	case SelectionAll:
		return "all"
	case SelectionMixed:
		return "mixed"
	default:
		return "none"
	}
}

// Selection returns the tri-state for a selection of total files.
func (tc TagCount) Selection(total int) Selection {
	switch {
	case tc.Count == 0:
		return SelectionNone
	case tc.Count >= total:
		return SelectionAll
	default:
		return SelectionMixed
	}
}

// ScanRun records one CLI operation that touched the catalog.
type ScanRun struct {
	ID         string
	Operation  string
	StartedAt  time.Time
	FinishedAt sql.NullTime
	Status     string
}

// Catalog is the system of record for files, locations and tags.
// Implementations must be safe for concurrent use; each method is one
// serialized unit of work.
type Catalog interface {
	// Initialize creates or migrates the schema and seeds the hidden tag.
	// Safe to call on every process start.
	Initialize() error

	// LocationExists reports whether (marker, relativePath) is catalogued.
	LocationExists(marker, relativePath string) (bool, error)

	// Upsert records that the bytes described by info live at (marker, relativePath).
	// The file row for info.Hash is created or updated: a non-null date replaces
	// the stored one, a null date never clears it, and the thumbnail is always
	// overwritten. The location is created or repointed at info.Hash.
	Upsert(marker, relativePath string, info *FileInfo) error

	// RemoveLocation deletes the location only. The file row survives.
	RemoveLocation(marker, relativePath string) error

	// Locations yields every location of marker. Each page is fetched under
	// the catalog lock; removing the yielded location while iterating is allowed.
	Locations(marker string) iter.Seq2[Location, error]

	// VisibleFileIDs returns ids of files without a hidden tag, ordered by
	// date with null dates first, ties broken by id.
	VisibleFileIDs(offset, limit int) ([]int64, error)

	// TagCounts returns, for every tag, how many of fileIDs carry it.
	TagCounts(fileIDs []int64) ([]TagCount, error)

	// Gallery queries

	// File returns a file by id, or nil if it does not exist.
	File(id int64) (*File, error)

	// FileByHash returns a file by content hash, or nil if it does not exist.
	FileByHash(hash string) (*File, error)

	// FileLocations returns the locations of a file ordered by marker, then path.
	FileLocations(fileID int64) ([]Location, error)

	// FileCount returns the number of files in the catalog.
	FileCount() (int, error)

	// VisibleFileCount returns the number of files without a hidden tag.
	VisibleFileCount() (int, error)

	// Tag operations

	// CreateTag creates a tag, or updates the hidden flag of an existing one.
	CreateTag(name string, hidden bool) (*Tag, error)

	// Tags returns all tags ordered by name.
	Tags() ([]Tag, error)

	// TagFiles attaches a tag to files. Already tagged files are left alone.
	TagFiles(tagName string, fileIDs []int64) error

	// UntagFiles detaches a tag from files.
	UntagFiles(tagName string, fileIDs []int64) error

	// Scan run operations

	CreateScanRun(run *ScanRun) error
	FinishScanRun(id string, status string, finishedAt time.Time) error
	ListScanRuns(limit int) ([]ScanRun, error)

	// BackupTo writes a consistent copy of the catalog to destPath.
	BackupTo(destPath string) error

	// Close closes the catalog.
	Close() error
}
