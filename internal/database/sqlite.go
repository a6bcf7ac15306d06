package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	"backer-go/internal/backer"
	"backer-go/internal/database/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// locationPageSize is the number of locations fetched per lock acquisition
// while iterating a marker's locations.
const locationPageSize = 256

// SQLiteCatalog implements backer.Catalog on SQLite.
// Every method holds mu for the duration of its statements and no longer.
type SQLiteCatalog struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// NewSQLiteCatalog opens the catalog at path.
// path can be a file path or ":memory:" for an in-memory catalog.
// The schema is not touched; call Initialize or CheckMigrations.
func NewSQLiteCatalog(path string) (*SQLiteCatalog, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteCatalog{db: db, path: path}, nil
}

// OpenConnection opens a SQLite connection configured for the catalog.
// All access goes through a single connection, which keeps ":memory:"
// databases coherent and makes the per-connection pragmas stick.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	// SQLite leaves foreign keys off unless asked.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// Initialize migrates the schema to the latest version and seeds the hidden tag.
func (s *SQLiteCatalog) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := migrations.MigrateUp(s.db); err != nil {
		return fmt.Errorf("migrating catalog: %w", err)
	}

	_, err := s.db.Exec(
		`INSERT INTO tag (name, hidden) VALUES (?, TRUE) ON CONFLICT (name) DO NOTHING`,
		backer.HiddenTag,
	)
	if err != nil {
		return fmt.Errorf("seeding hidden tag: %w", err)
	}
	return nil
}

// CheckMigrations returns an error unless the schema is at the latest version.
func (s *SQLiteCatalog) CheckMigrations() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return migrations.CheckDBMigrationStatus(s.db)
}

// Location operations

func (s *SQLiteCatalog) LocationExists(marker, relativePath string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists bool
	err := s.db.QueryRow(
		`SELECT EXISTS (SELECT 1 FROM location WHERE backend_tag = ? AND path = ?)`,
		marker, relativePath,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking location: %w", err)
	}
	return exists, nil
}

// Upsert records info at (marker, relativePath) in one transaction.
func (s *SQLiteCatalog) Upsert(marker, relativePath string, info *backer.FileInfo) error {
	if info == nil || info.Hash == "" {
		return errors.New("upsert requires a content hash")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	// A null date never clears a known one; a new date replaces it.
	var fileID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO file (hash, date, thumbnail) VALUES (?, ?, ?)
		ON CONFLICT (hash) DO UPDATE SET
			date = COALESCE(excluded.date, file.date),
			thumbnail = excluded.thumbnail
		RETURNING id`,
		info.Hash, formatDate(info.Date), info.Thumbnail,
	).Scan(&fileID)
	if err != nil {
		return fmt.Errorf("upserting file: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO location (file_id, backend_tag, path) VALUES (?, ?, ?)
		ON CONFLICT (backend_tag, path) DO UPDATE SET file_id = excluded.file_id`,
		fileID, marker, relativePath,
	)
	if err != nil {
		return fmt.Errorf("upserting location: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteCatalog) RemoveLocation(marker, relativePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM location WHERE backend_tag = ? AND path = ?`, marker, relativePath)
	if err != nil {
		return fmt.Errorf("removing location: %w", err)
	}
	return nil
}

// Locations pages through the marker's locations by ascending location id.
// Keying pages on the last id seen keeps the walk exact while the caller
// removes locations it has already been given.
func (s *SQLiteCatalog) Locations(marker string) iter.Seq2[backer.Location, error] {
	return func(yield func(backer.Location, error) bool) {
		var after int64
		for {
			page, last, err := s.locationPage(marker, after)
			if err != nil {
				yield(backer.Location{}, err)
				return
			}
			for _, loc := range page {
				if !yield(loc, nil) {
					return
				}
			}
			if len(page) < locationPageSize {
				return
			}
			after = last
		}
	}
}

func (s *SQLiteCatalog) locationPage(marker string, after int64) ([]backer.Location, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT l.id, l.path, f.hash, f.id
		FROM location l JOIN file f ON f.id = l.file_id
		WHERE l.backend_tag = ? AND l.id > ?
		ORDER BY l.id
		LIMIT ?`,
		marker, after, locationPageSize,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("listing locations: %w", err)
	}
	defer rows.Close()

	var page []backer.Location
	last := after
	for rows.Next() {
		loc := backer.Location{Marker: marker}
		if err := rows.Scan(&last, &loc.RelativePath, &loc.Hash, &loc.FileID); err != nil {
			return nil, 0, fmt.Errorf("scanning location: %w", err)
		}
		page = append(page, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("listing locations: %w", err)
	}
	return page, last, nil
}

// Gallery operations

// visibleFilter selects files carrying no hidden tag.
const visibleFilter = `NOT EXISTS (
	SELECT 1 FROM file_tag ft JOIN tag t ON t.id = ft.tag_id
	WHERE ft.file_id = f.id AND t.hidden)`

func (s *SQLiteCatalog) VisibleFileIDs(offset, limit int) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT f.id FROM file f
		WHERE `+visibleFilter+`
		ORDER BY f.date, f.id
		LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing visible files: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning file id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing visible files: %w", err)
	}
	return ids, nil
}

func (s *SQLiteCatalog) VisibleFileCount() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	if err := s.db.QueryRow(`SELECT count(*) FROM file f WHERE ` + visibleFilter).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting visible files: %w", err)
	}
	return n, nil
}

func (s *SQLiteCatalog) FileCount() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	if err := s.db.QueryRow(`SELECT count(*) FROM file`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting files: %w", err)
	}
	return n, nil
}

func (s *SQLiteCatalog) File(id int64) (*backer.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanFile(s.db.QueryRow(`SELECT id, hash, date, thumbnail FROM file WHERE id = ?`, id))
}

func (s *SQLiteCatalog) FileByHash(hash string) (*backer.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanFile(s.db.QueryRow(`SELECT id, hash, date, thumbnail FROM file WHERE hash = ?`, hash))
}

func (s *SQLiteCatalog) scanFile(row *sql.Row) (*backer.File, error) {
	var f backer.File
	var date sql.NullString
	if err := row.Scan(&f.ID, &f.Hash, &date, &f.Thumbnail); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding file: %w", err)
	}
	parsed, err := parseDate(date)
	if err != nil {
		return nil, fmt.Errorf("file %d: %w", f.ID, err)
	}
	f.Date = parsed
	return &f, nil
}

func (s *SQLiteCatalog) FileLocations(fileID int64) ([]backer.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT l.backend_tag, l.path, f.hash
		FROM location l JOIN file f ON f.id = l.file_id
		WHERE l.file_id = ?
		ORDER BY l.backend_tag, l.path`,
		fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing file locations: %w", err)
	}
	defer rows.Close()

	var locs []backer.Location
	for rows.Next() {
		loc := backer.Location{FileID: fileID}
		if err := rows.Scan(&loc.Marker, &loc.RelativePath, &loc.Hash); err != nil {
			return nil, fmt.Errorf("scanning location: %w", err)
		}
		locs = append(locs, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing file locations: %w", err)
	}
	return locs, nil
}

// Tag operations

func (s *SQLiteCatalog) TagCounts(fileIDs []int64) ([]backer.TagCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Restrict the join to the selection so every tag still yields a row.
	selection := "0"
	args := make([]any, len(fileIDs))
	if len(fileIDs) > 0 {
		selection = "ft.file_id IN (" + placeholders(len(fileIDs)) + ")"
		for i, id := range fileIDs {
			args[i] = id
		}
	}

	rows, err := s.db.Query(`
		SELECT t.name, t.hidden, count(ft.file_id)
		FROM tag t LEFT JOIN file_tag ft ON ft.tag_id = t.id AND `+selection+`
		GROUP BY t.id
		ORDER BY t.name`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("counting tags: %w", err)
	}
	defer rows.Close()

	var counts []backer.TagCount
	for rows.Next() {
		var tc backer.TagCount
		if err := rows.Scan(&tc.Name, &tc.Hidden, &tc.Count); err != nil {
			return nil, fmt.Errorf("scanning tag count: %w", err)
		}
		counts = append(counts, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("counting tags: %w", err)
	}
	return counts, nil
}

func (s *SQLiteCatalog) CreateTag(name string, hidden bool) (*backer.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("tag name must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tag := backer.Tag{}
	err := s.db.QueryRow(`
		INSERT INTO tag (name, hidden) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET hidden = excluded.hidden
		RETURNING id, name, hidden`,
		name, hidden,
	).Scan(&tag.ID, &tag.Name, &tag.Hidden)
	if err != nil {
		return nil, fmt.Errorf("creating tag: %w", err)
	}
	return &tag, nil
}

func (s *SQLiteCatalog) Tags() ([]backer.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT id, name, hidden FROM tag ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	defer rows.Close()

	var tags []backer.Tag
	for rows.Next() {
		var tag backer.Tag
		if err := rows.Scan(&tag.ID, &tag.Name, &tag.Hidden); err != nil {
			return nil, fmt.Errorf("scanning tag: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	return tags, nil
}

func (s *SQLiteCatalog) TagFiles(tagName string, fileIDs []int64) error {
	return s.withTag(tagName, `INSERT OR IGNORE INTO file_tag (file_id, tag_id) VALUES (?, ?)`, fileIDs)
}

func (s *SQLiteCatalog) UntagFiles(tagName string, fileIDs []int64) error {
	return s.withTag(tagName, `DELETE FROM file_tag WHERE file_id = ? AND tag_id = ?`, fileIDs)
}

// withTag runs stmt with (fileID, tagID) for every file in one transaction.
func (s *SQLiteCatalog) withTag(tagName, stmt string, fileIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var tagID int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM tag WHERE name = ?`, tagName).Scan(&tagID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("unknown tag %q", tagName)
		}
		return fmt.Errorf("finding tag: %w", err)
	}

	for _, id := range fileIDs {
		if _, err := tx.ExecContext(ctx, stmt, id, tagID); err != nil {
			return fmt.Errorf("tagging file %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Scan run operations

func (s *SQLiteCatalog) CreateScanRun(run *backer.ScanRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO scan_run (id, operation, started_at, status) VALUES (?, ?, ?, ?)`,
		run.ID, run.Operation, run.StartedAt.UTC(), run.Status,
	)
	if err != nil {
		return fmt.Errorf("creating scan run: %w", err)
	}
	return nil
}

func (s *SQLiteCatalog) FinishScanRun(id string, status string, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`UPDATE scan_run SET status = ?, finished_at = ? WHERE id = ?`,
		status, finishedAt.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("finishing scan run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finishing scan run: unknown run %s", id)
	}
	return nil
}

func (s *SQLiteCatalog) ListScanRuns(limit int) ([]backer.ScanRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT id, operation, started_at, finished_at, status
		FROM scan_run
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing scan runs: %w", err)
	}
	defer rows.Close()

	var runs []backer.ScanRun
	for rows.Next() {
		var run backer.ScanRun
		if err := rows.Scan(&run.ID, &run.Operation, &run.StartedAt, &run.FinishedAt, &run.Status); err != nil {
			return nil, fmt.Errorf("scanning scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing scan runs: %w", err)
	}
	return runs, nil
}

// Path returns the file path of the catalog.
func (s *SQLiteCatalog) Path() string {
	return s.path
}

// BackupTo creates a complete copy of the catalog at destPath using VACUUM INTO.
func (s *SQLiteCatalog) BackupTo(destPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up catalog: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteCatalog) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func formatDate(d sql.NullTime) sql.NullString {
	if !d.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: d.Time.UTC().Format(backer.DateTimeLayout), Valid: true}
}

func parseDate(s sql.NullString) (sql.NullTime, error) {
	if !s.Valid {
		return sql.NullTime{}, nil
	}
	t, err := time.Parse(backer.DateTimeLayout, s.String)
	if err != nil {
		return sql.NullTime{}, fmt.Errorf("parsing stored date %q: %w", s.String, err)
	}
	return sql.NullTime{Time: t, Valid: true}, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// Compile-time check that SQLiteCatalog implements backer.Catalog
var _ backer.Catalog = (*SQLiteCatalog)(nil)
