package app

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"slices"

	"golang.org/x/term"

	"backer-go/internal/backer"
	"backer-go/internal/config"
	"backer-go/internal/database"
	"backer-go/internal/fs"
	"backer-go/internal/media"
	"backer-go/internal/metrics"
)

// BackerApp is the application layer between the CLI and the scanner.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw CLI arguments, and manages the catalog lifecycle on Close.
type BackerApp struct {
	cfg     *config.Config
	catalog *database.SQLiteCatalog
	fsmgr   *fs.OSFilesystemManager
	scanner *backer.Scanner
	coord   *backer.Coordinator
	metrics *metrics.Recorder
	rules   map[string][]backer.DatePathRule
	clock   backer.Clock
	logger  backer.Logger
	op      *Operation
	logFile *os.File
}

// NewBackerApp creates a fully wired BackerApp from the given config.
// operation identifies the CLI command being run (e.g. "scan", "tag-add").
// The caller must call Close when done.
func NewBackerApp(cfg *config.Config, operation string) (*BackerApp, error) {
	level, err := ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	rules, err := cfg.DatePathRules()
	if err != nil {
		return nil, fmt.Errorf("loading date path rules: %w", err)
	}

	catalog, err := database.NewCatalogFromConfig(cfg.Catalog)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	if err := catalog.Initialize(); err != nil {
		catalog.Close()
		return nil, fmt.Errorf("initializing catalog: %w", err)
	}

	clock := backer.RealClock{}
	op := NewOperation(operation, clock, backer.UUIDGenerator{})

	slogger, logFile, err := newLogger(cfg.LogDir, op.Run.ID, level)
	if err != nil {
		catalog.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	var matcher fs.Matcher
	if len(cfg.Filesystem.Extensions) > 0 {
		matcher = fs.NewExtensionMatcher(cfg.Filesystem.Extensions...)
	}
	fsmgr := fs.NewOSFilesystemManager(matcher, cfg.Filesystem.Ignore)

	// Ticks only make sense on an interactive terminal.
	var progressOut io.Writer
	if term.IsTerminal(int(os.Stdout.Fd())) {
		progressOut = os.Stdout
	}

	codecs := backer.Codecs{
		Digest:          media.SHA1Hex,
		Exif:            media.NewExifExtractor(),
		Thumbnails:      media.NewThumbnailCodec(cfg.Thumbnail.Quality),
		ThumbnailWidth:  cfg.Thumbnail.Width,
		ThumbnailHeight: cfg.Thumbnail.Height,
	}
	rec := metrics.NewRecorder()
	scanner := backer.NewScanner(catalog, fsmgr, codecs, logger, rec, backer.NewProgress(progressOut), clock)

	return &BackerApp{
		cfg:     cfg,
		catalog: catalog,
		fsmgr:   fsmgr,
		scanner: scanner,
		coord:   backer.NewCoordinator(scanner, fsmgr, logger, rec),
		metrics: rec,
		rules:   rules,
		clock:   clock,
		logger:  logger,
		op:      op,
		logFile: logFile,
	}, nil
}

// RunID returns the id of the current operation.
func (a *BackerApp) RunID() string {
	return a.op.Run.ID
}

// persistOperation records the operation in the catalog's run history.
// This should only be called for catalog-mutating commands.
func (a *BackerApp) persistOperation() error {
	if a.op.Persisted() {
		return nil
	}
	run := a.op.Run
	run.Status = RunRunning
	if err := a.catalog.CreateScanRun(&run); err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.persisted = true
	return nil
}

// Scan processes every configured marker tree. With refresh, known files are
// re-ingested after reconciliation. Unavailable and failing trees are
// reported in the results, never as an error.
func (a *BackerApp) Scan(refresh bool) ([]backer.TreeResult, error) {
	return a.scan(backer.ScanOptions{Refresh: refresh})
}

// Reconcile checks every catalogued location of the configured trees without ingesting.
func (a *BackerApp) Reconcile() ([]backer.TreeResult, error) {
	return a.scan(backer.ScanOptions{SkipIngest: true})
}

func (a *BackerApp) scan(opts backer.ScanOptions) ([]backer.TreeResult, error) {
	if len(a.cfg.Markers.Disk) == 0 {
		return nil, fmt.Errorf("no markers configured")
	}
	if err := a.persistOperation(); err != nil {
		return nil, err
	}
	results := a.coord.ScanAll(a.cfg.Markers.Disk, a.rules, opts)
	a.op.Record(results)
	return results, nil
}

// MarkerDate is the path-rule date of one file in a tree.
type MarkerDate struct {
	Marker string
	backer.DatePreview
}

// PreviewDates resolves every file of every available tree against its
// marker's path rules. Nothing is read or written.
func (a *BackerApp) PreviewDates() (iter.Seq2[MarkerDate, error], error) {
	trees, err := a.coord.OpenTrees(a.cfg.Markers.Disk)
	if err != nil {
		return nil, err
	}
	return func(yield func(MarkerDate, error) bool) {
		for _, tree := range trees {
			for p, err := range a.scanner.PreviewDates(tree, a.rules[tree.Marker]) {
				if !yield(MarkerDate{Marker: tree.Marker, DatePreview: p}, err) {
					return
				}
			}
		}
	}, nil
}

// Locations returns every catalogued location of the tree opened from markerPath.
func (a *BackerApp) Locations(markerPath string) (*backer.Tree, []backer.Location, error) {
	tree, err := backer.ResolveMarker(a.fsmgr, markerPath)
	if err != nil {
		return nil, nil, err
	}

	var locs []backer.Location
	for loc, err := range a.catalog.Locations(tree.Marker) {
		if err != nil {
			return nil, nil, err
		}
		locs = append(locs, loc)
	}
	return tree, locs, nil
}

// GalleryEntry is one visible file and where it lives.
type GalleryEntry struct {
	File      *backer.File
	Locations []backer.Location
}

// Gallery returns a page of visible files in date order and the total
// number of visible files.
func (a *BackerApp) Gallery(offset, limit int) ([]GalleryEntry, int, error) {
	total, err := a.catalog.VisibleFileCount()
	if err != nil {
		return nil, 0, err
	}

	ids, err := a.catalog.VisibleFileIDs(offset, limit)
	if err != nil {
		return nil, 0, err
	}

	entries := make([]GalleryEntry, 0, len(ids))
	for _, id := range ids {
		f, err := a.catalog.File(id)
		if err != nil {
			return nil, 0, err
		}
		if f == nil {
			continue
		}
		locs, err := a.catalog.FileLocations(id)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, GalleryEntry{File: f, Locations: locs})
	}
	return entries, total, nil
}

// ExportThumbnail writes the stored thumbnail of file id to dest and returns its size.
func (a *BackerApp) ExportThumbnail(id int64, dest string) (int, error) {
	f, err := a.catalog.File(id)
	if err != nil {
		return 0, err
	}
	if f == nil {
		return 0, fmt.Errorf("file %d not found", id)
	}
	if len(f.Thumbnail) == 0 {
		return 0, fmt.Errorf("file %d has no thumbnail", id)
	}
	if err := os.WriteFile(dest, f.Thumbnail, 0644); err != nil {
		return 0, fmt.Errorf("writing thumbnail: %w", err)
	}
	return len(f.Thumbnail), nil
}

// TagState is the selection state of one tag over a set of files.
type TagState struct {
	Name      string
	Hidden    bool
	Count     int
	Selection backer.Selection
}

// TagSelection reports, for every tag, whether all, some or none of the
// given files carry it. Every id must exist.
func (a *BackerApp) TagSelection(ids []int64) ([]TagState, error) {
	ids, err := a.existingFiles(ids)
	if err != nil {
		return nil, err
	}

	counts, err := a.catalog.TagCounts(ids)
	if err != nil {
		return nil, err
	}

	states := make([]TagState, 0, len(counts))
	for _, tc := range counts {
		states = append(states, TagState{
			Name:      tc.Name,
			Hidden:    tc.Hidden,
			Count:     tc.Count,
			Selection: tc.Selection(len(ids)),
		})
	}
	return states, nil
}

// existingFiles deduplicates ids and checks that each file exists.
func (a *BackerApp) existingFiles(ids []int64) ([]int64, error) {
	ids = slices.Clone(ids)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	for _, id := range ids {
		f, err := a.catalog.File(id)
		if err != nil {
			return nil, err
		}
		if f == nil {
			return nil, fmt.Errorf("file %d not found", id)
		}
	}
	return ids, nil
}

// CreateTag creates a tag or updates its hidden flag.
func (a *BackerApp) CreateTag(name string, hidden bool) (*backer.Tag, error) {
	if err := a.persistOperation(); err != nil {
		return nil, err
	}
	tag, err := a.catalog.CreateTag(name, hidden)
	if err != nil {
		a.op.Fail()
		return nil, err
	}
	return tag, nil
}

// Tags returns all tags.
func (a *BackerApp) Tags() ([]backer.Tag, error) {
	return a.catalog.Tags()
}

// TagFiles attaches the named tag to the given files.
func (a *BackerApp) TagFiles(name string, ids []int64) error {
	return a.changeTags(name, ids, a.catalog.TagFiles)
}

// UntagFiles detaches the named tag from the given files.
func (a *BackerApp) UntagFiles(name string, ids []int64) error {
	return a.changeTags(name, ids, a.catalog.UntagFiles)
}

func (a *BackerApp) changeTags(name string, ids []int64, apply func(string, []int64) error) error {
	if err := a.persistOperation(); err != nil {
		return err
	}
	ids, err := a.existingFiles(ids)
	if err == nil {
		err = apply(name, ids)
	}
	if err != nil {
		a.op.Fail()
		return err
	}
	return nil
}

// History returns the most recent operations.
func (a *BackerApp) History(limit int) ([]backer.ScanRun, error) {
	return a.catalog.ListScanRuns(limit)
}

// Snapshot writes a consistent copy of the catalog to dest and returns its size.
func (a *BackerApp) Snapshot(dest string) (int64, error) {
	if _, err := os.Stat(dest); err == nil {
		return 0, fmt.Errorf("snapshot destination already exists: %s", dest)
	}
	if err := a.catalog.BackupTo(dest); err != nil {
		return 0, err
	}
	info, err := os.Stat(dest)
	if err != nil {
		return 0, fmt.Errorf("stat snapshot: %w", err)
	}
	a.logger.Info("catalog snapshot written", "path", dest, "size", info.Size())
	return info.Size(), nil
}

// Close finalizes the operation and closes all resources.
// For persisted operations the run record is finished and, when configured,
// the scan metrics are written.
func (a *BackerApp) Close() error {
	var errs []error

	if a.op.Persisted() {
		if err := a.catalog.FinishScanRun(a.op.Run.ID, a.op.Run.Status, a.clock.Now()); err != nil {
			errs = append(errs, fmt.Errorf("finishing operation: %w", err))
		}
		if a.cfg.MetricsFile != "" {
			if err := a.metrics.WriteToTextfile(a.cfg.MetricsFile); err != nil {
				errs = append(errs, fmt.Errorf("writing metrics: %w", err))
			}
		}
	}

	if err := a.catalog.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing catalog: %w", err))
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return errors.Join(errs...)
}
