package backer

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"strconv"
)

// IngestMode controls what Stage 1 does with locations already in the catalog.
type IngestMode int

const (
	// ModeSkipKnown leaves catalogued locations alone.
	ModeSkipKnown IngestMode = iota
	// ModeRefresh re-derives metadata for every file, known or not.
	ModeRefresh
)

func (m IngestMode) String() string {
	if m == ModeRefresh {
		return "refresh"
	}
	return "skip-known"
}

// DefaultThumbnailSize is the bounding box thumbnails are rendered into.
const DefaultThumbnailSize = 200

// Codecs bundles the content collaborators of the scanner.
type Codecs struct {
	Digest          DigestFunc
	Exif            ExifExtractor
	Thumbnails      ThumbnailCodec
	ThumbnailWidth  int
	ThumbnailHeight int
}

// ScanStats counts what happened to one tree.
type ScanStats struct {
	Ingested   int
	Known      int
	Skipped    int
	Removed    int
	Matched    int
	Mismatched int
}

func (s *ScanStats) add(o *ScanStats) {
	s.Ingested += o.Ingested
	s.Known += o.Known
	s.Skipped += o.Skipped
	s.Removed += o.Removed
	s.Matched += o.Matched
	s.Mismatched += o.Mismatched
}

// ScanOptions selects the stages run for each tree.
type ScanOptions struct {
	// SkipIngest runs reconciliation only.
	SkipIngest bool
	// Refresh re-ingests every file after reconciliation.
	Refresh bool
}

// Scanner drives the stages of one tree against the catalog.
// A Scanner holds no per-tree state and may process several trees concurrently.
type Scanner struct {
	catalog  Catalog
	fsmgr    FilesystemManager
	codecs   Codecs
	logger   Logger
	metrics  Metrics
	progress *Progress
	clock    Clock
}

// NewScanner creates a Scanner. Zero thumbnail dimensions default to DefaultThumbnailSize.
func NewScanner(catalog Catalog, fsmgr FilesystemManager, codecs Codecs, logger Logger, metrics Metrics, progress *Progress, clock Clock) *Scanner {
	if codecs.ThumbnailWidth <= 0 {
		codecs.ThumbnailWidth = DefaultThumbnailSize
	}
	if codecs.ThumbnailHeight <= 0 {
		codecs.ThumbnailHeight = DefaultThumbnailSize
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if progress == nil {
		progress = NewProgress(nil)
	}
	return &Scanner{
		catalog:  catalog,
		fsmgr:    fsmgr,
		codecs:   codecs,
		logger:   logger,
		metrics:  metrics,
		progress: progress,
		clock:    clock,
	}
}

// ProcessTree runs ingest in skip-known mode, then reconciliation, then
// (with opts.Refresh) ingest in refresh mode.
func (s *Scanner) ProcessTree(tree *Tree, rules []DatePathRule, opts ScanOptions) (*ScanStats, error) {
	total := &ScanStats{}

	if !opts.SkipIngest {
		stats, err := s.Ingest(tree, rules, ModeSkipKnown)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}

	stats, err := s.Reconcile(tree)
	total.add(stats)
	if err != nil {
		return total, err
	}

	if opts.Refresh && !opts.SkipIngest {
		stats, err := s.Ingest(tree, rules, ModeRefresh)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}

	return total, nil
}

// Ingest walks the tree and upserts every matching file into the catalog.
// Unreadable and undecodable files are logged and skipped; only catalog
// failures abort the tree.
func (s *Scanner) Ingest(tree *Tree, rules []DatePathRule, mode IngestMode) (*ScanStats, error) {
	stats := &ScanStats{}
	start := s.clock.Now()
	defer func() {
		s.metrics.StageDuration(tree.Marker, "ingest", s.clock.Now().Sub(start))
	}()

	tick := strconv.Itoa(tree.Index % 10)

	for rel, err := range s.fsmgr.Walk(tree.Root) {
		if err != nil {
			s.logger.Warn("walk error", "marker", tree.Marker, "error", err)
			stats.Skipped++
			s.metrics.FileSkipped(tree.Marker, SkipWalkError)
			continue
		}

		if mode == ModeSkipKnown {
			known, err := s.catalog.LocationExists(tree.Marker, rel)
			if err != nil {
				return stats, fmt.Errorf("checking location %s: %w", rel, err)
			}
			if known {
				stats.Known++
				s.metrics.FileSkipped(tree.Marker, SkipKnown)
				s.progress.Tick(TickKnown)
				continue
			}
		}

		data, err := s.fsmgr.ReadFile(tree.Abs(rel))
		if err != nil {
			s.logger.Warn("failed to read file, skipping", "marker", tree.Marker, "path", rel, "error", err)
			stats.Skipped++
			s.metrics.FileSkipped(tree.Marker, SkipReadError)
			continue
		}

		info, err := s.describe(rel, data, rules)
		if err != nil {
			s.logger.Warn("failed to decode image, skipping", "marker", tree.Marker, "path", rel, "error", err)
			stats.Skipped++
			s.metrics.FileSkipped(tree.Marker, SkipDecodeFail)
			continue
		}

		if err := s.catalog.Upsert(tree.Marker, rel, info); err != nil {
			return stats, fmt.Errorf("cataloguing %s: %w", rel, err)
		}
		stats.Ingested++
		s.metrics.FileIngested(tree.Marker)
		s.progress.Tick(tick)
	}

	return stats, nil
}

// describe derives the catalog payload for the bytes found at rel.
func (s *Scanner) describe(rel string, data []byte, rules []DatePathRule) (*FileInfo, error) {
	hash := s.codecs.Digest(data)

	var exif ExifView
	if s.codecs.Exif != nil {
		view, err := s.codecs.Exif.Extract(data)
		if err != nil {
			s.logger.Debug("no exif", "path", rel, "error", err)
		} else {
			exif = view
		}
	}

	date := ResolveDate(exif, rel, rules)

	thumb, err := s.codecs.Thumbnails.Thumbnail(data, s.codecs.ThumbnailWidth, s.codecs.ThumbnailHeight)
	if err != nil {
		return nil, err
	}

	return &FileInfo{Hash: hash, Date: date, Thumbnail: thumb}, nil
}

// Reconcile checks every catalogued location of the tree against the disk.
// Locations whose file is gone are removed. Hash mismatches are reported
// and left for the operator. Any other read failure aborts the tree.
func (s *Scanner) Reconcile(tree *Tree) (*ScanStats, error) {
	stats := &ScanStats{}
	start := s.clock.Now()
	defer func() {
		s.metrics.StageDuration(tree.Marker, "reconcile", s.clock.Now().Sub(start))
	}()

	for loc, err := range s.catalog.Locations(tree.Marker) {
		if err != nil {
			return stats, fmt.Errorf("listing locations: %w", err)
		}

		data, err := s.fsmgr.ReadFile(tree.Abs(loc.RelativePath))
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return stats, fmt.Errorf("reading %s: %w", loc.RelativePath, err)
			}
			if err := s.catalog.RemoveLocation(tree.Marker, loc.RelativePath); err != nil {
				return stats, fmt.Errorf("removing location %s: %w", loc.RelativePath, err)
			}
			s.logger.Info("location removed", "marker", tree.Marker, "path", loc.RelativePath, "hash", loc.Hash)
			stats.Removed++
			s.metrics.LocationRemoved(tree.Marker)
			continue
		}

		if hash := s.codecs.Digest(data); hash != loc.Hash {
			s.logger.Warn("hash mismatch", "marker", tree.Marker, "path", loc.RelativePath, "disk", hash, "catalog", loc.Hash)
			stats.Mismatched++
			s.metrics.HashMismatch(tree.Marker)
			continue
		}
		stats.Matched++
		s.progress.Tick(TickMatched)
	}

	return stats, nil
}

// DatePreview is the date the path rules give one file.
type DatePreview struct {
	RelativePath string
	Date         sql.NullTime
}

// PreviewDates walks the tree and resolves each path against rules without
// reading file contents or touching the catalog.
func (s *Scanner) PreviewDates(tree *Tree, rules []DatePathRule) iter.Seq2[DatePreview, error] {
	return func(yield func(DatePreview, error) bool) {
		for rel, err := range s.fsmgr.Walk(tree.Root) {
			if err != nil {
				if !yield(DatePreview{}, err) {
					return
				}
				continue
			}
			if !yield(DatePreview{RelativePath: rel, Date: ResolveDate(nil, rel, rules)}, nil) {
				return
			}
		}
	}
}
