package backer_test

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"backer-go/internal/backer"
	"backer-go/internal/database"
	"backer-go/internal/media"
	"backer-go/internal/testutil"
)

type fixture struct {
	catalog  *database.SQLiteCatalog
	fsmgr    *testutil.MockFilesystemManager
	exif     *testutil.StubExifExtractor
	thumbs   *testutil.StubThumbnailCodec
	logger   *testutil.RecordingLogger
	metrics  *testutil.RecordingMetrics
	progress *bytes.Buffer
	scanner  *backer.Scanner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		catalog:  testutil.NewTestCatalog(t),
		fsmgr:    testutil.NewMockFilesystemManager(),
		exif:     testutil.NewStubExifExtractor(),
		thumbs:   &testutil.StubThumbnailCodec{},
		logger:   &testutil.RecordingLogger{},
		metrics:  testutil.NewRecordingMetrics(),
		progress: &bytes.Buffer{},
	}
	codecs := backer.Codecs{
		Digest:     media.SHA1Hex,
		Exif:       f.exif,
		Thumbnails: f.thumbs,
	}
	f.scanner = backer.NewScanner(f.catalog, f.fsmgr, codecs, f.logger, f.metrics,
		backer.NewProgress(f.progress), testutil.FixedClock())
	return f
}

var testRoot = filepath.Join("/", "photos")

func testTree() *backer.Tree {
	return &backer.Tree{Root: testRoot, Marker: "m1", MarkerPath: filepath.Join(testRoot, "backer-id.json")}
}

func (f *fixture) add(rel, content string) {
	f.fsmgr.AddFile(filepath.Join(testRoot, filepath.FromSlash(rel)), []byte(content))
}

func (f *fixture) path(rel string) string {
	return filepath.Join(testRoot, filepath.FromSlash(rel))
}

func (f *fixture) exists(t *testing.T, marker, rel string) bool {
	t.Helper()
	ok, err := f.catalog.LocationExists(marker, rel)
	if err != nil {
		t.Fatalf("LocationExists() error = %v", err)
	}
	return ok
}

func (f *fixture) fileCount(t *testing.T) int {
	t.Helper()
	n, err := f.catalog.FileCount()
	if err != nil {
		t.Fatalf("FileCount() error = %v", err)
	}
	return n
}

func (f *fixture) fileByContent(t *testing.T, content string) *backer.File {
	t.Helper()
	file, err := f.catalog.FileByHash(media.SHA1Hex([]byte(content)))
	if err != nil {
		t.Fatalf("FileByHash() error = %v", err)
	}
	return file
}

func TestScanner_Ingest(t *testing.T) {
	t.Run("catalogues new files", func(t *testing.T) {
		f := newFixture(t)
		f.add("a.jpg", "alpha")
		f.add("2019/b.jpg", "beta")
		f.add("notes.txt", "ignored")
		f.exif.Set([]byte("alpha"), exifWith(map[backer.ExifTag]string{backer.ExifDateTime: "2021:02:03 04:05:06"}))

		tree := testTree()
		tree.Index = 13
		stats, err := f.scanner.Ingest(tree, nil, backer.ModeSkipKnown)
		if err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}
		if stats.Ingested != 2 || stats.Skipped != 0 {
			t.Errorf("stats = %+v, want 2 ingested", stats)
		}
		if !f.exists(t, "m1", "a.jpg") || !f.exists(t, "m1", "2019/b.jpg") {
			t.Error("ingested locations are not catalogued")
		}
		if f.exists(t, "m1", "notes.txt") {
			t.Error("non-matching file was catalogued")
		}

		alpha := f.fileByContent(t, "alpha")
		if alpha == nil {
			t.Fatal("file for alpha not found")
		}
		if !alpha.Date.Valid || alpha.Date.Time.Format(backer.DateTimeLayout) != "2021-02-03 04:05:06" {
			t.Errorf("alpha date = %v, want 2021-02-03 04:05:06", alpha.Date)
		}
		if string(alpha.Thumbnail) != "thumb:alpha" {
			t.Errorf("alpha thumbnail = %q, want thumb:alpha", alpha.Thumbnail)
		}
		if beta := f.fileByContent(t, "beta"); beta == nil || beta.Date.Valid {
			t.Errorf("beta = %+v, want a file with a null date", beta)
		}

		if got := f.progress.String(); got != "33" {
			t.Errorf("progress = %q, want %q", got, "33")
		}
		if got := f.metrics.Count("ingested/m1"); got != 2 {
			t.Errorf("ingested metric = %d, want 2", got)
		}
		if got := f.metrics.Count("stage/m1/ingest"); got != 1 {
			t.Errorf("ingest stage duration recorded %d times, want 1", got)
		}
	})

	t.Run("second pass over unchanged tree changes nothing", func(t *testing.T) {
		f := newFixture(t)
		f.add("a.jpg", "alpha")
		f.add("b.jpg", "beta")
		tree := testTree()

		if _, err := f.scanner.Ingest(tree, nil, backer.ModeSkipKnown); err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}
		thumbs := f.thumbs.Calls()

		stats, err := f.scanner.Ingest(tree, nil, backer.ModeSkipKnown)
		if err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}
		if stats.Ingested != 0 || stats.Known != 2 {
			t.Errorf("stats = %+v, want 0 ingested and 2 known", stats)
		}
		if got := f.metrics.Count("ingested/m1"); got != 2 {
			t.Errorf("ingested metric = %d after two passes, want 2", got)
		}
		if got := f.fsmgr.Reads(f.path("a.jpg")); got != 1 {
			t.Errorf("a.jpg read %d times, want 1", got)
		}
		if f.thumbs.Calls() != thumbs {
			t.Errorf("thumbnails rendered on second pass")
		}
		if got := f.progress.String(); got != "00.." {
			t.Errorf("progress = %q, want %q", got, "00..")
		}
	})

	t.Run("identical content collapses to one file", func(t *testing.T) {
		f := newFixture(t)
		f.add("a.jpg", "same")
		f.add("copy/a.jpg", "same")

		if _, err := f.scanner.Ingest(testTree(), nil, backer.ModeSkipKnown); err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}
		if got := f.fileCount(t); got != 1 {
			t.Errorf("FileCount() = %d, want 1", got)
		}
		file := f.fileByContent(t, "same")
		locs, err := f.catalog.FileLocations(file.ID)
		if err != nil {
			t.Fatalf("FileLocations() error = %v", err)
		}
		if len(locs) != 2 {
			t.Errorf("FileLocations() = %v, want 2 locations", locs)
		}
	})

	t.Run("undecodable files are skipped", func(t *testing.T) {
		f := newFixture(t)
		f.add("bad.jpg", string(testutil.CorruptPrefix)+"data")
		f.add("good.jpg", "good")

		stats, err := f.scanner.Ingest(testTree(), nil, backer.ModeSkipKnown)
		if err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}
		if stats.Ingested != 1 || stats.Skipped != 1 {
			t.Errorf("stats = %+v, want 1 ingested and 1 skipped", stats)
		}
		if f.exists(t, "m1", "bad.jpg") {
			t.Error("undecodable file was catalogued")
		}
		if got := f.logger.Count("failed to decode image, skipping"); got != 1 {
			t.Errorf("decode warnings = %d, want 1", got)
		}
		if got := f.metrics.Count("skipped/m1/" + backer.SkipDecodeFail); got != 1 {
			t.Errorf("decode skip metric = %d, want 1", got)
		}
	})

	t.Run("unreadable files are skipped", func(t *testing.T) {
		f := newFixture(t)
		f.add("locked.jpg", "x")
		f.fsmgr.SetReadError(f.path("locked.jpg"), errors.New("permission denied"))
		f.add("ok.jpg", "ok")

		stats, err := f.scanner.Ingest(testTree(), nil, backer.ModeSkipKnown)
		if err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}
		if stats.Ingested != 1 || stats.Skipped != 1 {
			t.Errorf("stats = %+v, want 1 ingested and 1 skipped", stats)
		}
		if got := f.logger.Count("failed to read file, skipping"); got != 1 {
			t.Errorf("read warnings = %d, want 1", got)
		}
	})

	t.Run("walk errors are skipped", func(t *testing.T) {
		f := newFixture(t)
		f.fsmgr.AddSymlink(f.path("link.jpg"))
		f.add("ok.jpg", "ok")

		stats, err := f.scanner.Ingest(testTree(), nil, backer.ModeSkipKnown)
		if err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}
		if stats.Ingested != 1 || stats.Skipped != 1 {
			t.Errorf("stats = %+v, want 1 ingested and 1 skipped", stats)
		}
		if got := f.metrics.Count("skipped/m1/" + backer.SkipWalkError); got != 1 {
			t.Errorf("walk skip metric = %d, want 1", got)
		}
	})

	t.Run("refresh re-derives metadata of known files", func(t *testing.T) {
		f := newFixture(t)
		f.add("2018/a.jpg", "alpha")
		tree := testTree()

		if _, err := f.scanner.Ingest(tree, nil, backer.ModeSkipKnown); err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}
		if f.fileByContent(t, "alpha").Date.Valid {
			t.Fatal("date set without exif or rules")
		}

		rules := []backer.DatePathRule{mustRule(t, `^(\d{4})/`, "$1-01-01")}
		stats, err := f.scanner.Ingest(tree, rules, backer.ModeRefresh)
		if err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}
		if stats.Ingested != 1 || stats.Known != 0 {
			t.Errorf("stats = %+v, want 1 ingested", stats)
		}
		got := f.fileByContent(t, "alpha").Date
		if !got.Valid || got.Time.Format(backer.DateLayout) != "2018-01-01" {
			t.Errorf("date after refresh = %v, want 2018-01-01", got)
		}
	})

	t.Run("zero-byte file round trip", func(t *testing.T) {
		f := newFixture(t)
		tree := &backer.Tree{Root: testRoot, Marker: "foo-marker"}
		f.add("foo-dir/foo-file.jpeg", "")

		if _, err := f.scanner.Ingest(tree, nil, backer.ModeSkipKnown); err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}
		if !f.exists(t, "foo-marker", "foo-dir/foo-file.jpeg") {
			t.Fatal("zero-byte file was not catalogued")
		}

		f.fsmgr.Remove(f.path("foo-dir/foo-file.jpeg"))
		if _, err := f.scanner.Reconcile(tree); err != nil {
			t.Fatalf("Reconcile() error = %v", err)
		}
		if f.exists(t, "foo-marker", "foo-dir/foo-file.jpeg") {
			t.Error("location survived after file was deleted")
		}
	})
}

func TestScanner_Reconcile(t *testing.T) {
	t.Run("removes missing locations and keeps the file", func(t *testing.T) {
		f := newFixture(t)
		f.add("a.jpg", "shared")
		f.add("b.jpg", "shared")
		tree := testTree()
		if _, err := f.scanner.Ingest(tree, nil, backer.ModeSkipKnown); err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}

		f.fsmgr.Remove(f.path("a.jpg"))
		stats, err := f.scanner.Reconcile(tree)
		if err != nil {
			t.Fatalf("Reconcile() error = %v", err)
		}
		if stats.Removed != 1 || stats.Matched != 1 {
			t.Errorf("stats = %+v, want 1 removed and 1 matched", stats)
		}
		if f.exists(t, "m1", "a.jpg") {
			t.Error("a.jpg location survived")
		}
		if !f.exists(t, "m1", "b.jpg") {
			t.Error("b.jpg location was removed")
		}
		if f.fileByContent(t, "shared") == nil {
			t.Error("file record was removed with its location")
		}
		if got := f.logger.Count("location removed"); got != 1 {
			t.Errorf("removal logs = %d, want 1", got)
		}
		if got := f.metrics.Count("removed/m1"); got != 1 {
			t.Errorf("removed metric = %d, want 1", got)
		}
		if !strings.HasSuffix(f.progress.String(), ",") {
			t.Errorf("progress = %q, want a trailing match tick", f.progress.String())
		}
	})

	t.Run("only touches its own marker", func(t *testing.T) {
		f := newFixture(t)
		info := &backer.FileInfo{Hash: media.SHA1Hex([]byte("other"))}
		if err := f.catalog.Upsert("m2", "a.jpg", info); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}

		if _, err := f.scanner.Reconcile(testTree()); err != nil {
			t.Fatalf("Reconcile() error = %v", err)
		}
		if !f.exists(t, "m2", "a.jpg") {
			t.Error("location of another marker was removed")
		}
	})

	t.Run("hash mismatch is reported and left alone", func(t *testing.T) {
		f := newFixture(t)
		f.add("a.jpg", "before")
		tree := testTree()
		if _, err := f.scanner.Ingest(tree, nil, backer.ModeSkipKnown); err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}

		f.add("a.jpg", "after")
		stats, err := f.scanner.Reconcile(tree)
		if err != nil {
			t.Fatalf("Reconcile() error = %v", err)
		}
		if stats.Mismatched != 1 {
			t.Errorf("stats = %+v, want 1 mismatch", stats)
		}
		if got := f.logger.Count("hash mismatch"); got != 1 {
			t.Errorf("mismatch warnings = %d, want 1", got)
		}
		if !f.exists(t, "m1", "a.jpg") {
			t.Error("mismatched location was removed")
		}
		if f.fileByContent(t, "after") != nil {
			t.Error("new content was catalogued by reconciliation")
		}
	})

	t.Run("unexpected read error aborts the tree", func(t *testing.T) {
		f := newFixture(t)
		f.add("a.jpg", "alpha")
		tree := testTree()
		if _, err := f.scanner.Ingest(tree, nil, backer.ModeSkipKnown); err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}

		f.fsmgr.SetReadError(f.path("a.jpg"), errors.New("input/output error"))
		if _, err := f.scanner.Reconcile(tree); err == nil {
			t.Fatal("Reconcile() expected error, got nil")
		}
		if !f.exists(t, "m1", "a.jpg") {
			t.Error("location removed on an ambiguous read error")
		}
	})
}

func TestScanner_ProcessTree(t *testing.T) {
	t.Run("refresh repoints changed content", func(t *testing.T) {
		f := newFixture(t)
		f.add("a.jpg", "before")
		tree := testTree()
		if _, err := f.scanner.ProcessTree(tree, nil, backer.ScanOptions{}); err != nil {
			t.Fatalf("ProcessTree() error = %v", err)
		}

		f.add("a.jpg", "after")
		stats, err := f.scanner.ProcessTree(tree, nil, backer.ScanOptions{Refresh: true})
		if err != nil {
			t.Fatalf("ProcessTree() error = %v", err)
		}
		if stats.Known != 1 || stats.Mismatched != 1 || stats.Ingested != 1 {
			t.Errorf("stats = %+v, want 1 known, 1 mismatched, 1 ingested", stats)
		}

		after := f.fileByContent(t, "after")
		if after == nil {
			t.Fatal("refreshed content not catalogued")
		}
		locs, err := f.catalog.FileLocations(after.ID)
		if err != nil {
			t.Fatalf("FileLocations() error = %v", err)
		}
		if len(locs) != 1 || locs[0].RelativePath != "a.jpg" {
			t.Errorf("FileLocations() = %v, want a.jpg", locs)
		}
	})

	t.Run("skip ingest only reconciles", func(t *testing.T) {
		f := newFixture(t)
		f.add("a.jpg", "alpha")

		stats, err := f.scanner.ProcessTree(testTree(), nil, backer.ScanOptions{SkipIngest: true})
		if err != nil {
			t.Fatalf("ProcessTree() error = %v", err)
		}
		if stats.Ingested != 0 || f.exists(t, "m1", "a.jpg") {
			t.Errorf("stats = %+v, want nothing ingested", stats)
		}
	})
}

func TestScanner_PreviewDates(t *testing.T) {
	f := newFixture(t)
	f.add("2017/a.jpg", "alpha")
	f.add("misc/b.jpg", "beta")
	rules := []backer.DatePathRule{mustRule(t, `^(\d{4})/`, "$1-06-01")}

	var got []backer.DatePreview
	for p, err := range f.scanner.PreviewDates(testTree(), rules) {
		if err != nil {
			t.Fatalf("PreviewDates() error = %v", err)
		}
		got = append(got, p)
	}

	if len(got) != 2 {
		t.Fatalf("PreviewDates() = %v, want 2 entries", got)
	}
	if got[0].RelativePath != "2017/a.jpg" || got[0].Date.Time.Format(backer.DateLayout) != "2017-06-01" {
		t.Errorf("first preview = %+v, want 2017/a.jpg on 2017-06-01", got[0])
	}
	if got[1].RelativePath != "misc/b.jpg" || got[1].Date.Valid {
		t.Errorf("second preview = %+v, want misc/b.jpg with no date", got[1])
	}
	if f.fsmgr.Reads(f.path("2017/a.jpg")) != 0 {
		t.Error("PreviewDates read file contents")
	}
}
