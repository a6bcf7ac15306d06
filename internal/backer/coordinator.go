package backer

import (
	"sync"
)

// Tree run statuses reported to Metrics and TreeResult.
const (
	StatusSuccess     = "success"
	StatusUnavailable = "unavailable"
	StatusError       = "error"
)

// TreeResult is the outcome of scanning one marker tree.
type TreeResult struct {
	MarkerPath string
	// Tree is nil when the marker could not be resolved.
	Tree  *Tree
	Stats *ScanStats
	Err   error
}

// Status summarizes the result as one of the Status constants.
func (r TreeResult) Status() string {
	switch {
	case r.Err == nil:
		return StatusSuccess
	case IsTreeNotFound(r.Err):
		return StatusUnavailable
	default:
		return StatusError
	}
}

// Coordinator runs a Scanner over several marker trees in parallel.
type Coordinator struct {
	scanner *Scanner
	fsmgr   FilesystemManager
	logger  Logger
	metrics Metrics
}

// NewCoordinator creates a Coordinator sharing scanner across all trees.
func NewCoordinator(scanner *Scanner, fsmgr FilesystemManager, logger Logger, metrics Metrics) *Coordinator {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Coordinator{
		scanner: scanner,
		fsmgr:   fsmgr,
		logger:  logger,
		metrics: metrics,
	}
}

// ScanAll processes every marker tree concurrently, one goroutine per tree,
// and returns one result per marker path in input order. A failing tree
// never stops its siblings. rules is keyed by marker id.
func (c *Coordinator) ScanAll(markerPaths []string, rules map[string][]DatePathRule, opts ScanOptions) []TreeResult {
	results := make([]TreeResult, len(markerPaths))

	var wg sync.WaitGroup
	for i, markerPath := range markerPaths {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.scanTree(i, markerPath, rules, opts)
		}()
	}
	wg.Wait()

	return results
}

func (c *Coordinator) scanTree(index int, markerPath string, rules map[string][]DatePathRule, opts ScanOptions) TreeResult {
	result := TreeResult{MarkerPath: markerPath, Stats: &ScanStats{}}

	tree, err := ResolveMarker(c.fsmgr, markerPath)
	if err != nil {
		result.Err = err
		c.report(result)
		return result
	}
	tree.Index = index
	result.Tree = tree

	c.logger.Info("scanning tree", "marker", tree.Marker, "root", tree.Root)
	result.Stats, result.Err = c.scanner.ProcessTree(tree, rules[tree.Marker], opts)
	c.report(result)
	return result
}

func (c *Coordinator) report(r TreeResult) {
	status := r.Status()
	marker := ""
	if r.Tree != nil {
		marker = r.Tree.Marker
	}
	c.metrics.TreeFinished(marker, status)

	switch status {
	case StatusUnavailable:
		c.logger.Info("tree unavailable, skipping", "marker_path", r.MarkerPath)
	case StatusError:
		c.logger.Error("tree failed", "marker_path", r.MarkerPath, "marker", marker, "error", r.Err)
	default:
		c.logger.Info("tree finished",
			"marker", marker,
			"ingested", r.Stats.Ingested,
			"known", r.Stats.Known,
			"skipped", r.Stats.Skipped,
			"removed", r.Stats.Removed,
			"mismatched", r.Stats.Mismatched,
		)
	}
}

// OpenTrees resolves every marker path, skipping trees that are not
// currently available. Other marker errors are returned.
func (c *Coordinator) OpenTrees(markerPaths []string) ([]*Tree, error) {
	var trees []*Tree
	for i, markerPath := range markerPaths {
		tree, err := ResolveMarker(c.fsmgr, markerPath)
		if err != nil {
			if IsTreeNotFound(err) {
				c.logger.Info("tree unavailable, skipping", "marker_path", markerPath)
				continue
			}
			return nil, err
		}
		tree.Index = i
		trees = append(trees, tree)
	}
	return trees, nil
}
