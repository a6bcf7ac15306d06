package testutil

import (
	"sync"
	"time"
)

// RecordingMetrics counts scan events by name and marker.
type RecordingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewRecordingMetrics() *RecordingMetrics {
	return &RecordingMetrics{counts: make(map[string]int)}
}

func (m *RecordingMetrics) inc(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[key]++
}

// Count returns the number of events recorded under key, e.g. "ingested/m1"
// or "skipped/m1/known".
func (m *RecordingMetrics) Count(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[key]
}

func (m *RecordingMetrics) FileIngested(marker string)         { m.inc("ingested/" + marker) }
func (m *RecordingMetrics) FileSkipped(marker, reason string)  { m.inc("skipped/" + marker + "/" + reason) }
func (m *RecordingMetrics) LocationRemoved(marker string)      { m.inc("removed/" + marker) }
func (m *RecordingMetrics) HashMismatch(marker string)         { m.inc("mismatch/" + marker) }
func (m *RecordingMetrics) TreeFinished(marker, status string) { m.inc("tree/" + status) }
func (m *RecordingMetrics) StageDuration(marker, stage string, _ time.Duration) {
	m.inc("stage/" + marker + "/" + stage)
}
