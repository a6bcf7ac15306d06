package backer

import "time"

// Skip reasons reported to Metrics.
const (
	SkipKnown      = "known"
	SkipReadError  = "read_error"
	SkipWalkError  = "walk_error"
	SkipDecodeFail = "decode_error"
)

// Metrics receives scan counters. Implementations must be safe for concurrent use.
type Metrics interface {
	FileIngested(marker string)
	FileSkipped(marker, reason string)
	LocationRemoved(marker string)
	HashMismatch(marker string)
	TreeFinished(marker, status string)
	StageDuration(marker, stage string, d time.Duration)
}

// NopMetrics discards all counters.
type NopMetrics struct{}

func (NopMetrics) FileIngested(string)                         {}
func (NopMetrics) FileSkipped(string, string)                  {}
func (NopMetrics) LocationRemoved(string)                      {}
func (NopMetrics) HashMismatch(string)                         {}
func (NopMetrics) TreeFinished(string, string)                 {}
func (NopMetrics) StageDuration(string, string, time.Duration) {}
