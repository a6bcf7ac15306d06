package backer

import (
	"io"
	"sync"
)

// Progress ticks.
const (
	TickKnown   = "."
	TickMatched = ","
)

// Progress writes one short tick per processed file. Trees scanned in
// parallel share one Progress.
type Progress struct {
	mu sync.Mutex
	w  io.Writer
}

// NewProgress returns a Progress writing to w. A nil w discards ticks.
func NewProgress(w io.Writer) *Progress {
	if w == nil {
		w = io.Discard
	}
	return &Progress{w: w}
}

// Tick writes s.
func (p *Progress) Tick(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	io.WriteString(p.w, s)
}
