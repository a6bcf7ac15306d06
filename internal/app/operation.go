package app

import (
	"backer-go/internal/backer"
)

// Run statuses recorded in the catalog's run history.
const (
	RunRunning = "running"
	RunSuccess = "success"
	RunPartial = "partial"
	RunError   = "error"
)

// Operation tracks a CLI command that may mutate the catalog.
// Operations live in memory until persisted; read-only commands never are.
type Operation struct {
	Run       backer.ScanRun
	persisted bool
}

// NewOperation creates an in-memory operation stamped with an id and start time.
func NewOperation(name string, clock backer.Clock, ids backer.IDGenerator) *Operation {
	return &Operation{
		Run: backer.ScanRun{
			ID:        ids.New(),
			Operation: name,
			StartedAt: clock.Now(),
			Status:    RunSuccess,
		},
	}
}

// Persisted reports whether the operation has been written to the catalog.
func (op *Operation) Persisted() bool {
	return op.persisted
}

// Record folds tree results into the operation status: any failed tree makes
// the run partial, and a run where every tree failed is an error.
func (op *Operation) Record(results []backer.TreeResult) {
	failed := 0
	for _, r := range results {
		if r.Status() == backer.StatusError {
			failed++
		}
	}
	switch {
	case failed == 0:
	case failed == len(results):
		op.Run.Status = RunError
	default:
		op.Run.Status = RunPartial
	}
}

// Fail marks the operation as failed.
func (op *Operation) Fail() {
	op.Run.Status = RunError
}
