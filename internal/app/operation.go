package app

import (
	"time"

	"mdnotes/internal/notes"
)

// Operation statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Operation tracks a single CLI invocation. Its ID tags every log line the
// invocation writes, so a run can be picked out of the shared log file.
type Operation struct {
	ID        string
	Name      string
	Status    string
	StartedAt time.Time
}

// NewOperation starts an operation named after the CLI command.
func NewOperation(name string, clock notes.Clock) *Operation {
	now := clock.Now().UTC()
	return &Operation{
		ID:        now.Format("20060102T150405Z"),
		Name:      name,
		Status:    StatusSuccess,
		StartedAt: now,
	}
}

// Fail marks the operation as failed when err is non-nil.
func (op *Operation) Fail(err error) {
	if err != nil {
		op.Status = StatusError
	}
}

// Failed reports whether any step of the operation failed.
func (op *Operation) Failed() bool {
	return op.Status == StatusError
}

// Elapsed returns the time since the operation started.
func (op *Operation) Elapsed(clock notes.Clock) time.Duration {
	return clock.Now().Sub(op.StartedAt)
}
