package model

import "time"

// WorkStatus describes the state of a queued analysis request.
type WorkStatus string

const (
	// WorkPending is waiting to be claimed by a worker.
	WorkPending WorkStatus = "pending"
	// WorkProcessing has been claimed and the remote call is in flight.
	WorkProcessing WorkStatus = "processing"
	// WorkCompleted finished successfully and wrote its result to the find.
	WorkCompleted WorkStatus = "completed"
	// WorkFailed exhausted its retries. Terminal.
	WorkFailed WorkStatus = "failed"
)

// Valid reports whether s is a known work status.
func (s WorkStatus) Valid() bool {
	switch s {
	case WorkPending, WorkProcessing, WorkCompleted, WorkFailed:
		return true
	}
	return false
}

// WorkItem is a durable record of a pending remote analysis operation.
// Rows cascade on find deletion.
type WorkItem struct {
	// ID is a locally auto-incrementing sequence number.
	ID     int64      `json:"id"`
	FindID string     `json:"find_id"`
	Status WorkStatus `json:"status"`

	// Attempts counts how many times the remote call has been started.
	Attempts    int        `json:"attempts"`
	LastAttempt *time.Time `json:"last_attempt,omitempty"`

	// Error holds the last failure message, nil while no attempt has failed.
	Error *string `json:"error,omitempty"`
}
