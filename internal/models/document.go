package models

import "time"

// Status is the lifecycle state recorded for an evaluation in the status ledger.
type Status string

const (
	StatusSubmitted        Status = "SUBMITTED"
	StatusProcessing       Status = "PROCESSING"
	StatusCompleted        Status = "COMPLETED"
	StatusUnsupported      Status = "UNSUPPORTED"
	StatusFailed           Status = "FAILED"
	StatusDeleted          Status = "DELETED"
	StatusPartiallyDeleted Status = "PARTIALLY_DELETED"
)

// Evaluation is the ledger record for one evaluation id in Firestore.
// It mirrors what the object store holds and is never read back for correctness.
type Evaluation struct {
	ID           string    `firestore:"id,omitempty"`
	Status       Status    `firestore:"status,omitempty"`
	ErrorDetails string    `firestore:"errorDetails,omitempty"`
	PageCount    int       `firestore:"pageCount,omitempty"`
	Score        float64   `firestore:"score,omitempty"`
	CreatedAt    time.Time `firestore:"createdAt,omitempty"`
	UpdatedAt    time.Time `firestore:"updatedAt,omitempty"`
}

// Transition is a single ledger update. Zero-valued optional fields are not written.
type Transition struct {
	Status    Status
	Detail    string
	PageCount int
	Score     *float64
}
