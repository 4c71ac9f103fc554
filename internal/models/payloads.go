package models

// These structs define the JSON payloads exchanged with the trigger and the HTTP callers.

// GCSEvent is the data payload of a storage object-finalized CloudEvent.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// Notification names one newly created pending artifact.
type Notification struct {
	Key string `json:"key"`
}

// RecordStatus is the per-notification outcome of a trigger batch.
type RecordStatus string

const (
	RecordCompleted   RecordStatus = "completed"
	RecordUnsupported RecordStatus = "unsupported"
	RecordSkipped     RecordStatus = "skipped"
	RecordFailed      RecordStatus = "failed"
)

// RecordOutcome is the result of processing one notification.
type RecordOutcome struct {
	Key          string       `json:"key"`
	EvaluationID string       `json:"evaluationId,omitempty"`
	Status       RecordStatus `json:"status"`
	PageCount    int          `json:"pageCount,omitempty"`
	Error        string       `json:"error,omitempty"`
}

// BatchResult collects the outcomes of one trigger batch in notification order.
type BatchResult struct {
	Outcomes []RecordOutcome `json:"outcomes"`
}

// Count returns how many outcomes carry the given status.
func (b BatchResult) Count(status RecordStatus) int {
	n := 0
	for _, o := range b.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// UploadResponse is returned by POST /upload.
type UploadResponse struct {
	UploadURL    string `json:"upload_url"`
	EvaluationID string `json:"evaluation_id"`
}

// EvaluationResponse is returned by GET /evaluations/{id}.
type EvaluationResponse struct {
	EvaluationID string `json:"evaluation_id"`
	Evaluation   string `json:"evaluation"`
}

// DownloadResponse is returned by GET /evaluations/{id}/download_resume.
type DownloadResponse struct {
	EvaluationID string `json:"evaluation_id"`
	DownloadURL  string `json:"download_url"`
}

// MessageResponse carries a short status or error message for an evaluation.
type MessageResponse struct {
	EvaluationID string `json:"evaluation_id,omitempty"`
	Message      string `json:"message"`
}
