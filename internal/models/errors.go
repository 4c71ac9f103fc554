package models

import (
	"errors"
	"fmt"
)

// Outcome taxonomy shared by the pipeline, the lifecycle manager and the HTTP surface.
var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrExtractionFailed  = errors.New("extraction failed")
	ErrInferenceFailed   = errors.New("inference failed")
	ErrNotFound          = errors.New("not found")
	ErrPartiallyDeleted  = errors.New("partially deleted")
	ErrStorageFailed     = errors.New("storage failed")
)

// Artifact names one half of an evaluation record.
type Artifact string

const (
	ArtifactPending   Artifact = "pending"
	ArtifactCompleted Artifact = "completed"
)

// ArtifactError reports a lifecycle failure together with the evaluation id
// and the artifact it concerns. Err is one of the sentinels above, possibly wrapped.
type ArtifactError struct {
	Op       string
	ID       string
	Artifact Artifact
	Err      error
}

func (e *ArtifactError) Error() string {
	if e.Artifact == "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("%s %s (%s artifact): %v", e.Op, e.ID, e.Artifact, e.Err)
}

func (e *ArtifactError) Unwrap() error {
	return e.Err
}

// MissingArtifact returns the artifact named by err when err is an ArtifactError.
func MissingArtifact(err error) (Artifact, bool) {
	var ae *ArtifactError
	if errors.As(err, &ae) && ae.Artifact != "" {
		return ae.Artifact, true
	}
	return "", false
}
