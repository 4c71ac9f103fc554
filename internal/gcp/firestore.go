package gcp

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/Lllllllleong/documentevaluator/internal/models"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// FirestoreLedger mirrors evaluation status into one document per evaluation id.
type FirestoreLedger struct {
	client     *firestore.Client
	collection string
	now        func() time.Time
}

func NewFirestoreLedger(client *firestore.Client, collection string) *FirestoreLedger {
	return &FirestoreLedger{client: client, collection: collection, now: time.Now}
}

// Transition merges the fields t sets into the evaluation document. Fields t leaves
// at their zero value keep whatever the document already holds.
func (l *FirestoreLedger) Transition(ctx context.Context, id string, t models.Transition) error {
	doc, paths := evaluationUpdate(id, t, l.now())
	_, err := l.client.Collection(l.collection).Doc(id).Set(ctx, doc, firestore.Merge(paths...))
	if err != nil {
		return fmt.Errorf("failed to record %s for %s: %w", t.Status, id, err)
	}
	return nil
}

// evaluationUpdate returns the document for t and the field paths, named by the
// Evaluation firestore tags, that the merge writes.
func evaluationUpdate(id string, t models.Transition, now time.Time) (models.Evaluation, []firestore.FieldPath) {
	doc := models.Evaluation{ID: id, Status: t.Status, UpdatedAt: now}
	paths := []firestore.FieldPath{{"id"}, {"status"}, {"updatedAt"}}

	if t.Detail != "" {
		doc.ErrorDetails = t.Detail
		paths = append(paths, firestore.FieldPath{"errorDetails"})
	}
	if t.PageCount > 0 {
		doc.PageCount = t.PageCount
		paths = append(paths, firestore.FieldPath{"pageCount"})
	}
	if t.Score != nil {
		doc.Score = *t.Score
		paths = append(paths, firestore.FieldPath{"score"})
	}
	if t.Status == models.StatusSubmitted {
		doc.CreatedAt = now
		paths = append(paths, firestore.FieldPath{"createdAt"})
	}
	return doc, paths
}
