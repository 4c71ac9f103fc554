package evaluation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Lllllllleong/documentevaluator/internal/models"
)

// Delete removes both artifacts of id.
//
// Both must exist; otherwise Delete returns models.ErrNotFound naming the missing
// artifact and changes nothing. Before removing anything it writes a tombstone
// marker, so a Delete that failed halfway (reported as models.ErrPartiallyDeleted)
// is finished by calling Delete again.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if !ValidID(id) {
		m.count("delete", "not_found")
		return &models.ArtifactError{Op: "delete", ID: id, Artifact: models.ArtifactPending, Err: models.ErrNotFound}
	}
	logger := m.logger.With("evaluationId", id)

	marker := m.tombstoneKey(id)
	resuming, err := m.store.Exists(ctx, marker)
	if err != nil {
		m.count("delete", "error")
		return &models.ArtifactError{Op: "delete", ID: id, Err: storageErr(err)}
	}

	if resuming {
		logger.Info("Resuming interrupted deletion")
		return m.resumeDelete(ctx, id, marker)
	}

	for _, a := range []models.Artifact{models.ArtifactPending, models.ArtifactCompleted} {
		ok, err := m.store.Exists(ctx, m.key(id, a))
		if err != nil {
			m.count("delete", "error")
			return &models.ArtifactError{Op: "delete", ID: id, Artifact: a, Err: storageErr(err)}
		}
		if !ok {
			m.count("delete", "not_found")
			return &models.ArtifactError{Op: "delete", ID: id, Artifact: a, Err: models.ErrNotFound}
		}
	}

	if err := m.store.Put(ctx, marker, []byte(time.Now().UTC().Format(time.RFC3339))); err != nil {
		m.count("delete", "error")
		return &models.ArtifactError{Op: "delete", ID: id, Err: fmt.Errorf("write tombstone: %w", storageErr(err))}
	}

	if err := m.store.Delete(ctx, m.PendingKey(id)); err != nil && !errors.Is(err, models.ErrNotFound) {
		// nothing removed yet, so the marker can go too
		if derr := m.store.Delete(ctx, marker); derr != nil {
			logger.Warn("Failed to remove tombstone after aborted deletion", "error", derr)
		}
		m.count("delete", "error")
		return &models.ArtifactError{Op: "delete", ID: id, Artifact: models.ArtifactPending, Err: storageErr(err)}
	}

	if err := m.store.Delete(ctx, m.CompletedKey(id)); err != nil && !errors.Is(err, models.ErrNotFound) {
		return m.partial(ctx, id, models.ArtifactCompleted, err)
	}

	m.finishDelete(ctx, id, marker)
	return nil
}

// resumeDelete finishes a deletion recorded by marker. A marker left behind after
// both artifacts were already removed is cleared and reported as models.ErrNotFound.
func (m *Manager) resumeDelete(ctx context.Context, id, marker string) error {
	var remaining []models.Artifact
	for _, a := range []models.Artifact{models.ArtifactPending, models.ArtifactCompleted} {
		ok, err := m.store.Exists(ctx, m.key(id, a))
		if err != nil {
			m.count("delete", "error")
			return &models.ArtifactError{Op: "delete", ID: id, Artifact: a, Err: storageErr(err)}
		}
		if ok {
			remaining = append(remaining, a)
		}
	}

	if len(remaining) == 0 {
		m.logger.Info("Clearing stale tombstone", "evaluationId", id)
		m.finishDelete(ctx, id, marker)
		return &models.ArtifactError{Op: "delete", ID: id, Artifact: models.ArtifactPending, Err: models.ErrNotFound}
	}

	for _, a := range remaining {
		if err := m.store.Delete(ctx, m.key(id, a)); err != nil && !errors.Is(err, models.ErrNotFound) {
			return m.partial(ctx, id, a, err)
		}
	}
	m.finishDelete(ctx, id, marker)
	return nil
}

func (m *Manager) partial(ctx context.Context, id string, a models.Artifact, err error) error {
	m.logger.Error("Deletion left the record partially deleted", "evaluationId", id, "artifact", a, "error", err)
	m.Record(ctx, id, models.Transition{Status: models.StatusPartiallyDeleted, Detail: err.Error()})
	m.count("delete", "partial")
	return &models.ArtifactError{Op: "delete", ID: id, Artifact: a, Err: fmt.Errorf("%v: %w", err, models.ErrPartiallyDeleted)}
}

func (m *Manager) finishDelete(ctx context.Context, id, marker string) {
	if err := m.store.Delete(ctx, marker); err != nil && !errors.Is(err, models.ErrNotFound) {
		m.logger.Warn("Failed to remove tombstone", "evaluationId", id, "error", err)
	}
	m.Record(ctx, id, models.Transition{Status: models.StatusDeleted})
	m.count("delete", "ok")
}

func (m *Manager) key(id string, a models.Artifact) string {
	if a == models.ArtifactCompleted {
		return m.CompletedKey(id)
	}
	return m.PendingKey(id)
}
