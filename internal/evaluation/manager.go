// Package evaluation owns the key namespaces of an evaluation record and the
// lifecycle operations on it: submit, complete, fetch, download and delete.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Lllllllleong/documentevaluator/internal/metrics"
	"github.com/Lllllllleong/documentevaluator/internal/models"
)

// ObjectStore is the flat key-addressed blob store holding both halves of a record.
// Get and Delete return an error wrapping models.ErrNotFound for a missing key.
type ObjectStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	SignedURL(ctx context.Context, key, method string, ttl time.Duration) (string, error)
}

// Ledger records status transitions. It is informational only.
type Ledger interface {
	Transition(ctx context.Context, id string, t models.Transition) error
}

// NopLedger discards transitions.
type NopLedger struct{}

func (NopLedger) Transition(context.Context, string, models.Transition) error { return nil }

// Namespaces are the key prefixes of the three kinds of object a record can own.
type Namespaces struct {
	Pending   string
	Completed string
	Tombstone string
}

// DefaultNamespaces matches the bucket layout the upload form writes to.
var DefaultNamespaces = Namespaces{Pending: "resumes/", Completed: "results/", Tombstone: "deletions/"}

// Config holds the lifecycle settings.
type Config struct {
	Namespaces  Namespaces
	UploadTTL   time.Duration
	DownloadTTL time.Duration
}

// Manager is safe for concurrent use.
type Manager struct {
	store  ObjectStore
	ledger Ledger
	cfg    Config
	logger *slog.Logger
	newID  func() string
}

// Option configures a Manager.
type Option func(*Manager)

func WithLedger(l Ledger) Option {
	return func(m *Manager) {
		if l != nil {
			m.ledger = l
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithIDGenerator replaces uuid.NewString for minting evaluation ids.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) {
		if fn != nil {
			m.newID = fn
		}
	}
}

// New returns a Manager over store. Empty config fields take defaults.
func New(store ObjectStore, cfg Config, opts ...Option) *Manager {
	if cfg.Namespaces.Pending == "" {
		cfg.Namespaces.Pending = DefaultNamespaces.Pending
	}
	if cfg.Namespaces.Completed == "" {
		cfg.Namespaces.Completed = DefaultNamespaces.Completed
	}
	if cfg.Namespaces.Tombstone == "" {
		cfg.Namespaces.Tombstone = DefaultNamespaces.Tombstone
	}
	if cfg.UploadTTL <= 0 {
		cfg.UploadTTL = 30 * time.Minute
	}
	if cfg.DownloadTTL <= 0 {
		cfg.DownloadTTL = 15 * time.Minute
	}

	m := &Manager{
		store:  store,
		ledger: NopLedger{},
		cfg:    cfg,
		logger: slog.Default(),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) PendingKey(id string) string   { return m.cfg.Namespaces.Pending + id }
func (m *Manager) CompletedKey(id string) string { return m.cfg.Namespaces.Completed + id }
func (m *Manager) tombstoneKey(id string) string { return m.cfg.Namespaces.Tombstone + id }

// IDFromKey returns the evaluation id of a pending key. Keys outside the pending
// namespace, including completed keys, are rejected.
func (m *Manager) IDFromKey(key string) (string, error) {
	id, ok := strings.CutPrefix(key, m.cfg.Namespaces.Pending)
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", fmt.Errorf("key %q is not in the pending namespace %q", key, m.cfg.Namespaces.Pending)
	}
	return id, nil
}

// ValidID reports whether id is a canonical uuid, the shape every minted id has.
func ValidID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// Submit mints a fresh id and a time-limited upload URL for its pending artifact.
func (m *Manager) Submit(ctx context.Context) (string, string, error) {
	id := m.newID()
	url, err := m.store.SignedURL(ctx, m.PendingKey(id), http.MethodPut, m.cfg.UploadTTL)
	if err != nil {
		m.count("submit", "error")
		return "", "", &models.ArtifactError{Op: "submit", ID: id, Artifact: models.ArtifactPending, Err: storageErr(err)}
	}
	m.Record(ctx, id, models.Transition{Status: models.StatusSubmitted})
	m.count("submit", "ok")
	return id, url, nil
}

// LoadPending reads the uploaded binary of id.
func (m *Manager) LoadPending(ctx context.Context, id string) ([]byte, error) {
	data, err := m.store.Get(ctx, m.PendingKey(id))
	if err != nil {
		return nil, &models.ArtifactError{Op: "load", ID: id, Artifact: models.ArtifactPending, Err: classify(err)}
	}
	return data, nil
}

// Complete writes the result of id, overwriting any earlier result.
func (m *Manager) Complete(ctx context.Context, id string, result []byte) error {
	if err := m.store.Put(ctx, m.CompletedKey(id), result); err != nil {
		m.count("complete", "error")
		return &models.ArtifactError{Op: "complete", ID: id, Artifact: models.ArtifactCompleted, Err: storageErr(err)}
	}
	m.count("complete", "ok")
	return nil
}

// Fetch returns the result of id. A result that does not exist yet is reported as
// models.ErrNotFound without attempting a read.
func (m *Manager) Fetch(ctx context.Context, id string) ([]byte, error) {
	if !ValidID(id) {
		m.count("fetch", "not_found")
		return nil, &models.ArtifactError{Op: "fetch", ID: id, Artifact: models.ArtifactCompleted, Err: models.ErrNotFound}
	}
	key := m.CompletedKey(id)
	ok, err := m.store.Exists(ctx, key)
	if err != nil {
		m.count("fetch", "error")
		return nil, &models.ArtifactError{Op: "fetch", ID: id, Artifact: models.ArtifactCompleted, Err: storageErr(err)}
	}
	if !ok {
		m.count("fetch", "not_found")
		return nil, &models.ArtifactError{Op: "fetch", ID: id, Artifact: models.ArtifactCompleted, Err: models.ErrNotFound}
	}

	data, err := m.store.Get(ctx, key)
	if err != nil {
		m.count("fetch", "error")
		return nil, &models.ArtifactError{Op: "fetch", ID: id, Artifact: models.ArtifactCompleted, Err: classify(err)}
	}
	m.count("fetch", "ok")
	return data, nil
}

// DownloadTarget returns a time-limited read URL for the pending artifact of id.
func (m *Manager) DownloadTarget(ctx context.Context, id string) (string, error) {
	if !ValidID(id) {
		return "", &models.ArtifactError{Op: "download", ID: id, Artifact: models.ArtifactPending, Err: models.ErrNotFound}
	}
	key := m.PendingKey(id)
	ok, err := m.store.Exists(ctx, key)
	if err != nil {
		return "", &models.ArtifactError{Op: "download", ID: id, Artifact: models.ArtifactPending, Err: storageErr(err)}
	}
	if !ok {
		return "", &models.ArtifactError{Op: "download", ID: id, Artifact: models.ArtifactPending, Err: models.ErrNotFound}
	}

	url, err := m.store.SignedURL(ctx, key, http.MethodGet, m.cfg.DownloadTTL)
	if err != nil {
		return "", &models.ArtifactError{Op: "download", ID: id, Artifact: models.ArtifactPending, Err: storageErr(err)}
	}
	return url, nil
}

// Record writes a ledger transition. Failures are logged and otherwise ignored.
func (m *Manager) Record(ctx context.Context, id string, t models.Transition) {
	if err := m.ledger.Transition(ctx, id, t); err != nil {
		m.logger.Warn("Failed to record status transition", "evaluationId", id, "status", t.Status, "error", err)
	}
}

func (m *Manager) count(op, result string) {
	metrics.LifecycleOpsTotal.WithLabelValues(op, result).Inc()
}

// classify keeps a store's not-found signal and maps everything else to StorageFailed.
func classify(err error) error {
	if errors.Is(err, models.ErrNotFound) {
		return err
	}
	return storageErr(err)
}

func storageErr(err error) error {
	if errors.Is(err, models.ErrStorageFailed) {
		return err
	}
	return fmt.Errorf("%v: %w", err, models.ErrStorageFailed)
}

// Lister is implemented by stores that can enumerate keys under a prefix.
type Lister interface {
	List(ctx context.Context, prefix string) ([]string, error)
}

// ListCompleted returns the ids that have a completed result.
func (m *Manager) ListCompleted(ctx context.Context) ([]string, error) {
	l, ok := m.store.(Lister)
	if !ok {
		return nil, fmt.Errorf("object store does not support listing")
	}
	keys, err := l.List(ctx, m.cfg.Namespaces.Completed)
	if err != nil {
		return nil, storageErr(err)
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		if id := strings.TrimPrefix(k, m.cfg.Namespaces.Completed); id != "" && !strings.Contains(id, "/") {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
