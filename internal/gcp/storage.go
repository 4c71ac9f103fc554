package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"github.com/gabriel-vasile/mimetype"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/Lllllllleong/documentevaluator/internal/models"
)

// GCSStore keeps evaluation artifacts as objects in a single bucket.
type GCSStore struct {
	bucket *storage.BucketHandle
	name   string
}

// NewGCSStore wraps bucket of client.
func NewGCSStore(client *storage.Client, bucket string) (*GCSStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket name must be provided")
	}
	return &GCSStore{bucket: client.Bucket(bucket), name: bucket}, nil
}

func (s *GCSStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.bucket.Object(key).Attrs(ctx)
	if isNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat gs://%s/%s: %w", s.name, key, err)
	}
	return true, nil
}

func (s *GCSStore) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := s.bucket.Object(key).NewReader(ctx)
	if isNotExist(err) {
		return nil, fmt.Errorf("gs://%s/%s: %w", s.name, key, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", s.name, key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", s.name, key, err)
	}
	return data, nil
}

// Put writes data to key, replacing any existing object.
func (s *GCSStore) Put(ctx context.Context, key string, data []byte) error {
	w := s.bucket.Object(key).NewWriter(ctx)
	w.ContentType = mimetype.Detect(data).String()

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write to GCS object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize GCS write for %s: %w", key, err)
	}
	return nil
}

func (s *GCSStore) Delete(ctx context.Context, key string) error {
	err := s.bucket.Object(key).Delete(ctx)
	if isNotExist(err) {
		return fmt.Errorf("gs://%s/%s: %w", s.name, key, models.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to delete gs://%s/%s: %w", s.name, key, err)
	}
	return nil
}

// SignedURL issues a V4 signed URL for method on key.
func (s *GCSStore) SignedURL(_ context.Context, key, method string, ttl time.Duration) (string, error) {
	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  method,
		Expires: time.Now().Add(ttl),
	}
	url, err := s.bucket.SignedURL(key, opts)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s URL for %s: %w", method, key, err)
	}
	return url, nil
}

// List returns the object names under prefix.
func (s *GCSStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list gs://%s/%s: %w", s.name, prefix, err)
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}

func isNotExist(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return true
	}
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}
