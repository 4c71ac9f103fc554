// Package store provides an in-memory object store for tests and local runs.
package store

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Lllllllleong/documentevaluator/internal/models"
)

// Op names a store operation for fault injection.
type Op string

const (
	OpExists    Op = "exists"
	OpGet       Op = "get"
	OpPut       Op = "put"
	OpDelete    Op = "delete"
	OpSignedURL Op = "signed_url"
)

// Memory is a concurrency-safe map-backed object store. Faults registered with
// Fail are returned for matching operations until cleared.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
	faults  map[fault]error
	calls   []Call
}

type fault struct {
	op  Op
	key string
}

// Call is one recorded operation.
type Call struct {
	Op  Op
	Key string
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte), faults: make(map[fault]error)}
}

// Fail makes op on key return err. An empty key matches every key.
func (m *Memory) Fail(op Op, key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults[fault{op, key}] = err
}

// Clear removes every injected fault.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults = make(map[fault]error)
}

// Calls returns the operations performed so far.
func (m *Memory) Calls() []Call {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Call(nil), m.calls...)
}

// Mutations returns the put and delete calls performed so far.
func (m *Memory) Mutations() []Call {
	var out []Call
	for _, c := range m.Calls() {
		if c.Op == OpPut || c.Op == OpDelete {
			out = append(out, c)
		}
	}
	return out
}

// Keys returns the stored keys, sorted.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// record must be called with the write lock held.
func (m *Memory) record(op Op, key string) error {
	m.calls = append(m.calls, Call{Op: op, Key: key})
	if err, ok := m.faults[fault{op, key}]; ok {
		return err
	}
	if err, ok := m.faults[fault{op, ""}]; ok {
		return err
	}
	return nil
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(OpExists, key); err != nil {
		return false, err
	}
	_, ok := m.objects[key]
	return ok, nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(OpGet, key); err != nil {
		return nil, err
	}
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", key, models.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (m *Memory) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(OpPut, key); err != nil {
		return err
	}
	m.objects[key] = append([]byte(nil), data...)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(OpDelete, key); err != nil {
		return err
	}
	if _, ok := m.objects[key]; !ok {
		return fmt.Errorf("object %s: %w", key, models.ErrNotFound)
	}
	delete(m.objects, key)
	return nil
}

// SignedURL returns a memory:// URL encoding the method and expiry.
func (m *Memory) SignedURL(_ context.Context, key, method string, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(OpSignedURL, key); err != nil {
		return "", err
	}
	q := url.Values{}
	q.Set("method", strings.ToUpper(method))
	q.Set("expires", time.Now().Add(ttl).UTC().Format(time.RFC3339))
	return "memory://" + key + "?" + q.Encode(), nil
}

// List returns the keys under prefix, sorted.
func (m *Memory) List(_ context.Context, prefix string) ([]string, error) {
	var out []string
	for _, k := range m.Keys() {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}
