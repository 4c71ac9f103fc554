// Package secrets resolves API credentials for one pipeline run.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNotConfigured is returned when a source names no usable location.
var ErrNotConfigured = errors.New("secret is not configured")

// Accessor reads a secret from a secret store by name.
type Accessor interface {
	Access(ctx context.Context, name string) (string, error)
}

// Source describes where a secret may come from, in order of precedence:
// the environment variable Env, then File, then the secret store entry Secret.
type Source struct {
	// Name is used in error messages.
	Name   string
	Env    string
	File   string
	Secret string
}

// Resolver resolves sources. The zero value reads the process environment and has
// no secret store.
type Resolver struct {
	accessor  Accessor
	lookupEnv func(string) (string, bool)
}

// NewResolver returns a Resolver backed by accessor, which may be nil.
func NewResolver(accessor Accessor) *Resolver {
	return &Resolver{accessor: accessor}
}

// WithEnv replaces the environment lookup.
func (r *Resolver) WithEnv(lookup func(string) (string, bool)) *Resolver {
	r.lookupEnv = lookup
	return r
}

// Resolve returns the trimmed secret value for src.
func (r *Resolver) Resolve(ctx context.Context, src Source) (string, error) {
	name := strings.TrimSpace(src.Name)
	if name == "" {
		name = "secret"
	}

	lookup := r.lookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}

	if env := strings.TrimSpace(src.Env); env != "" {
		if v, ok := lookup(env); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), nil
		}
	}

	if file := strings.TrimSpace(src.File); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading %s from file %q: %w", name, file, err)
		}
		secret := strings.TrimSpace(string(data))
		if secret == "" {
			return "", fmt.Errorf("%s file %q is empty", name, file)
		}
		return secret, nil
	}

	if ref := strings.TrimSpace(src.Secret); ref != "" {
		if r.accessor == nil {
			return "", fmt.Errorf("%s: secret %q requested but no secret store is configured", name, ref)
		}
		v, err := r.accessor.Access(ctx, ref)
		if err != nil {
			return "", fmt.Errorf("accessing %s: %w", name, err)
		}
		secret := strings.TrimSpace(v)
		if secret == "" {
			return "", fmt.Errorf("%s secret %q is empty", name, ref)
		}
		return secret, nil
	}

	return "", fmt.Errorf("%s: %w", name, ErrNotConfigured)
}
