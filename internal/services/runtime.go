package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/documentevaluator/internal/config"
	"github.com/Lllllllleong/documentevaluator/internal/evaluation"
	"github.com/Lllllllleong/documentevaluator/internal/gcp"
	"github.com/Lllllllleong/documentevaluator/internal/llm"
	"github.com/Lllllllleong/documentevaluator/internal/secrets"
)

// Runtime holds the GCP clients shared by the functions and the CLI.
type Runtime struct {
	Config  *config.Config
	Manager *evaluation.Manager
	Secrets *secrets.Resolver

	closers []func() error
}

// NewRuntime connects to Cloud Storage, and to Firestore and Secret Manager when
// they are configured.
func NewRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if err := cfg.Require("bucket"); err != nil {
		return nil, err
	}
	rt := &Runtime{Config: cfg}

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	rt.closers = append(rt.closers, storageClient.Close)

	store, err := gcp.NewGCSStore(storageClient, cfg.Bucket)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}

	opts := []evaluation.Option{evaluation.WithLogger(logger)}
	if cfg.FirestoreCollection != "" {
		fsClient, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, fsClient.Close)
		opts = append(opts, evaluation.WithLedger(gcp.NewFirestoreLedger(fsClient, cfg.FirestoreCollection)))
	}
	rt.Manager = evaluation.New(store, ManagerConfig(cfg), opts...)

	var accessor secrets.Accessor
	if cfg.LLM.APIKeySecret != "" {
		sm, err := gcp.NewSecretManager(ctx, cfg.ProjectID)
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, sm.Close)
		accessor = sm
	}
	rt.Secrets = secrets.NewResolver(accessor)

	return rt, nil
}

// ManagerConfig translates configuration into lifecycle settings.
func ManagerConfig(cfg *config.Config) evaluation.Config {
	return evaluation.Config{
		Namespaces: evaluation.Namespaces{
			Pending:   cfg.PendingPrefix,
			Completed: cfg.CompletedPrefix,
			Tombstone: cfg.TombstonePrefix,
		},
		UploadTTL:   cfg.UploadURLTTL,
		DownloadTTL: cfg.DownloadURLTTL,
	}
}

// NewLLM resolves the provider credential and builds a client. It is called once
// per pipeline run so the credential is never held longer than the run.
func NewLLM(ctx context.Context, cfg *config.Config, resolver *secrets.Resolver) (llm.Client, error) {
	lc := llm.Config{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		ProjectID:   cfg.ProjectID,
		Region:      cfg.LLM.Region,
		BaseURL:     cfg.LLM.BaseURL,
		Temperature: cfg.LLM.Temperature,
	}
	if cfg.NeedsAPIKey() {
		key, err := resolver.Resolve(ctx, secrets.Source{
			Name:   cfg.LLM.Provider + " api key",
			Env:    cfg.LLM.APIKeyEnv,
			File:   cfg.LLM.APIKeyFile,
			Secret: cfg.LLM.APIKeySecret,
		})
		if err != nil {
			return nil, err
		}
		lc.APIKey = key
	}
	return llm.New(ctx, lc)
}

func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
