package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/documentevaluator/internal/chain"
	"github.com/Lllllllleong/documentevaluator/internal/config"
	"github.com/Lllllllleong/documentevaluator/internal/evaluation"
	"github.com/Lllllllleong/documentevaluator/internal/extract"
	"github.com/Lllllllleong/documentevaluator/internal/llm"
	"github.com/Lllllllleong/documentevaluator/internal/metrics"
	"github.com/Lllllllleong/documentevaluator/internal/models"
	"github.com/Lllllllleong/documentevaluator/internal/pages"
	"github.com/Lllllllleong/documentevaluator/internal/prompts"
	"github.com/Lllllllleong/documentevaluator/internal/report"
)

// Extractor turns an uploaded binary into text.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (*extract.Result, error)
}

// ClientFactory builds an inference client for one batch.
type ClientFactory func(ctx context.Context) (llm.Client, error)

// EvaluatorConfig holds the pipeline settings of the trigger.
type EvaluatorConfig struct {
	MaxWords         int
	MapConcurrency   int
	BatchConcurrency int
	Rubric           prompts.Rubric
	Params           map[string]string
}

// EvaluatorFunction runs uploaded documents through extraction, page splitting and
// the map-reduce chain, then stores the result.
type EvaluatorFunction struct {
	manager   *evaluation.Manager
	extractor Extractor
	newClient ClientFactory
	config    EvaluatorConfig
	logger    *slog.Logger
	closer    func() error
}

// NewEvaluatorFunction wires an evaluator from its parts.
func NewEvaluatorFunction(manager *evaluation.Manager, extractor Extractor, newClient ClientFactory, cfg EvaluatorConfig, logger *slog.Logger) *EvaluatorFunction {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = 10
	}
	return &EvaluatorFunction{
		manager:   manager,
		extractor: extractor,
		newClient: newClient,
		config:    cfg,
		logger:    logger,
	}
}

// NewEvaluator builds the evaluator from the environment (and CONFIG_FILE, if set).
func NewEvaluator(ctx context.Context) (*EvaluatorFunction, error) {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return nil, err
	}
	return NewEvaluatorFromConfig(ctx, cfg, slog.Default())
}

// NewEvaluatorFromConfig connects the runtime described by cfg and wires an
// evaluator over it. The rubric must not need parameters beyond the page text.
func NewEvaluatorFromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*EvaluatorFunction, error) {
	if err := cfg.Require("project-id"); err != nil {
		return nil, err
	}

	rubric, err := prompts.Resolve(cfg.Pipeline.Rubric, cfg.Pipeline.RubricFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load rubric: %w", err)
	}
	if params := rubric.Params(); len(params) > 0 {
		return nil, fmt.Errorf("rubric %s needs parameters %v, which the trigger cannot supply", rubric.Name, params)
	}

	rt, err := NewRuntime(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	f := NewEvaluatorFunction(
		rt.Manager,
		extract.New(logger),
		func(ctx context.Context) (llm.Client, error) { return NewLLM(ctx, cfg, rt.Secrets) },
		EvaluatorConfig{
			MaxWords:         cfg.Pipeline.MaxWords,
			MapConcurrency:   cfg.Pipeline.MapConcurrency,
			BatchConcurrency: cfg.Pipeline.BatchConcurrency,
			Rubric:           rubric,
		},
		logger,
	)
	f.closer = rt.Close
	logger.Info("Evaluator logic initialized.", "bucket", cfg.Bucket, "provider", cfg.LLM.Provider, "rubric", rubric.Name)
	return f, nil
}

// Process handles one storage notification. It never returns an error: a failed
// record is logged and reported in the batch result.
func (f *EvaluatorFunction) Process(ctx context.Context, e models.GCSEvent) error {
	res := f.ProcessBatch(ctx, []models.Notification{{Key: e.Name}})
	for _, o := range res.Outcomes {
		f.logger.Info("Record processed", "gcsBucket", e.Bucket, "gcsObject", o.Key, "status", o.Status, "evaluationId", o.EvaluationID)
	}
	return nil
}

// ProcessBatch attempts every notification regardless of sibling failures and
// returns one outcome per notification, in order.
func (f *EvaluatorFunction) ProcessBatch(ctx context.Context, notes []models.Notification) models.BatchResult {
	outcomes := make([]models.RecordOutcome, len(notes))

	ids := make([]string, len(notes))
	runnable := 0
	for i, n := range notes {
		outcomes[i] = models.RecordOutcome{Key: n.Key}
		id, err := f.manager.IDFromKey(n.Key)
		if err != nil {
			outcomes[i].Status = models.RecordSkipped
			outcomes[i].Error = err.Error()
			continue
		}
		ids[i] = id
		outcomes[i].EvaluationID = id
		runnable++
	}

	if runnable > 0 {
		f.runAll(ctx, ids, outcomes)
	}

	result := models.BatchResult{Outcomes: outcomes}
	for _, o := range outcomes {
		metrics.RecordsTotal.WithLabelValues(string(o.Status)).Inc()
	}
	f.logger.Info("Batch complete",
		"records", len(notes),
		"completed", result.Count(models.RecordCompleted),
		"unsupported", result.Count(models.RecordUnsupported),
		"skipped", result.Count(models.RecordSkipped),
		"failed", result.Count(models.RecordFailed),
	)
	return result
}

func (f *EvaluatorFunction) runAll(ctx context.Context, ids []string, outcomes []models.RecordOutcome) {
	// the credential is resolved once for the whole batch
	client, err := f.newClient(ctx)
	if err != nil {
		f.logger.Error("Failed to create inference client for batch", "error", err)
		for i, id := range ids {
			if id == "" {
				continue
			}
			outcomes[i].Status = models.RecordFailed
			outcomes[i].Error = fmt.Sprintf("inference client: %v", err)
			f.manager.Record(ctx, id, models.Transition{Status: models.StatusFailed, Detail: outcomes[i].Error})
		}
		return
	}
	defer func() {
		if err := client.Close(); err != nil {
			f.logger.Warn("Failed to close inference client", "error", err)
		}
	}()

	ch := chain.New(client, f.config.Rubric,
		chain.WithConcurrency(f.config.MapConcurrency),
		chain.WithLogger(f.logger),
	)

	var g errgroup.Group
	g.SetLimit(f.config.BatchConcurrency)
	for i, id := range ids {
		if id == "" {
			continue
		}
		key := outcomes[i].Key
		g.Go(func() error {
			outcomes[i] = f.processRecord(ctx, ch, key, id)
			return nil
		})
	}
	_ = g.Wait()
}

func (f *EvaluatorFunction) processRecord(ctx context.Context, ch *chain.Chain, key, id string) (out models.RecordOutcome) {
	out = models.RecordOutcome{Key: key, EvaluationID: id}
	logCtx := f.logger.With("evaluationId", id, "gcsObject", key)

	defer func() {
		if r := recover(); r != nil {
			logCtx.Error("Panic while processing record", "panic", r)
			out.Status = models.RecordFailed
			out.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	fail := func(msg string, err error) models.RecordOutcome {
		logCtx.Error(msg, "error", err)
		out.Status = models.RecordFailed
		out.Error = fmt.Sprintf("%s: %v", msg, err)
		f.manager.Record(ctx, id, models.Transition{Status: models.StatusFailed, Detail: out.Error, PageCount: out.PageCount})
		return out
	}

	logCtx.Info("Processing new evaluation.")

	data, err := f.manager.LoadPending(ctx, id)
	if err != nil {
		return fail("failed to load pending artifact", err)
	}

	doc, err := f.extractor.Extract(ctx, data)
	if errors.Is(err, models.ErrUnsupportedFormat) {
		logCtx.Info("Unsupported document, skipping.", "reason", err)
		out.Status = models.RecordUnsupported
		f.manager.Record(ctx, id, models.Transition{Status: models.StatusUnsupported, Detail: err.Error()})
		return out
	}
	if err != nil {
		return fail("failed to extract text", err)
	}
	f.manager.Record(ctx, id, models.Transition{Status: models.StatusProcessing})

	pgs := pages.Split(pages.FromText(doc.Text), f.config.MaxWords)
	out.PageCount = len(pgs)
	logCtx.Info("Document split into pages.", "words", doc.Words(), "pages", len(pgs), "pdfPages", doc.Pages)

	res, err := ch.Run(ctx, pgs, f.config.Params)
	if err != nil {
		return fail("map-reduce run failed", err)
	}

	rep := report.Parse(res.Text)
	if !rep.OK() {
		logCtx.Warn("Score report is incomplete", "problems", rep.Problems)
	}

	if err := f.manager.Complete(ctx, id, []byte(res.Text)); err != nil {
		return fail("failed to store result", err)
	}

	t := models.Transition{Status: models.StatusCompleted, PageCount: len(pgs)}
	if score, ok := rep.Score(); ok {
		t.Score = &score
	}
	f.manager.Record(ctx, id, t)

	out.Status = models.RecordCompleted
	logCtx.Info("Evaluation completed.", "pages", len(pgs), "degradedPages", len(res.Degraded))
	return out
}

// Close releases the clients created by NewEvaluator.
func (f *EvaluatorFunction) Close() error {
	if f.closer != nil {
		return f.closer()
	}
	return nil
}
