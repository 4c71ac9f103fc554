// Package chain runs the map-reduce inference protocol over a sequence of pages.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/documentevaluator/internal/llm"
	"github.com/Lllllllleong/documentevaluator/internal/logging"
	"github.com/Lllllllleong/documentevaluator/internal/metrics"
	"github.com/Lllllllleong/documentevaluator/internal/models"
	"github.com/Lllllllleong/documentevaluator/internal/pages"
	"github.com/Lllllllleong/documentevaluator/internal/prompts"
)

const (
	defaultConcurrency = 10

	stepMap    = "map"
	stepReduce = "reduce"

	// separator between map outputs in the reduce input
	separator = "\n\n"
)

// ErrNoPages is returned by Run for an empty page sequence.
var ErrNoPages = errors.New("no pages to evaluate")

// Completer is the part of llm.Client the chain needs.
type Completer interface {
	Complete(ctx context.Context, p llm.Prompt) (string, error)
}

// Result holds the per-page map outputs in page order and the reduce output.
type Result struct {
	MapOutputs []string
	// Degraded lists the page indexes whose map call returned no text.
	Degraded []int
	Text     string
}

// Chain is safe for concurrent use by multiple runs.
type Chain struct {
	client      Completer
	rubric      prompts.Rubric
	provider    string
	concurrency int
	logger      *slog.Logger
}

// Option configures a Chain.
type Option func(*Chain)

// WithConcurrency bounds the number of in-flight map calls.
func WithConcurrency(n int) Option {
	return func(c *Chain) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Chain) {
		if l != nil {
			c.logger = l
		}
	}
}

// New builds a chain driving client with the map and reduce templates of rubric.
func New(client Completer, rubric prompts.Rubric, opts ...Option) *Chain {
	c := &Chain{
		client:      client,
		rubric:      rubric,
		provider:    "unknown",
		concurrency: defaultConcurrency,
		logger:      slog.Default(),
	}
	if p, ok := client.(interface{ Provider() string }); ok {
		c.provider = p.Provider()
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run issues one map call per page, waits for all of them, then issues exactly one
// reduce call over the ordered map outputs. params fills the rubric's extra slots.
// A map call that returns no text degrades the run; any other failure aborts it
// before the reduce call with an error wrapping models.ErrInferenceFailed.
func (c *Chain) Run(ctx context.Context, pgs []pages.Page, params map[string]string) (Result, error) {
	if len(pgs) == 0 {
		return Result{}, ErrNoPages
	}

	mapPrompts := make([]llm.Prompt, len(pgs))
	for i, p := range pgs {
		prompt, err := c.rubric.Map.Render(withText(params, p.Text()))
		if err != nil {
			return Result{}, fmt.Errorf("render map prompt for page %d: %w", i, err)
		}
		mapPrompts[i] = prompt
	}
	metrics.PagesPerRun.Observe(float64(len(pgs)))

	outputs := make([]string, len(pgs))
	empty := make([]bool, len(pgs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i := range mapPrompts {
		g.Go(func() error {
			out, err := c.call(gctx, stepMap, mapPrompts[i])
			switch {
			case errors.Is(err, llm.ErrEmptyCompletion):
				c.logger.Warn("Map call returned no text", "page", i, "error", err)
				outputs[i] = out
				empty[i] = true
				return nil
			case err != nil:
				return fmt.Errorf("map page %d: %w", i, asInferenceFailure(err))
			}
			outputs[i] = out
			return nil
		})
	}
	// barrier: every map call has resolved before this returns
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	res := Result{MapOutputs: outputs}
	for i, e := range empty {
		if e {
			res.Degraded = append(res.Degraded, i)
		}
	}
	c.logger.Info("Map step complete", "pages", len(pgs), "degraded", len(res.Degraded))

	reducePrompt, err := c.rubric.Reduce.Render(withText(params, strings.Join(outputs, separator)))
	if err != nil {
		return Result{}, fmt.Errorf("render reduce prompt: %w", err)
	}

	text, err := c.call(ctx, stepReduce, reducePrompt)
	if err != nil {
		return Result{}, fmt.Errorf("reduce: %w", asInferenceFailure(err))
	}
	c.logger.Debug("Reduce step complete", "preview", logging.Truncate(text, 200))

	res.Text = text
	return res, nil
}

func (c *Chain) call(ctx context.Context, step string, p llm.Prompt) (string, error) {
	start := time.Now()
	out, err := c.client.Complete(ctx, p)
	metrics.InferenceDuration.WithLabelValues(c.provider, step).Observe(time.Since(start).Seconds())

	status := "success"
	switch {
	case errors.Is(err, llm.ErrEmptyCompletion):
		status = "empty"
	case err != nil:
		status = "error"
	case strings.TrimSpace(out) == "":
		status = "empty"
		err = fmt.Errorf("%s: %w", step, llm.ErrEmptyCompletion)
	}
	metrics.InferenceRequestsTotal.WithLabelValues(c.provider, step, status).Inc()
	return out, err
}

// asInferenceFailure makes sure err carries the models.ErrInferenceFailed sentinel.
func asInferenceFailure(err error) error {
	if errors.Is(err, models.ErrInferenceFailed) {
		return err
	}
	return fmt.Errorf("%v: %w", err, models.ErrInferenceFailed)
}

func withText(params map[string]string, text string) map[string]string {
	values := make(map[string]string, len(params)+1)
	for k, v := range params {
		values[k] = v
	}
	values[prompts.TextSlot] = text
	return values
}
