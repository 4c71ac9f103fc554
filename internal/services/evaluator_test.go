package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/documentevaluator/internal/evaluation"
	"github.com/Lllllllleong/documentevaluator/internal/extract"
	"github.com/Lllllllleong/documentevaluator/internal/llm"
	"github.com/Lllllllleong/documentevaluator/internal/models"
	"github.com/Lllllllleong/documentevaluator/internal/prompts"
	"github.com/Lllllllleong/documentevaluator/internal/store"
)

const (
	idA = "11111111-1111-4111-8111-111111111111"
	idB = "22222222-2222-4222-8222-222222222222"
	idC = "33333333-3333-4333-8333-333333333333"
)

// fakeExtractor maps payloads to results: "pdf:<text>" is accepted, "img" is
// unsupported, "corrupt" fails extraction.
type fakeExtractor struct{}

func (fakeExtractor) Extract(_ context.Context, data []byte) (*extract.Result, error) {
	s := string(data)
	switch {
	case strings.HasPrefix(s, "pdf:"):
		return &extract.Result{Kind: extract.KindPDF, Text: strings.TrimPrefix(s, "pdf:"), Pages: 1}, nil
	case s == "img":
		return nil, fmt.Errorf("sniffed image: %w", models.ErrUnsupportedFormat)
	default:
		return nil, fmt.Errorf("garbled: %w", models.ErrExtractionFailed)
	}
}

type scriptedClient struct {
	mu     sync.Mutex
	calls  int
	fail   string // user text that triggers a hard failure
	closed atomic.Bool
}

func (c *scriptedClient) Complete(_ context.Context, p llm.Prompt) (string, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.fail != "" && strings.Contains(p.User, c.fail) {
		return "", fmt.Errorf("quota exceeded: %w", models.ErrInferenceFailed)
	}
	if strings.HasPrefix(p.System, "REDUCE") {
		return "Final Cumulative Score: 30\n" + p.User, nil
	}
	return "notes on " + p.User, nil
}

func (c *scriptedClient) Provider() string { return "scripted" }
func (c *scriptedClient) Close() error     { c.closed.Store(true); return nil }

var testRubric = prompts.Rubric{
	Name:   "test",
	Map:    prompts.Template{System: "MAP", User: "{{text}}", Slots: []string{"text"}},
	Reduce: prompts.Template{System: "REDUCE", User: "{{text}}", Slots: []string{"text"}},
}

type statusLedger struct {
	mu       sync.Mutex
	statuses map[string][]models.Status
}

func (l *statusLedger) Transition(_ context.Context, id string, t models.Transition) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.statuses[id] = append(l.statuses[id], t.Status)
	return nil
}

func (l *statusLedger) of(id string) []models.Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.Status(nil), l.statuses[id]...)
}

type harness struct {
	ledger    *statusLedger
	mem       *store.Memory
	manager   *evaluation.Manager
	client    *scriptedClient
	factories atomic.Int32
	fn        *EvaluatorFunction
}

func newHarness(t *testing.T, factoryErr error) *harness {
	t.Helper()
	h := &harness{
		ledger: &statusLedger{statuses: map[string][]models.Status{}},
		mem:    store.NewMemory(),
		client: &scriptedClient{},
	}
	h.manager = evaluation.New(h.mem, evaluation.Config{}, evaluation.WithLedger(h.ledger))
	h.fn = NewEvaluatorFunction(h.manager, fakeExtractor{},
		func(context.Context) (llm.Client, error) {
			h.factories.Add(1)
			if factoryErr != nil {
				return nil, factoryErr
			}
			return h.client, nil
		},
		EvaluatorConfig{MaxWords: 2000, MapConcurrency: 4, BatchConcurrency: 2, Rubric: testRubric},
		nil,
	)
	return h
}

func (h *harness) upload(t *testing.T, id, body string) {
	t.Helper()
	require.NoError(t, h.mem.Put(context.Background(), "resumes/"+id, []byte(body)))
}

func TestProcessBatchMixedOutcomes(t *testing.T) {
	h := newHarness(t, nil)
	h.upload(t, idA, "pdf:seasoned engineer with ten years")
	h.upload(t, idB, "img")
	h.upload(t, idC, "corrupt")

	res := h.fn.ProcessBatch(context.Background(), []models.Notification{
		{Key: "resumes/" + idA},
		{Key: "resumes/" + idB},
		{Key: "resumes/" + idC},
		{Key: "results/" + idA},
		{Key: "resumes/44444444-4444-4444-8444-444444444444"},
	})

	require.Len(t, res.Outcomes, 5)
	assert.Equal(t, models.RecordCompleted, res.Outcomes[0].Status)
	assert.Equal(t, 1, res.Outcomes[0].PageCount)
	assert.Equal(t, models.RecordUnsupported, res.Outcomes[1].Status)
	assert.Equal(t, models.RecordFailed, res.Outcomes[2].Status)
	assert.Equal(t, models.RecordSkipped, res.Outcomes[3].Status)
	assert.Equal(t, models.RecordFailed, res.Outcomes[4].Status)

	assert.Equal(t, int32(1), h.factories.Load(), "credential resolved once per batch")
	assert.True(t, h.client.closed.Load())

	data, err := h.manager.Fetch(context.Background(), idA)
	require.NoError(t, err)
	assert.Contains(t, string(data), "notes on seasoned engineer with ten years")
}

// Scenario B
func TestUnsupportedHasNoSideEffects(t *testing.T) {
	h := newHarness(t, nil)
	h.upload(t, idB, "img")
	before := len(h.mem.Mutations())

	require.NoError(t, h.fn.Process(context.Background(), models.GCSEvent{Bucket: "b", Name: "resumes/" + idB}))

	assert.Len(t, h.mem.Mutations(), before)
	assert.Zero(t, h.client.calls)
	_, err := h.manager.Fetch(context.Background(), idB)
	assert.True(t, errors.Is(err, models.ErrNotFound))
	assert.Equal(t, []models.Status{models.StatusUnsupported}, h.ledger.of(idB))
}

func TestLedgerTransitionsForAcceptedDocument(t *testing.T) {
	h := newHarness(t, nil)
	h.upload(t, idA, "pdf:staff engineer")

	res := h.fn.ProcessBatch(context.Background(), []models.Notification{{Key: "resumes/" + idA}})

	require.Equal(t, models.RecordCompleted, res.Outcomes[0].Status)
	assert.Equal(t, []models.Status{models.StatusProcessing, models.StatusCompleted}, h.ledger.of(idA))
}

func TestInferenceFailureIsIsolated(t *testing.T) {
	h := newHarness(t, nil)
	h.client.fail = "poison"
	h.upload(t, idA, "pdf:poison resume")
	h.upload(t, idB, "pdf:healthy resume")

	res := h.fn.ProcessBatch(context.Background(), []models.Notification{{Key: "resumes/" + idA}, {Key: "resumes/" + idB}})
	assert.Equal(t, models.RecordFailed, res.Outcomes[0].Status)
	assert.Contains(t, res.Outcomes[0].Error, "inference failed")
	assert.Equal(t, models.RecordCompleted, res.Outcomes[1].Status)

	_, err := h.manager.Fetch(context.Background(), idA)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestCompleteFailureReported(t *testing.T) {
	h := newHarness(t, nil)
	h.upload(t, idA, "pdf:resume")
	h.mem.Fail(store.OpPut, "results/"+idA, errors.New("bucket full"))

	res := h.fn.ProcessBatch(context.Background(), []models.Notification{{Key: "resumes/" + idA}})
	assert.Equal(t, models.RecordFailed, res.Outcomes[0].Status)
	assert.Contains(t, res.Outcomes[0].Error, "failed to store result")
}

func TestClientFactoryFailureFailsRunnableRecords(t *testing.T) {
	h := newHarness(t, errors.New("no api key"))
	h.upload(t, idA, "pdf:resume")

	res := h.fn.ProcessBatch(context.Background(), []models.Notification{{Key: "resumes/" + idA}, {Key: "elsewhere/x"}})
	assert.Equal(t, models.RecordFailed, res.Outcomes[0].Status)
	assert.Contains(t, res.Outcomes[0].Error, "no api key")
	assert.Equal(t, models.RecordSkipped, res.Outcomes[1].Status)
}

func TestOnlySkippedRecordsBuildNoClient(t *testing.T) {
	h := newHarness(t, nil)
	res := h.fn.ProcessBatch(context.Background(), []models.Notification{{Key: "results/" + idA}})
	assert.Equal(t, 1, res.Count(models.RecordSkipped))
	assert.Zero(t, h.factories.Load())
}

func TestProcessBatchEmpty(t *testing.T) {
	h := newHarness(t, nil)
	res := h.fn.ProcessBatch(context.Background(), nil)
	assert.Empty(t, res.Outcomes)
}

func TestReprocessingOverwritesResult(t *testing.T) {
	h := newHarness(t, nil)
	h.upload(t, idA, "pdf:resume")
	n := []models.Notification{{Key: "resumes/" + idA}}

	first := h.fn.ProcessBatch(context.Background(), n)
	second := h.fn.ProcessBatch(context.Background(), n)
	assert.Equal(t, models.RecordCompleted, first.Outcomes[0].Status)
	assert.Equal(t, models.RecordCompleted, second.Outcomes[0].Status)
	assert.ElementsMatch(t, []string{"resumes/" + idA, "results/" + idA}, h.mem.Keys())
}
