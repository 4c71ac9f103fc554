package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/documentevaluator/internal/evaluation"
	"github.com/Lllllllleong/documentevaluator/internal/store"
)

func newAPI(t *testing.T) (*APIFunction, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	m := evaluation.New(mem, evaluation.Config{}, evaluation.WithIDGenerator(func() string { return idA }))
	return NewAPIFunction(m, nil), mem
}

func do(t *testing.T, h http.Handler, method, path string) (*httptest.ResponseRecorder, map[string]string) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, http.NoBody))
	var body map[string]string
	if rr.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	}
	return rr, body
}

func TestUpload(t *testing.T) {
	api, _ := newAPI(t)
	rr, body := do(t, api, http.MethodPost, "/upload")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, idA, body["evaluation_id"])
	assert.Contains(t, body["upload_url"], "resumes/"+idA)
}

func TestFetchEvaluation(t *testing.T) {
	api, mem := newAPI(t)

	rr, body := do(t, api, http.MethodGet, "/evaluations/"+idA)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, idA, body["evaluation_id"])

	require.NoError(t, mem.Put(context.Background(), "results/"+idA, []byte("## Feedback\nGood.")))
	rr, body = do(t, api, http.MethodGet, "/evaluations/"+idA)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "## Feedback\nGood.", body["evaluation"])
}

func TestFetchInvalidIDIs404(t *testing.T) {
	api, _ := newAPI(t)
	rr, _ := do(t, api, http.MethodGet, "/evaluations/not-an-id")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDownloadResume(t *testing.T) {
	api, mem := newAPI(t)

	rr, body := do(t, api, http.MethodGet, "/evaluations/"+idA+"/download_resume")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "pending artifact not found", body["message"])

	require.NoError(t, mem.Put(context.Background(), "resumes/"+idA, []byte("%PDF")))
	rr, body = do(t, api, http.MethodGet, "/evaluations/"+idA+"/download_resume")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, body["download_url"], "method=GET")
}

func TestDeleteEvaluation(t *testing.T) {
	api, mem := newAPI(t)
	ctx := context.Background()

	require.NoError(t, mem.Put(ctx, "resumes/"+idA, []byte("%PDF")))
	rr, body := do(t, api, http.MethodDelete, "/evaluations/"+idA)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "completed artifact not found", body["message"])

	require.NoError(t, mem.Put(ctx, "results/"+idA, []byte("report")))
	rr, _ = do(t, api, http.MethodDelete, "/evaluations/"+idA)
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Empty(t, mem.Keys())
}

func TestDeletePartialIs503ThenRetrySucceeds(t *testing.T) {
	api, mem := newAPI(t)
	ctx := context.Background()
	require.NoError(t, mem.Put(ctx, "resumes/"+idA, []byte("%PDF")))
	require.NoError(t, mem.Put(ctx, "results/"+idA, []byte("report")))

	mem.Fail(store.OpDelete, "results/"+idA, errors.New("backend unavailable"))
	rr, body := do(t, api, http.MethodDelete, "/evaluations/"+idA)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, body["message"], "retry")

	mem.Clear()
	rr, _ = do(t, api, http.MethodDelete, "/evaluations/"+idA)
	assert.Equal(t, http.StatusAccepted, rr.Code)
}

func TestStorageFailureIsGeneric500(t *testing.T) {
	api, mem := newAPI(t)
	mem.Fail(store.OpExists, "", errors.New("gs://secret-bucket: permission denied"))

	rr, body := do(t, api, http.MethodGet, "/evaluations/"+idA)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "internal error", body["message"])
	assert.NotContains(t, rr.Body.String(), "secret-bucket")
}

func TestHealthzAndMetrics(t *testing.T) {
	api, _ := newAPI(t)
	rr, body := do(t, api, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", body["message"])

	rr = httptest.NewRecorder()
	api.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "docevaluator_http_requests_total")
}

var _ Lifecycle = (*evaluation.Manager)(nil)
