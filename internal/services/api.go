package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Lllllllleong/documentevaluator/internal/config"
	"github.com/Lllllllleong/documentevaluator/internal/metrics"
	"github.com/Lllllllleong/documentevaluator/internal/models"
)

// Lifecycle is the part of evaluation.Manager the HTTP surface uses.
type Lifecycle interface {
	Submit(ctx context.Context) (string, string, error)
	Fetch(ctx context.Context, id string) ([]byte, error)
	DownloadTarget(ctx context.Context, id string) (string, error)
	Delete(ctx context.Context, id string) error
}

// APIFunction serves the upload, fetch, download and delete endpoints.
type APIFunction struct {
	lifecycle Lifecycle
	router    chi.Router
	logger    *slog.Logger
	handlers  []errorHandler
	closer    func() error
}

type errorHandler func(w http.ResponseWriter, id string, err error) bool

// NewAPIFunction builds the router over l.
func NewAPIFunction(l Lifecycle, logger *slog.Logger) *APIFunction {
	if logger == nil {
		logger = slog.Default()
	}
	f := &APIFunction{lifecycle: l, logger: logger}
	f.handlers = []errorHandler{
		missingArtifactHandler,
		sentinelHandler(models.ErrPartiallyDeleted, http.StatusServiceUnavailable, "deletion incomplete, retry the request"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware())
	r.Use(f.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, models.MessageResponse{Message: "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/upload", f.upload)
	r.Route("/evaluations/{id}", func(r chi.Router) {
		r.Get("/", f.fetch)
		r.Get("/download_resume", f.download)
		r.Delete("/", f.delete)
	})
	f.router = r
	return f
}

// NewAPI builds the API from the environment (and CONFIG_FILE, if set).
func NewAPI(ctx context.Context) (*APIFunction, error) {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return nil, err
	}
	rt, err := NewRuntime(ctx, cfg, slog.Default())
	if err != nil {
		return nil, err
	}
	f := NewAPIFunction(rt.Manager, slog.Default())
	f.closer = rt.Close
	slog.Info("API logic initialized.", "bucket", cfg.Bucket)
	return f, nil
}

func (f *APIFunction) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.router.ServeHTTP(w, r)
}

func (f *APIFunction) Close() error {
	if f.closer != nil {
		return f.closer()
	}
	return nil
}

func (f *APIFunction) upload(w http.ResponseWriter, r *http.Request) {
	id, url, err := f.lifecycle.Submit(r.Context())
	if err != nil {
		f.handleError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, models.UploadResponse{UploadURL: url, EvaluationID: id})
}

func (f *APIFunction) fetch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	data, err := f.lifecycle.Fetch(r.Context(), id)
	if err != nil {
		f.handleError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, models.EvaluationResponse{EvaluationID: id, Evaluation: string(data)})
}

func (f *APIFunction) download(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	url, err := f.lifecycle.DownloadTarget(r.Context(), id)
	if err != nil {
		f.handleError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, models.DownloadResponse{EvaluationID: id, DownloadURL: url})
}

func (f *APIFunction) delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := f.lifecycle.Delete(r.Context(), id); err != nil {
		f.handleError(w, id, err)
		return
	}
	writeJSON(w, http.StatusAccepted, models.MessageResponse{EvaluationID: id, Message: "evaluation deleted"})
}

// handleError writes the first matching handler's response, or a generic 500.
func (f *APIFunction) handleError(w http.ResponseWriter, id string, err error) {
	for _, h := range f.handlers {
		if h(w, id, err) {
			return
		}
	}
	f.logger.Error("Request failed", "evaluationId", id, "error", err)
	writeJSON(w, http.StatusInternalServerError, models.MessageResponse{EvaluationID: id, Message: "internal error"})
}

func missingArtifactHandler(w http.ResponseWriter, id string, err error) bool {
	if !errors.Is(err, models.ErrNotFound) {
		return false
	}
	msg := "evaluation not found"
	if a, ok := models.MissingArtifact(err); ok {
		msg = fmt.Sprintf("%s artifact not found", a)
	}
	writeJSON(w, http.StatusNotFound, models.MessageResponse{EvaluationID: id, Message: msg})
	return true
}

func sentinelHandler(sentinel error, status int, msg string) errorHandler {
	return func(w http.ResponseWriter, id string, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeJSON(w, status, models.MessageResponse{EvaluationID: id, Message: msg})
		return true
	}
}

func (f *APIFunction) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		f.logger.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start).String(),
			"requestId", middleware.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
