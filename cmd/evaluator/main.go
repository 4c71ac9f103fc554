package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/Lllllllleong/documentevaluator/internal/logging"
	"github.com/Lllllllleong/documentevaluator/internal/models"
	"github.com/Lllllllleong/documentevaluator/internal/services"
)

var (
	evaluatorInstance *services.EvaluatorFunction
	once              sync.Once
	initErr           error
)

func init() {
	logger, err := logging.New(os.Getenv("LOG_FORMAT"), os.Getenv("LOG_LEVEL"))
	if err != nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
		logger.Warn("Falling back to default logging", "error", err)
	}
	slog.SetDefault(logger)

	functions.CloudEvent("EvaluateResume", evaluateResume)
}

// main runs the function locally; Cloud Functions loads the registration from init.
func main() {
	port := "8080"
	if p := os.Getenv("PORT"); p != "" {
		port = p
	}
	if err := funcframework.Start(port); err != nil {
		log.Fatalf("funcframework.Start: %v", err)
	}
}

// evaluateResume handles a storage object-finalized event. Per-record failures are
// logged and never fail the invocation, so storage does not redeliver the event.
func evaluateResume(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		evaluatorInstance, initErr = services.NewEvaluator(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent models.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	return evaluatorInstance.Process(ctx, gcsEvent)
}
