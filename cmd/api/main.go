package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/Lllllllleong/documentevaluator/internal/logging"
	"github.com/Lllllllleong/documentevaluator/internal/services"
)

var (
	apiInstance *services.APIFunction
	once        sync.Once
	initErr     error
)

func init() {
	logger, err := logging.New(os.Getenv("LOG_FORMAT"), os.Getenv("LOG_LEVEL"))
	if err != nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
		logger.Warn("Falling back to default logging", "error", err)
	}
	slog.SetDefault(logger)

	functions.HTTP("HandleEvaluations", handleEvaluations)
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

func handleEvaluations(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		apiInstance, initErr = services.NewAPI(context.Background())
	})
	if initErr != nil {
		slog.Error("API initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	apiInstance.ServeHTTP(w, r)
}
