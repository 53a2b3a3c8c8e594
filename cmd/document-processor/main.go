package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/freightdocflow/internal/models"
	"github.com/Lllllllleong/freightdocflow/internal/services"
	"github.com/joho/godotenv"
)

var (
	processorInstance *services.ProcessorFunction
	once              sync.Once
	initErr           error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	_ = godotenv.Load()

	functions.HTTP("HandleProcessDocument", handleProcessDocument)
}

// main is required by the Go Functions Framework.
func main() {}

// handleProcessDocument is called by the processing workflow.
func handleProcessDocument(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		processorInstance, initErr = services.NewProcessorFunction(context.Background())
	})
	if initErr != nil {
		slog.Error("CRITICAL: Document processor initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	var req models.ProcessDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Could not decode request body", "error", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}
	if req.TenantID == "" || req.Object == "" {
		http.Error(w, "Bad Request: tenantId and object are required", http.StatusBadRequest)
		return
	}

	res, err := processorInstance.Process(r.Context(), &req)
	if err != nil {
		// The specific error is already logged inside Process.
		http.Error(w, "Internal Server Error: processing failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
