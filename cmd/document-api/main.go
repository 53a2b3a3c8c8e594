package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/freightdocflow/internal/api"
	"github.com/joho/godotenv"
)

var (
	apiHandler http.Handler
	once       sync.Once
	initErr    error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	_ = godotenv.Load()

	functions.HTTP("DocumentAPI", documentAPI)
}

// main is required by the Go Functions Framework.
func main() {}

func documentAPI(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		// Clients live for the lifetime of the instance.
		apiHandler, _, initErr = api.NewHandler(context.Background())
	})
	if initErr != nil {
		slog.Error("CRITICAL: Document API initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	apiHandler.ServeHTTP(w, r)
}
