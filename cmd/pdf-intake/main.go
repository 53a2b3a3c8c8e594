package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/freightdocflow/internal/services"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/joho/godotenv"
)

var (
	intakeInstance *services.IntakeFunction
	once           sync.Once
	initErr        error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Local runs read .env; deployed functions get their environment from the runtime.
	_ = godotenv.Load()

	functions.CloudEvent("IntakeUploadedPDF", intakeUploadedPDF)
}

// main is required by the Go Functions Framework.
func main() {}

// intakeUploadedPDF is triggered by a finalized object in the intake bucket.
func intakeUploadedPDF(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		intakeInstance, initErr = services.NewIntakeFunction(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent services.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	// Errors are logged with context inside Process; returning one marks the
	// invocation as failed so the event is redelivered.
	return intakeInstance.Process(ctx, gcsEvent)
}
