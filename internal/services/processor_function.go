package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Lllllllleong/freightdocflow/internal/models"
)

// ProcessorFunction serves the workflow step that runs the pipeline on an
// intake object.
type ProcessorFunction struct {
	processor *DocumentProcessor
	intake    BlobStore
	jobs      JobStore
	closers   []func() error
}

// NewProcessorFunctionWith wires a ProcessorFunction from its collaborators.
func NewProcessorFunctionWith(processor *DocumentProcessor, intake BlobStore, jobs JobStore) *ProcessorFunction {
	return &ProcessorFunction{processor: processor, intake: intake, jobs: jobs}
}

func NewProcessorFunction(ctx context.Context) (*ProcessorFunction, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.IntakeBucket == "" && cfg.StorageBackend == BackendGCP {
		return nil, fmt.Errorf("INTAKE_BUCKET environment variable must be set")
	}
	stores, err := NewStores(ctx, cfg)
	if err != nil {
		return nil, err
	}
	generator, closeGenerator, err := NewGenerator(ctx, cfg)
	if err != nil {
		_ = stores.Close()
		return nil, err
	}

	processor := NewDocumentProcessor(ProcessorDeps{
		TextExtractor: NewPDFTextExtractor(),
		Classifier:    NewDocumentClassifier(),
		Extractor:     NewStructuredExtractor(generator, cfg.ExtractionTimeout, DefaultScoringWeights()),
		Blobs:         stores.Blobs,
		Documents:     stores.Documents,
		Examples:      stores.Examples,
		Observer:      NewJobTracker(stores.Jobs),
	}, cfg.Processor)

	f := NewProcessorFunctionWith(processor, stores.Intake, stores.Jobs)
	f.closers = []func() error{closeGenerator, stores.Close}
	slog.Info("Document processor logic initialized.", "llmProvider", cfg.LLMProvider, "storageBackend", cfg.StorageBackend)
	return f, nil
}

// Process downloads the intake object and runs the pipeline on it. A job that
// already reached a terminal stage is not processed again; its stored result
// is returned so a retried workflow step stays idempotent. An unfinished job is
// resumed from its creation time, which keeps record ids stable across
// attempts.
func (f *ProcessorFunction) Process(ctx context.Context, req *models.ProcessDocumentRequest) (*models.ProcessResult, error) {
	if req.TenantID == "" {
		return nil, models.ErrTenantRequired
	}
	if req.Object == "" {
		return nil, fmt.Errorf("object must be provided")
	}
	logCtx := slog.With("jobId", req.JobID, "tenantId", req.TenantID, "gcsObject", req.Object, "executionId", req.ExecutionID)

	var startedAt time.Time
	if req.JobID != "" {
		job, err := f.jobs.GetJob(ctx, req.JobID, req.TenantID)
		if err != nil {
			logCtx.Warn("Failed to load job before processing", "error", err)
		} else if job != nil && job.Stage.IsTerminal() {
			logCtx.Info("Job already finished. Returning stored result.", "stage", job.Stage)
			if job.Result != nil {
				return job.Result, nil
			}
			msg := "job already failed"
			if job.Error != nil {
				msg = job.Error.Message
			}
			return &models.ProcessResult{Success: false, Message: msg, OriginalFilename: req.OriginalFilename}, nil
		} else if job != nil {
			startedAt = job.CreatedAt
			if job.Stage != models.StageUploading {
				logCtx.Info("Resuming interrupted job.", "stage", job.Stage)
			}
		}
	}

	content, err := f.intake.ReadDocument(ctx, req.Object)
	if err != nil {
		return nil, f.handleError(ctx, logCtx, req, "failed to download intake object", err)
	}

	result, err := f.processor.ProcessDocument(ctx, ProcessRequest{
		FileBuffer:       content,
		OriginalFilename: req.OriginalFilename,
		User:             models.User{TenantID: req.TenantID, UserID: req.UserID},
		JobID:            req.JobID,
		StartedAt:        startedAt,
	})
	if err != nil {
		// The processor already logged and reported the failure.
		return nil, err
	}
	return result, nil
}

func (f *ProcessorFunction) handleError(ctx context.Context, logCtx *slog.Logger, req *models.ProcessDocumentRequest, message string, originalErr error) error {
	logCtx.Error(message, "error", originalErr)
	if req.JobID != "" {
		fullError := fmt.Sprintf("%s: %v", message, originalErr)
		if _, err := f.jobs.FailJob(ctx, req.JobID, req.TenantID, fullError, models.StageExtractingText); err != nil {
			logCtx.Error("CRITICAL: Failed to mark job failed after a processing error.", "updateError", err)
		}
	}
	return fmt.Errorf("%s: %w", message, originalErr)
}

// Close releases the clients opened by NewProcessorFunction.
func (f *ProcessorFunction) Close() error {
	var errs []error
	for _, c := range f.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
