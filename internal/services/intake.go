package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Lllllllleong/freightdocflow/internal/gcp"
	"github.com/Lllllllleong/freightdocflow/internal/models"
	"github.com/google/uuid"
)

// Object metadata keys set by the upload client on intake objects.
const (
	MetaTenantID         = "tenantId"
	MetaUserID           = "userId"
	MetaJobID            = "jobId"
	MetaOriginalFilename = "originalFilename"
)

type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// IntakeFunction registers finalized uploads as processing jobs and hands them
// to the processing workflow.
type IntakeFunction struct {
	intake   BlobStore
	jobs     JobStore
	workflow WorkflowTrigger
	now      func() time.Time
	closers  []func() error
}

// NewIntake wires an IntakeFunction from its collaborators.
func NewIntake(intake BlobStore, jobs JobStore, workflow WorkflowTrigger) *IntakeFunction {
	return &IntakeFunction{intake: intake, jobs: jobs, workflow: workflow, now: time.Now}
}

func NewIntakeFunction(ctx context.Context) (*IntakeFunction, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.IntakeBucket == "" {
		return nil, fmt.Errorf("INTAKE_BUCKET environment variable must be set")
	}
	stores, err := NewStores(ctx, cfg)
	if err != nil {
		return nil, err
	}
	trigger, err := gcp.NewWorkflowTrigger(ctx, cfg.ProjectID, cfg.WorkflowLocation, cfg.WorkflowID)
	if err != nil {
		_ = stores.Close()
		return nil, err
	}

	f := NewIntake(stores.Intake, stores.Jobs, trigger)
	f.closers = []func() error{trigger.Close, stores.Close}
	slog.Info("PDF intake logic initialized.", "workflowId", cfg.WorkflowID, "intakeBucket", cfg.IntakeBucket)
	return f, nil
}

// Process handles one finalized intake object. Objects that can never be
// processed are logged and acknowledged so the event is not redelivered.
func (f *IntakeFunction) Process(ctx context.Context, e GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	logCtx.Info("Processing new intake object.")

	info, err := f.intake.Stat(ctx, e.Name)
	if errors.Is(err, models.ErrBlobNotFound) {
		logCtx.Warn("Intake object no longer exists. Skipping.")
		return nil
	}
	if err != nil {
		logCtx.Error("Failed to read intake object metadata", "error", err)
		return err
	}

	tenantID := info.Metadata[MetaTenantID]
	userID := info.Metadata[MetaUserID]
	if tenantID == "" {
		logCtx.Error("Intake object has no tenantId metadata. Skipping.")
		return nil
	}
	jobID := info.Metadata[MetaJobID]
	if jobID == "" {
		jobID = uuid.NewString()
	}
	filename := info.Metadata[MetaOriginalFilename]
	if filename == "" {
		filename = e.Name
	}
	logCtx = logCtx.With("jobId", jobID, "tenantId", tenantID)

	job, err := f.ensureJob(ctx, jobID, tenantID, userID, filename, e.Name, info.Size)
	if err != nil {
		logCtx.Error("Failed to create processing job", "error", err)
		return err
	}
	if job.Stage != models.StageUploading {
		logCtx.Info("Job already past intake. Skipping duplicate event.", "stage", job.Stage)
		return nil
	}
	if exec, ok := job.Metadata["workflowExecution"].(string); ok && exec != "" {
		logCtx.Info("Workflow already triggered for job. Skipping duplicate event.", "execution", exec)
		return nil
	}

	content, err := f.intake.ReadDocument(ctx, e.Name)
	if err != nil {
		return f.handleError(ctx, logCtx, job, "failed to download intake object", err)
	}
	if !looksLikePDF(content) {
		f.fail(ctx, logCtx, job, "uploaded file is not a PDF")
		return nil
	}

	execName, err := f.workflow.Trigger(ctx, models.WorkflowArgs{
		JobID:            jobID,
		TenantID:         tenantID,
		UserID:           userID,
		Bucket:           e.Bucket,
		Object:           e.Name,
		OriginalFilename: filename,
	})
	if err != nil {
		return f.handleError(ctx, logCtx, job, "failed to trigger workflow execution", err)
	}
	if _, err := f.jobs.UpdateJobStage(ctx, jobID, tenantID, models.StageUploading, map[string]interface{}{
		"workflowExecution": execName,
		"fileHash":          fileHash(content),
	}); err != nil {
		logCtx.Warn("Failed to record workflow execution on job", "error", err)
	}

	logCtx.Info("Hand-off to workflow complete.", "execution", execName)
	return nil
}

// ensureJob returns the job for jobID, creating it in the uploading stage.
func (f *IntakeFunction) ensureJob(ctx context.Context, jobID, tenantID, userID, filename, object string, size int64) (*models.ProcessingJob, error) {
	job, err := f.jobs.GetJob(ctx, jobID, tenantID)
	if err != nil {
		return nil, err
	}
	if job != nil {
		return job, nil
	}

	job = models.NewProcessingJob(jobID, tenantID, userID, map[string]interface{}{
		"originalFilename": filename,
		"object":           object,
		"fileSize":         size,
	}, f.now())
	err = f.jobs.CreateJob(ctx, job)
	if errors.Is(err, models.ErrJobExists) {
		// A concurrent delivery of the same event won the race.
		return f.jobs.GetJob(ctx, jobID, tenantID)
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (f *IntakeFunction) handleError(ctx context.Context, logCtx *slog.Logger, job *models.ProcessingJob, message string, originalErr error) error {
	fullError := fmt.Sprintf("%s: %v", message, originalErr)
	logCtx.Error(message, "error", originalErr)
	f.fail(ctx, logCtx, job, fullError)
	return fmt.Errorf("%s: %w", message, originalErr)
}

func (f *IntakeFunction) fail(ctx context.Context, logCtx *slog.Logger, job *models.ProcessingJob, message string) {
	logCtx.Warn("Failing processing job.", "reason", message)
	if _, err := f.jobs.FailJob(ctx, job.JobID, job.TenantID, message, models.StageUploading); err != nil {
		logCtx.Error("CRITICAL: Failed to mark job failed after an intake error.", "updateError", err)
	}
}

// Close releases the clients opened by NewIntakeFunction.
func (f *IntakeFunction) Close() error {
	var errs []error
	for _, c := range f.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

func fileHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
