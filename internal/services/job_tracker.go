package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Lllllllleong/freightdocflow/internal/models"
)

// JobRef addresses the job a processing run reports to.
type JobRef struct {
	JobID    string
	TenantID string
}

// JobObserver receives stage transitions of a processing run. Implementations
// must not block the run or surface failures to it.
type JobObserver interface {
	StageChanged(ctx context.Context, job JobRef, stage models.Stage, metadata map[string]interface{})
	Completed(ctx context.Context, job JobRef, result *models.ProcessResult)
	Failed(ctx context.Context, job JobRef, message string, stage models.Stage)
}

// NopObserver discards every report.
type NopObserver struct{}

func (NopObserver) StageChanged(context.Context, JobRef, models.Stage, map[string]interface{}) {}
func (NopObserver) Completed(context.Context, JobRef, *models.ProcessResult)                   {}
func (NopObserver) Failed(context.Context, JobRef, string, models.Stage)                       {}

// JobTracker persists reports to a JobStore. Store failures are logged and
// dropped; runs without a job id are not tracked.
type JobTracker struct {
	store JobStore
}

func NewJobTracker(store JobStore) *JobTracker {
	return &JobTracker{store: store}
}

func (t *JobTracker) StageChanged(ctx context.Context, job JobRef, stage models.Stage, metadata map[string]interface{}) {
	if job.JobID == "" {
		return
	}
	_, err := t.store.UpdateJobStage(ctx, job.JobID, job.TenantID, stage, metadata)
	switch {
	case errors.Is(err, models.ErrInvalidTransition):
		// A resumed run replays stages the job already passed.
		slog.Info("Job already past stage", "jobId", job.JobID, "tenantId", job.TenantID, "stage", stage)
	case err != nil:
		slog.Warn("Failed to update job stage", "jobId", job.JobID, "tenantId", job.TenantID, "stage", stage, "error", err)
	}
}

func (t *JobTracker) Completed(ctx context.Context, job JobRef, result *models.ProcessResult) {
	if job.JobID == "" {
		return
	}
	if _, err := t.store.CompleteJob(ctx, job.JobID, job.TenantID, result); err != nil {
		slog.Warn("Failed to mark job completed", "jobId", job.JobID, "tenantId", job.TenantID, "error", err)
	}
}

func (t *JobTracker) Failed(ctx context.Context, job JobRef, message string, stage models.Stage) {
	if job.JobID == "" {
		return
	}
	if _, err := t.store.FailJob(ctx, job.JobID, job.TenantID, message, stage); err != nil {
		slog.Warn("Failed to mark job failed", "jobId", job.JobID, "tenantId", job.TenantID, "error", err)
	}
}
