package models

import (
	"fmt"
	"time"
)

// Stage is the position of a ProcessingJob in its state machine.
type Stage string

const (
	StageUploading           Stage = "uploading"
	StageExtractingText      Stage = "extracting_text"
	StageClassifying         Stage = "classifying"
	StageAnalyzingWithClaude Stage = "analyzing_with_claude"
	StageStoring             Stage = "storing"
	StageCompleted           Stage = "completed"
	StageFailed              Stage = "failed"
)

// stageOrder is the only forward path through the state machine. StageFailed
// is reachable from any non-terminal stage and is not part of the order.
var stageOrder = []Stage{
	StageUploading,
	StageExtractingText,
	StageClassifying,
	StageAnalyzingWithClaude,
	StageStoring,
	StageCompleted,
}

var stageProgress = map[Stage]int{
	StageUploading:           5,
	StageExtractingText:      15,
	StageClassifying:         35,
	StageAnalyzingWithClaude: 50,
	StageStoring:             85,
	StageCompleted:           100,
}

func (s Stage) index() int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// IsTerminal reports whether no further transitions are allowed.
func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageFailed
}

// Progress returns the nominal progress percentage for the stage.
func (s Stage) Progress() int {
	return stageProgress[s]
}

// JobStatus is the coarse bucket derived from the stage.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// StatusForStage derives the coarse status of a stage.
func StatusForStage(s Stage) JobStatus {
	switch s {
	case StageUploading:
		return JobStatusPending
	case StageCompleted:
		return JobStatusCompleted
	case StageFailed:
		return JobStatusFailed
	default:
		return JobStatusProcessing
	}
}

// JobError is set on a job only when it failed.
type JobError struct {
	Message   string    `firestore:"message" json:"message"`
	Stage     Stage     `firestore:"stage" json:"stage"`
	Timestamp time.Time `firestore:"timestamp" json:"timestamp"`
}

// ProcessingJob tracks one upload request for polling clients.
type ProcessingJob struct {
	JobID       string                 `firestore:"jobId" json:"jobId"`
	TenantID    string                 `firestore:"tenantId" json:"tenantId"`
	UserID      string                 `firestore:"userId" json:"userId"`
	Stage       Stage                  `firestore:"stage" json:"stage"`
	Status      JobStatus              `firestore:"status" json:"status"`
	Progress    int                    `firestore:"progress" json:"progress"`
	Metadata    map[string]interface{} `firestore:"metadata" json:"metadata"`
	Result      *ProcessResult         `firestore:"result,omitempty" json:"result,omitempty"`
	Error       *JobError              `firestore:"error,omitempty" json:"error,omitempty"`
	CreatedAt   time.Time              `firestore:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time              `firestore:"updatedAt" json:"updatedAt"`
	CompletedAt *time.Time             `firestore:"completedAt,omitempty" json:"completedAt,omitempty"`
	Version     int64                  `firestore:"version" json:"version"`
}

// NewProcessingJob returns a job in the uploading stage.
func NewProcessingJob(jobID, tenantID, userID string, metadata map[string]interface{}, now time.Time) *ProcessingJob {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	return &ProcessingJob{
		JobID:     jobID,
		TenantID:  tenantID,
		UserID:    userID,
		Stage:     StageUploading,
		Status:    StatusForStage(StageUploading),
		Progress:  StageUploading.Progress(),
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
}

// Advance moves the job forward to stage and merges the metadata patch.
// Re-reporting the current stage only merges metadata.
func (j *ProcessingJob) Advance(stage Stage, patch map[string]interface{}, now time.Time) error {
	if j.Stage.IsTerminal() {
		return fmt.Errorf("job %s in stage %s: %w", j.JobID, j.Stage, ErrJobTerminal)
	}
	next := stage.index()
	if next < 0 || stage == StageCompleted {
		return fmt.Errorf("cannot advance job %s to %q: %w", j.JobID, stage, ErrInvalidTransition)
	}
	if next < j.Stage.index() {
		return fmt.Errorf("job %s cannot move back from %s to %s: %w", j.JobID, j.Stage, stage, ErrInvalidTransition)
	}

	j.Stage = stage
	j.Status = StatusForStage(stage)
	if p := stage.Progress(); p > j.Progress {
		j.Progress = p
	}
	if j.Metadata == nil {
		j.Metadata = map[string]interface{}{}
	}
	for k, v := range patch {
		j.Metadata[k] = v
	}
	j.touch(now)
	return nil
}

// Complete marks the job completed with its result.
func (j *ProcessingJob) Complete(result *ProcessResult, now time.Time) error {
	if j.Stage.IsTerminal() {
		return fmt.Errorf("job %s in stage %s: %w", j.JobID, j.Stage, ErrJobTerminal)
	}
	j.Stage = StageCompleted
	j.Status = JobStatusCompleted
	j.Progress = 100
	j.Result = result
	j.CompletedAt = &now
	j.touch(now)
	return nil
}

// Fail marks the job failed. failedStage is the stage the failure happened in;
// when empty the current stage is recorded.
func (j *ProcessingJob) Fail(message string, failedStage Stage, now time.Time) error {
	if j.Stage.IsTerminal() {
		return fmt.Errorf("job %s in stage %s: %w", j.JobID, j.Stage, ErrJobTerminal)
	}
	if failedStage == "" {
		failedStage = j.Stage
	}
	j.Error = &JobError{Message: message, Stage: failedStage, Timestamp: now}
	j.Stage = StageFailed
	j.Status = JobStatusFailed
	j.CompletedAt = &now
	j.touch(now)
	return nil
}

func (j *ProcessingJob) touch(now time.Time) {
	j.UpdatedAt = now
	j.Version++
}
