package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Lllllllleong/freightdocflow/internal/models"
)

// JobStore keeps jobs keyed by tenant and job id. Each mutation runs the
// same state machine methods as the Firestore store under one lock.
type JobStore struct {
	mu   sync.Mutex
	jobs map[tenantKey]*models.ProcessingJob
	now  func() time.Time
}

func NewJobStore() *JobStore {
	return &JobStore{jobs: map[tenantKey]*models.ProcessingJob{}, now: time.Now}
}

func (s *JobStore) CreateJob(ctx context.Context, job *models.ProcessingJob) error {
	if job.TenantID == "" {
		return models.ErrTenantRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := tenantKey{job.TenantID, job.JobID}
	if _, ok := s.jobs[key]; ok {
		return fmt.Errorf("job %s: %w", job.JobID, models.ErrJobExists)
	}
	s.jobs[key] = cloneJob(job)
	return nil
}

func (s *JobStore) GetJob(ctx context.Context, jobID, tenantID string) (*models.ProcessingJob, error) {
	if tenantID == "" {
		return nil, models.ErrTenantRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[tenantKey{tenantID, jobID}]
	if !ok {
		return nil, nil
	}
	return cloneJob(job), nil
}

func (s *JobStore) UpdateJobStage(ctx context.Context, jobID, tenantID string, stage models.Stage, metadata map[string]interface{}) (*models.ProcessingJob, error) {
	return s.mutate(jobID, tenantID, func(job *models.ProcessingJob, now time.Time) error {
		return job.Advance(stage, metadata, now)
	})
}

func (s *JobStore) CompleteJob(ctx context.Context, jobID, tenantID string, result *models.ProcessResult) (*models.ProcessingJob, error) {
	return s.mutate(jobID, tenantID, func(job *models.ProcessingJob, now time.Time) error {
		return job.Complete(result, now)
	})
}

func (s *JobStore) FailJob(ctx context.Context, jobID, tenantID, message string, stage models.Stage) (*models.ProcessingJob, error) {
	return s.mutate(jobID, tenantID, func(job *models.ProcessingJob, now time.Time) error {
		return job.Fail(message, stage, now)
	})
}

func (s *JobStore) GetUserJobs(ctx context.Context, tenantID, userID string, limit int) ([]*models.ProcessingJob, error) {
	if tenantID == "" {
		return nil, models.ErrTenantRequired
	}
	s.mu.Lock()
	var jobs []*models.ProcessingJob
	for key, job := range s.jobs {
		if key.tenantID == tenantID && job.UserID == userID {
			jobs = append(jobs, cloneJob(job))
		}
	}
	s.mu.Unlock()

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return strings.Compare(jobs[i].JobID, jobs[j].JobID) > 0
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

// mutate applies fn to a working copy and stores it only if fn succeeds.
func (s *JobStore) mutate(jobID, tenantID string, fn func(*models.ProcessingJob, time.Time) error) (*models.ProcessingJob, error) {
	if tenantID == "" {
		return nil, models.ErrTenantRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := tenantKey{tenantID, jobID}
	current, ok := s.jobs[key]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", jobID, models.ErrJobNotFound)
	}
	working := cloneJob(current)
	if err := fn(working, s.now().UTC()); err != nil {
		return nil, err
	}
	s.jobs[key] = working
	return cloneJob(working), nil
}

func cloneJob(job *models.ProcessingJob) *models.ProcessingJob {
	cp := *job
	cp.Metadata = cloneMap(job.Metadata)
	if cp.Metadata == nil {
		cp.Metadata = map[string]interface{}{}
	}
	if job.Result != nil {
		var result models.ProcessResult
		raw, err := json.Marshal(job.Result)
		if err == nil && json.Unmarshal(raw, &result) == nil {
			cp.Result = &result
		}
	}
	if job.Error != nil {
		e := *job.Error
		cp.Error = &e
	}
	if job.CompletedAt != nil {
		t := *job.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
