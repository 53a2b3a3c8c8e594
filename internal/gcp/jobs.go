package gcp

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/freightdocflow/internal/models"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const jobsSubcollection = "jobs"

// JobStore keeps ProcessingJobs at tenants/{tenantId}/jobs/{jobId}. Every
// update is a read-modify-write inside a transaction; Firestore retries the
// transaction when the job changed concurrently, and each write bumps the
// job's version.
type JobStore struct {
	client  *firestore.Client
	tenants string
}

func NewJobStore(client *firestore.Client, tenantsCollection string) *JobStore {
	return &JobStore{client: client, tenants: tenantsCollection}
}

func (s *JobStore) jobs(tenantID string) *firestore.CollectionRef {
	return tenantDocs(s.client, s.tenants, tenantID, jobsSubcollection)
}

func (s *JobStore) CreateJob(ctx context.Context, job *models.ProcessingJob) error {
	if job.TenantID == "" {
		return models.ErrTenantRequired
	}
	if _, err := s.jobs(job.TenantID).Doc(job.JobID).Create(ctx, job); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return fmt.Errorf("job %s: %w", job.JobID, models.ErrJobExists)
		}
		return fmt.Errorf("failed to create job %s: %w", job.JobID, err)
	}
	return nil
}

func (s *JobStore) GetJob(ctx context.Context, jobID, tenantID string) (*models.ProcessingJob, error) {
	if tenantID == "" {
		return nil, models.ErrTenantRequired
	}
	snap, err := s.jobs(tenantID).Doc(jobID).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job %s: %w", jobID, err)
	}
	var job models.ProcessingJob
	if err := snap.DataTo(&job); err != nil {
		return nil, fmt.Errorf("failed to decode job %s: %w", jobID, err)
	}
	return &job, nil
}

func (s *JobStore) UpdateJobStage(ctx context.Context, jobID, tenantID string, stage models.Stage, metadata map[string]interface{}) (*models.ProcessingJob, error) {
	return s.mutate(ctx, jobID, tenantID, func(job *models.ProcessingJob, now time.Time) error {
		return job.Advance(stage, metadata, now)
	})
}

func (s *JobStore) CompleteJob(ctx context.Context, jobID, tenantID string, result *models.ProcessResult) (*models.ProcessingJob, error) {
	return s.mutate(ctx, jobID, tenantID, func(job *models.ProcessingJob, now time.Time) error {
		return job.Complete(result, now)
	})
}

func (s *JobStore) FailJob(ctx context.Context, jobID, tenantID, message string, stage models.Stage) (*models.ProcessingJob, error) {
	return s.mutate(ctx, jobID, tenantID, func(job *models.ProcessingJob, now time.Time) error {
		return job.Fail(message, stage, now)
	})
}

// GetUserJobs returns a user's jobs newest first.
func (s *JobStore) GetUserJobs(ctx context.Context, tenantID, userID string, limit int) ([]*models.ProcessingJob, error) {
	if tenantID == "" {
		return nil, models.ErrTenantRequired
	}
	if limit <= 0 {
		limit = models.DefaultQueryLimit
	}
	iter := s.jobs(tenantID).
		Where("userId", "==", userID).
		OrderBy("createdAt", firestore.Desc).
		Limit(limit).
		Documents(ctx)
	defer iter.Stop()

	jobs := []*models.ProcessingJob{}
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list jobs: %w", err)
		}
		var job models.ProcessingJob
		if err := snap.DataTo(&job); err != nil {
			return nil, fmt.Errorf("failed to decode job %s: %w", snap.Ref.ID, err)
		}
		jobs = append(jobs, &job)
	}
	return jobs, nil
}

func (s *JobStore) mutate(ctx context.Context, jobID, tenantID string, fn func(*models.ProcessingJob, time.Time) error) (*models.ProcessingJob, error) {
	if tenantID == "" {
		return nil, models.ErrTenantRequired
	}
	ref := s.jobs(tenantID).Doc(jobID)
	var updated models.ProcessingJob

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if isNotFound(err) {
				return fmt.Errorf("job %s: %w", jobID, models.ErrJobNotFound)
			}
			return err
		}
		var job models.ProcessingJob
		if err := snap.DataTo(&job); err != nil {
			return fmt.Errorf("failed to decode job %s: %w", jobID, err)
		}
		if err := fn(&job, time.Now().UTC()); err != nil {
			return err
		}
		updated = job
		return tx.Set(ref, &job)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update job %s: %w", jobID, err)
	}
	return &updated, nil
}
