package services

import (
	"context"

	"github.com/Lllllllleong/freightdocflow/internal/models"
)

// BlobStore holds the PDF bytes of processed documents.
type BlobStore interface {
	EnsureContainerExists(ctx context.Context) error
	UploadDocument(ctx context.Context, name string, data []byte, contentType string) (*models.BlobRef, error)
	GetBlobURL(name string) string
	BlobExists(ctx context.Context, name string) (bool, error)
	ReadDocument(ctx context.Context, name string) ([]byte, error)
	Stat(ctx context.Context, name string) (*models.BlobInfo, error)
}

// DocumentStore persists DocumentRecords. Every method requires a tenant id
// and returns models.ErrTenantRequired without one.
type DocumentStore interface {
	CreateDocument(ctx context.Context, record *models.DocumentRecord) error
	// GetDocumentByID returns nil, nil when no record exists for the pair.
	GetDocumentByID(ctx context.Context, id, tenantID string) (*models.DocumentRecord, error)
	UpdateDocument(ctx context.Context, id, tenantID string, partial map[string]interface{}) (*models.DocumentRecord, error)
	AppendValidation(ctx context.Context, id, tenantID string, entry models.ValidationEntry) error
	DeleteDocument(ctx context.Context, id, tenantID string) error
	QueryDocuments(ctx context.Context, q models.DocumentQuery) (*models.DocumentPage, error)
}

// JobStore persists ProcessingJobs. Updates are read-modify-write guarded by
// the job's version counter.
type JobStore interface {
	CreateJob(ctx context.Context, job *models.ProcessingJob) error
	// GetJob returns nil, nil when no job exists for the pair.
	GetJob(ctx context.Context, jobID, tenantID string) (*models.ProcessingJob, error)
	UpdateJobStage(ctx context.Context, jobID, tenantID string, stage models.Stage, metadata map[string]interface{}) (*models.ProcessingJob, error)
	CompleteJob(ctx context.Context, jobID, tenantID string, result *models.ProcessResult) (*models.ProcessingJob, error)
	FailJob(ctx context.Context, jobID, tenantID, message string, stage models.Stage) (*models.ProcessingJob, error)
	GetUserJobs(ctx context.Context, tenantID, userID string, limit int) ([]*models.ProcessingJob, error)
}

// KnowledgeBase serves previously validated extractions as few-shot examples.
type KnowledgeBase interface {
	GetFewShotExamples(ctx context.Context, docType models.DocumentType, carrier string, count int) ([]models.FewShotExample, error)
	SaveExample(ctx context.Context, example models.FewShotExample) error
}

// Generator is an LLM backend.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (*models.Completion, error)
}

// WorkflowTrigger starts the processing workflow for an intake upload.
type WorkflowTrigger interface {
	Trigger(ctx context.Context, args models.WorkflowArgs) (string, error)
}
