package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/Lllllllleong/freightdocflow/internal/models"
	"github.com/google/uuid"
)

// exampleInputChars bounds the source text stored with a few-shot example.
const exampleInputChars = 8000

// ReviewService applies human review decisions to extracted records.
type ReviewService struct {
	documents DocumentStore
	examples  KnowledgeBase
	blobs     BlobStore
	text      TextExtractor
	now       func() time.Time
}

func NewReviewService(documents DocumentStore, examples KnowledgeBase, blobs BlobStore, text TextExtractor) *ReviewService {
	return &ReviewService{
		documents: documents,
		examples:  examples,
		blobs:     blobs,
		text:      text,
		now:       time.Now,
	}
}

// ReviewDocument records a reviewer's decision. Corrections are merged into
// the record's data before the status change. An approved record is saved as
// a few-shot example; failing to save it does not fail the review.
func (s *ReviewService) ReviewDocument(ctx context.Context, tenantID, id string, req models.ReviewRequest) (*models.DocumentRecord, error) {
	if tenantID == "" {
		return nil, models.ErrTenantRequired
	}
	if strings.TrimSpace(req.Reviewer) == "" {
		return nil, ErrReviewerRequired
	}
	logCtx := slog.With("tenantId", tenantID, "documentId", id, "reviewer", req.Reviewer)

	record, err := s.documents.GetDocumentByID(ctx, id, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	if record == nil {
		return nil, models.ErrDocumentNotFound
	}

	data := make(map[string]interface{}, len(record.Data)+len(req.Corrections))
	for k, v := range record.Data {
		data[k] = v
	}
	corrected := make([]string, 0, len(req.Corrections))
	for k, v := range req.Corrections {
		data[k] = v
		corrected = append(corrected, k)
	}
	sort.Strings(corrected)

	status := models.StatusRejected
	if req.Approved {
		status = models.StatusValidated
	}
	now := s.now().UTC()

	updated, err := s.documents.UpdateDocument(ctx, id, tenantID, map[string]interface{}{
		"data":             data,
		"processingStatus": status,
		"documentNumber":   ExtractDocumentNumber(data, record.ID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update document: %w", err)
	}

	entry := models.ValidationEntry{
		Reviewer:       req.Reviewer,
		Action:         status,
		PreviousStatus: record.ProcessingStatus,
		Notes:          req.Notes,
		CorrectedKeys:  corrected,
		Timestamp:      now,
	}
	if err := s.documents.AppendValidation(ctx, id, tenantID, entry); err != nil {
		return nil, fmt.Errorf("failed to append validation entry: %w", err)
	}
	updated.ValidationHistory = append(updated.ValidationHistory, entry)
	logCtx.Info("Document reviewed.", "status", status, "correctedFields", len(corrected))

	if req.Approved {
		if err := s.saveExample(ctx, updated, now); err != nil {
			logCtx.Warn("Failed to save approved document as few-shot example", "error", err)
		}
	}
	return updated, nil
}

func (s *ReviewService) saveExample(ctx context.Context, record *models.DocumentRecord, now time.Time) error {
	input, err := s.sourceText(ctx, record)
	if err != nil {
		return err
	}
	return s.examples.SaveExample(ctx, models.FewShotExample{
		ID:           uuid.NewString(),
		DocumentType: record.DocumentType,
		Carrier:      record.Carrier,
		InputText:    input,
		Output:       record.Data,
		SourceID:     record.ID,
		CreatedAt:    now,
	})
}

// sourceText re-reads the stored per-document PDF. The blob holds only the
// group's pages, so this is not a second extraction of the upload.
func (s *ReviewService) sourceText(ctx context.Context, record *models.DocumentRecord) (string, error) {
	name := DocumentBlobName(record.TenantID, record.ID)
	buf, err := s.blobs.ReadDocument(ctx, name)
	if err != nil {
		return "", fmt.Errorf("failed to read document blob %s: %w", name, err)
	}
	extraction, err := s.text.ExtractTextFromPDF(ctx, buf)
	if err != nil {
		return "", err
	}
	texts := make([]string, 0, len(extraction.Pages))
	for _, p := range extraction.Pages {
		texts = append(texts, p.Text)
	}
	return truncateUTF8(strings.Join(texts, pageSeparator), exampleInputChars), nil
}
