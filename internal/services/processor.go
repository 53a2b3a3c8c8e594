package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Lllllllleong/freightdocflow/internal/models"
	"golang.org/x/sync/errgroup"
)

const pdfContentType = "application/pdf"

// documentNumberKeys are tried in order; the first non-empty value wins
// whatever the document type.
var documentNumberKeys = []string{
	"carrierBookingReference",
	"billOfLadingNumber",
	"deliveryOrderNumber",
	"transportOrderNumber",
}

// TextExtractor reads page text once per upload and cuts page ranges out of
// the original bytes.
type TextExtractor interface {
	ExtractTextFromPDF(ctx context.Context, buf []byte) (*models.PDFExtractionResult, error)
	SlicePages(buf []byte, start, end int) ([]byte, error)
}

// Classifier assigns a document type and carrier to a group's text.
type Classifier interface {
	ClassifyDocument(combinedText string) models.Classification
}

// Extractor turns a group's text into validated structured data.
type Extractor interface {
	ExtractStructured(ctx context.Context, req ExtractionRequest) (*ExtractionResult, error)
}

// ProcessorConfig tunes a DocumentProcessor. Records scoring at or above
// AutoValidateThreshold are stored as validated.
type ProcessorConfig struct {
	AutoValidateThreshold float64
	FewShotCount          int
	GroupConcurrency      int
}

func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		AutoValidateThreshold: 0.85,
		FewShotCount:          3,
		GroupConcurrency:      1,
	}
}

// ProcessorDeps are the collaborators of a DocumentProcessor. Observer and Now
// are optional.
type ProcessorDeps struct {
	TextExtractor TextExtractor
	Classifier    Classifier
	Extractor     Extractor
	Blobs         BlobStore
	Documents     DocumentStore
	Examples      KnowledgeBase
	Observer      JobObserver
	Now           func() time.Time
}

// ProcessRequest is one uploaded PDF. JobID is empty when the caller does not
// track the run. When StartedAt is set, record ids and upload timestamps are
// derived from it, so a retried run addresses the records of the first attempt
// and reuses the ones already stored.
type ProcessRequest struct {
	FileBuffer       []byte
	OriginalFilename string
	User             models.User
	JobID            string
	StartedAt        time.Time
}

// DocumentProcessor runs the whole pipeline for an upload and reports its
// progress to a JobObserver.
type DocumentProcessor struct {
	deps   ProcessorDeps
	config ProcessorConfig
}

func NewDocumentProcessor(deps ProcessorDeps, config ProcessorConfig) *DocumentProcessor {
	if deps.Observer == nil {
		deps.Observer = NopObserver{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if config.GroupConcurrency < 1 {
		config.GroupConcurrency = 1
	}
	if config.FewShotCount < 0 {
		config.FewShotCount = 0
	}
	return &DocumentProcessor{deps: deps, config: config}
}

// groupWork carries one document group through the pipeline.
type groupWork struct {
	docID          string
	group          models.DocumentGroup
	classification models.Classification
	blob           *models.BlobRef
	extraction     *ExtractionResult
	record         *models.DocumentRecord
	err            error
}

// ProcessDocument extracts text once, groups pages into documents and runs
// every group through classification, extraction and storage. Only an
// unreadable PDF fails the call; per-group failures are reported in the
// result.
func (p *DocumentProcessor) ProcessDocument(ctx context.Context, req ProcessRequest) (*models.ProcessResult, error) {
	tenantID := req.User.TenantID
	if tenantID == "" {
		return nil, models.ErrTenantRequired
	}
	job := JobRef{JobID: req.JobID, TenantID: tenantID}
	logCtx := slog.With("jobId", req.JobID, "tenantId", tenantID, "originalFilename", req.OriginalFilename)
	logCtx.Info("Starting document processing.", "fileSize", len(req.FileBuffer))

	p.deps.Observer.StageChanged(ctx, job, models.StageExtractingText, map[string]interface{}{
		"originalFilename": req.OriginalFilename,
		"fileSize":         len(req.FileBuffer),
	})
	extraction, err := p.deps.TextExtractor.ExtractTextFromPDF(ctx, req.FileBuffer)
	if err != nil {
		return nil, p.handleFatal(ctx, logCtx, job, models.StageExtractingText, "failed to extract text from PDF", err)
	}

	groups := GroupPagesIntoDocuments(extraction.Pages)
	totalPages := extraction.Metadata.TotalPages
	sliceable := !extraction.Metadata.PageCountMismatch
	logCtx.Info("Pages grouped into documents.", "totalPages", totalPages, "documentsFound", len(groups))

	p.deps.Observer.StageChanged(ctx, job, models.StageClassifying, map[string]interface{}{
		"totalPages":     totalPages,
		"documentsFound": len(groups),
	})
	startedAt := req.StartedAt
	resuming := !startedAt.IsZero()
	if !resuming {
		startedAt = p.deps.Now()
	}
	batchMillis := startedAt.UnixMilli()
	work := make([]*groupWork, len(groups))
	for i, g := range groups {
		work[i] = &groupWork{
			docID:          fmt.Sprintf("doc-%d-p%d", batchMillis, g.StartPage),
			group:          g,
			classification: p.deps.Classifier.ClassifyDocument(g.CombinedText),
		}
	}

	p.deps.Observer.StageChanged(ctx, job, models.StageAnalyzingWithClaude, map[string]interface{}{
		"documentsFound": len(groups),
	})
	var eg errgroup.Group
	eg.SetLimit(p.config.GroupConcurrency)
	for _, w := range work {
		eg.Go(func() error {
			if resuming {
				if rec := p.storedRecord(ctx, logCtx, tenantID, w.docID); rec != nil {
					w.record = rec
					return nil
				}
			}
			w.err = p.analyzeGroup(ctx, logCtx, tenantID, req.FileBuffer, totalPages, sliceable, w)
			return nil
		})
	}
	_ = eg.Wait()

	p.deps.Observer.StageChanged(ctx, job, models.StageStoring, nil)
	result := &models.ProcessResult{
		OriginalFilename: req.OriginalFilename,
		TotalPages:       totalPages,
		DocumentsFound:   len(groups),
		Documents:        make([]models.DocumentOutcome, 0, len(work)),
	}
	for _, w := range work {
		if w.err == nil && w.record == nil {
			w.err = p.storeGroup(ctx, req, startedAt, totalPages, w)
		}
		if w.err != nil {
			logCtx.Warn("Document group failed.", "documentId", w.docID, "startPage", w.group.StartPage, "endPage", w.group.EndPage, "error", w.err)
			result.ErrorCount++
			result.Documents = append(result.Documents, models.DocumentOutcome{
				Error:      true,
				DocumentID: w.docID,
				Message:    w.err.Error(),
				StartPage:  w.group.StartPage,
				EndPage:    w.group.EndPage,
			})
			continue
		}
		result.SuccessCount++
		result.Documents = append(result.Documents, successOutcome(w))
	}

	result.Success = result.SuccessCount > 0
	result.Message = fmt.Sprintf("Processed %d of %d documents (%d failed)", result.SuccessCount, result.DocumentsFound, result.ErrorCount)

	if result.Success {
		p.deps.Observer.Completed(ctx, job, result)
		logCtx.Info("Document processing complete.", "successCount", result.SuccessCount, "errorCount", result.ErrorCount)
	} else {
		p.deps.Observer.Failed(ctx, job, "no document in the upload could be processed", models.StageAnalyzingWithClaude)
		logCtx.Error("Every document group failed.", "errorCount", result.ErrorCount)
	}
	return result, nil
}

// storedRecord returns the record an earlier attempt stored under docID, or nil.
func (p *DocumentProcessor) storedRecord(ctx context.Context, logCtx *slog.Logger, tenantID, docID string) *models.DocumentRecord {
	rec, err := p.deps.Documents.GetDocumentByID(ctx, docID, tenantID)
	if err != nil {
		logCtx.Warn("Failed to look up previously stored record, processing the group again.", "documentId", docID, "error", err)
		return nil
	}
	if rec != nil {
		logCtx.Info("Document group already stored by an earlier attempt.", "documentId", docID)
	}
	return rec
}

// analyzeGroup stores the group's PDF and extracts its fields. When the page
// numbering cannot be trusted the full upload is stored for every group.
func (p *DocumentProcessor) analyzeGroup(ctx context.Context, logCtx *slog.Logger, tenantID string, buf []byte, totalPages int, sliceable bool, w *groupWork) error {
	cls := w.classification
	if cls.DocumentType == models.DocumentTypeUnknown {
		return &GroupError{DocumentID: w.docID, Stage: models.StageClassifying, Err: ErrUnknownDocumentType}
	}

	data := buf
	if sliceable && (w.group.StartPage != 1 || w.group.EndPage != totalPages) {
		sliced, err := p.deps.TextExtractor.SlicePages(buf, w.group.StartPage, w.group.EndPage)
		if err != nil {
			logCtx.Warn("Failed to slice group pages, storing the full PDF.", "documentId", w.docID, "error", err)
		} else {
			data = sliced
		}
	}
	blob, err := p.deps.Blobs.UploadDocument(ctx, DocumentBlobName(tenantID, w.docID), data, pdfContentType)
	if err != nil {
		return &GroupError{DocumentID: w.docID, Stage: models.StageAnalyzingWithClaude, Err: fmt.Errorf("failed to upload blob: %w", err)}
	}
	w.blob = blob

	var examples []models.FewShotExample
	if p.config.FewShotCount > 0 {
		examples, err = p.deps.Examples.GetFewShotExamples(ctx, cls.DocumentType, cls.Carrier, p.config.FewShotCount)
		if err != nil {
			logCtx.Warn("Failed to fetch few-shot examples, extracting without them.", "documentId", w.docID, "error", err)
			examples = nil
		}
	}

	extraction, err := p.deps.Extractor.ExtractStructured(ctx, ExtractionRequest{
		Text:            w.group.CombinedText,
		DocumentType:    cls.DocumentType,
		Carrier:         cls.Carrier,
		FewShotExamples: examples,
	})
	if err != nil {
		return &GroupError{DocumentID: w.docID, Stage: models.StageAnalyzingWithClaude, Err: err}
	}
	w.extraction = extraction
	return nil
}

func (p *DocumentProcessor) storeGroup(ctx context.Context, req ProcessRequest, startedAt time.Time, totalPages int, w *groupWork) error {
	status := models.StatusPending
	if w.extraction.ConfidenceScore >= p.config.AutoValidateThreshold {
		status = models.StatusValidated
	}
	record := &models.DocumentRecord{
		ID:                 w.docID,
		TenantID:           req.User.TenantID,
		DocumentType:       w.classification.DocumentType,
		DocumentNumber:     ExtractDocumentNumber(w.extraction.Data, w.docID),
		Carrier:            w.classification.Carrier,
		UploadedBy:         req.User.UserID,
		UploadTimestamp:    startedAt.UTC(),
		ProcessingStatus:   status,
		Data:               w.extraction.Data,
		ExtractionMetadata: w.extraction.Metadata,
		DocumentURL:        w.blob.URL,
		OriginalFilename:   req.OriginalFilename,
		PageNumber:         w.group.StartPage,
		EndPage:            w.group.EndPage,
		TotalPages:         totalPages,
		ValidationHistory:  []models.ValidationEntry{},
	}
	if err := p.deps.Documents.CreateDocument(ctx, record); err != nil {
		return &GroupError{DocumentID: w.docID, Stage: models.StageStoring, Err: fmt.Errorf("failed to create document record: %w", err)}
	}
	w.record = record
	return nil
}

func successOutcome(w *groupWork) models.DocumentOutcome {
	score := w.record.ExtractionMetadata.ConfidenceScore
	warnings := w.record.ExtractionMetadata.ValidationWarnings
	if w.extraction != nil {
		score = w.extraction.ConfidenceScore
		warnings = w.extraction.Validation.Warnings
	}
	return models.DocumentOutcome{
		DocumentID:       w.record.ID,
		DocumentType:     w.record.DocumentType,
		DocumentNumber:   w.record.DocumentNumber,
		Carrier:          w.record.Carrier,
		StartPage:        w.record.PageNumber,
		EndPage:          w.record.EndPage,
		ConfidenceScore:  score,
		ProcessingStatus: w.record.ProcessingStatus,
		DocumentURL:      w.record.DocumentURL,
		Warnings:         warnings,
	}
}

func (p *DocumentProcessor) handleFatal(ctx context.Context, logCtx *slog.Logger, job JobRef, stage models.Stage, message string, originalErr error) error {
	logCtx.Error(message, "stage", stage, "error", originalErr)
	p.deps.Observer.Failed(ctx, job, fmt.Sprintf("%s: %v", message, originalErr), stage)
	return fmt.Errorf("%s: %w", message, originalErr)
}

// DocumentBlobName is the object name of a document's PDF.
func DocumentBlobName(tenantID, docID string) string {
	return fmt.Sprintf("%s/%s.pdf", tenantID, docID)
}

// ExtractDocumentNumber returns the business identifier of the extracted data,
// or fallback when none is present.
func ExtractDocumentNumber(data map[string]interface{}, fallback string) string {
	for _, key := range documentNumberKeys {
		switch v := data[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return fallback
}
