package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Lllllllleong/freightdocflow/internal/memstore"
	"github.com/Lllllllleong/freightdocflow/internal/models"
)

// scriptedGenerator answers prompts with a caller-supplied function.
type scriptedGenerator struct {
	respond func(ctx context.Context, userPrompt string) (string, error)
	calls   atomic.Int32
}

func (g *scriptedGenerator) Generate(ctx context.Context, systemPrompt, userPrompt string) (*models.Completion, error) {
	g.calls.Add(1)
	text, err := g.respond(ctx, userPrompt)
	if err != nil {
		return nil, err
	}
	return &models.Completion{Text: text, Model: "scripted", TokensUsed: 42}, nil
}

func staticGenerator(text string) *scriptedGenerator {
	return &scriptedGenerator{respond: func(context.Context, string) (string, error) { return text, nil }}
}

// fakeTextExtractor serves fixed pages and counts extraction calls.
type fakeTextExtractor struct {
	pages       []models.PDFPage
	err         error
	calls       atomic.Int32
	sliceErr    error
	mismatch    bool
	sliceRanges [][2]int
	mu          sync.Mutex
}

func (f *fakeTextExtractor) ExtractTextFromPDF(ctx context.Context, buf []byte) (*models.PDFExtractionResult, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &models.PDFExtractionResult{
		Pages:    f.pages,
		Metadata: models.PDFMetadata{TotalPages: len(f.pages), PageCountMismatch: f.mismatch},
	}, nil
}

func (f *fakeTextExtractor) SlicePages(buf []byte, start, end int) ([]byte, error) {
	f.mu.Lock()
	f.sliceRanges = append(f.sliceRanges, [2]int{start, end})
	f.mu.Unlock()
	if f.sliceErr != nil {
		return nil, f.sliceErr
	}
	return []byte(fmt.Sprintf("%%PDF-slice %d-%d", start, end)), nil
}

// fakeExtractor returns canned results per document type and counts calls.
type fakeExtractor struct {
	respond func(req ExtractionRequest) (*ExtractionResult, error)
	calls   atomic.Int32
}

func (f *fakeExtractor) ExtractStructured(ctx context.Context, req ExtractionRequest) (*ExtractionResult, error) {
	f.calls.Add(1)
	return f.respond(req)
}

// failingBlobs fails uploads whose object name ends with failSuffix.
type failingBlobs struct {
	*memstore.BlobStore
	failSuffix string
}

func (b *failingBlobs) UploadDocument(ctx context.Context, name string, data []byte, contentType string) (*models.BlobRef, error) {
	if strings.HasSuffix(name, b.failSuffix) {
		return nil, errors.New("bucket unavailable")
	}
	return b.BlobStore.UploadDocument(ctx, name, data, contentType)
}

// failingDocuments rejects records whose id ends with failSuffix.
type failingDocuments struct {
	*tenantRecordingDocuments
	failSuffix string
}

func (d *failingDocuments) CreateDocument(ctx context.Context, rec *models.DocumentRecord) error {
	if strings.HasSuffix(rec.ID, d.failSuffix) {
		return errors.New("deadline exceeded")
	}
	return d.tenantRecordingDocuments.CreateDocument(ctx, rec)
}

// tenantRecordingDocuments wraps a DocumentStore and records the tenant of
// every call.
type tenantRecordingDocuments struct {
	*memstore.DocumentStore
	mu      sync.Mutex
	tenants []string
}

func newTenantRecordingDocuments() *tenantRecordingDocuments {
	return &tenantRecordingDocuments{DocumentStore: memstore.NewDocumentStore()}
}

func (d *tenantRecordingDocuments) record(tenantID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tenants = append(d.tenants, tenantID)
}

func (d *tenantRecordingDocuments) CreateDocument(ctx context.Context, rec *models.DocumentRecord) error {
	d.record(rec.TenantID)
	return d.DocumentStore.CreateDocument(ctx, rec)
}

func (d *tenantRecordingDocuments) GetDocumentByID(ctx context.Context, id, tenantID string) (*models.DocumentRecord, error) {
	d.record(tenantID)
	return d.DocumentStore.GetDocumentByID(ctx, id, tenantID)
}

func (d *tenantRecordingDocuments) UpdateDocument(ctx context.Context, id, tenantID string, partial map[string]interface{}) (*models.DocumentRecord, error) {
	d.record(tenantID)
	return d.DocumentStore.UpdateDocument(ctx, id, tenantID, partial)
}

func (d *tenantRecordingDocuments) AppendValidation(ctx context.Context, id, tenantID string, entry models.ValidationEntry) error {
	d.record(tenantID)
	return d.DocumentStore.AppendValidation(ctx, id, tenantID, entry)
}

func (d *tenantRecordingDocuments) QueryDocuments(ctx context.Context, q models.DocumentQuery) (*models.DocumentPage, error) {
	d.record(q.TenantID)
	return d.DocumentStore.QueryDocuments(ctx, q)
}

func (d *tenantRecordingDocuments) seenTenants() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.tenants...)
}

// recordingObserver keeps every report in order.
type recordingObserver struct {
	mu        sync.Mutex
	stages    []models.Stage
	completed *models.ProcessResult
	failedMsg string
	failedAt  models.Stage
}

func (o *recordingObserver) StageChanged(_ context.Context, _ JobRef, stage models.Stage, _ map[string]interface{}) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stages = append(o.stages, stage)
}

func (o *recordingObserver) Completed(_ context.Context, _ JobRef, result *models.ProcessResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completed = result
}

func (o *recordingObserver) Failed(_ context.Context, _ JobRef, message string, stage models.Stage) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failedMsg = message
	o.failedAt = stage
}

// failingExamples fails every lookup.
type failingExamples struct{}

func (failingExamples) GetFewShotExamples(context.Context, models.DocumentType, string, int) ([]models.FewShotExample, error) {
	return nil, errors.New("knowledge base offline")
}

func (failingExamples) SaveExample(context.Context, models.FewShotExample) error {
	return errors.New("knowledge base offline")
}

// stubWorkflow records triggered executions.
type stubWorkflow struct {
	mu    sync.Mutex
	calls []models.WorkflowArgs
	err   error
}

func (w *stubWorkflow) Trigger(ctx context.Context, args models.WorkflowArgs) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return "", w.err
	}
	w.calls = append(w.calls, args)
	return fmt.Sprintf("executions/%d", len(w.calls)), nil
}
