// Package memstore holds in-process implementations of the storage ports for
// tests and local runs.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Lllllllleong/freightdocflow/internal/models"
)

type tenantKey struct {
	tenantID string
	id       string
}

// BlobStore keeps objects in a map.
type BlobStore struct {
	mu      sync.RWMutex
	bucket  string
	objects map[string]blob
}

type blob struct {
	data        []byte
	contentType string
	metadata    map[string]string
	created     time.Time
}

func NewBlobStore(bucket string) *BlobStore {
	return &BlobStore{bucket: bucket, objects: map[string]blob{}}
}

func (s *BlobStore) EnsureContainerExists(ctx context.Context) error { return nil }

func (s *BlobStore) UploadDocument(ctx context.Context, name string, data []byte, contentType string) (*models.BlobRef, error) {
	return s.Put(name, data, contentType, nil), nil
}

// Put stores an object with custom metadata.
func (s *BlobStore) Put(name string, data []byte, contentType string, metadata map[string]string) *models.BlobRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[name] = blob{
		data:        append([]byte(nil), data...),
		contentType: contentType,
		metadata:    metadata,
		created:     time.Now().UTC(),
	}
	return &models.BlobRef{URL: s.GetBlobURL(name), FileName: name}
}

func (s *BlobStore) GetBlobURL(name string) string {
	return fmt.Sprintf("mem://%s/%s", s.bucket, name)
}

func (s *BlobStore) BlobExists(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[name]
	return ok, nil
}

func (s *BlobStore) ReadDocument(ctx context.Context, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.objects[name]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", name, models.ErrBlobNotFound)
	}
	return append([]byte(nil), b.data...), nil
}

func (s *BlobStore) Stat(ctx context.Context, name string) (*models.BlobInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.objects[name]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", name, models.ErrBlobNotFound)
	}
	return &models.BlobInfo{
		Name:        name,
		ContentType: b.contentType,
		Size:        int64(len(b.data)),
		Metadata:    b.metadata,
		Created:     b.created,
	}, nil
}

// DocumentStore keeps records keyed by tenant and id. Records are deep-copied
// in and out so callers never share state with the store.
type DocumentStore struct {
	mu      sync.RWMutex
	records map[tenantKey]*models.DocumentRecord
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{records: map[tenantKey]*models.DocumentRecord{}}
}

func (s *DocumentStore) CreateDocument(ctx context.Context, record *models.DocumentRecord) error {
	if record.TenantID == "" {
		return models.ErrTenantRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := tenantKey{record.TenantID, record.ID}
	if _, exists := s.records[key]; exists {
		return fmt.Errorf("document %s already exists", record.ID)
	}
	s.records[key] = cloneRecord(record)
	return nil
}

func (s *DocumentStore) GetDocumentByID(ctx context.Context, id, tenantID string) (*models.DocumentRecord, error) {
	if tenantID == "" {
		return nil, models.ErrTenantRequired
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[tenantKey{tenantID, id}]
	if !ok {
		return nil, nil
	}
	return cloneRecord(rec), nil
}

// UpdateDocument merges top-level fields by their JSON names. id and tenantId
// cannot be changed.
func (s *DocumentStore) UpdateDocument(ctx context.Context, id, tenantID string, partial map[string]interface{}) (*models.DocumentRecord, error) {
	if tenantID == "" {
		return nil, models.ErrTenantRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := tenantKey{tenantID, id}
	rec, ok := s.records[key]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, models.ErrDocumentNotFound)
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	for k, v := range partial {
		if k == "id" || k == "tenantId" {
			continue
		}
		fields[k] = v
	}
	raw, err = json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode update: %w", err)
	}
	var updated models.DocumentRecord
	if err := json.Unmarshal(raw, &updated); err != nil {
		return nil, fmt.Errorf("invalid update for document %s: %w", id, err)
	}
	s.records[key] = &updated
	return cloneRecord(&updated), nil
}

func (s *DocumentStore) AppendValidation(ctx context.Context, id, tenantID string, entry models.ValidationEntry) error {
	if tenantID == "" {
		return models.ErrTenantRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[tenantKey{tenantID, id}]
	if !ok {
		return fmt.Errorf("document %s: %w", id, models.ErrDocumentNotFound)
	}
	rec.ValidationHistory = append(rec.ValidationHistory, entry)
	return nil
}

func (s *DocumentStore) DeleteDocument(ctx context.Context, id, tenantID string) error {
	if tenantID == "" {
		return models.ErrTenantRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := tenantKey{tenantID, id}
	if _, ok := s.records[key]; !ok {
		return fmt.Errorf("document %s: %w", id, models.ErrDocumentNotFound)
	}
	delete(s.records, key)
	return nil
}

// QueryDocuments returns a tenant's records newest first. The continuation
// token is the offset of the next page.
func (s *DocumentStore) QueryDocuments(ctx context.Context, q models.DocumentQuery) (*models.DocumentPage, error) {
	if q.TenantID == "" {
		return nil, models.ErrTenantRequired
	}
	limit := q.Limit
	if limit <= 0 {
		limit = models.DefaultQueryLimit
	}
	offset := 0
	if q.ContinuationToken != "" {
		n, err := strconv.Atoi(q.ContinuationToken)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%q: %w", q.ContinuationToken, models.ErrInvalidToken)
		}
		offset = n
	}

	s.mu.RLock()
	var matches []*models.DocumentRecord
	for key, rec := range s.records {
		if key.tenantID != q.TenantID {
			continue
		}
		if q.Status != "" && rec.ProcessingStatus != q.Status {
			continue
		}
		if q.DocumentType != "" && rec.DocumentType != q.DocumentType {
			continue
		}
		if q.Carrier != "" && !strings.EqualFold(rec.Carrier, q.Carrier) {
			continue
		}
		matches = append(matches, cloneRecord(rec))
	}
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].UploadTimestamp.Equal(matches[j].UploadTimestamp) {
			return matches[i].ID > matches[j].ID
		}
		return matches[i].UploadTimestamp.After(matches[j].UploadTimestamp)
	})

	page := &models.DocumentPage{Items: []*models.DocumentRecord{}}
	if offset >= len(matches) {
		return page, nil
	}
	end := offset + limit
	if end > len(matches) {
		end = len(matches)
	}
	page.Items = matches[offset:end]
	if end < len(matches) {
		page.HasMore = true
		page.ContinuationToken = strconv.Itoa(end)
	}
	return page, nil
}

func cloneRecord(rec *models.DocumentRecord) *models.DocumentRecord {
	cp := *rec
	cp.Data = cloneMap(rec.Data)
	cp.ValidationHistory = append([]models.ValidationEntry{}, rec.ValidationHistory...)
	cp.ExtractionMetadata.UncertainFields = append([]string(nil), rec.ExtractionMetadata.UncertainFields...)
	return &cp
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		cp := make(map[string]interface{}, len(m))
		for k, v := range m {
			cp[k] = v
		}
		return cp
	}
	var cp map[string]interface{}
	_ = json.Unmarshal(raw, &cp)
	return cp
}
