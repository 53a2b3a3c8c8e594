package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/freightdocflow/internal/models"
	"google.golang.org/api/iterator"
)

const documentsSubcollection = "documents"

// DocumentStore keeps DocumentRecords at tenants/{tenantId}/documents/{id}.
type DocumentStore struct {
	client  *firestore.Client
	tenants string
}

func NewDocumentStore(client *firestore.Client, tenantsCollection string) *DocumentStore {
	return &DocumentStore{client: client, tenants: tenantsCollection}
}

func (s *DocumentStore) docs(tenantID string) *firestore.CollectionRef {
	return tenantDocs(s.client, s.tenants, tenantID, documentsSubcollection)
}

func (s *DocumentStore) CreateDocument(ctx context.Context, record *models.DocumentRecord) error {
	if record.TenantID == "" {
		return models.ErrTenantRequired
	}
	if _, err := s.docs(record.TenantID).Doc(record.ID).Create(ctx, record); err != nil {
		return fmt.Errorf("failed to create document %s: %w", record.ID, err)
	}
	return nil
}

func (s *DocumentStore) GetDocumentByID(ctx context.Context, id, tenantID string) (*models.DocumentRecord, error) {
	if tenantID == "" {
		return nil, models.ErrTenantRequired
	}
	snap, err := s.docs(tenantID).Doc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get document %s: %w", id, err)
	}
	var rec models.DocumentRecord
	if err := snap.DataTo(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", id, err)
	}
	return &rec, nil
}

// UpdateDocument sets the given top-level fields. id and tenantId are never
// overwritten.
func (s *DocumentStore) UpdateDocument(ctx context.Context, id, tenantID string, partial map[string]interface{}) (*models.DocumentRecord, error) {
	if tenantID == "" {
		return nil, models.ErrTenantRequired
	}
	updates := make([]firestore.Update, 0, len(partial))
	for k, v := range partial {
		if k == "id" || k == "tenantId" {
			continue
		}
		updates = append(updates, firestore.Update{Path: k, Value: v})
	}
	ref := s.docs(tenantID).Doc(id)
	if len(updates) > 0 {
		if _, err := ref.Update(ctx, updates); err != nil {
			if isNotFound(err) {
				return nil, fmt.Errorf("document %s: %w", id, models.ErrDocumentNotFound)
			}
			return nil, fmt.Errorf("failed to update document %s: %w", id, err)
		}
	}
	rec, err := s.GetDocumentByID(ctx, id, tenantID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("document %s: %w", id, models.ErrDocumentNotFound)
	}
	return rec, nil
}

func (s *DocumentStore) AppendValidation(ctx context.Context, id, tenantID string, entry models.ValidationEntry) error {
	if tenantID == "" {
		return models.ErrTenantRequired
	}
	_, err := s.docs(tenantID).Doc(id).Update(ctx, []firestore.Update{
		{Path: "validationHistory", Value: firestore.ArrayUnion(entry)},
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("document %s: %w", id, models.ErrDocumentNotFound)
		}
		return fmt.Errorf("failed to append validation to document %s: %w", id, err)
	}
	return nil
}

func (s *DocumentStore) DeleteDocument(ctx context.Context, id, tenantID string) error {
	if tenantID == "" {
		return models.ErrTenantRequired
	}
	_, err := s.docs(tenantID).Doc(id).Delete(ctx, firestore.Exists)
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("document %s: %w", id, models.ErrDocumentNotFound)
		}
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	return nil
}

// QueryDocuments pages through a tenant's records newest first. The
// continuation token is the id of the last record of the previous page.
func (s *DocumentStore) QueryDocuments(ctx context.Context, q models.DocumentQuery) (*models.DocumentPage, error) {
	if q.TenantID == "" {
		return nil, models.ErrTenantRequired
	}
	limit := q.Limit
	if limit <= 0 {
		limit = models.DefaultQueryLimit
	}

	coll := s.docs(q.TenantID)
	query := coll.Query
	if q.Status != "" {
		query = query.Where("processingStatus", "==", string(q.Status))
	}
	if q.DocumentType != "" {
		query = query.Where("documentType", "==", string(q.DocumentType))
	}
	if q.Carrier != "" {
		query = query.Where("carrier", "==", q.Carrier)
	}
	query = query.OrderBy("uploadTimestamp", firestore.Desc)

	if q.ContinuationToken != "" {
		cursor, err := coll.Doc(q.ContinuationToken).Get(ctx)
		if err != nil {
			if isNotFound(err) {
				return nil, fmt.Errorf("%q: %w", q.ContinuationToken, models.ErrInvalidToken)
			}
			return nil, fmt.Errorf("failed to resolve continuation token: %w", err)
		}
		query = query.StartAfter(cursor)
	}

	iter := query.Limit(limit + 1).Documents(ctx)
	defer iter.Stop()

	page := &models.DocumentPage{Items: []*models.DocumentRecord{}}
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query documents: %w", err)
		}
		if len(page.Items) == limit {
			page.HasMore = true
			break
		}
		var rec models.DocumentRecord
		if err := snap.DataTo(&rec); err != nil {
			return nil, fmt.Errorf("failed to decode document %s: %w", snap.Ref.ID, err)
		}
		page.Items = append(page.Items, &rec)
	}
	if page.HasMore {
		page.ContinuationToken = page.Items[len(page.Items)-1].ID
	}
	return page, nil
}
