package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
// It centralizes client creation for all services.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// tenantDocs returns the per-tenant subcollection. Every tenant's data lives
// under its own parent document.
func tenantDocs(client *firestore.Client, tenantsCollection, tenantID, sub string) *firestore.CollectionRef {
	return client.Collection(tenantsCollection).Doc(tenantID).Collection(sub)
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}
