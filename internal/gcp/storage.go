package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/freightdocflow/internal/models"
	"google.golang.org/api/googleapi"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

const uploadTimeout = 50 * time.Second

// BlobStore stores document PDFs in one GCS bucket.
type BlobStore struct {
	client *storage.Client
	bucket string
}

func NewBlobStore(client *storage.Client, bucket string) (*BlobStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("NewBlobStore: bucket cannot be empty")
	}
	return &BlobStore{client: client, bucket: bucket}, nil
}

// EnsureContainerExists only checks the bucket; buckets are provisioned outside
// the functions.
func (s *BlobStore) EnsureContainerExists(ctx context.Context) error {
	if _, err := s.client.Bucket(s.bucket).Attrs(ctx); err != nil {
		if errors.Is(err, storage.ErrBucketNotExist) {
			return fmt.Errorf("bucket %s does not exist: %w", s.bucket, err)
		}
		return fmt.Errorf("failed to read bucket %s: %w", s.bucket, err)
	}
	return nil
}

// UploadDocument writes the object only if it does not exist yet. A retried
// upload of the same name is treated as already done.
func (s *BlobStore) UploadDocument(ctx context.Context, name string, data []byte, contentType string) (*models.BlobRef, error) {
	writeCtx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	if err := SaveToGCSAtomically(writeCtx, s.client.Bucket(s.bucket), name, data, contentType); err != nil {
		return nil, err
	}
	return &models.BlobRef{URL: s.GetBlobURL(name), FileName: name}, nil
}

func (s *BlobStore) GetBlobURL(name string) string {
	return fmt.Sprintf("gs://%s/%s", s.bucket, name)
}

func (s *BlobStore) BlobExists(ctx context.Context, name string) (bool, error) {
	_, err := s.client.Bucket(s.bucket).Object(name).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat gs://%s/%s: %w", s.bucket, name, err)
	}
	return true, nil
}

func (s *BlobStore) ReadDocument(ctx context.Context, name string) ([]byte, error) {
	return ReadObject(ctx, s.client, s.bucket, name)
}

func (s *BlobStore) Stat(ctx context.Context, name string) (*models.BlobInfo, error) {
	return StatObject(ctx, s.client, s.bucket, name)
}

// ReadObject downloads a whole object from any bucket.
func ReadObject(ctx context.Context, client *storage.Client, bucket, name string) ([]byte, error) {
	reader, err := client.Bucket(bucket).Object(name).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("gs://%s/%s: %w", bucket, name, models.ErrBlobNotFound)
		}
		return nil, fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", bucket, name, err)
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", bucket, name, err)
	}
	return data, nil
}

// StatObject reads an object's attributes, including custom metadata.
func StatObject(ctx context.Context, client *storage.Client, bucket, name string) (*models.BlobInfo, error) {
	attrs, err := client.Bucket(bucket).Object(name).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("gs://%s/%s: %w", bucket, name, models.ErrBlobNotFound)
		}
		return nil, fmt.Errorf("failed to stat gs://%s/%s: %w", bucket, name, err)
	}
	return &models.BlobInfo{
		Name:        attrs.Name,
		ContentType: attrs.ContentType,
		Size:        attrs.Size,
		Metadata:    attrs.Metadata,
		Created:     attrs.Created,
	}, nil
}

// SaveToGCSAtomically writes content to a GCS object only if it doesn't already exist.
func SaveToGCSAtomically(ctx context.Context, bucket *storage.BucketHandle, objectName string, content []byte, contentType string) error {
	writer := bucket.Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := io.Copy(writer, bytes.NewReader(content)); err != nil {
		_ = writer.Close()
		if isPreconditionFailed(err) {
			slog.Info("Object already exists, skipping write.", "gcsObject", objectName)
			return nil
		}
		return fmt.Errorf("failed to write to GCS: %w", err)
	}

	if err := writer.Close(); err != nil {
		if isPreconditionFailed(err) {
			slog.Info("Object already exists, skipping write.", "gcsObject", objectName)
			return nil
		}
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
