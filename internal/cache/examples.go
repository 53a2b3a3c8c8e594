package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Lllllllleong/freightdocflow/internal/models"
)

const (
	DefaultExampleTTL = 10 * time.Minute
	examplesKeyPrefix = "examples"
)

// ExampleSource is the knowledge base being cached.
type ExampleSource interface {
	GetFewShotExamples(ctx context.Context, docType models.DocumentType, carrier string, count int) ([]models.FewShotExample, error)
	SaveExample(ctx context.Context, example models.FewShotExample) error
}

// KnowledgeBase caches few-shot lookups of an ExampleSource. Cache errors are
// logged and the lookup falls through to the source.
type KnowledgeBase struct {
	source ExampleSource
	client Client
	ttl    time.Duration
}

func NewKnowledgeBase(source ExampleSource, client Client, ttl time.Duration) *KnowledgeBase {
	if ttl <= 0 {
		ttl = DefaultExampleTTL
	}
	return &KnowledgeBase{source: source, client: client, ttl: ttl}
}

func examplesKey(docType models.DocumentType, carrier string, count int) string {
	return CacheKey(examplesKeyPrefix, string(docType), strings.ToLower(carrier), strconv.Itoa(count))
}

func (k *KnowledgeBase) GetFewShotExamples(ctx context.Context, docType models.DocumentType, carrier string, count int) ([]models.FewShotExample, error) {
	key := examplesKey(docType, carrier, count)

	raw, err := k.client.Get(ctx, key)
	switch {
	case err == nil:
		var examples []models.FewShotExample
		if jsonErr := json.Unmarshal(raw, &examples); jsonErr == nil {
			return examples, nil
		}
		slog.Warn("Discarding undecodable cached few-shot examples", "key", key)
	case !errors.Is(err, ErrCacheMiss):
		slog.Warn("Few-shot cache read failed", "key", key, "error", err)
	}

	examples, err := k.source.GetFewShotExamples(ctx, docType, carrier, count)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(examples); err == nil {
		if err := k.client.Set(ctx, key, raw, k.ttl); err != nil {
			slog.Warn("Few-shot cache write failed", "key", key, "error", err)
		}
	}
	return examples, nil
}

// SaveExample writes through and invalidates every cached lookup of the
// example's document type, since other carriers may be topped up with it.
func (k *KnowledgeBase) SaveExample(ctx context.Context, example models.FewShotExample) error {
	if err := k.source.SaveExample(ctx, example); err != nil {
		return err
	}
	prefix := CacheKey(examplesKeyPrefix, string(example.DocumentType)) + ":"
	if err := k.client.DeleteByPrefix(ctx, prefix); err != nil {
		slog.Warn("Few-shot cache invalidation failed", "prefix", prefix, "error", err)
	}
	return nil
}
