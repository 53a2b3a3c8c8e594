package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/freightdocflow/internal/cache"
	"github.com/Lllllllleong/freightdocflow/internal/gcp"
	"github.com/Lllllllleong/freightdocflow/internal/llm"
	"github.com/Lllllllleong/freightdocflow/internal/memstore"
)

const (
	BackendGCP    = "gcp"
	BackendMemory = "memory"

	ProviderGemini = "gemini"
	ProviderClaude = "claude"
)

// Config holds the environment configuration shared by all functions.
type Config struct {
	ProjectID          string
	StorageBackend     string
	DocumentsBucket    string
	IntakeBucket       string
	TenantsCollection  string
	ExamplesCollection string
	VertexAIRegion     string
	LLMProvider        string
	LLMModel           string
	AnthropicAPIKey    string
	AnthropicBaseURL   string
	ExtractionTimeout  time.Duration
	RedisAddr          string
	RedisPassword      string
	ExampleCacheTTL    time.Duration
	WorkflowID         string
	WorkflowLocation   string
	Processor          ProcessorConfig
}

// LoadConfig reads and validates the environment.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ProjectID:          gcp.GetEnv("PROJECT_ID", ""),
		StorageBackend:     strings.ToLower(gcp.GetEnv("STORAGE_BACKEND", BackendGCP)),
		DocumentsBucket:    gcp.GetEnv("DOCUMENTS_BUCKET", ""),
		IntakeBucket:       gcp.GetEnv("INTAKE_BUCKET", ""),
		TenantsCollection:  gcp.GetEnv("FIRESTORE_TENANTS_COLLECTION", "tenants"),
		ExamplesCollection: gcp.GetEnv("FIRESTORE_EXAMPLES_COLLECTION", "fewShotExamples"),
		VertexAIRegion:     gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		LLMProvider:        strings.ToLower(gcp.GetEnv("LLM_PROVIDER", ProviderGemini)),
		LLMModel:           gcp.GetEnv("LLM_MODEL", ""),
		AnthropicAPIKey:    gcp.GetEnv("ANTHROPIC_API_KEY", ""),
		AnthropicBaseURL:   gcp.GetEnv("ANTHROPIC_BASE_URL", ""),
		RedisAddr:          gcp.GetEnv("REDIS_ADDR", ""),
		RedisPassword:      gcp.GetEnv("REDIS_PASSWORD", ""),
		WorkflowID:         gcp.GetEnv("WORKFLOW_ID", "document-processing-orchestrator"),
		WorkflowLocation:   gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
		Processor:          DefaultProcessorConfig(),
	}

	var err error
	if cfg.ExtractionTimeout, err = envDuration("EXTRACTION_TIMEOUT", DefaultExtractionTimeout); err != nil {
		return nil, err
	}
	if cfg.ExampleCacheTTL, err = envDuration("EXAMPLE_CACHE_TTL", cache.DefaultExampleTTL); err != nil {
		return nil, err
	}
	if cfg.Processor.AutoValidateThreshold, err = envFloat("AUTO_VALIDATE_THRESHOLD", cfg.Processor.AutoValidateThreshold); err != nil {
		return nil, err
	}
	if cfg.Processor.FewShotCount, err = envInt("FEW_SHOT_COUNT", cfg.Processor.FewShotCount); err != nil {
		return nil, err
	}
	if cfg.Processor.GroupConcurrency, err = envInt("GROUP_CONCURRENCY", cfg.Processor.GroupConcurrency); err != nil {
		return nil, err
	}

	switch cfg.StorageBackend {
	case BackendMemory:
	case BackendGCP:
		if cfg.ProjectID == "" {
			return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
		}
		if cfg.DocumentsBucket == "" {
			return nil, fmt.Errorf("DOCUMENTS_BUCKET environment variable must be set")
		}
	default:
		return nil, fmt.Errorf("unsupported STORAGE_BACKEND %q", cfg.StorageBackend)
	}
	if cfg.LLMProvider != ProviderGemini && cfg.LLMProvider != ProviderClaude {
		return nil, fmt.Errorf("unsupported LLM_PROVIDER %q", cfg.LLMProvider)
	}
	if cfg.Processor.AutoValidateThreshold < 0 || cfg.Processor.AutoValidateThreshold > 1 {
		return nil, fmt.Errorf("AUTO_VALIDATE_THRESHOLD must be within [0,1], got %v", cfg.Processor.AutoValidateThreshold)
	}
	return cfg, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := gcp.GetEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func envInt(key string, fallback int) (int, error) {
	raw := gcp.GetEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	raw := gcp.GetEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return f, nil
}

// Stores bundles the persistence backends selected by Config.StorageBackend.
type Stores struct {
	Documents DocumentStore
	Jobs      JobStore
	Examples  KnowledgeBase
	Blobs     BlobStore
	// Intake is nil when INTAKE_BUCKET is not configured.
	Intake BlobStore

	closers []func() error
}

// NewStores connects the configured backends. The few-shot knowledge base is
// always wrapped in a cache: Redis when REDIS_ADDR is set and reachable,
// otherwise an in-process cache.
func NewStores(ctx context.Context, cfg *Config) (*Stores, error) {
	s := &Stores{}
	var examples cache.ExampleSource

	switch cfg.StorageBackend {
	case BackendMemory:
		s.Documents = memstore.NewDocumentStore()
		s.Jobs = memstore.NewJobStore()
		s.Blobs = memstore.NewBlobStore(orDefault(cfg.DocumentsBucket, "documents"))
		s.Intake = memstore.NewBlobStore(orDefault(cfg.IntakeBucket, "intake"))
		examples = memstore.NewKnowledgeBase()
		slog.Warn("Using in-memory storage backend; data is not persisted.")
	default:
		firestoreClient, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		s.closers = append(s.closers, firestoreClient.Close)

		storageClient, err := storage.NewClient(ctx)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to create Storage client: %w", err)
		}
		s.closers = append(s.closers, storageClient.Close)

		blobs, err := gcp.NewBlobStore(storageClient, cfg.DocumentsBucket)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.Blobs = blobs
		if cfg.IntakeBucket != "" {
			intake, err := gcp.NewBlobStore(storageClient, cfg.IntakeBucket)
			if err != nil {
				_ = s.Close()
				return nil, err
			}
			s.Intake = intake
		}
		s.Documents = gcp.NewDocumentStore(firestoreClient, cfg.TenantsCollection)
		s.Jobs = gcp.NewJobStore(firestoreClient, cfg.TenantsCollection)
		examples = gcp.NewKnowledgeBase(firestoreClient, cfg.ExamplesCollection)
	}

	client := newCacheClient(cfg)
	s.closers = append(s.closers, client.Close)
	s.Examples = cache.NewKnowledgeBase(examples, client, cfg.ExampleCacheTTL)
	return s, nil
}

func newCacheClient(cfg *Config) cache.Client {
	if cfg.RedisAddr == "" {
		return cache.NewMemoryClient(0)
	}
	client, err := cache.NewRedisClient(cache.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		PoolSize: 10,
	})
	if err != nil {
		slog.Warn("Redis unavailable; falling back to in-process example cache.", "redisAddr", cfg.RedisAddr, "error", err)
		return cache.NewMemoryClient(0)
	}
	return client
}

// Close releases every client opened by NewStores.
func (s *Stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// NewGenerator builds the configured LLM backend and a function to release it.
func NewGenerator(ctx context.Context, cfg *Config) (Generator, func() error, error) {
	switch cfg.LLMProvider {
	case ProviderClaude:
		gen, err := llm.NewClaudeGenerator(ctx, llm.ClaudeConfig{
			APIKey:  cfg.AnthropicAPIKey,
			Model:   cfg.LLMModel,
			BaseURL: cfg.AnthropicBaseURL,
		})
		if err != nil {
			return nil, nil, err
		}
		return gen, func() error { return nil }, nil
	default:
		gen, err := gcp.NewVertexClient(ctx, cfg.ProjectID, cfg.VertexAIRegion, cfg.LLMModel)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create vertex client: %w", err)
		}
		return gen, gen.Close, nil
	}
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
