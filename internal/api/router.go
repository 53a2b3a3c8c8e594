// Package api exposes jobs and document records over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Lllllllleong/freightdocflow/internal/models"
	"github.com/Lllllllleong/freightdocflow/internal/services"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

const defaultRequestTimeout = 30 * time.Second

// Reviewer applies review decisions to records.
type Reviewer interface {
	ReviewDocument(ctx context.Context, tenantID, id string, req models.ReviewRequest) (*models.DocumentRecord, error)
}

// Deps are the services behind the API.
type Deps struct {
	Documents services.DocumentStore
	Jobs      services.JobStore
	Reviews   Reviewer
}

// NewRouter creates the API router with all routes configured.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(defaultRequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	jobs := &JobHandler{jobs: deps.Jobs}
	docs := &DocumentHandler{documents: deps.Documents, reviews: deps.Reviews}

	r.Group(func(r chi.Router) {
		r.Use(Identity)

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", jobs.List)
			r.Get("/{jobId}", jobs.Get)
		})

		r.Route("/documents", func(r chi.Router) {
			r.Get("/", docs.List)
			r.Get("/{id}", docs.Get)
			r.Delete("/{id}", docs.Delete)
			r.Post("/{id}/review", docs.Review)
		})
	})

	return r
}

// NewHandler builds the API from the environment. The returned function
// releases the underlying clients.
func NewHandler(ctx context.Context) (http.Handler, func() error, error) {
	cfg, err := services.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	stores, err := services.NewStores(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	reviews := services.NewReviewService(stores.Documents, stores.Examples, stores.Blobs, services.NewPDFTextExtractor())
	return NewRouter(Deps{
		Documents: stores.Documents,
		Jobs:      stores.Jobs,
		Reviews:   reviews,
	}), stores.Close, nil
}
