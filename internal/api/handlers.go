package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Lllllllleong/freightdocflow/internal/models"
	"github.com/Lllllllleong/freightdocflow/internal/services"
	"github.com/go-chi/chi/v5"
)

const maxReviewBody = 1 << 20

// JobHandler serves processing job status for polling clients.
type JobHandler struct {
	jobs services.JobStore
}

// Get handles GET /jobs/{jobId}.
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID := TenantFromContext(r.Context())
	jobID := chi.URLParam(r, "jobId")

	job, err := h.jobs.GetJob(r.Context(), jobID, tenantID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found", jobID)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// List handles GET /jobs?limit=, returning the caller's jobs newest first.
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID := TenantFromContext(r.Context())
	userID := UserFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required", "missing "+HeaderUserID+" header")
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit", err.Error())
		return
	}

	jobs, err := h.jobs.GetUserJobs(r.Context(), tenantID, userID, limit)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if jobs == nil {
		jobs = []*models.ProcessingJob{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": jobs})
}

// DocumentHandler serves stored document records and their review.
type DocumentHandler struct {
	documents services.DocumentStore
	reviews   Reviewer
}

// List handles GET /documents.
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit", err.Error())
		return
	}
	query := models.DocumentQuery{
		TenantID:          TenantFromContext(r.Context()),
		Status:            models.ProcessingStatus(q.Get("status")),
		DocumentType:      models.DocumentType(q.Get("documentType")),
		Carrier:           q.Get("carrier"),
		Limit:             limit,
		ContinuationToken: q.Get("continuationToken"),
	}
	switch query.Status {
	case "", models.StatusPending, models.StatusValidated, models.StatusRejected:
	default:
		writeError(w, http.StatusBadRequest, "invalid status", string(query.Status))
		return
	}
	if query.DocumentType != "" && !query.DocumentType.IsKnown() {
		writeError(w, http.StatusBadRequest, "invalid documentType", string(query.DocumentType))
		return
	}

	page, err := h.documents.QueryDocuments(r.Context(), query)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Get handles GET /documents/{id}.
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	record, err := h.documents.GetDocumentByID(r.Context(), id, TenantFromContext(r.Context()))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if record == nil {
		writeError(w, http.StatusNotFound, "document not found", id)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// Delete handles DELETE /documents/{id}.
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.documents.DeleteDocument(r.Context(), id, TenantFromContext(r.Context())); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Review handles POST /documents/{id}/review. The reviewer defaults to the
// calling user.
func (h *DocumentHandler) Review(w http.ResponseWriter, r *http.Request) {
	var req models.ReviewRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxReviewBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "could not parse JSON", err.Error())
		return
	}
	if req.Reviewer == "" {
		req.Reviewer = UserFromContext(r.Context())
	}

	record, err := h.reviews.ReviewDocument(r.Context(), TenantFromContext(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return models.DefaultQueryLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	if n > models.MaxQueryLimit {
		n = models.MaxQueryLimit
	}
	return n, nil
}

// writeStoreError maps store and service errors to HTTP statuses.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrDocumentNotFound), errors.Is(err, models.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "not found", err.Error())
	case errors.Is(err, models.ErrTenantRequired),
		errors.Is(err, models.ErrInvalidToken),
		errors.Is(err, services.ErrReviewerRequired):
		writeError(w, http.StatusBadRequest, "bad request", err.Error())
	default:
		slog.Error("API request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error", "")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message, detail string) {
	resp := map[string]string{"error": message}
	if detail != "" {
		resp["detail"] = detail
	}
	writeJSON(w, status, resp)
}
