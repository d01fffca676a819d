package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/reviewlens/reviewlens/internal/analysis"
	"github.com/reviewlens/reviewlens/internal/api/response"
	"github.com/reviewlens/reviewlens/internal/engine"
	"github.com/reviewlens/reviewlens/internal/store"
	"github.com/reviewlens/reviewlens/pkg/models"
)

// Analyzer defines the orchestrator operations the analysis handlers depend on.
type Analyzer interface {
	StartAnalysis(ctx context.Context, req engine.StartRequest) (*analysis.StartOutcome, error)
	GetStatus(ctx context.Context, productID string) (*models.StatusSnapshot, error)
	GetResult(ctx context.Context, productID string) (*models.ResultSnapshot, error)
}

// NewStartAnalysisHandler returns the handler for
// POST /api/v1/products/{productID}/analysis.
func NewStartAnalysisHandler(svc Analyzer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID := chi.URLParam(r, "productID")
		if productID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "product id is required", nil)
			return
		}

		var req struct {
			URL      string   `json:"url"`
			Keywords []string `json:"keywords"`
		}
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
				return
			}
		}

		out, err := svc.StartAnalysis(r.Context(), engine.StartRequest{
			ProductID: productID,
			URL:       req.URL,
			Keywords:  req.Keywords,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		if out.Result != nil || out.InProgress {
			response.JSON(w, out)
			return
		}
		response.Accepted(w, out)
	}
}

// NewStatusHandler returns the handler for
// GET /api/v1/products/{productID}/analysis/status.
func NewStatusHandler(svc Analyzer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID := chi.URLParam(r, "productID")
		if productID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "product id is required", nil)
			return
		}

		snap, err := svc.GetStatus(r.Context(), productID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		response.JSON(w, snap)
	}
}

// NewResultHandler returns the handler for
// GET /api/v1/products/{productID}/analysis/result.
func NewResultHandler(svc Analyzer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID := chi.URLParam(r, "productID")
		if productID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "product id is required", nil)
			return
		}

		snap, err := svc.GetResult(r.Context(), productID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		response.JSON(w, snap)
	}
}

// writeServiceError maps the service error taxonomy onto HTTP. The split the
// client cares about: connection/timeout/unavailable mean retry later,
// rejected/not-found/validation mean give up.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND",
			"No analysis found for this product", nil)
	case errors.Is(err, analysis.ErrNotReady):
		response.Error(w, http.StatusConflict, "RESULT_NOT_READY",
			"The analysis has not completed yet", nil)
	case errors.Is(err, analysis.ErrStartContended):
		response.Error(w, http.StatusConflict, "START_IN_PROGRESS",
			"Another analysis request for this product is being dispatched", nil)
	case errors.Is(err, engine.ErrRejected):
		response.Error(w, http.StatusUnprocessableEntity, "ENGINE_REJECTED",
			"The analysis engine rejected the request", nil)
	case errors.Is(err, engine.ErrUnavailable):
		response.Error(w, http.StatusServiceUnavailable, "ENGINE_UNAVAILABLE",
			"The analysis engine is temporarily unavailable, retry later", nil)
	case errors.Is(err, engine.ErrTimeout):
		response.Error(w, http.StatusGatewayTimeout, "ENGINE_TIMEOUT",
			"The analysis engine took too long to respond, retry later", nil)
	case errors.Is(err, engine.ErrConnection):
		response.Error(w, http.StatusBadGateway, "ENGINE_CONNECTION",
			"Could not reach the analysis engine, retry later", nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}
