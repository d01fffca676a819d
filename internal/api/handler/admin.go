package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/reviewlens/reviewlens/internal/api/response"
	"github.com/reviewlens/reviewlens/internal/cache"
)

const maxWarmupProducts = 100

// CacheAdmin defines the cache administration operations.
type CacheAdmin interface {
	Invalidate(ctx context.Context, productID string) int
	Warmup(ctx context.Context, productIDs []string) int
	HitRate(ctx context.Context, days int) []cache.DayStats
}

// NewInvalidateHandler returns the handler for
// DELETE /api/v1/admin/cache/products/{productID}.
func NewInvalidateHandler(svc CacheAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID := chi.URLParam(r, "productID")
		if productID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "product id is required", nil)
			return
		}
		deleted := svc.Invalidate(r.Context(), productID)
		response.JSON(w, map[string]any{"deleted": deleted})
	}
}

// NewWarmupHandler returns the handler for POST /api/v1/admin/cache/warmup.
func NewWarmupHandler(svc CacheAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ProductIDs []string `json:"product_ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if len(req.ProductIDs) == 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "product_ids is required", nil)
			return
		}
		if len(req.ProductIDs) > maxWarmupProducts {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"too many products, max "+strconv.Itoa(maxWarmupProducts), nil)
			return
		}
		warmed := svc.Warmup(r.Context(), req.ProductIDs)
		response.JSON(w, map[string]any{"warmed": warmed})
	}
}

// NewHitRateHandler returns the handler for GET /api/v1/admin/cache/stats.
func NewHitRateHandler(svc CacheAdmin) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days := 7
		if v := r.URL.Query().Get("days"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > 30 {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"days must be an integer between 1 and 30", nil)
				return
			}
			days = n
		}
		response.JSON(w, svc.HitRate(r.Context(), days))
	}
}
