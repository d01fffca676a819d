package handler_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/reviewlens/reviewlens/internal/api/handler"
	"github.com/reviewlens/reviewlens/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockCacheAdmin scripts the cache administration operations.
type mockCacheAdmin struct {
	invalidated []string
	deleted     int

	warmedWith []string
	warmed     int

	hitRateDays int
	stats       []cache.DayStats
}

func (m *mockCacheAdmin) Invalidate(_ context.Context, productID string) int {
	m.invalidated = append(m.invalidated, productID)
	return m.deleted
}

func (m *mockCacheAdmin) Warmup(_ context.Context, productIDs []string) int {
	m.warmedWith = productIDs
	return m.warmed
}

func (m *mockCacheAdmin) HitRate(_ context.Context, days int) []cache.DayStats {
	m.hitRateDays = days
	return m.stats
}

// --- Invalidate ---

func TestInvalidateHandler(t *testing.T) {
	m := &mockCacheAdmin{deleted: 3}
	h := handler.NewInvalidateHandler(m)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/admin/cache/products/B08XYZ", nil)
	rec := serve(http.MethodDelete, "/api/v1/admin/cache/products/{productID}", h, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var out map[string]int
	decodeData(t, rec, &out)
	assert.Equal(t, 3, out["deleted"])
	assert.Equal(t, []string{"B08XYZ"}, m.invalidated)
}

// --- Warmup ---

func TestWarmupHandler(t *testing.T) {
	m := &mockCacheAdmin{warmed: 2}
	h := handler.NewWarmupHandler(m)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/cache/warmup",
		bytes.NewBufferString(`{"product_ids": ["p1", "p2", "p3"]}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var out map[string]int
	decodeData(t, rec, &out)
	assert.Equal(t, 2, out["warmed"])
	assert.Equal(t, []string{"p1", "p2", "p3"}, m.warmedWith)
}

func TestWarmupHandler_EmptyList(t *testing.T) {
	h := handler.NewWarmupHandler(&mockCacheAdmin{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/cache/warmup",
		bytes.NewBufferString(`{"product_ids": []}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", errorCode(t, rec))
}

func TestWarmupHandler_TooManyProducts(t *testing.T) {
	h := handler.NewWarmupHandler(&mockCacheAdmin{})

	ids := make([]string, 101)
	for i := range ids {
		ids[i] = `"p"`
	}
	body := `{"product_ids": [` + strings.Join(ids, ",") + `]}`

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/cache/warmup",
		bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWarmupHandler_InvalidJSON(t *testing.T) {
	h := handler.NewWarmupHandler(&mockCacheAdmin{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/cache/warmup",
		bytes.NewBufferString("{broken"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// --- HitRate ---

func TestHitRateHandler_Defaults(t *testing.T) {
	m := &mockCacheAdmin{stats: []cache.DayStats{
		{Date: "2024-03-15", Hits: 3, Misses: 1, Total: 4, HitRatePercent: 75.0},
	}}
	h := handler.NewHitRateHandler(m)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/cache/stats", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 7, m.hitRateDays, "default window is a week")

	var stats []cache.DayStats
	decodeData(t, rec, &stats)
	require.Len(t, stats, 1)
	assert.Equal(t, 75.0, stats[0].HitRatePercent)
}

func TestHitRateHandler_CustomDays(t *testing.T) {
	m := &mockCacheAdmin{}
	h := handler.NewHitRateHandler(m)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/cache/stats?days=14", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 14, m.hitRateDays)
}

func TestHitRateHandler_InvalidDays(t *testing.T) {
	h := handler.NewHitRateHandler(&mockCacheAdmin{})

	for _, days := range []string{"0", "31", "-1", "abc"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/cache/stats?days="+days, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code, "days=%s", days)
	}
}
