package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/reviewlens/reviewlens/internal/metrics"
	"github.com/reviewlens/reviewlens/pkg/models"
)

// startLockTTL bounds the dedup lock so a crashed dispatch cannot block a
// product forever. It must comfortably cover one engine call with retries.
const startLockTTL = 90 * time.Second

// TTLs holds the expiry for each cache entry family and the retention of the
// daily hit/miss counters.
type TTLs struct {
	Result           time.Duration
	Status           time.Duration
	Task             time.Duration
	CounterRetention time.Duration
}

// DefaultTTLs returns the expiries the service ships with.
func DefaultTTLs() TTLs {
	return TTLs{
		Result:           1 * time.Hour,
		Status:           5 * time.Minute,
		Task:             30 * time.Minute,
		CounterRetention: 7 * 24 * time.Hour,
	}
}

// DayStats is one day of hit/miss accounting.
type DayStats struct {
	Date           string  `json:"date"`
	Hits           int64   `json:"hits"`
	Misses         int64   `json:"misses"`
	Total          int64   `json:"total"`
	HitRatePercent float64 `json:"hit_rate_percent"`
}

// JobCache is the fail-open cache wrapper used by the orchestrator. Every
// entry it holds is a derived copy of repository state, so no error here may
// reach the caller: reads degrade to a miss, writes are logged and dropped.
type JobCache struct {
	cache Cache
	ttl   TTLs
	now   func() time.Time
}

// NewJobCache wraps a Cache with the given TTLs.
func NewJobCache(c Cache, ttl TTLs) *JobCache {
	return &JobCache{cache: c, ttl: ttl, now: time.Now}
}

// --- Result entries (keyed by product) ---

func (jc *JobCache) GetResult(ctx context.Context, productID string) (*models.ResultSnapshot, bool) {
	snap, ok := getJSON[models.ResultSnapshot](ctx, jc.cache, ResultKey(productID))
	jc.count("result", ok)
	return snap, ok
}

func (jc *JobCache) SetResult(ctx context.Context, snap models.ResultSnapshot) {
	setJSON(ctx, jc.cache, ResultKey(snap.ProductID), snap, jc.ttl.Result)
}

// --- Status entries (keyed by product) ---

func (jc *JobCache) GetStatus(ctx context.Context, productID string) (*models.StatusSnapshot, bool) {
	snap, ok := getJSON[models.StatusSnapshot](ctx, jc.cache, StatusKey(productID))
	jc.count("status", ok)
	return snap, ok
}

func (jc *JobCache) SetStatus(ctx context.Context, snap models.StatusSnapshot) {
	setJSON(ctx, jc.cache, StatusKey(snap.ProductID), snap, jc.ttl.Status)
}

// --- Task entries (keyed by engine task id) ---

func (jc *JobCache) GetTask(ctx context.Context, taskID string) (*models.StatusSnapshot, bool) {
	snap, ok := getJSON[models.StatusSnapshot](ctx, jc.cache, TaskKey(taskID))
	jc.count("task", ok)
	return snap, ok
}

func (jc *JobCache) SetTask(ctx context.Context, taskID string, snap models.StatusSnapshot) {
	setJSON(ctx, jc.cache, TaskKey(taskID), snap, jc.ttl.Task)
}

// Invalidate deletes the Result and Status entries for a product, plus the
// Task entry when a task id is supplied. The returned count is best-effort
// and only useful for logging.
func (jc *JobCache) Invalidate(ctx context.Context, productID, taskID string) int {
	keys := []string{ResultKey(productID), StatusKey(productID)}
	if taskID != "" {
		keys = append(keys, TaskKey(taskID))
	}
	deleted, err := jc.cache.Delete(ctx, keys...)
	if err != nil {
		slog.Warn("cache invalidate failed", "product_id", productID, "error", err)
		return 0
	}
	return int(deleted)
}

// --- Hit/miss accounting ---

// RecordOutcome increments the day's hit or miss counter. Accounting is pure
// observability, so failures are dropped silently.
func (jc *JobCache) RecordOutcome(ctx context.Context, productID string, hit bool) {
	day := jc.now().UTC()
	key := MissCounterKey(day)
	if hit {
		key = HitCounterKey(day)
	}
	if _, err := jc.cache.IncrWithExpiry(ctx, key, jc.ttl.CounterRetention); err != nil {
		slog.Debug("cache outcome counter failed", "product_id", productID, "error", err)
	}
}

// HitRate returns per-day stats for the last `days` calendar days, newest
// first. Days with no counters report zero activity.
func (jc *JobCache) HitRate(ctx context.Context, days int) []DayStats {
	if days < 1 {
		days = 1
	}
	stats := make([]DayStats, 0, days)
	today := jc.now().UTC()
	for i := 0; i < days; i++ {
		day := today.AddDate(0, 0, -i)
		hits := jc.counter(ctx, HitCounterKey(day))
		misses := jc.counter(ctx, MissCounterKey(day))
		s := DayStats{
			Date:   day.Format("2006-01-02"),
			Hits:   hits,
			Misses: misses,
			Total:  hits + misses,
		}
		if s.Total > 0 {
			s.HitRatePercent = float64(s.Hits) / float64(s.Total) * 100
		}
		stats = append(stats, s)
	}
	return stats
}

// --- Start lock ---

// AcquireStartLock takes the short-lived dedup lock for a product. It fails
// open: a cache error grants the lock, trading a possible duplicate dispatch
// for availability.
func (jc *JobCache) AcquireStartLock(ctx context.Context, productID string) bool {
	ok, err := jc.cache.SetNX(ctx, StartLockKey(productID), []byte("1"), startLockTTL)
	if err != nil {
		slog.Warn("start lock acquire failed, proceeding unlocked", "product_id", productID, "error", err)
		return true
	}
	return ok
}

// ReleaseStartLock drops the dedup lock early. Left alone, it expires.
func (jc *JobCache) ReleaseStartLock(ctx context.Context, productID string) {
	if _, err := jc.cache.Delete(ctx, StartLockKey(productID)); err != nil {
		slog.Debug("start lock release failed", "product_id", productID, "error", err)
	}
}

// --- internals ---

func (jc *JobCache) count(family string, hit bool) {
	if hit {
		metrics.CacheHits.WithLabelValues(family).Inc()
		return
	}
	metrics.CacheMisses.WithLabelValues(family).Inc()
}

func (jc *JobCache) counter(ctx context.Context, key string) int64 {
	raw, found, err := jc.cache.Get(ctx, key)
	if err != nil {
		slog.Debug("counter read failed", "key", key, "error", err)
		return 0
	}
	if !found {
		return 0
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func getJSON[T any](ctx context.Context, c Cache, key string) (*T, bool) {
	raw, found, err := c.Get(ctx, key)
	if err != nil {
		slog.Warn("cache read failed", "key", key, "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		slog.Warn("cache entry corrupt, treating as miss", "key", key, "error", err)
		return nil, false
	}
	return &v, true
}

func setJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) {
	raw, err := json.Marshal(v)
	if err != nil {
		slog.Warn("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.Set(ctx, key, raw, ttl); err != nil {
		slog.Warn("cache write failed", "key", key, "error", err)
	}
}
