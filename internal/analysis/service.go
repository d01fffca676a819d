// Package analysis orchestrates the lifecycle of review-analysis jobs across
// three sources of truth: the durable job store, the Redis cache, and the
// notification channel. The store is authoritative; the cache is a derived
// optimization and every read path falls back to the store when it is cold
// or broken.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/reviewlens/reviewlens/internal/cache"
	"github.com/reviewlens/reviewlens/internal/engine"
	"github.com/reviewlens/reviewlens/internal/notify"
	"github.com/reviewlens/reviewlens/internal/store"
	"github.com/reviewlens/reviewlens/pkg/models"
)

var (
	// ErrNotReady means the latest job for the product has not completed.
	ErrNotReady = errors.New("analysis result not ready")
	// ErrStartContended means another start request holds the dispatch lock.
	ErrStartContended = errors.New("analysis start already in progress")
	// ErrInvalidEvent means a callback or bus event failed validation.
	ErrInvalidEvent = errors.New("invalid analysis event")
)

var knownEventStatuses = map[string]bool{
	models.JobStatusPending:    true,
	models.JobStatusProcessing: true,
	models.JobStatusCompleted:  true,
	models.JobStatusFailed:     true,
}

// StartOutcome is the result of a start-analysis request.
type StartOutcome struct {
	TaskID        string                 `json:"task_id"`
	EstimatedTime int                    `json:"estimated_time,omitempty"`
	Status        string                 `json:"status"`
	InProgress    bool                   `json:"in_progress"`
	Result        *models.ResultSnapshot `json:"result,omitempty"`
}

// Service is the analysis orchestrator. All collaborators are injected so
// tests can run against fakes.
type Service struct {
	store  store.Store
	cache  *cache.JobCache
	engine engine.Client
	notify notify.Publisher
}

// NewService creates a new orchestrator.
func NewService(st store.Store, jc *cache.JobCache, eng engine.Client, pub notify.Publisher) *Service {
	return &Service{store: st, cache: jc, engine: eng, notify: pub}
}

// StartAnalysis accepts a request to analyze a product. A cached completed
// result short-circuits everything; an in-flight job is returned as-is (the
// dedup guarantee); otherwise a new analysis is dispatched to the engine and
// recorded as a pending job.
func (s *Service) StartAnalysis(ctx context.Context, req engine.StartRequest) (*StartOutcome, error) {
	if snap, ok := s.cache.GetResult(ctx, req.ProductID); ok && snap.Status == models.JobStatusCompleted {
		s.cache.RecordOutcome(ctx, req.ProductID, true)
		return &StartOutcome{
			TaskID: deref(snap.TaskID),
			Status: models.JobStatusCompleted,
			Result: snap,
		}, nil
	}
	s.cache.RecordOutcome(ctx, req.ProductID, false)

	if out, err := s.findInFlight(ctx, req.ProductID); out != nil || err != nil {
		return out, err
	}

	// Short-lived lock narrows the read-then-act dedup race between the
	// repository check and the job insert. It fails open on cache errors, so
	// a rare duplicate dispatch remains possible and tolerated.
	if !s.cache.AcquireStartLock(ctx, req.ProductID) {
		if out, err := s.findInFlight(ctx, req.ProductID); out != nil || err != nil {
			return out, err
		}
		return nil, ErrStartContended
	}
	defer s.cache.ReleaseStartLock(ctx, req.ProductID)

	accepted, err := s.engine.StartAnalysis(ctx, req)
	if err != nil {
		// Engine-side rejection before acceptance leaves no job record.
		return nil, err
	}

	now := time.Now().UTC()
	job := &models.AnalysisJob{
		ID:        uuid.New(),
		ProductID: req.ProductID,
		TaskID:    &accepted.TaskID,
		Status:    models.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		slog.Error("analysis dispatched but job record failed",
			"product_id", req.ProductID, "task_id", accepted.TaskID, "error", err)
		return nil, fmt.Errorf("recording job: %w", err)
	}

	snap := models.StatusSnapshotFromJob(job)
	s.cache.SetStatus(ctx, snap)
	s.cache.SetTask(ctx, accepted.TaskID, snap)

	slog.Info("analysis started",
		"product_id", req.ProductID, "task_id", accepted.TaskID, "estimated_time", accepted.EstimatedTime)

	return &StartOutcome{
		TaskID:        accepted.TaskID,
		EstimatedTime: accepted.EstimatedTime,
		Status:        models.JobStatusPending,
	}, nil
}

// findInFlight returns an "already in progress" outcome when the latest job
// for the product is still pending or processing.
func (s *Service) findInFlight(ctx context.Context, productID string) (*StartOutcome, error) {
	job, err := s.store.FindLatestJobByProduct(ctx, productID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !job.InFlight() {
		return nil, nil
	}
	return &StartOutcome{
		TaskID:     deref(job.TaskID),
		Status:     job.Status,
		InProgress: true,
	}, nil
}

// GetStatus reports the current status of the latest analysis for a product.
// Terminal states come from the store and are snapshotted into the cache;
// live jobs are refreshed against the engine.
func (s *Service) GetStatus(ctx context.Context, productID string) (*models.StatusSnapshot, error) {
	if snap, ok := s.cache.GetStatus(ctx, productID); ok {
		s.cache.RecordOutcome(ctx, productID, true)
		return snap, nil
	}
	s.cache.RecordOutcome(ctx, productID, false)

	job, err := s.store.FindLatestJobByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	// Terminal states are stable: snapshot and return without engine contact.
	if models.TerminalStatus(job.Status) || job.TaskID == nil {
		snap := models.StatusSnapshotFromJob(job)
		s.cache.SetStatus(ctx, snap)
		return &snap, nil
	}

	ts, err := s.engine.CheckStatus(ctx, *job.TaskID)
	if err != nil {
		return nil, err
	}

	if ts.Status != job.Status {
		var errMsg *string
		if ts.Error != "" {
			errMsg = &ts.Error
		}
		updated, err := s.store.UpdateJobStatus(ctx, *job.TaskID, ts.Status, errMsg)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		if updated != nil {
			job = updated
		}
	}

	snap := models.StatusSnapshotFromJob(job)
	snap.Status = ts.Status
	snap.Progress = ts.Progress
	if ts.Error != "" {
		snap.Error = &ts.Error
	}
	s.cache.SetStatus(ctx, snap)
	return &snap, nil
}

// GetResult returns the completed result for a product, or ErrNotReady while
// the latest job has not completed.
func (s *Service) GetResult(ctx context.Context, productID string) (*models.ResultSnapshot, error) {
	if snap, ok := s.cache.GetResult(ctx, productID); ok && snap.Status == models.JobStatusCompleted {
		s.cache.RecordOutcome(ctx, productID, true)
		return snap, nil
	}
	s.cache.RecordOutcome(ctx, productID, false)

	job, err := s.store.FindLatestJobByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusCompleted {
		return nil, fmt.Errorf("%w: status %s", ErrNotReady, job.Status)
	}

	snap := models.ResultSnapshotFromJob(job)
	s.cache.SetResult(ctx, snap)
	return &snap, nil
}

// HandleEvent applies one status-change event from the engine callback or the
// message bus. It is safe to replay: reapplying a terminal event converges on
// the same stored state, at the cost of a redundant cache write and
// notification.
func (s *Service) HandleEvent(ctx context.Context, evt models.AnalysisEvent) error {
	if evt.TaskID == "" {
		return fmt.Errorf("%w: missing task id", ErrInvalidEvent)
	}
	if !knownEventStatuses[evt.Status] {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidEvent, evt.Status)
	}

	job, err := s.store.FindJobByTask(ctx, evt.TaskID)
	if err != nil {
		return fmt.Errorf("resolving task %s: %w", evt.TaskID, err)
	}

	var updated *models.AnalysisJob
	switch {
	case evt.Status == models.JobStatusCompleted && evt.Result != nil:
		updated, err = s.store.UpdateJobResult(ctx, evt.TaskID, *evt.Result)
	case evt.Status == models.JobStatusFailed:
		errMsg := evt.Error
		if errMsg == "" {
			errMsg = "analysis failed"
		}
		updated, err = s.store.UpdateJobStatus(ctx, evt.TaskID, evt.Status, &errMsg)
	default:
		updated, err = s.store.UpdateJobStatus(ctx, evt.TaskID, evt.Status, nil)
	}
	if errors.Is(err, store.ErrNotFound) {
		// Row vanished between resolve and update; nothing to apply.
		updated = job
	} else if err != nil {
		return err
	}

	// The just-applied write makes every cached view of this job stale.
	deleted := s.cache.Invalidate(ctx, updated.ProductID, evt.TaskID)
	slog.Debug("cache invalidated after event",
		"product_id", updated.ProductID, "task_id", evt.TaskID, "deleted", deleted)

	snap := models.StatusSnapshotFromJob(updated)
	if evt.Progress > 0 && !models.TerminalStatus(updated.Status) {
		snap.Progress = evt.Progress
	}
	s.cache.SetStatus(ctx, snap)
	s.cache.SetTask(ctx, evt.TaskID, snap)
	if updated.Status == models.JobStatusCompleted {
		s.cache.SetResult(ctx, models.ResultSnapshotFromJob(updated))
	}

	s.publish(ctx, notify.TaskChannel(evt.TaskID), snap)
	s.publish(ctx, notify.ProductChannel(updated.ProductID), snap)

	slog.Info("analysis event applied",
		"task_id", evt.TaskID, "product_id", updated.ProductID, "status", updated.Status)
	return nil
}

// Invalidate drops every cache entry for a product. The repository lookup
// only serves to find the task key; its failure does not block the cache
// deletes.
func (s *Service) Invalidate(ctx context.Context, productID string) int {
	taskID := ""
	job, err := s.store.FindLatestJobByProduct(ctx, productID)
	if err == nil && job.TaskID != nil {
		taskID = *job.TaskID
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		slog.Warn("invalidate: job lookup failed", "product_id", productID, "error", err)
	}
	return s.cache.Invalidate(ctx, productID, taskID)
}

// Warmup reseeds the result and status caches for products whose latest job
// completed. Products without a completed job are skipped.
func (s *Service) Warmup(ctx context.Context, productIDs []string) int {
	warmed := 0
	for _, productID := range productIDs {
		job, err := s.store.FindLatestJobByProduct(ctx, productID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			slog.Warn("warmup: job lookup failed", "product_id", productID, "error", err)
			continue
		}
		if job.Status != models.JobStatusCompleted {
			continue
		}
		s.cache.SetResult(ctx, models.ResultSnapshotFromJob(job))
		snap := models.StatusSnapshotFromJob(job)
		s.cache.SetStatus(ctx, snap)
		warmed++
	}
	return warmed
}

// HitRate returns cache hit/miss accounting for the last `days` days.
func (s *Service) HitRate(ctx context.Context, days int) []cache.DayStats {
	return s.cache.HitRate(ctx, days)
}

func (s *Service) publish(ctx context.Context, channel string, payload any) {
	if err := s.notify.Publish(ctx, channel, payload); err != nil {
		slog.Warn("notification publish failed", "channel", channel, "error", err)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
