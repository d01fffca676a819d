package analysis_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/reviewlens/reviewlens/internal/analysis"
	"github.com/reviewlens/reviewlens/internal/cache"
	"github.com/reviewlens/reviewlens/internal/engine"
	"github.com/reviewlens/reviewlens/internal/store"
	"github.com/reviewlens/reviewlens/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

// fakeStore is an in-memory Store keeping jobs in insertion order.
type fakeStore struct {
	mu   sync.Mutex
	jobs []*models.AnalysisJob

	createErr error
	findErr   error

	createCalls int
	findCalls   int
	updateCalls int
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) CreateJob(_ context.Context, job *models.AnalysisJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return f.createErr
	}
	clone := *job
	f.jobs = append(f.jobs, &clone)
	return nil
}

func (f *fakeStore) FindLatestJobByProduct(_ context.Context, productID string) (*models.AnalysisJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findCalls++
	if f.findErr != nil {
		return nil, f.findErr
	}
	var latest *models.AnalysisJob
	for _, j := range f.jobs {
		if j.ProductID != productID {
			continue
		}
		if latest == nil || j.CreatedAt.After(latest.CreatedAt) {
			latest = j
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	clone := *latest
	return &clone, nil
}

func (f *fakeStore) FindJobByTask(_ context.Context, taskID string) (*models.AnalysisJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if j := f.byTask(taskID); j != nil {
		clone := *j
		return &clone, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) UpdateJobStatus(_ context.Context, taskID, status string, errMsg *string) (*models.AnalysisJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	j := f.byTask(taskID)
	if j == nil {
		return nil, store.ErrNotFound
	}
	j.Status = status
	if errMsg != nil {
		j.ErrorMessage = errMsg
	}
	j.UpdatedAt = time.Now().UTC()
	clone := *j
	return &clone, nil
}

func (f *fakeStore) UpdateJobResult(_ context.Context, taskID string, result models.AnalysisResultPayload) (*models.AnalysisJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	j := f.byTask(taskID)
	if j == nil {
		return nil, store.ErrNotFound
	}
	j.Status = models.JobStatusCompleted
	j.SentimentPositive = &result.Sentiment.Positive
	j.SentimentNegative = &result.Sentiment.Negative
	j.SentimentNeutral = &result.Sentiment.Neutral
	j.Summary = &result.Summary
	j.Keywords = result.Keywords
	j.TotalReviews = &result.TotalReviews
	j.ErrorMessage = nil
	j.UpdatedAt = time.Now().UTC()
	clone := *j
	return &clone, nil
}

func (f *fakeStore) byTask(taskID string) *models.AnalysisJob {
	for _, j := range f.jobs {
		if j.TaskID != nil && *j.TaskID == taskID {
			return j
		}
	}
	return nil
}

// fakeEngine scripts the engine client.
type fakeEngine struct {
	accepted *models.StartAccepted
	startErr error
	status   *models.TaskStatus
	checkErr error

	startCalls int
	checkCalls int
}

func (f *fakeEngine) StartAnalysis(context.Context, engine.StartRequest) (*models.StartAccepted, error) {
	f.startCalls++
	if f.startErr != nil {
		return nil, f.startErr
	}
	return f.accepted, nil
}

func (f *fakeEngine) CheckStatus(context.Context, string) (*models.TaskStatus, error) {
	f.checkCalls++
	if f.checkErr != nil {
		return nil, f.checkErr
	}
	return f.status, nil
}

// fakePublisher records published notifications.
type fakePublisher struct {
	mu       sync.Mutex
	channels []string
	payloads []any
}

func (f *fakePublisher) Publish(_ context.Context, channel string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels = append(f.channels, channel)
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakePublisher) published() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.channels...)
}

// downCache fails every operation, simulating an unreachable Redis.
type downCache struct{ err error }

func (d *downCache) Set(context.Context, string, []byte, time.Duration) error { return d.err }
func (d *downCache) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, d.err
}
func (d *downCache) Delete(context.Context, ...string) (int64, error) { return 0, d.err }
func (d *downCache) SetNX(context.Context, string, []byte, time.Duration) (bool, error) {
	return false, d.err
}
func (d *downCache) IncrWithExpiry(context.Context, string, time.Duration) (int64, error) {
	return 0, d.err
}
func (d *downCache) Ping(context.Context) error { return d.err }

var _ cache.Cache = (*downCache)(nil)

// --- fixture ---

type fixture struct {
	svc    *analysis.Service
	store  *fakeStore
	engine *fakeEngine
	pub    *fakePublisher
	cache  *cache.JobCache
	redis  *miniredis.Miniredis
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := miniredis.RunT(t)
	rc, err := cache.NewRedisCache("redis://" + srv.Addr())
	require.NoError(t, err)

	fs := &fakeStore{}
	fe := &fakeEngine{accepted: &models.StartAccepted{TaskID: "task-1", EstimatedTime: 120}}
	fp := &fakePublisher{}
	jc := cache.NewJobCache(rc, cache.DefaultTTLs())

	return &fixture{
		svc:    analysis.NewService(fs, jc, fe, fp),
		store:  fs,
		engine: fe,
		pub:    fp,
		cache:  jc,
		redis:  srv,
	}
}

// newColdFixture wires the service over a cache whose every call errors.
func newColdFixture(t *testing.T) *fixture {
	t.Helper()
	fs := &fakeStore{}
	fe := &fakeEngine{accepted: &models.StartAccepted{TaskID: "task-1", EstimatedTime: 120}}
	fp := &fakePublisher{}
	jc := cache.NewJobCache(&downCache{err: assert.AnError}, cache.DefaultTTLs())

	return &fixture{
		svc:    analysis.NewService(fs, jc, fe, fp),
		store:  fs,
		engine: fe,
		pub:    fp,
		cache:  jc,
	}
}

// seedJob inserts a job directly into the fake store.
func (f *fixture) seedJob(productID, taskID, status string) *models.AnalysisJob {
	now := time.Now().UTC()
	job := &models.AnalysisJob{
		ID:        uuid.New(),
		ProductID: productID,
		TaskID:    &taskID,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	f.store.jobs = append(f.store.jobs, job)
	return job
}

// --- StartAnalysis ---

func TestStartAnalysis_DispatchesNewJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.svc.StartAnalysis(ctx, engine.StartRequest{ProductID: "p1"})
	require.NoError(t, err)

	assert.Equal(t, "task-1", out.TaskID)
	assert.Equal(t, 120, out.EstimatedTime)
	assert.Equal(t, models.JobStatusPending, out.Status)
	assert.False(t, out.InProgress)

	assert.Equal(t, 1, f.engine.startCalls)
	assert.Equal(t, 1, f.store.createCalls)

	// The pending job is visible through the status cache immediately.
	snap, ok := f.cache.GetStatus(ctx, "p1")
	require.True(t, ok)
	assert.Equal(t, models.JobStatusPending, snap.Status)
}

func TestStartAnalysis_CachedResultShortCircuits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	taskID := "task-old"
	f.cache.SetResult(ctx, models.ResultSnapshot{
		ProductID: "p1", TaskID: &taskID,
		Status:  models.JobStatusCompleted,
		Summary: "cached summary",
	})

	out, err := f.svc.StartAnalysis(ctx, engine.StartRequest{ProductID: "p1"})
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusCompleted, out.Status)
	require.NotNil(t, out.Result)
	assert.Equal(t, "cached summary", out.Result.Summary)

	assert.Equal(t, 0, f.engine.startCalls, "cached result must not reach the engine")
	assert.Equal(t, 0, f.store.findCalls, "cached result must not reach the store")
}

func TestStartAnalysis_DeduplicatesInFlightJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedJob("p1", "task-live", models.JobStatusProcessing)

	out, err := f.svc.StartAnalysis(ctx, engine.StartRequest{ProductID: "p1"})
	require.NoError(t, err)

	assert.True(t, out.InProgress)
	assert.Equal(t, "task-live", out.TaskID)
	assert.Equal(t, models.JobStatusProcessing, out.Status)
	assert.Equal(t, 0, f.engine.startCalls, "in-flight job must not be redispatched")
	assert.Equal(t, 0, f.store.createCalls, "no new job recorded")
}

func TestStartAnalysis_TerminalJobRedispatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedJob("p1", "task-done", models.JobStatusFailed)

	out, err := f.svc.StartAnalysis(ctx, engine.StartRequest{ProductID: "p1"})
	require.NoError(t, err)

	assert.Equal(t, "task-1", out.TaskID)
	assert.Equal(t, 1, f.engine.startCalls, "a failed job does not block a fresh run")
}

func TestStartAnalysis_EngineRejectionLeavesNoJob(t *testing.T) {
	f := newFixture(t)
	f.engine.startErr = engine.ErrRejected

	_, err := f.svc.StartAnalysis(context.Background(), engine.StartRequest{ProductID: "p1"})

	assert.ErrorIs(t, err, engine.ErrRejected)
	assert.Equal(t, 0, f.store.createCalls, "rejected dispatch must not record a job")
}

func TestStartAnalysis_LockContention(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Another start holds the dispatch lock and has not created the job yet.
	require.True(t, f.cache.AcquireStartLock(ctx, "p1"))

	_, err := f.svc.StartAnalysis(ctx, engine.StartRequest{ProductID: "p1"})
	assert.ErrorIs(t, err, analysis.ErrStartContended)
	assert.Equal(t, 0, f.engine.startCalls)
}

func TestStartAnalysis_LockContentionReturnsFreshJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// The lock holder already created the job: the contender sees it.
	require.True(t, f.cache.AcquireStartLock(ctx, "p1"))
	f.seedJob("p1", "task-race", models.JobStatusPending)

	out, err := f.svc.StartAnalysis(ctx, engine.StartRequest{ProductID: "p1"})
	require.NoError(t, err)
	assert.True(t, out.InProgress)
	assert.Equal(t, "task-race", out.TaskID)
}

func TestStartAnalysis_JobRecordFailure(t *testing.T) {
	f := newFixture(t)
	f.store.createErr = assert.AnError

	_, err := f.svc.StartAnalysis(context.Background(), engine.StartRequest{ProductID: "p1"})

	require.Error(t, err)
	assert.Equal(t, 1, f.engine.startCalls, "dispatch happened before the record failed")
}

// --- GetStatus ---

func TestGetStatus_CacheHit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.cache.SetStatus(ctx, models.StatusSnapshot{
		ProductID: "p1", Status: models.JobStatusProcessing, Progress: 40,
	})

	snap, err := f.svc.GetStatus(ctx, "p1")
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusProcessing, snap.Status)
	assert.Equal(t, 40, snap.Progress)
	assert.Equal(t, 0, f.store.findCalls)
	assert.Equal(t, 0, f.engine.checkCalls)
}

func TestGetStatus_TerminalFromStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedJob("p1", "task-done", models.JobStatusCompleted)

	snap, err := f.svc.GetStatus(ctx, "p1")
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusCompleted, snap.Status)
	assert.Equal(t, 100, snap.Progress)
	assert.Equal(t, 0, f.engine.checkCalls, "terminal jobs never hit the engine")

	// The snapshot is now cached for subsequent reads.
	cached, ok := f.cache.GetStatus(ctx, "p1")
	require.True(t, ok)
	assert.Equal(t, models.JobStatusCompleted, cached.Status)
}

func TestGetStatus_LiveJobRefreshesFromEngine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedJob("p1", "task-live", models.JobStatusPending)
	f.engine.status = &models.TaskStatus{Status: models.JobStatusProcessing, Progress: 55}

	snap, err := f.svc.GetStatus(ctx, "p1")
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusProcessing, snap.Status)
	assert.Equal(t, 55, snap.Progress)
	assert.Equal(t, 1, f.engine.checkCalls)

	// The drift was written back to the store.
	job, err := f.store.FindJobByTask(ctx, "task-live")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, job.Status)
}

func TestGetStatus_EngineUnchangedSkipsWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedJob("p1", "task-live", models.JobStatusProcessing)
	f.engine.status = &models.TaskStatus{Status: models.JobStatusProcessing, Progress: 70}

	snap, err := f.svc.GetStatus(ctx, "p1")
	require.NoError(t, err)

	assert.Equal(t, 70, snap.Progress)
	assert.Equal(t, 0, f.store.updateCalls, "no status drift, no write")
}

func TestGetStatus_EngineErrorPropagates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedJob("p1", "task-live", models.JobStatusPending)
	f.engine.checkErr = engine.ErrUnavailable

	_, err := f.svc.GetStatus(ctx, "p1")
	assert.ErrorIs(t, err, engine.ErrUnavailable)
}

func TestGetStatus_UnknownProduct(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetStatus(context.Background(), "no-such-product")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- GetResult ---

func TestGetResult_CompletedJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.seedJob("p1", "task-done", models.JobStatusCompleted)
	summary := "mostly positive"
	total := 412
	job.Summary = &summary
	job.TotalReviews = &total
	job.Keywords = []string{"battery"}

	snap, err := f.svc.GetResult(ctx, "p1")
	require.NoError(t, err)

	assert.Equal(t, "mostly positive", snap.Summary)
	assert.Equal(t, 412, snap.TotalReviews)
	assert.Equal(t, []string{"battery"}, snap.Keywords)

	// Second read is served from the cache.
	findsBefore := f.store.findCalls
	_, err = f.svc.GetResult(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, findsBefore, f.store.findCalls)
}

func TestGetResult_NotReady(t *testing.T) {
	f := newFixture(t)
	f.seedJob("p1", "task-live", models.JobStatusProcessing)

	_, err := f.svc.GetResult(context.Background(), "p1")
	assert.ErrorIs(t, err, analysis.ErrNotReady)
}

func TestGetResult_UnknownProduct(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetResult(context.Background(), "no-such-product")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// --- HandleEvent ---

func TestHandleEvent_Completed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedJob("p1", "task-1", models.JobStatusProcessing)

	err := f.svc.HandleEvent(ctx, models.AnalysisEvent{
		TaskID: "task-1",
		Status: models.JobStatusCompleted,
		Result: &models.AnalysisResultPayload{
			Sentiment:    models.Sentiment{Positive: 0.8, Negative: 0.1, Neutral: 0.1},
			Summary:      "great product",
			TotalReviews: 99,
		},
	})
	require.NoError(t, err)

	job, err := f.store.FindJobByTask(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	require.NotNil(t, job.Summary)
	assert.Equal(t, "great product", *job.Summary)

	// Result and status caches were refreshed.
	res, ok := f.cache.GetResult(ctx, "p1")
	require.True(t, ok)
	assert.Equal(t, "great product", res.Summary)

	snap, ok := f.cache.GetStatus(ctx, "p1")
	require.True(t, ok)
	assert.Equal(t, 100, snap.Progress)

	// Fan-out went to both the task and product channels.
	assert.Equal(t, []string{"analysis:task:task-1", "analysis:product:p1"}, f.pub.published())
}

func TestHandleEvent_FailedDefaultsErrorMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedJob("p1", "task-1", models.JobStatusProcessing)

	err := f.svc.HandleEvent(ctx, models.AnalysisEvent{
		TaskID: "task-1",
		Status: models.JobStatusFailed,
	})
	require.NoError(t, err)

	job, err := f.store.FindJobByTask(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)
	assert.Equal(t, "analysis failed", *job.ErrorMessage)
}

func TestHandleEvent_ProgressUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedJob("p1", "task-1", models.JobStatusPending)

	err := f.svc.HandleEvent(ctx, models.AnalysisEvent{
		TaskID:   "task-1",
		Status:   models.JobStatusProcessing,
		Progress: 30,
	})
	require.NoError(t, err)

	snap, ok := f.cache.GetStatus(ctx, "p1")
	require.True(t, ok)
	assert.Equal(t, models.JobStatusProcessing, snap.Status)
	assert.Equal(t, 30, snap.Progress)
}

func TestHandleEvent_MissingTaskID(t *testing.T) {
	f := newFixture(t)

	err := f.svc.HandleEvent(context.Background(), models.AnalysisEvent{
		Status: models.JobStatusCompleted,
	})
	assert.ErrorIs(t, err, analysis.ErrInvalidEvent)
}

func TestHandleEvent_UnknownStatus(t *testing.T) {
	f := newFixture(t)

	err := f.svc.HandleEvent(context.Background(), models.AnalysisEvent{
		TaskID: "task-1",
		Status: "exploded",
	})
	assert.ErrorIs(t, err, analysis.ErrInvalidEvent)
}

func TestHandleEvent_UnknownTask(t *testing.T) {
	f := newFixture(t)

	err := f.svc.HandleEvent(context.Background(), models.AnalysisEvent{
		TaskID: "no-such-task",
		Status: models.JobStatusCompleted,
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestHandleEvent_ReplayConverges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedJob("p1", "task-1", models.JobStatusProcessing)

	evt := models.AnalysisEvent{
		TaskID: "task-1",
		Status: models.JobStatusCompleted,
		Result: &models.AnalysisResultPayload{Summary: "done"},
	}
	require.NoError(t, f.svc.HandleEvent(ctx, evt))
	require.NoError(t, f.svc.HandleEvent(ctx, evt), "replaying a terminal event is not an error")

	job, err := f.store.FindJobByTask(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
}

// --- end-to-end lifecycle ---

func TestLifecycle_StartEventResult(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.svc.StartAnalysis(ctx, engine.StartRequest{ProductID: "p1"})
	require.NoError(t, err)
	require.Equal(t, "task-1", out.TaskID)

	require.NoError(t, f.svc.HandleEvent(ctx, models.AnalysisEvent{
		TaskID:   "task-1",
		Status:   models.JobStatusProcessing,
		Progress: 50,
	}))

	snap, err := f.svc.GetStatus(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, snap.Status)

	require.NoError(t, f.svc.HandleEvent(ctx, models.AnalysisEvent{
		TaskID: "task-1",
		Status: models.JobStatusCompleted,
		Result: &models.AnalysisResultPayload{
			Sentiment: models.Sentiment{Positive: 0.9},
			Summary:   "excellent",
		},
	}))

	res, err := f.svc.GetResult(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "excellent", res.Summary)

	// A second start now short-circuits on the cached completed result.
	startsBefore := f.engine.startCalls
	out2, err := f.svc.StartAnalysis(ctx, engine.StartRequest{ProductID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, out2.Status)
	assert.Equal(t, startsBefore, f.engine.startCalls)
}

// TestLifecycle_CacheDownMatchesWarmPath runs the same start/event/read
// sequence as TestLifecycle_StartEventResult with Redis unreachable: every
// call still succeeds and leaves the repository in the same final state.
func TestLifecycle_CacheDownMatchesWarmPath(t *testing.T) {
	f := newColdFixture(t)
	ctx := context.Background()

	out, err := f.svc.StartAnalysis(ctx, engine.StartRequest{ProductID: "p1"})
	require.NoError(t, err)
	require.Equal(t, "task-1", out.TaskID)
	assert.Equal(t, models.JobStatusPending, out.Status)

	require.NoError(t, f.svc.HandleEvent(ctx, models.AnalysisEvent{
		TaskID:   "task-1",
		Status:   models.JobStatusProcessing,
		Progress: 50,
	}))

	// Status is answered from the repository plus an engine refresh instead
	// of the snapshot cache; the caller sees the same answer.
	f.engine.status = &models.TaskStatus{Status: models.JobStatusProcessing, Progress: 50}
	snap, err := f.svc.GetStatus(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, snap.Status)
	assert.Equal(t, 50, snap.Progress)

	require.NoError(t, f.svc.HandleEvent(ctx, models.AnalysisEvent{
		TaskID: "task-1",
		Status: models.JobStatusCompleted,
		Result: &models.AnalysisResultPayload{
			Sentiment: models.Sentiment{Positive: 0.9},
			Summary:   "excellent",
		},
	}))

	res, err := f.svc.GetResult(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "excellent", res.Summary)

	job, err := f.store.FindJobByTask(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	require.NotNil(t, job.Summary)
	assert.Equal(t, "excellent", *job.Summary)

	// Fan-out is unaffected by the cache outage.
	assert.Equal(t, []string{
		"analysis:task:task-1", "analysis:product:p1",
		"analysis:task:task-1", "analysis:product:p1",
	}, f.pub.published())

	// Without the result cache a second start cannot short-circuit. It still
	// succeeds: the terminal job does not block a fresh dispatch, trading
	// duplicate engine work for availability.
	out2, err := f.svc.StartAnalysis(ctx, engine.StartRequest{ProductID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, out2.Status)
	assert.Equal(t, 2, f.engine.startCalls)
}

// --- cache administration ---

func TestInvalidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedJob("p1", "task-1", models.JobStatusCompleted)

	taskID := "task-1"
	f.cache.SetResult(ctx, models.ResultSnapshot{ProductID: "p1", TaskID: &taskID, Status: models.JobStatusCompleted})
	f.cache.SetStatus(ctx, models.StatusSnapshot{ProductID: "p1", Status: models.JobStatusCompleted})
	f.cache.SetTask(ctx, "task-1", models.StatusSnapshot{ProductID: "p1", Status: models.JobStatusCompleted})

	deleted := f.svc.Invalidate(ctx, "p1")
	assert.Equal(t, 3, deleted)

	_, ok := f.cache.GetResult(ctx, "p1")
	assert.False(t, ok)
}

func TestInvalidate_NoJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.cache.SetStatus(ctx, models.StatusSnapshot{ProductID: "p1", Status: models.JobStatusPending})

	deleted := f.svc.Invalidate(ctx, "p1")
	assert.Equal(t, 1, deleted, "cache deletes proceed without a repository row")
}

func TestWarmup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	done := f.seedJob("p1", "task-a", models.JobStatusCompleted)
	summary := "warm"
	done.Summary = &summary
	f.seedJob("p2", "task-b", models.JobStatusProcessing)

	warmed := f.svc.Warmup(ctx, []string{"p1", "p2", "p3"})
	assert.Equal(t, 1, warmed, "only completed jobs are warmable")

	res, ok := f.cache.GetResult(ctx, "p1")
	require.True(t, ok)
	assert.Equal(t, "warm", res.Summary)

	_, ok = f.cache.GetResult(ctx, "p2")
	assert.False(t, ok)
}

func TestHitRate_ReflectsReads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedJob("p1", "task-done", models.JobStatusCompleted)

	// First read misses, second hits.
	_, err := f.svc.GetResult(ctx, "p1")
	require.NoError(t, err)
	_, err = f.svc.GetResult(ctx, "p1")
	require.NoError(t, err)

	stats := f.svc.HitRate(ctx, 1)
	require.Len(t, stats, 1)
	assert.Equal(t, int64(1), stats[0].Hits)
	assert.Equal(t, int64(1), stats[0].Misses)
	assert.Equal(t, 50.0, stats[0].HitRatePercent)
}
