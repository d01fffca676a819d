package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/reviewlens/reviewlens/pkg/models"
)

const jobColumns = `id, product_id, task_id, status,
	sentiment_positive, sentiment_negative, sentiment_neutral,
	summary, keywords, total_reviews, error_message, created_at, updated_at`

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.AnalysisJob) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO analysis_jobs (id, product_id, task_id, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		job.ID, job.ProductID, job.TaskID, job.Status, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindLatestJobByProduct(ctx context.Context, productID string) (*models.AnalysisJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+`
		 FROM analysis_jobs WHERE product_id = $1
		 ORDER BY created_at DESC, id DESC LIMIT 1`, productID)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find latest job by product: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) FindJobByTask(ctx context.Context, taskID string) (*models.AnalysisJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM analysis_jobs WHERE task_id = $1`, taskID)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find job by task: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) UpdateJobStatus(ctx context.Context, taskID, status string, errMsg *string) (*models.AnalysisJob, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE analysis_jobs
		 SET status = $2, error_message = COALESCE($3, error_message), updated_at = $4
		 WHERE task_id = $1
		 RETURNING `+jobColumns,
		taskID, status, errMsg, time.Now().UTC())
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update job status: %w", err)
	}
	return job, nil
}

func (s *PostgresStore) UpdateJobResult(ctx context.Context, taskID string, result models.AnalysisResultPayload) (*models.AnalysisJob, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE analysis_jobs
		 SET status = $2,
		     sentiment_positive = $3, sentiment_negative = $4, sentiment_neutral = $5,
		     summary = $6, keywords = $7, total_reviews = $8,
		     error_message = NULL, updated_at = $9
		 WHERE task_id = $1
		 RETURNING `+jobColumns,
		taskID, models.JobStatusCompleted,
		result.Sentiment.Positive, result.Sentiment.Negative, result.Sentiment.Neutral,
		result.Summary, result.Keywords, result.TotalReviews, time.Now().UTC())
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update job result: %w", err)
	}
	return job, nil
}

func scanJob(row pgx.Row) (*models.AnalysisJob, error) {
	var j models.AnalysisJob
	err := row.Scan(&j.ID, &j.ProductID, &j.TaskID, &j.Status,
		&j.SentimentPositive, &j.SentimentNegative, &j.SentimentNeutral,
		&j.Summary, &j.Keywords, &j.TotalReviews, &j.ErrorMessage,
		&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
