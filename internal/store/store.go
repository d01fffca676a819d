package store

import (
	"context"
	"errors"

	"github.com/reviewlens/reviewlens/pkg/models"
)

var ErrNotFound = errors.New("resource not found")

// Store is the data access interface for analysis jobs. All database
// operations go through here. Jobs are created and mutated only by the
// orchestrator; the store never changes a row on its own initiative.
type Store interface {
	Ping(ctx context.Context) error

	CreateJob(ctx context.Context, job *models.AnalysisJob) error
	// FindLatestJobByProduct returns the most recently created job for a
	// product, or ErrNotFound. Ties break on creation order.
	FindLatestJobByProduct(ctx context.Context, productID string) (*models.AnalysisJob, error)
	FindJobByTask(ctx context.Context, taskID string) (*models.AnalysisJob, error)
	// UpdateJobStatus sets the status (and optional error message) of the job
	// owning taskID and returns the updated row. ErrNotFound when no row
	// matches; callers treat that as nothing to update.
	UpdateJobStatus(ctx context.Context, taskID, status string, errMsg *string) (*models.AnalysisJob, error)
	// UpdateJobResult stores result fields and moves the job to completed.
	UpdateJobResult(ctx context.Context, taskID string, result models.AnalysisResultPayload) (*models.AnalysisJob, error)
}
