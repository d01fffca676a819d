// Package models contains shared data models used across the ReviewLens codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// TerminalStatus reports whether a job status is final. Terminal jobs are
// never resurrected; a new analysis of the same product creates a new row.
func TerminalStatus(status string) bool {
	return status == JobStatusCompleted || status == JobStatusFailed
}

// AnalysisJob is one durable record per analysis attempt. A product may
// accumulate many jobs over time; at most one should be in flight at once,
// which the orchestrator enforces (not the database).
type AnalysisJob struct {
	ID                uuid.UUID `db:"id"                 json:"id"`
	ProductID         string    `db:"product_id"         json:"product_id"`
	TaskID            *string   `db:"task_id"            json:"task_id,omitempty"`
	Status            string    `db:"status"             json:"status"`
	SentimentPositive *float64  `db:"sentiment_positive" json:"sentiment_positive,omitempty"`
	SentimentNegative *float64  `db:"sentiment_negative" json:"sentiment_negative,omitempty"`
	SentimentNeutral  *float64  `db:"sentiment_neutral"  json:"sentiment_neutral,omitempty"`
	Summary           *string   `db:"summary"            json:"summary,omitempty"`
	Keywords          []string  `db:"keywords"           json:"keywords,omitempty"`
	TotalReviews      *int      `db:"total_reviews"      json:"total_reviews,omitempty"`
	ErrorMessage      *string   `db:"error_message"      json:"error_message,omitempty"`
	CreatedAt         time.Time `db:"created_at"         json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"         json:"updated_at"`
}

// InFlight reports whether the job still has an analysis dispatched to the
// engine (pending or processing).
func (j *AnalysisJob) InFlight() bool {
	return j.Status == JobStatusPending || j.Status == JobStatusProcessing
}
