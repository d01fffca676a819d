package models

import "time"

// StatusSnapshot is the externally-visible status of an analysis, as cached
// and as returned by the status endpoint.
type StatusSnapshot struct {
	ProductID string  `json:"product_id"`
	TaskID    *string `json:"task_id,omitempty"`
	Status    string  `json:"status"`
	Progress  int     `json:"progress"`
	Error     *string `json:"error,omitempty"`
}

// ResultSnapshot is the cached copy of a completed job's result fields.
// Snapshots are derived, expendable state; the repository row stays the
// source of truth.
type ResultSnapshot struct {
	ProductID    string    `json:"product_id"`
	TaskID       *string   `json:"task_id,omitempty"`
	Status       string    `json:"status"`
	Sentiment    Sentiment `json:"sentiment"`
	Summary      string    `json:"summary"`
	Keywords     []string  `json:"keywords"`
	TotalReviews int       `json:"total_reviews"`
	CompletedAt  time.Time `json:"completed_at"`
}

// StatusSnapshotFromJob derives a status snapshot from a repository row.
// Progress is not persisted; terminal jobs report 100, everything else 0
// until the engine or an event says otherwise.
func StatusSnapshotFromJob(job *AnalysisJob) StatusSnapshot {
	progress := 0
	if job.Status == JobStatusCompleted {
		progress = 100
	}
	return StatusSnapshot{
		ProductID: job.ProductID,
		TaskID:    job.TaskID,
		Status:    job.Status,
		Progress:  progress,
		Error:     job.ErrorMessage,
	}
}

// ResultSnapshotFromJob derives a result snapshot from a completed job.
func ResultSnapshotFromJob(job *AnalysisJob) ResultSnapshot {
	snap := ResultSnapshot{
		ProductID:   job.ProductID,
		TaskID:      job.TaskID,
		Status:      job.Status,
		Keywords:    job.Keywords,
		CompletedAt: job.UpdatedAt,
	}
	if job.SentimentPositive != nil {
		snap.Sentiment.Positive = *job.SentimentPositive
	}
	if job.SentimentNegative != nil {
		snap.Sentiment.Negative = *job.SentimentNegative
	}
	if job.SentimentNeutral != nil {
		snap.Sentiment.Neutral = *job.SentimentNeutral
	}
	if job.Summary != nil {
		snap.Summary = *job.Summary
	}
	if job.TotalReviews != nil {
		snap.TotalReviews = *job.TotalReviews
	}
	return snap
}
