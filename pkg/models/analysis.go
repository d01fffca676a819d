package models

// Sentiment holds the three sentiment ratios produced by the analysis engine.
// The ratios are non-negative and may not sum exactly to 1 because the source
// data is rounded upstream.
type Sentiment struct {
	Positive float64 `json:"positive"`
	Negative float64 `json:"negative"`
	Neutral  float64 `json:"neutral"`
}

// AnalysisResultPayload is the result body the engine delivers for a
// completed analysis, via callback or over the message bus.
type AnalysisResultPayload struct {
	Sentiment    Sentiment `json:"sentiment"`
	Summary      string    `json:"summary"`
	Keywords     []string  `json:"keywords"`
	TotalReviews int       `json:"total_reviews"`
}

// AnalysisEvent is a status-change notification for one task. Events arrive
// from the engine callback endpoint or the message bus; delivery is
// at-least-once, so consumers must tolerate replays of terminal events.
type AnalysisEvent struct {
	TaskID    string                 `json:"task_id"`
	RequestID string                 `json:"request_id,omitempty"`
	Status    string                 `json:"status"`
	Progress  int                    `json:"progress,omitempty"`
	Result    *AnalysisResultPayload `json:"result,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// StartAccepted is the engine's acknowledgment of a new analysis request.
type StartAccepted struct {
	TaskID        string `json:"task_id"`
	EstimatedTime int    `json:"estimated_time"`
}

// TaskStatus is the engine's view of a task, returned by the status endpoint.
type TaskStatus struct {
	Status        string `json:"status"`
	Progress      int    `json:"progress"`
	EstimatedTime int    `json:"estimated_time,omitempty"`
	Error         string `json:"error,omitempty"`
}
