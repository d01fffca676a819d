package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/reviewlens/reviewlens/internal/analysis"
	"github.com/reviewlens/reviewlens/internal/api/response"
	"github.com/reviewlens/reviewlens/internal/store"
	"github.com/reviewlens/reviewlens/pkg/models"
)

// EventSink applies a status-change event. Satisfied by *analysis.Service.
type EventSink interface {
	HandleEvent(ctx context.Context, evt models.AnalysisEvent) error
}

// NewCallbackHandler returns the handler for POST /api/v1/callbacks/analysis,
// the HTTP twin of the message-bus consumer.
func NewCallbackHandler(svc EventSink) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var evt models.AnalysisEvent
		if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if evt.TaskID == "" && evt.RequestID != "" {
			evt.TaskID = evt.RequestID
		}

		if err := svc.HandleEvent(r.Context(), evt); err != nil {
			switch {
			case errors.Is(err, analysis.ErrInvalidEvent):
				response.Error(w, http.StatusBadRequest, "INVALID_EVENT", err.Error(), nil)
			case errors.Is(err, store.ErrNotFound):
				response.Error(w, http.StatusNotFound, "UNKNOWN_TASK",
					"No job matches this task id", nil)
			default:
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"An unexpected error occurred", nil)
			}
			return
		}
		response.JSON(w, map[string]string{"status": "applied"})
	}
}
