package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/keydexhq/keydex/internal/api/response"
	"github.com/keydexhq/keydex/pkg/models"
)

// EventRecorder accepts analytics events for in-memory aggregation.
type EventRecorder interface {
	Record(event, programSlug, social string)
}

// EventStore reads back the flushed analytics counters for the admin view.
type EventStore interface {
	ListAnalyticsCounts(ctx context.Context) ([]*models.AnalyticsCount, error)
}

// NewRecordEventHandler returns an http.HandlerFunc for POST /api/v1/events.
// Recording is fire-and-forget; the aggregator flushes counters to the
// store on its own interval.
func NewRecordEventHandler(rec EventRecorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Event       string `json:"event"`
			ProgramSlug string `json:"program_slug"`
			Social      string `json:"social"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Event == "" {
			response.Error(w, http.StatusBadRequest, "MISSING_FIELD", "event is required", nil)
			return
		}
		if !models.ValidAnalyticsEvent(req.Event) {
			response.Error(w, http.StatusBadRequest, "INVALID_EVENT_TYPE",
				"event must be one of page_view, social_click, key_copy", nil)
			return
		}

		rec.Record(req.Event, req.ProgramSlug, req.Social)
		response.Accepted(w, map[string]string{"status": "recorded"})
	}
}

// NewListEventStatsHandler returns an http.HandlerFunc for
// GET /api/v1/admin/stats. Counters lag live traffic by at most one
// aggregator flush interval.
func NewListEventStatsHandler(s EventStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := s.ListAnalyticsCounts(r.Context())
		if err != nil {
			slog.Error("list analytics counts failed", "error", err)
			response.Error(w, http.StatusInternalServerError, "STORE_FAILURE",
				"The operation could not be completed", nil)
			return
		}
		response.Collection(w, counts, listMeta(len(counts)))
	}
}
