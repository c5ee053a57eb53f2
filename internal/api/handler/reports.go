// Package handler contains the HTTP handlers for the Keydex API. Each
// handler validates its request shape at the boundary and delegates to
// an injected collaborator, so anything non-conforming is rejected
// before it reaches the engine.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	mw "github.com/keydexhq/keydex/internal/api/middleware"
	"github.com/keydexhq/keydex/internal/api/response"
	"github.com/keydexhq/keydex/internal/report"
	"github.com/keydexhq/keydex/pkg/models"
)

// ReportEngine defines the interface the report handlers depend on.
type ReportEngine interface {
	CheckDuplicate(ctx context.Context, sourceAddr, programSlug, rawKey string) (*report.CheckResult, error)
	Create(ctx context.Context, sourceAddr, programSlug, rawKey, eventType string) (*models.KeyReport, error)
	Renew(ctx context.Context, sourceAddr string, reportID uuid.UUID, newEventType string) (*models.KeyReport, error)
}

// reportSummary is the redacted view of a report returned to visitors.
// The visitor hash never leaves the server.
type reportSummary struct {
	ID          uuid.UUID `json:"id"`
	EventType   string    `json:"event_type"`
	ProgramSlug string    `json:"program_slug"`
	KeyHash     string    `json:"key_hash"`
	KeyMask     string    `json:"key_mask"`
	CreatedAt   time.Time `json:"created_at"`
}

func summarizeReport(r *models.KeyReport) reportSummary {
	return reportSummary{
		ID:          r.ID,
		EventType:   r.EventType,
		ProgramSlug: r.ProgramSlug,
		KeyHash:     r.KeyHash,
		KeyMask:     r.KeyMask,
		CreatedAt:   r.CreatedAt,
	}
}

// sourceAddr pulls the visitor's source address out of the request
// context. Endpoints that deduplicate must reject requests for which no
// fingerprint can be derived.
func sourceAddr(w http.ResponseWriter, r *http.Request) (string, bool) {
	addr, ok := mw.GetSourceAddr(r)
	if !ok {
		response.Error(w, http.StatusBadRequest, "FINGERPRINT_UNAVAILABLE",
			"Visitor fingerprint unavailable", nil)
		return "", false
	}
	return addr, true
}

// NewCheckDuplicateHandler returns an http.HandlerFunc for POST /api/v1/reports/check.
// The check is read-only: a not-duplicate outcome performs zero writes.
func NewCheckDuplicateHandler(engine ReportEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		addr, ok := sourceAddr(w, r)
		if !ok {
			return
		}

		var req struct {
			ProgramSlug string `json:"program_slug"`
			Key         string `json:"key"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.ProgramSlug == "" {
			response.Error(w, http.StatusBadRequest, "MISSING_FIELD", "program_slug is required", nil)
			return
		}
		if req.Key == "" {
			response.Error(w, http.StatusBadRequest, "MISSING_FIELD", "key is required", nil)
			return
		}

		result, err := engine.CheckDuplicate(r.Context(), addr, req.ProgramSlug, req.Key)
		if err != nil {
			writeReportError(w, err)
			return
		}

		resp := checkResponse{IsDuplicate: result.IsDuplicate}
		if result.Existing != nil {
			s := summarizeReport(result.Existing)
			resp.ExistingReport = &s
		}
		response.JSON(w, resp)
	}
}

type checkResponse struct {
	IsDuplicate    bool           `json:"is_duplicate"`
	ExistingReport *reportSummary `json:"existing_report,omitempty"`
}

// NewCreateReportHandler returns an http.HandlerFunc for POST /api/v1/reports.
func NewCreateReportHandler(engine ReportEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		addr, ok := sourceAddr(w, r)
		if !ok {
			return
		}

		var req struct {
			ProgramSlug string `json:"program_slug"`
			Key         string `json:"key"`
			EventType   string `json:"event_type"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.ProgramSlug == "" {
			response.Error(w, http.StatusBadRequest, "MISSING_FIELD", "program_slug is required", nil)
			return
		}
		if req.Key == "" {
			response.Error(w, http.StatusBadRequest, "MISSING_FIELD", "key is required", nil)
			return
		}
		if req.EventType == "" {
			response.Error(w, http.StatusBadRequest, "MISSING_FIELD", "event_type is required", nil)
			return
		}

		created, err := engine.Create(r.Context(), addr, req.ProgramSlug, req.Key, req.EventType)
		if err != nil {
			writeReportError(w, err)
			return
		}
		response.Created(w, summarizeReport(created))
	}
}

// NewRenewReportHandler returns an http.HandlerFunc for POST /api/v1/reports/{reportID}/renew.
func NewRenewReportHandler(engine ReportEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		addr, ok := sourceAddr(w, r)
		if !ok {
			return
		}

		reportID, err := uuid.Parse(chi.URLParam(r, "reportID"))
		if err != nil {
			// An unparseable id resolves to nothing, same as an unknown one.
			response.Error(w, http.StatusNotFound, "NOT_FOUND_OR_ACCESS_DENIED",
				"Report not found", nil)
			return
		}

		var req struct {
			EventType   string `json:"event_type"`
			ProgramSlug string `json:"program_slug"`
			Key         string `json:"key"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.EventType == "" {
			response.Error(w, http.StatusBadRequest, "MISSING_FIELD", "event_type is required", nil)
			return
		}

		updated, err := engine.Renew(r.Context(), addr, reportID, req.EventType)
		if err != nil {
			writeReportError(w, err)
			return
		}
		response.JSON(w, renewResponse{UpdatedReport: summarizeReport(updated)})
	}
}

type renewResponse struct {
	UpdatedReport reportSummary `json:"updated_report"`
}

// writeReportError maps engine errors onto the response taxonomy. Store
// failures are logged but never leak internals to the caller.
func writeReportError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, report.ErrInvalidEventType):
		response.Error(w, http.StatusBadRequest, "INVALID_EVENT_TYPE",
			"event_type must be one of report_key_working, report_key_expired, report_key_limit_reached", nil)
	case errors.Is(err, report.ErrFingerprintUnavailable):
		response.Error(w, http.StatusBadRequest, "FINGERPRINT_UNAVAILABLE",
			"Visitor fingerprint unavailable", nil)
	case errors.Is(err, report.ErrNotFoundOrAccessDenied):
		response.Error(w, http.StatusNotFound, "NOT_FOUND_OR_ACCESS_DENIED",
			"Report not found", nil)
	case errors.Is(err, report.ErrDuplicate):
		response.Error(w, http.StatusConflict, "DUPLICATE_REPORT",
			"A report for this key already exists", nil)
	default:
		slog.Error("report operation failed", "error", err)
		response.Error(w, http.StatusInternalServerError, "STORE_FAILURE",
			"The operation could not be completed", nil)
	}
}
