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
	"github.com/keydexhq/keydex/internal/fingerprint"
	"github.com/keydexhq/keydex/internal/store"
	"github.com/keydexhq/keydex/pkg/models"
)

// SuggestionStore is the subset of the data layer the suggestion
// handlers use. Approval creates a CDKey, so the key writer rides along.
type SuggestionStore interface {
	CreateSuggestion(ctx context.Context, s *models.KeySuggestion) error
	ListSuggestions(ctx context.Context, status string) ([]*models.KeySuggestion, error)
	ReviewSuggestion(ctx context.Context, id uuid.UUID, status string, now time.Time) (*models.KeySuggestion, error)
	CreateKey(ctx context.Context, key *models.CDKey) error
}

// NewCreateSuggestionHandler returns an http.HandlerFunc for
// POST /api/v1/suggestions. Submissions carry the visitor fingerprint so
// moderators can spot bulk spam from one source.
func NewCreateSuggestionHandler(s SuggestionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hash, ok := mw.GetVisitorHash(r)
		if !ok {
			response.Error(w, http.StatusBadRequest, "FINGERPRINT_UNAVAILABLE",
				"Visitor fingerprint unavailable", nil)
			return
		}

		var req struct {
			ProgramSlug string `json:"program_slug"`
			Key         string `json:"key"`
			Notes       string `json:"notes"`
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

		suggestion := &models.KeySuggestion{
			ID:          uuid.New(),
			ProgramSlug: req.ProgramSlug,
			Key:         req.Key,
			Notes:       req.Notes,
			Status:      models.SuggestionPending,
			VisitorHash: hash,
			CreatedAt:   time.Now().UTC(),
		}
		if err := s.CreateSuggestion(r.Context(), suggestion); err != nil {
			slog.Error("create suggestion failed", "error", err)
			response.Error(w, http.StatusInternalServerError, "STORE_FAILURE",
				"The operation could not be completed", nil)
			return
		}
		response.Created(w, suggestion)
	}
}

// NewListSuggestionsHandler returns an http.HandlerFunc for
// GET /api/v1/admin/suggestions. The status query parameter filters by
// moderation state; empty means all.
func NewListSuggestionsHandler(s SuggestionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := r.URL.Query().Get("status")
		if status != "" && status != models.SuggestionPending &&
			status != models.SuggestionApproved && status != models.SuggestionRejected {
			response.Error(w, http.StatusBadRequest, "INVALID_STATUS",
				"status must be one of pending, approved, rejected", nil)
			return
		}

		suggestions, err := s.ListSuggestions(r.Context(), status)
		if err != nil {
			slog.Error("list suggestions failed", "error", err)
			response.Error(w, http.StatusInternalServerError, "STORE_FAILURE",
				"The operation could not be completed", nil)
			return
		}
		response.Collection(w, suggestions, listMeta(len(suggestions)))
	}
}

// NewReviewSuggestionHandler returns an http.HandlerFunc for
// POST /api/v1/admin/suggestions/{suggestionID}/review. Only pending
// suggestions can be reviewed; a second review returns 404 because the
// conditional update matches nothing. Approval creates a CDKey with
// status "new".
func NewReviewSuggestionHandler(s SuggestionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "suggestionID"))
		if err != nil {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Suggestion not found", nil)
			return
		}

		var req struct {
			Status  string `json:"status"`
			Version string `json:"version"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Status != models.SuggestionApproved && req.Status != models.SuggestionRejected {
			response.Error(w, http.StatusBadRequest, "INVALID_STATUS",
				"status must be approved or rejected", nil)
			return
		}

		now := time.Now().UTC()
		reviewed, err := s.ReviewSuggestion(r.Context(), id, req.Status, now)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND",
					"Suggestion not found or already reviewed", nil)
				return
			}
			slog.Error("review suggestion failed", "suggestion_id", id, "error", err)
			response.Error(w, http.StatusInternalServerError, "STORE_FAILURE",
				"The operation could not be completed", nil)
			return
		}

		if req.Status == models.SuggestionApproved {
			key := &models.CDKey{
				ID:          uuid.New(),
				ProgramSlug: reviewed.ProgramSlug,
				Key:         reviewed.Key,
				KeyMask:     fingerprint.Mask(reviewed.Key),
				Status:      models.KeyStatusNew,
				Version:     req.Version,
				Notes:       reviewed.Notes,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := s.CreateKey(r.Context(), key); err != nil {
				slog.Error("create key from suggestion failed",
					"suggestion_id", id, "error", err)
				response.Error(w, http.StatusInternalServerError, "STORE_FAILURE",
					"Suggestion approved but key creation failed", nil)
				return
			}
			response.JSON(w, reviewResponse{Suggestion: reviewed, Key: key})
			return
		}
		response.JSON(w, reviewResponse{Suggestion: reviewed})
	}
}

type reviewResponse struct {
	Suggestion *models.KeySuggestion `json:"suggestion"`
	Key        *models.CDKey         `json:"key,omitempty"`
}
