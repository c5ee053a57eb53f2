package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/keydexhq/keydex/internal/api/response"
	"github.com/keydexhq/keydex/internal/store"
	"github.com/keydexhq/keydex/internal/sweep"
	"github.com/keydexhq/keydex/pkg/models"
)

// Sweeper defines the interface the sweep handler depends on.
type Sweeper interface {
	RunGated(ctx context.Context) (res *sweep.Result, skipped bool, err error)
}

// NewSweepHandler returns an http.HandlerFunc for POST /api/v1/keys/sweep.
// The sweep shares a Redis gate with the scheduled run, so a manual
// trigger right after a scheduled one reports skipped.
func NewSweepHandler(sweeper Sweeper) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, skipped, err := sweeper.RunGated(r.Context())
		if err != nil {
			slog.Error("manual sweep failed", "error", err)
			response.Error(w, http.StatusInternalServerError, "STORE_FAILURE",
				"The sweep could not be completed", nil)
			return
		}
		if skipped {
			response.JSON(w, sweepResponse{Success: true, Skipped: true,
				Message: "sweep skipped, ran too recently"})
			return
		}
		if res.Err != nil {
			slog.Warn("manual sweep partially failed",
				"expired", res.Expired, "failed", res.Failed, "error", res.Err)
		}
		response.JSON(w, sweepResponse{
			Success: res.Success(),
			Expired: res.Expired,
			Failed:  res.Failed,
			Message: res.Message(),
		})
	}
}

type sweepResponse struct {
	Success bool   `json:"success"`
	Skipped bool   `json:"skipped,omitempty"`
	Expired int    `json:"expired"`
	Failed  int    `json:"failed"`
	Message string `json:"message"`
}

// KeyStore is the subset of the data layer the key admin handlers use.
type KeyStore interface {
	SetKeyStatus(ctx context.Context, id uuid.UUID, status string) (*models.CDKey, error)
}

// NewSetKeyStatusHandler returns an http.HandlerFunc for
// PATCH /api/v1/admin/keys/{keyID}/status.
func NewSetKeyStatusHandler(s KeyStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		keyID, err := uuid.Parse(chi.URLParam(r, "keyID"))
		if err != nil {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Key not found", nil)
			return
		}

		var req struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Status == "" {
			response.Error(w, http.StatusBadRequest, "MISSING_FIELD", "status is required", nil)
			return
		}
		if !models.ValidKeyStatus(req.Status) {
			response.Error(w, http.StatusBadRequest, "INVALID_STATUS",
				"status must be one of new, active, expired, limit", nil)
			return
		}

		key, err := s.SetKeyStatus(r.Context(), keyID, req.Status)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Key not found", nil)
				return
			}
			slog.Error("set key status failed", "key_id", keyID, "error", err)
			response.Error(w, http.StatusInternalServerError, "STORE_FAILURE",
				"The operation could not be completed", nil)
			return
		}
		response.JSON(w, key)
	}
}
