package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/keydexhq/keydex/internal/api/response"
	"github.com/keydexhq/keydex/internal/store"
	"github.com/keydexhq/keydex/pkg/models"
)

// MessageStore is the subset of the data layer the message handlers use.
type MessageStore interface {
	CreateMessage(ctx context.Context, m *models.Message) error
	ListMessages(ctx context.Context, unreadOnly bool) ([]*models.Message, error)
	MarkMessageRead(ctx context.Context, id uuid.UUID) error
}

// NewCreateMessageHandler returns an http.HandlerFunc for POST /api/v1/messages.
func NewCreateMessageHandler(s MessageStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name  string `json:"name"`
			Email string `json:"email"`
			Body  string `json:"body"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Name == "" {
			response.Error(w, http.StatusBadRequest, "MISSING_FIELD", "name is required", nil)
			return
		}
		if req.Body == "" {
			response.Error(w, http.StatusBadRequest, "MISSING_FIELD", "body is required", nil)
			return
		}
		if req.Email != "" {
			if _, err := mail.ParseAddress(req.Email); err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_EMAIL",
					"email is not a valid address", nil)
				return
			}
		}

		msg := &models.Message{
			ID:        uuid.New(),
			Name:      req.Name,
			Email:     req.Email,
			Body:      req.Body,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.CreateMessage(r.Context(), msg); err != nil {
			slog.Error("create message failed", "error", err)
			response.Error(w, http.StatusInternalServerError, "STORE_FAILURE",
				"The operation could not be completed", nil)
			return
		}
		response.Created(w, msg)
	}
}

// NewListMessagesHandler returns an http.HandlerFunc for
// GET /api/v1/admin/messages. ?unread=true filters to unread messages.
func NewListMessagesHandler(s MessageStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		unreadOnly := r.URL.Query().Get("unread") == "true"

		messages, err := s.ListMessages(r.Context(), unreadOnly)
		if err != nil {
			slog.Error("list messages failed", "error", err)
			response.Error(w, http.StatusInternalServerError, "STORE_FAILURE",
				"The operation could not be completed", nil)
			return
		}
		response.Collection(w, messages, listMeta(len(messages)))
	}
}

// NewMarkMessageReadHandler returns an http.HandlerFunc for
// POST /api/v1/admin/messages/{messageID}/read.
func NewMarkMessageReadHandler(s MessageStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "messageID"))
		if err != nil {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Message not found", nil)
			return
		}

		if err := s.MarkMessageRead(r.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Message not found", nil)
				return
			}
			slog.Error("mark message read failed", "message_id", id, "error", err)
			response.Error(w, http.StatusInternalServerError, "STORE_FAILURE",
				"The operation could not be completed", nil)
			return
		}
		response.JSON(w, map[string]string{"status": "read"})
	}
}
