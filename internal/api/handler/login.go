package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/keydexhq/keydex/internal/api/response"
	"github.com/keydexhq/keydex/internal/auth"
	"github.com/keydexhq/keydex/internal/store"
	"github.com/keydexhq/keydex/pkg/models"
)

// AdminStore looks up admin accounts for login.
type AdminStore interface {
	GetAdminByUsername(ctx context.Context, username string) (*models.AdminUser, error)
}

// NewLoginHandler returns an http.HandlerFunc for POST /api/v1/admin/login.
// Unknown usernames and wrong passwords produce the same response.
func NewLoginHandler(s AdminStore, signer *auth.TokenSigner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Username == "" || req.Password == "" {
			response.Error(w, http.StatusBadRequest, "MISSING_FIELD",
				"username and password are required", nil)
			return
		}

		admin, err := s.GetAdminByUsername(r.Context(), req.Username)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusUnauthorized, "INVALID_CREDENTIALS",
					"Invalid username or password", nil)
				return
			}
			slog.Error("admin lookup failed", "error", err)
			response.Error(w, http.StatusInternalServerError, "STORE_FAILURE",
				"The operation could not be completed", nil)
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(req.Password)); err != nil {
			response.Error(w, http.StatusUnauthorized, "INVALID_CREDENTIALS",
				"Invalid username or password", nil)
			return
		}

		token, err := signer.Sign(admin)
		if err != nil {
			slog.Error("token signing failed", "error", err)
			response.Error(w, http.StatusInternalServerError, "TOKEN_FAILURE",
				"Could not create a session token", nil)
			return
		}
		response.JSON(w, loginResponse{Token: token, Username: admin.Username})
	}
}

type loginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}
