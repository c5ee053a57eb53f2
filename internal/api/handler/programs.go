package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/keydexhq/keydex/internal/api/response"
	"github.com/keydexhq/keydex/internal/store"
	"github.com/keydexhq/keydex/pkg/models"
)

// ProgramStore is the subset of the data layer the program handlers use.
type ProgramStore interface {
	ListPrograms(ctx context.Context) ([]*models.Program, error)
	GetProgramBySlug(ctx context.Context, slug string) (*models.Program, error)
	ListKeysByProgram(ctx context.Context, programSlug string) ([]*models.CDKey, error)
}

// NewListProgramsHandler returns an http.HandlerFunc for GET /api/v1/programs.
func NewListProgramsHandler(s ProgramStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		programs, err := s.ListPrograms(r.Context())
		if err != nil {
			slog.Error("list programs failed", "error", err)
			response.Error(w, http.StatusInternalServerError, "STORE_FAILURE",
				"The operation could not be completed", nil)
			return
		}
		response.Collection(w, programs, listMeta(len(programs)))
	}
}

// listMeta builds pagination metadata for endpoints that return the full
// collection in one page.
func listMeta(n int) response.PaginationMeta {
	return response.PaginationMeta{Page: 1, Limit: n, Total: n}
}

// NewGetProgramHandler returns an http.HandlerFunc for
// GET /api/v1/programs/{slug}. The response bundles the program with its
// keys; raw key values are masked by the model's JSON tags.
func NewGetProgramHandler(s ProgramStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug := chi.URLParam(r, "slug")

		program, err := s.GetProgramBySlug(r.Context(), slug)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Program not found", nil)
				return
			}
			slog.Error("get program failed", "slug", slug, "error", err)
			response.Error(w, http.StatusInternalServerError, "STORE_FAILURE",
				"The operation could not be completed", nil)
			return
		}

		keys, err := s.ListKeysByProgram(r.Context(), slug)
		if err != nil {
			slog.Error("list program keys failed", "slug", slug, "error", err)
			response.Error(w, http.StatusInternalServerError, "STORE_FAILURE",
				"The operation could not be completed", nil)
			return
		}

		response.JSON(w, programDetail{Program: program, Keys: keys})
	}
}

type programDetail struct {
	Program *models.Program `json:"program"`
	Keys    []*models.CDKey `json:"keys"`
}
