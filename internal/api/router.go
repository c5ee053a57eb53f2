package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/keydexhq/keydex/internal/api/middleware"
	"github.com/keydexhq/keydex/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Visitor   *mw.Visitor
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	ListProgramsHandler http.HandlerFunc
	GetProgramHandler   http.HandlerFunc

	CheckDuplicateHandler http.HandlerFunc
	CreateReportHandler   http.HandlerFunc
	RenewReportHandler    http.HandlerFunc

	CreateSuggestionHandler http.HandlerFunc
	CreateMessageHandler    http.HandlerFunc
	RecordEventHandler      http.HandlerFunc

	LoginHandler http.HandlerFunc

	SweepHandler            http.HandlerFunc
	SetKeyStatusHandler     http.HandlerFunc
	ListSuggestionsHandler  http.HandlerFunc
	ReviewSuggestionHandler http.HandlerFunc
	ListMessagesHandler     http.HandlerFunc
	MarkMessageReadHandler  http.HandlerFunc
	ListEventStatsHandler   http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Public visitor routes. Every visitor request is fingerprinted and
	// rate limited per fingerprint.
	r.Group(func(r chi.Router) {
		r.Use(deps.Visitor.Identify)
		r.Use(deps.RateLimit.Limit)

		r.Get("/api/v1/programs", orNotImplemented(deps.ListProgramsHandler))
		r.Get("/api/v1/programs/{slug}", orNotImplemented(deps.GetProgramHandler))

		r.Post("/api/v1/reports/check", orNotImplemented(deps.CheckDuplicateHandler))
		r.Post("/api/v1/reports", orNotImplemented(deps.CreateReportHandler))
		r.Post("/api/v1/reports/{reportID}/renew", orNotImplemented(deps.RenewReportHandler))

		r.Post("/api/v1/suggestions", orNotImplemented(deps.CreateSuggestionHandler))
		r.Post("/api/v1/messages", orNotImplemented(deps.CreateMessageHandler))
		r.Post("/api/v1/events", orNotImplemented(deps.RecordEventHandler))

		r.Post("/api/v1/admin/login", orNotImplemented(deps.LoginHandler))
	})

	// Admin routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)

		r.Post("/api/v1/keys/sweep", orNotImplemented(deps.SweepHandler))
		r.Patch("/api/v1/admin/keys/{keyID}/status", orNotImplemented(deps.SetKeyStatusHandler))

		r.Get("/api/v1/admin/suggestions", orNotImplemented(deps.ListSuggestionsHandler))
		r.Post("/api/v1/admin/suggestions/{suggestionID}/review", orNotImplemented(deps.ReviewSuggestionHandler))

		r.Get("/api/v1/admin/messages", orNotImplemented(deps.ListMessagesHandler))
		r.Post("/api/v1/admin/messages/{messageID}/read", orNotImplemented(deps.MarkMessageReadHandler))

		r.Get("/api/v1/admin/stats", orNotImplemented(deps.ListEventStatsHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
