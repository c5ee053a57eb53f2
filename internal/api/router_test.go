package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/keydexhq/keydex/internal/api"
	mw "github.com/keydexhq/keydex/internal/api/middleware"
	"github.com/keydexhq/keydex/internal/auth"
	"github.com/keydexhq/keydex/internal/cache"
	"github.com/keydexhq/keydex/internal/fingerprint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- stub cache ---

type stubCache struct{}

func (c *stubCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (c *stubCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (c *stubCache) Delete(_ context.Context, _ string) error                         { return nil }
func (c *stubCache) Ping(_ context.Context) error                                     { return nil }
func (c *stubCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}
func (c *stubCache) AcquireGate(_ context.Context, _ string, _ time.Duration) (bool, error) {
	return true, nil
}

// --- router tests ---

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	signer, err := auth.NewTokenSigner("router-test-secret", time.Hour)
	require.NoError(t, err)

	return api.NewRouter(api.Dependencies{
		Visitor:   mw.NewVisitor(fingerprint.NewHasher("salt")),
		Auth:      mw.NewAuth(signer),
		RateLimit: mw.NewRateLimit(&stubCache{}, 60),
		HealthHandler: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		},
	})
}

func TestRouter_HealthEndpoint_Public(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_AdminEndpoints_RequireAuth(t *testing.T) {
	router := newTestRouter(t)

	endpoints := []struct {
		method string
		path   string
	}{
		{"POST", "/api/v1/keys/sweep"},
		{"PATCH", "/api/v1/admin/keys/00000000-0000-0000-0000-000000000000/status"},
		{"GET", "/api/v1/admin/suggestions"},
		{"POST", "/api/v1/admin/suggestions/00000000-0000-0000-0000-000000000000/review"},
		{"GET", "/api/v1/admin/messages"},
		{"GET", "/api/v1/admin/stats"},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			req := httptest.NewRequest(ep.method, ep.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			errObj := body["error"].(map[string]any)
			assert.Equal(t, "INVALID_TOKEN", errObj["code"])
		})
	}
}

func TestRouter_PublicEndpoints_NotImplementedPlaceholders(t *testing.T) {
	router := newTestRouter(t)

	// No handlers wired beyond health, so routes exist but answer 501.
	req := httptest.NewRequest("POST", "/api/v1/reports/check", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestRouter_NotFound(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest("GET", "/api/v1/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// Verify the stub satisfies the cache interface
var _ cache.Cache = (*stubCache)(nil)
