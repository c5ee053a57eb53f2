package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/keydexhq/keydex/internal/api/handler"
	"github.com/keydexhq/keydex/internal/store"
	"github.com/keydexhq/keydex/internal/sweep"
	"github.com/keydexhq/keydex/pkg/models"
)

type mockSweeper struct {
	res     *sweep.Result
	skipped bool
	err     error
}

func (m *mockSweeper) RunGated(context.Context) (*sweep.Result, bool, error) {
	return m.res, m.skipped, m.err
}

type mockKeyStore struct {
	key        *models.CDKey
	err        error
	lastStatus string
}

func (m *mockKeyStore) SetKeyStatus(_ context.Context, id uuid.UUID, status string) (*models.CDKey, error) {
	m.lastStatus = status
	if m.err != nil {
		return nil, m.err
	}
	return m.key, nil
}

func TestSweep_ReportsResult(t *testing.T) {
	h := handler.NewSweepHandler(&mockSweeper{res: &sweep.Result{Expired: 3}})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/keys/sweep", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"expired":3`) {
		t.Errorf("body = %s, want expired count", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"success":true`) {
		t.Errorf("body = %s, want success true", rec.Body.String())
	}
}

func TestSweep_PartialFailure(t *testing.T) {
	res := &sweep.Result{Expired: 2, Failed: 1, Err: errors.New("expire key: timeout")}
	h := handler.NewSweepHandler(&mockSweeper{res: res})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/keys/sweep", nil))

	// Partial failure is still a completed sweep: 200, success false.
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"success":false`) {
		t.Errorf("body = %s, want success false", body)
	}
	if !strings.Contains(body, `"expired":2`) || !strings.Contains(body, `"failed":1`) {
		t.Errorf("body = %s, want counts", body)
	}
}

func TestSweep_Skipped(t *testing.T) {
	h := handler.NewSweepHandler(&mockSweeper{skipped: true})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/keys/sweep", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"skipped":true`) {
		t.Errorf("body = %s, want skipped", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"success":true`) {
		t.Errorf("body = %s, want success true", rec.Body.String())
	}
}

func TestSweep_Failure(t *testing.T) {
	h := handler.NewSweepHandler(&mockSweeper{err: errors.New("list failed")})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/keys/sweep", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func statusRequest(id, body string) *http.Request {
	r := httptest.NewRequest(http.MethodPatch, "/api/v1/admin/keys/"+id+"/status", strings.NewReader(body))
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("keyID", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestSetKeyStatus_OK(t *testing.T) {
	id := uuid.New()
	ks := &mockKeyStore{key: &models.CDKey{ID: id, Status: models.KeyStatusExpired}}
	h := handler.NewSetKeyStatusHandler(ks)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, statusRequest(id.String(), `{"status":"expired"}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ks.lastStatus != models.KeyStatusExpired {
		t.Errorf("store got status %q", ks.lastStatus)
	}
}

func TestSetKeyStatus_InvalidStatus(t *testing.T) {
	h := handler.NewSetKeyStatusHandler(&mockKeyStore{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, statusRequest(uuid.NewString(), `{"status":"revoked"}`))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if code := decodeError(t, rec); code != "INVALID_STATUS" {
		t.Errorf("error code = %q, want INVALID_STATUS", code)
	}
}

func TestSetKeyStatus_NotFound(t *testing.T) {
	h := handler.NewSetKeyStatusHandler(&mockKeyStore{err: store.ErrNotFound})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, statusRequest(uuid.NewString(), `{"status":"active"}`))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
