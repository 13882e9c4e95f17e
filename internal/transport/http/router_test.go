package http

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditmemory "worksafe/internal/audit/store/memory"
	entitymemory "worksafe/internal/entity/store/memory"
	formsservice "worksafe/internal/forms/service"
	"worksafe/internal/library"
	"worksafe/internal/platform/config"
	"worksafe/internal/registry"
	"worksafe/internal/risk"
	riskmemory "worksafe/internal/risk/store/memory"
	worksiteservice "worksafe/internal/worksite/service"
	id "worksafe/pkg/domain"
)

const signingKey = "test-signing-key"

func newTestRouter(t *testing.T, resolution config.TenantResolution) http.Handler {
	t.Helper()
	reg, err := registry.Default()
	require.NoError(t, err)
	mem := entitymemory.New(reg)
	audits := auditmemory.New(mem)
	lib := library.NewService(library.NewMemoryStore())
	h := NewHandler(
		worksiteservice.New(mem, mem, reg, audits),
		formsservice.New(mem, mem, reg, audits),
		lib,
		risk.NewExplainer(riskmemory.New()),
		slog.Default(),
	)
	cfg := config.Config{
		JWTSigningKey:    signingKey,
		TenantResolution: resolution,
	}
	return NewRouter(h, cfg, slog.Default())
}

func signToken(t *testing.T, tenantID id.TenantID, userID id.UserID) string {
	t.Helper()
	claims := authClaims{
		Name:     "Test User",
		TenantID: tenantID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(signingKey))
	require.NoError(t, err)
	return raw
}

func authedRequest(t *testing.T, method, target string, body any, token string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHealthzIsOpen(t *testing.T) {
	router := newTestRouter(t, config.TenantFromAuthRealm)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIRequiresBearerToken(t *testing.T) {
	router := newTestRouter(t, config.TenantFromAuthRealm)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/work-packages", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	t.Run("a token signed with another key is refused", func(t *testing.T) {
		claims := jwt.RegisteredClaims{Subject: id.NewUserID().String()}
		raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("wrong-key"))
		require.NoError(t, err)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/v1/work-packages", nil, raw))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("an expired token is refused", func(t *testing.T) {
		claims := authClaims{
			TenantID: id.NewTenantID().String(),
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   id.NewUserID().String(),
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			},
		}
		raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(signingKey))
		require.NoError(t, err)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/v1/work-packages", nil, raw))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestWorkPackageRoundTrip(t *testing.T) {
	router := newTestRouter(t, config.TenantFromAuthRealm)
	tenantID := id.NewTenantID()
	token := signToken(t, tenantID, id.NewUserID())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/api/v1/work-packages", map[string]any{
		"name":       "Downtown Rebuild",
		"start_date": "2026-03-01",
		"end_date":   "2026-09-30",
	}, token))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "Downtown Rebuild", created.Name)
	assert.Equal(t, "pending", created.Status)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	t.Run("the owner reads it back", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/v1/work-packages/"+created.ID, nil, token))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("another tenant reads not-found", func(t *testing.T) {
		otherToken := signToken(t, id.NewTenantID(), id.NewUserID())
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(t, http.MethodGet, "/api/v1/work-packages/"+created.ID, nil, otherToken))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("validation failures map to 400 with a coded body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/api/v1/work-packages", map[string]any{
			"name":       "",
			"start_date": "2026-03-01",
			"end_date":   "2026-09-30",
		}, token))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var body struct {
			Code string            `json:"code"`
			Meta map[string]string `json:"meta"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "validation", body.Code)
		assert.Equal(t, "name", body.Meta["field"])
	})

	t.Run("unknown body fields are rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/api/v1/work-packages", map[string]any{
			"name":       "x",
			"start_date": "2026-03-01",
			"end_date":   "2026-09-30",
			"surprise":   true,
		}, token))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestTenantFromHeaderResolution(t *testing.T) {
	router := newTestRouter(t, config.TenantFromHeader)
	tenantID := id.NewTenantID()
	token := signToken(t, tenantID, id.NewUserID())

	req := authedRequest(t, http.MethodPost, "/api/v1/work-packages", map[string]any{
		"name":       "Header-scoped job",
		"start_date": "2026-03-01",
		"end_date":   "2026-09-30",
	}, token)
	req.Header.Set("X-Tenant-ID", tenantID.String())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	t.Run("missing header is refused", func(t *testing.T) {
		req := authedRequest(t, http.MethodGet, "/api/v1/work-packages", nil, token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestExplainRouteRejectsUnknownMetric(t *testing.T) {
	router := newTestRouter(t, config.TenantFromAuthRealm)
	token := signToken(t, id.NewTenantID(), id.NewUserID())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(t, http.MethodGet,
		"/api/v1/risk/not_a_metric/"+id.NewTaskID().String(), nil, token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
