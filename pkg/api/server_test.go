package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/geodeck/authcore/pkg/catalog"
	"github.com/geodeck/authcore/pkg/directory"
	"github.com/geodeck/authcore/pkg/guard"
	"github.com/geodeck/authcore/pkg/membership"
	"github.com/geodeck/authcore/pkg/observability"
)

// headerClaims builds request claims from X-Test-* headers so tests can
// impersonate callers without minting tokens.
func headerClaims() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sub := r.Header.Get("X-Test-Sub")
			if sub == "" {
				next.ServeHTTP(w, r)
				return
			}
			claims := &guard.Claims{
				Subject:        sub,
				Groups:         splitParam(r.Header.Get("X-Test-Groups")),
				Permissions:    splitParam(r.Header.Get("X-Test-Permissions")),
				ServiceAccount: r.Header.Get("X-Test-Service") == "1",
			}
			next.ServeHTTP(w, r.WithContext(guard.WithClaims(r.Context(), claims)))
		})
	}
}

func testLogger() *observability.Logger {
	return observability.NewLogger(slog.LevelError, io.Discard)
}

func newTestServer(t *testing.T) (*Server, *directory.Fake) {
	t.Helper()
	fake := directory.NewFake()
	log := testLogger()
	s := NewServer(ServerConfig{
		Directory:       fake,
		Catalog:         catalog.Default(),
		Resolver:        membership.NewResolver(fake, log),
		Guard:           guard.New("GEODECK-PUBLIC"),
		ApplicationID:   "app-geodeck",
		Logger:          log,
		TokenMiddleware: headerClaims(),
	})
	return s, fake
}

// asAdmin sends a request as a machine caller with full wildcard access.
func asAdmin(r *http.Request) *http.Request {
	r.Header.Set("X-Test-Sub", "client-ops@clients")
	r.Header.Set("X-Test-Service", "1")
	return r
}

func doJSON(t *testing.T, s *Server, r *http.Request, out interface{}) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, r)
	if out != nil && rec.Code < 300 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec
}

func jsonBody(t *testing.T, v interface{}) io.Reader {
	t.Helper()
	payload, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(payload)
}

func createOrg(t *testing.T, s *Server, name string, owners ...string) CreateOrgResponse {
	t.Helper()
	req := asAdmin(httptest.NewRequest(http.MethodPost, "/api/v1/orgs",
		jsonBody(t, CreateOrgRequest{Name: name, Owners: owners})))
	var resp CreateOrgResponse
	rec := doJSON(t, s, req, &resp)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return resp
}

func TestRouteProtection(t *testing.T) {
	s, _ := newTestServer(t)

	t.Run("anonymous requests are rejected", func(t *testing.T) {
		rec := doJSON(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/orgs", nil), nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("insufficient scopes are rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/orgs", nil)
		req.Header.Set("X-Test-Sub", "auth0|viewer")
		req.Header.Set("X-Test-Groups", "ACME,ACME-VIEWER")
		req.Header.Set("X-Test-Permissions", "ACME:read:locations")
		rec := doJSON(t, s, req, nil)
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("matching scope passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/orgs", nil)
		req.Header.Set("X-Test-Sub", "auth0|admin")
		req.Header.Set("X-Test-Groups", "ACME,ACME-ADMIN")
		req.Header.Set("X-Test-Permissions", "ACME:read:organizations")
		rec := doJSON(t, s, req, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestCatalogEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	var cat catalog.Catalog
	rec := doJSON(t, s, asAdmin(httptest.NewRequest(http.MethodGet, "/api/v1/catalog", nil)), &cat)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, cat.Roles, len(catalog.Default().Roles))
	require.True(t, strings.Contains(rec.Body.String(), "read:locations"))
}
