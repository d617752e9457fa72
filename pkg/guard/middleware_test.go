package guard

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geodeck/authcore/pkg/contextkeys"
)

func newScopedEchoRouter(mw mux.MiddlewareFunc) *mux.Router {
	r := mux.NewRouter()
	r.Use(mw)
	r.HandleFunc("/echo", func(w http.ResponseWriter, req *http.Request) {
		for _, g := range contextkeys.ScopedGroups(req.Context()) {
			w.Write([]byte(g + "\n"))
		}
	})
	return r
}

func TestRequireScopesMiddleware(t *testing.T) {
	g := New("GEODECK-PUBLIC")
	router := newScopedEchoRouter(g.RequireScopes([][]string{{"read:locations"}}, false))

	t.Run("scoped groups reach the handler", func(t *testing.T) {
		claims := userClaims([]string{"ACME"}, []string{"ACME:read:locations"})
		req := httptest.NewRequest(http.MethodGet, "/echo", nil)
		req = req.WithContext(WithClaims(req.Context(), claims))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ACME\n", rec.Body.String())
	})

	t.Run("denied requests never reach the handler", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/echo", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "authentication required")
	})
}

func TestRequirePrimaryGroupMiddleware(t *testing.T) {
	g := New("GEODECK-PUBLIC")
	router := newScopedEchoRouter(g.RequirePrimaryGroup(PrimaryGroupOptions{AllowAnonymous: true}))

	t.Run("group query parameter selects the target", func(t *testing.T) {
		claims := userClaims([]string{"ACME", "ACME-EDITOR"}, nil)
		req := httptest.NewRequest(http.MethodGet, "/echo?group=ACME", nil)
		req = req.WithContext(WithClaims(req.Context(), claims))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ACME\n", rec.Body.String())
	})

	t.Run("anonymous requests fall back to the public org", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/echo", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "GEODECK-PUBLIC\n", rec.Body.String())
	})

	t.Run("foreign group is rejected", func(t *testing.T) {
		claims := userClaims([]string{"ACME", "ACME-EDITOR"}, nil)
		req := httptest.NewRequest(http.MethodGet, "/echo?group=GLOBEX", nil)
		req = req.WithContext(WithClaims(req.Context(), claims))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
