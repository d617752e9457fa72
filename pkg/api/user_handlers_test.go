package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geodeck/authcore/pkg/directory"
	"github.com/geodeck/authcore/pkg/membership"
)

func TestGetUserMemberships(t *testing.T) {
	s, _ := newTestServer(t)
	createOrg(t, s, "ACME")
	addMember(t, s, "ACME", "auth0|alice", "Viewer")

	var groups []directory.Group
	rec := doJSON(t, s, asAdmin(httptest.NewRequest(http.MethodGet, "/api/v1/users/auth0|alice/memberships", nil)), &groups)
	require.Equal(t, http.StatusOK, rec.Code)

	var names []string
	for _, g := range groups {
		names = append(names, g.Name)
	}
	assert.ElementsMatch(t, []string{"ACME", "ACME-VIEWER"}, names)

	var empty []directory.Group
	rec = doJSON(t, s, asAdmin(httptest.NewRequest(http.MethodGet, "/api/v1/users/auth0|ghost/memberships", nil)), &empty)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, empty)
}

func TestGetUserGroups(t *testing.T) {
	s, _ := newTestServer(t)
	createOrg(t, s, "ACME")
	createOrg(t, s, "GLOBEX")
	addMember(t, s, "ACME", "auth0|alice", "Editor")

	t.Run("requires the orgs parameter", func(t *testing.T) {
		rec := doJSON(t, s, asAdmin(httptest.NewRequest(http.MethodGet, "/api/v1/users/auth0|alice/groups", nil)), nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("reports role groups per requested org", func(t *testing.T) {
		var groups []membership.GroupRoles
		rec := doJSON(t, s, asAdmin(httptest.NewRequest(http.MethodGet, "/api/v1/users/auth0|alice/groups?orgs=ACME,GLOBEX", nil)), &groups)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, groups, 1)
		assert.Equal(t, "ACME-EDITOR", groups[0].GroupName)
		require.Len(t, groups[0].Roles, 1)
		assert.Equal(t, "ACME:Editor", groups[0].Roles[0].Name)
	})

	t.Run("unknown orgs degrade to empty", func(t *testing.T) {
		var groups []membership.GroupRoles
		rec := doJSON(t, s, asAdmin(httptest.NewRequest(http.MethodGet, "/api/v1/users/auth0|alice/groups?orgs=NOPE", nil)), &groups)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, groups)
	})
}
