package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geodeck/authcore/pkg/catalog"
	"github.com/geodeck/authcore/pkg/directory"
)

// addMember assigns a role through the API as the machine caller.
func addMember(t *testing.T, s *Server, org, userID, role string) *httptest.ResponseRecorder {
	t.Helper()
	req := asAdmin(httptest.NewRequest(http.MethodPost, "/api/v1/orgs/"+org+"/members",
		jsonBody(t, AddMemberRequest{UserID: userID, Role: role})))
	return doJSON(t, s, req, nil)
}

// asUser sends a request as an authenticated human caller with the scopes
// needed to manage members of the given org.
func asUser(r *http.Request, sub, org string) *http.Request {
	r.Header.Set("X-Test-Sub", sub)
	r.Header.Set("X-Test-Groups", org+","+org+"-EDITOR")
	r.Header.Set("X-Test-Permissions", org+":write:users")
	return r
}

func groupByName(t *testing.T, fake *directory.Fake, name string) directory.Group {
	t.Helper()
	groups, err := fake.GetGroups(context.Background())
	require.NoError(t, err)
	for _, g := range groups {
		if g.Name == name {
			return g
		}
	}
	t.Fatalf("group %s not found", name)
	return directory.Group{}
}

func TestAddMember(t *testing.T) {
	t.Run("places the user in the role group and the root", func(t *testing.T) {
		s, fake := newTestServer(t)
		createOrg(t, s, "ACME")

		rec := addMember(t, s, "ACME", "auth0|alice", "Viewer")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		assert.Contains(t, groupByName(t, fake, "ACME-VIEWER").Members, "auth0|alice")
		assert.Contains(t, groupByName(t, fake, "ACME").Members, "auth0|alice")
	})

	t.Run("changing roles moves the user", func(t *testing.T) {
		s, fake := newTestServer(t)
		createOrg(t, s, "ACME")
		addMember(t, s, "ACME", "auth0|alice", "Viewer")

		rec := addMember(t, s, "ACME", "auth0|alice", "Editor")
		require.Equal(t, http.StatusOK, rec.Code)

		assert.NotContains(t, groupByName(t, fake, "ACME-VIEWER").Members, "auth0|alice")
		assert.Contains(t, groupByName(t, fake, "ACME-EDITOR").Members, "auth0|alice")
		assert.Contains(t, groupByName(t, fake, "ACME").Members, "auth0|alice")
	})

	t.Run("assigning the same role twice is a no-op", func(t *testing.T) {
		s, fake := newTestServer(t)
		createOrg(t, s, "ACME")
		addMember(t, s, "ACME", "auth0|alice", "Viewer")
		before := fake.Mutations()

		rec := addMember(t, s, "ACME", "auth0|alice", "Viewer")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, before, fake.Mutations())
	})

	t.Run("unknown role is rejected", func(t *testing.T) {
		s, _ := newTestServer(t)
		createOrg(t, s, "ACME")

		rec := addMember(t, s, "ACME", "auth0|alice", "Janitor")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown organization", func(t *testing.T) {
		s, _ := newTestServer(t)
		rec := addMember(t, s, "NOPE", "auth0|alice", "Viewer")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("missing role group is a conflict", func(t *testing.T) {
		s, fake := newTestServer(t)
		createOrg(t, s, "ACME")
		owner := groupByName(t, fake, "ACME-OWNER")
		require.NoError(t, fake.DeleteGroup(context.Background(), owner.ID))

		rec := addMember(t, s, "ACME", "auth0|alice", "Owner")
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestAddMemberPrivilege(t *testing.T) {
	newOrgWithEditor := func(t *testing.T) (*Server, *directory.Fake) {
		s, fake := newTestServer(t)
		createOrg(t, s, "ACME")
		rec := addMember(t, s, "ACME", "auth0|eddie", "Editor")
		require.Equal(t, http.StatusOK, rec.Code)
		return s, fake
	}

	t.Run("cannot grant above own rank", func(t *testing.T) {
		s, _ := newOrgWithEditor(t)

		req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/orgs/ACME/members",
			jsonBody(t, AddMemberRequest{UserID: "auth0|bob", Role: "Owner"})), "auth0|eddie", "ACME")
		rec := doJSON(t, s, req, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("can grant at or below own rank", func(t *testing.T) {
		s, fake := newOrgWithEditor(t)

		req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/orgs/ACME/members",
			jsonBody(t, AddMemberRequest{UserID: "auth0|bob", Role: "Editor"})), "auth0|eddie", "ACME")
		rec := doJSON(t, s, req, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Contains(t, groupByName(t, fake, "ACME-EDITOR").Members, "auth0|bob")
	})

	t.Run("non-members cannot grant anything", func(t *testing.T) {
		s, _ := newOrgWithEditor(t)

		req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/orgs/ACME/members",
			jsonBody(t, AddMemberRequest{UserID: "auth0|bob", Role: "Viewer"})), "auth0|stranger", "ACME")
		rec := doJSON(t, s, req, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("super-admins bypass the rank check", func(t *testing.T) {
		s, fake := newOrgWithEditor(t)
		_, err := fake.CreateRole(context.Background(), directory.Role{
			Name:  catalog.SuperAdminRoleName,
			Users: []string{"auth0|root"},
		})
		require.NoError(t, err)

		req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/orgs/ACME/members",
			jsonBody(t, AddMemberRequest{UserID: "auth0|bob", Role: "Owner"})), "auth0|root", "ACME")
		rec := doJSON(t, s, req, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Contains(t, groupByName(t, fake, "ACME-OWNER").Members, "auth0|bob")
	})
}

func TestRemoveMember(t *testing.T) {
	t.Run("removes the user from every group", func(t *testing.T) {
		s, fake := newTestServer(t)
		createOrg(t, s, "ACME")
		addMember(t, s, "ACME", "auth0|alice", "Admin")

		rec := doJSON(t, s, asAdmin(httptest.NewRequest(http.MethodDelete, "/api/v1/orgs/ACME/members/auth0|alice", nil)), nil)
		require.Equal(t, http.StatusNoContent, rec.Code)

		assert.NotContains(t, groupByName(t, fake, "ACME-ADMIN").Members, "auth0|alice")
		assert.NotContains(t, groupByName(t, fake, "ACME").Members, "auth0|alice")

		memberships, err := fake.CalculateGroupMemberships(context.Background(), "auth0|alice")
		require.NoError(t, err)
		assert.Empty(t, memberships)
	})

	t.Run("removing a non-member is a no-op", func(t *testing.T) {
		s, fake := newTestServer(t)
		createOrg(t, s, "ACME")
		before := fake.Mutations()

		rec := doJSON(t, s, asAdmin(httptest.NewRequest(http.MethodDelete, "/api/v1/orgs/ACME/members/auth0|ghost", nil)), nil)
		require.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, before, fake.Mutations())
	})

	t.Run("unknown organization", func(t *testing.T) {
		s, _ := newTestServer(t)
		rec := doJSON(t, s, asAdmin(httptest.NewRequest(http.MethodDelete, "/api/v1/orgs/NOPE/members/auth0|alice", nil)), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

// Members placed while the directory already holds another organization stay
// scoped to their own org's groups.
func TestMembershipIsolation(t *testing.T) {
	s, fake := newTestServer(t)
	createOrg(t, s, "ACME")
	createOrg(t, s, "GLOBEX")

	addMember(t, s, "ACME", "auth0|alice", "Viewer")

	assert.Empty(t, groupByName(t, fake, "GLOBEX-VIEWER").Members)
	assert.Empty(t, groupByName(t, fake, "GLOBEX").Members)
}
