package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/geodeck/authcore/pkg/directory"
	"github.com/geodeck/authcore/pkg/httputil"
	"github.com/geodeck/authcore/pkg/membership"
)

// GetUserMemberships returns the flattened group list for a user.
func (s *Server) GetUserMemberships(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user"]
	groups, err := s.resolver.CalculateMemberships(r.Context(), userID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if groups == nil {
		groups = []directory.Group{}
	}
	httputil.WriteJSON(w, http.StatusOK, groups)
}

// GetUserGroups resolves the role groups and roles a user holds in the
// organizations named by ?orgs=A,B. Unresolvable organizations yield
// nothing rather than an error.
func (s *Server) GetUserGroups(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user"]
	orgs := splitParam(r.URL.Query().Get("orgs"))
	if len(orgs) == 0 {
		httputil.WriteValidationError(w, "orgs query parameter is required")
		return
	}
	groups := s.resolver.GetMemberGroups(r.Context(), userID, orgs)
	if groups == nil {
		groups = []membership.GroupRoles{}
	}
	httputil.WriteJSON(w, http.StatusOK, groups)
}
