package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/geodeck/authcore/pkg/audit"
	"github.com/geodeck/authcore/pkg/catalog"
	"github.com/geodeck/authcore/pkg/directory"
	"github.com/geodeck/authcore/pkg/guard"
	"github.com/geodeck/authcore/pkg/httputil"
	"github.com/geodeck/authcore/pkg/membership"
)

// AddMember places a user in one role group of the organization, moving
// them out of any other role group they occupy there: a user holds at most
// one role per organization.
//
// Privilege rule: an authenticated caller may not grant a role ranked
// above their own highest role in that organization. Service accounts and
// super-admins bypass the rule.
func (s *Server) AddMember(w http.ResponseWriter, r *http.Request) {
	var req AddMemberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.UserID, "user_id") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Role, "role") {
		return
	}

	org := orgVar(r)
	tmpl, ok := s.components().cat.Role(req.Role)
	if !ok {
		httputil.WriteValidationError(w, "unknown role "+req.Role)
		return
	}
	root, ok := s.findRootGroup(r, org)
	if !ok {
		httputil.WriteNotFoundError(w, "organization not found")
		return
	}

	if allowed, err := s.mayGrant(r, root, tmpl.Name); err != nil {
		httputil.WriteInternalError(w, err)
		return
	} else if !allowed {
		httputil.WriteForbidden(w, "cannot grant a role above your own")
		return
	}

	groups, err := s.resolver.GetNestedGroups(r.Context(), root.ID, membership.ListOptions{
		IncludeKinds: roleKinds(s.components().cat),
	})
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	var target *directory.Group
	roleChange := false
	for i := range groups {
		kind, _ := catalog.RoleFromNestedGroup(org, groups[i].Name)
		if equalFoldKind(kind, tmpl.Name) {
			target = &groups[i]
			continue
		}
		if memberOf(groups[i].Members, req.UserID) {
			if err := s.dir.DeleteGroupMembers(r.Context(), groups[i].ID, []string{req.UserID}); err != nil {
				httputil.WriteInternalError(w, err)
				return
			}
			roleChange = true
		}
	}
	if target == nil {
		httputil.WriteConflict(w, "role group not provisioned; reconcile the organization")
		return
	}

	if !memberOf(target.Members, req.UserID) {
		if err := s.dir.AddGroupMembers(r.Context(), target.ID, []string{req.UserID}); err != nil {
			httputil.WriteInternalError(w, err)
			return
		}
	}
	if !memberOf(root.Members, req.UserID) {
		if err := s.dir.AddGroupMembers(r.Context(), root.ID, []string{req.UserID}); err != nil {
			httputil.WriteInternalError(w, err)
			return
		}
	}
	s.resolver.InvalidateMemberships(r.Context(), req.UserID)

	eventType := audit.EventMemberAdd
	if roleChange {
		eventType = audit.EventMemberRoleChange
	}
	event := audit.NewEvent(eventType, audit.StatusSuccess)
	event.Org = org
	event.Subject = req.UserID
	event.Metadata = map[string]interface{}{"role": tmpl.Name}
	s.audit(r, event)

	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"user_id": req.UserID,
		"role":    tmpl.Name,
		"group":   target.Name,
	})
}

// RemoveMember removes a user from the organization entirely: every role
// group and the root group. Removing a non-member is a no-op.
func (s *Server) RemoveMember(w http.ResponseWriter, r *http.Request) {
	org := orgVar(r)
	userID := mux.Vars(r)["user"]

	root, ok := s.findRootGroup(r, org)
	if !ok {
		httputil.WriteNotFoundError(w, "organization not found")
		return
	}
	groups, err := s.resolver.GetNestedGroups(r.Context(), root.ID, membership.ListOptions{
		IncludeKinds: roleKinds(s.components().cat),
	})
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	for _, g := range groups {
		if !memberOf(g.Members, userID) {
			continue
		}
		if err := s.dir.DeleteGroupMembers(r.Context(), g.ID, []string{userID}); err != nil {
			httputil.WriteInternalError(w, err)
			return
		}
	}
	if memberOf(root.Members, userID) {
		if err := s.dir.DeleteGroupMembers(r.Context(), root.ID, []string{userID}); err != nil {
			httputil.WriteInternalError(w, err)
			return
		}
	}
	s.resolver.InvalidateMemberships(r.Context(), userID)

	event := audit.NewEvent(audit.EventMemberRemove, audit.StatusSuccess)
	event.Org = org
	event.Subject = userID
	s.audit(r, event)

	httputil.WriteNoContent(w)
}

// mayGrant decides whether the caller may assign the named role in the
// organization. The caller's rank is the highest role group they occupy
// there.
func (s *Server) mayGrant(r *http.Request, root *directory.Group, roleName string) (bool, error) {
	claims := guard.ClaimsFromContext(r.Context())
	if claims == nil || claims.ServiceAccount {
		return true, nil
	}
	if super, err := s.resolver.IsSuperAdmin(r.Context(), claims.Subject); err != nil {
		return false, err
	} else if super {
		return true, nil
	}

	memberships, err := s.resolver.CalculateMemberships(r.Context(), claims.Subject)
	if err != nil {
		return false, err
	}
	actorRank := 0
	for _, g := range memberships {
		if g.ParentOrgID != root.ID {
			continue
		}
		if kind, ok := catalog.RoleFromNestedGroup(root.Name, g.Name); ok {
			if rank := catalog.RoleRank(kind); rank > actorRank {
				actorRank = rank
			}
		}
	}
	return catalog.RoleRank(roleName) <= actorRank, nil
}

func memberOf(members []string, userID string) bool {
	for _, m := range members {
		if m == userID {
			return true
		}
	}
	return false
}

func equalFoldKind(a, b string) bool {
	return catalog.NormalizeOrgName(a) == catalog.NormalizeOrgName(b)
}
