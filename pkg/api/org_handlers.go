package api

import (
	"net/http"
	"strings"

	"github.com/geodeck/authcore/pkg/audit"
	"github.com/geodeck/authcore/pkg/catalog"
	"github.com/geodeck/authcore/pkg/directory"
	"github.com/geodeck/authcore/pkg/httputil"
	"github.com/geodeck/authcore/pkg/membership"
)

// CreateOrg provisions a new workspace. Partial provisioning is reported
// through the ledger with a 201: the organization exists and the next
// reconciliation pass converges the gaps.
func (s *Server) CreateOrg(w http.ResponseWriter, r *http.Request) {
	var req CreateOrgRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}

	root, ledger, err := s.components().provisioner.CreateWorkspace(r.Context(), req.Name, req.Description, req.Owners)
	if err != nil {
		event := audit.NewEvent(audit.EventWorkspaceCreate, audit.StatusFailure)
		event.Org = catalog.NormalizeOrgName(req.Name)
		event.Message = err.Error()
		s.audit(r, event)

		if directory.IsAlreadyExists(err) {
			httputil.WriteConflict(w, "organization already exists")
			return
		}
		if ledger == nil {
			// Name validation failed before any Directory call.
			httputil.WriteValidationError(w, err.Error())
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	status := audit.StatusSuccess
	if !ledger.Complete() {
		status = audit.StatusPartial
	}
	event := audit.NewEvent(audit.EventWorkspaceCreate, status)
	event.Org = root.Name
	s.audit(r, event)

	httputil.WriteJSON(w, http.StatusCreated, CreateOrgResponse{
		Organization: *root,
		Ledger:       ledger,
	})
}

// ListOrgs lists every organization root group.
func (s *Server) ListOrgs(w http.ResponseWriter, r *http.Request) {
	groups, err := s.dir.GetGroups(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	orgs := make([]directory.Group, 0)
	for _, g := range groups {
		if g.ParentOrgID == "" && catalog.ValidateOrgName(g.Name) == nil {
			orgs = append(orgs, g)
		}
	}
	httputil.WriteJSON(w, http.StatusOK, orgs)
}

// GetOrg returns an organization's root group and its role groups.
func (s *Server) GetOrg(w http.ResponseWriter, r *http.Request) {
	org := orgVar(r)
	root, ok := s.findRootGroup(r, org)
	if !ok {
		httputil.WriteNotFoundError(w, "organization not found")
		return
	}
	groups, err := s.resolver.GetNestedGroups(r.Context(), root.ID, membership.ListOptions{})
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, OrgResponse{Organization: *root, Groups: groups})
}

// UpdateOrg changes an organization's description. The name is fixed for
// the lifetime of the workspace: every nested group, role and permission
// embeds it.
func (s *Server) UpdateOrg(w http.ResponseWriter, r *http.Request) {
	var req UpdateOrgRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	org := orgVar(r)
	root, ok := s.findRootGroup(r, org)
	if !ok {
		httputil.WriteNotFoundError(w, "organization not found")
		return
	}
	root.Description = req.Description
	if err := s.dir.UpdateGroup(r.Context(), *root); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, root)
}

// DeleteOrg tears down a workspace.
func (s *Server) DeleteOrg(w http.ResponseWriter, r *http.Request) {
	org := orgVar(r)
	err := s.components().provisioner.DeleteWorkspace(r.Context(), org)

	status := audit.StatusSuccess
	if err != nil {
		status = audit.StatusFailure
	}
	event := audit.NewEvent(audit.EventWorkspaceDelete, status)
	event.Org = org
	if err != nil {
		event.Message = err.Error()
	}
	s.audit(r, event)

	if err != nil {
		if directory.IsNotFound(err) {
			httputil.WriteNotFoundError(w, "organization not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// GetOrgStats reports member counts per role group plus graph totals.
func (s *Server) GetOrgStats(w http.ResponseWriter, r *http.Request) {
	org := orgVar(r)
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

	stats := OrgStats{Org: org, MemberCounts: make(map[string]int, len(groups))}
	seen := make(map[string]bool)
	for _, g := range groups {
		kind, _ := catalog.RoleFromNestedGroup(org, g.Name)
		stats.MemberCounts[kind] = len(g.Members)
		for _, m := range g.Members {
			if !seen[m] {
				seen[m] = true
				stats.TotalMembers++
			}
		}
	}

	roles, err := s.dir.GetRoles(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	for _, role := range roles {
		if role.ApplicationID == s.appID && catalog.HasOrgPrefix(role.Name, org) {
			stats.Roles++
		}
	}
	perms, err := s.dir.GetPermissions(r.Context())
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	for _, perm := range perms {
		if perm.ApplicationID == s.appID && catalog.HasOrgPrefix(perm.Name, org) {
			stats.Permissions++
		}
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

// ListOrgGroups lists an organization's role groups, filterable with
// ?include=Kind,... and ?exclude=Kind,... query parameters.
func (s *Server) ListOrgGroups(w http.ResponseWriter, r *http.Request) {
	org := orgVar(r)
	root, ok := s.findRootGroup(r, org)
	if !ok {
		httputil.WriteNotFoundError(w, "organization not found")
		return
	}
	opts := membership.ListOptions{
		IncludeKinds: splitParam(r.URL.Query().Get("include")),
		ExcludeKinds: splitParam(r.URL.Query().Get("exclude")),
	}
	groups, err := s.resolver.GetNestedGroups(r.Context(), root.ID, opts)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, groups)
}

// ListOrgRoles lists role bindings per role group, merged by group.
func (s *Server) ListOrgRoles(w http.ResponseWriter, r *http.Request) {
	org := orgVar(r)
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
	lists := make([][]directory.GroupRoleBinding, 0, len(groups))
	for _, g := range groups {
		bindings, err := s.resolver.GetNestedGroupRoles(r.Context(), g.ID)
		if err != nil {
			httputil.WriteInternalError(w, err)
			return
		}
		lists = append(lists, bindings)
	}
	httputil.WriteJSON(w, http.StatusOK, membership.MapNestedGroupRoles(lists...))
}

// ListOrgOwners lists the organization's owners.
func (s *Server) ListOrgOwners(w http.ResponseWriter, r *http.Request) {
	s.listKindMembers(w, r, func(root string) ([]directory.User, error) {
		return s.resolver.GetGroupOwners(r.Context(), root)
	})
}

// ListOrgAdmins lists the organization's admins.
func (s *Server) ListOrgAdmins(w http.ResponseWriter, r *http.Request) {
	s.listKindMembers(w, r, func(root string) ([]directory.User, error) {
		return s.resolver.GetGroupAdmins(r.Context(), root)
	})
}

func (s *Server) listKindMembers(w http.ResponseWriter, r *http.Request, fetch func(rootID string) ([]directory.User, error)) {
	root, ok := s.findRootGroup(r, orgVar(r))
	if !ok {
		httputil.WriteNotFoundError(w, "organization not found")
		return
	}
	users, err := fetch(root.ID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if users == nil {
		users = []directory.User{}
	}
	httputil.WriteJSON(w, http.StatusOK, users)
}

// GetCatalog returns the catalog currently in effect.
func (s *Server) GetCatalog(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, s.components().cat)
}

// TriggerReconcile runs one reconciliation pass immediately.
func (s *Server) TriggerReconcile(w http.ResponseWriter, r *http.Request) {
	result, err := s.components().reconciler.Reconcile(r.Context())

	status := audit.StatusSuccess
	if err != nil {
		status = audit.StatusFailure
	}
	event := audit.NewEvent(audit.EventReconcileRun, status)
	event.Metadata = map[string]interface{}{"orgs": result.Orgs, "mutations": result.Mutations}
	if err != nil {
		event.Message = err.Error()
	}
	s.audit(r, event)

	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ReconcileResponse{Orgs: result.Orgs, Mutations: result.Mutations})
}

// roleKinds lists every role name in the catalog, for listings that must
// include the Public kind.
func roleKinds(cat *catalog.Catalog) []string {
	kinds := make([]string, 0, len(cat.Roles))
	for _, t := range cat.Roles {
		kinds = append(kinds, t.Name)
	}
	return kinds
}

func splitParam(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
