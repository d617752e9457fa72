package workspace

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/geodeck/authcore/pkg/catalog"
	"github.com/geodeck/authcore/pkg/directory"
	"github.com/geodeck/authcore/pkg/observability"
)

// Result summarizes one reconciliation pass.
type Result struct {
	// Orgs is the number of organizations examined.
	Orgs int

	// Mutations counts Directory writes issued: created groups, permissions
	// and roles, attachments, and role permission-set updates. Zero means
	// the Directory already matched the catalog.
	Mutations int
}

// Reconciler converges existing organizations toward the current catalog.
// It only creates missing structural elements and updates role→permission
// bindings; it never deletes anything and never touches memberships, so a
// pass is safe at any time, including concurrently with live traffic.
type Reconciler struct {
	dir   directory.Client
	cat   *catalog.Catalog
	appID string
	log   *observability.Logger

	metrics *observability.Metrics
}

// ReconcilerOption configures a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithReconcilerMetrics records run counts, durations and mutation totals.
func WithReconcilerMetrics(m *observability.Metrics) ReconcilerOption {
	return func(r *Reconciler) { r.metrics = m }
}

// NewReconciler builds a Reconciler over the same catalog and application
// id the Provisioner uses.
func NewReconciler(dir directory.Client, cat *catalog.Catalog, appID string, log *observability.Logger, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{dir: dir, cat: cat, appID: appID, log: log}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// reconcileState carries the Directory snapshot one pass works from,
// updated in place as elements are created.
type reconcileState struct {
	groupsByName map[string]directory.Group
	permsByName  map[string]directory.Permission
	rolesByName  map[string]directory.Role
	mutations    int
}

// Reconcile fetches the Directory state once and converges every root
// organization against the catalog.
func (r *Reconciler) Reconcile(ctx context.Context) (Result, error) {
	start := time.Now()
	result, err := r.reconcile(ctx)

	if r.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		r.metrics.ReconcileRunsTotal.WithLabelValues(outcome).Inc()
		r.metrics.ReconcileMutations.Add(float64(result.Mutations))
		r.metrics.ReconcileDuration.Observe(time.Since(start).Seconds())
	}
	return result, err
}

func (r *Reconciler) reconcile(ctx context.Context) (Result, error) {
	state, roots, err := r.snapshot(ctx)
	if err != nil {
		return Result{}, err
	}

	for _, root := range roots {
		if err := catalog.ValidateOrgName(root.Name); err != nil {
			// Root groups not owned by this system share the namespace.
			continue
		}
		if err := r.reconcileOrg(ctx, state, root); err != nil {
			return Result{Orgs: len(roots), Mutations: state.mutations}, err
		}
	}

	result := Result{Orgs: len(roots), Mutations: state.mutations}
	r.log.Info("reconciliation complete", "orgs", result.Orgs, "mutations", result.Mutations)
	return result, nil
}

// snapshot loads all groups, roles and permissions in three calls and
// indexes them by name. Roles and permissions are filtered to this
// application.
func (r *Reconciler) snapshot(ctx context.Context) (*reconcileState, []directory.Group, error) {
	groups, err := r.dir.GetGroups(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("listing groups: %w", err)
	}
	perms, err := r.dir.GetPermissions(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("listing permissions: %w", err)
	}
	roles, err := r.dir.GetRoles(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("listing roles: %w", err)
	}

	state := &reconcileState{
		groupsByName: make(map[string]directory.Group, len(groups)),
		permsByName:  make(map[string]directory.Permission, len(perms)),
		rolesByName:  make(map[string]directory.Role, len(roles)),
	}
	var roots []directory.Group
	for _, g := range groups {
		state.groupsByName[g.Name] = g
		if g.ParentOrgID == "" {
			roots = append(roots, g)
		}
	}
	for _, p := range perms {
		if p.ApplicationID == r.appID {
			state.permsByName[p.Name] = p
		}
	}
	for _, role := range roles {
		if role.ApplicationID == r.appID {
			state.rolesByName[role.Name] = role
		}
	}
	return state, roots, nil
}

func (r *Reconciler) reconcileOrg(ctx context.Context, state *reconcileState, root directory.Group) error {
	org := root.Name

	if err := r.ensurePermissions(ctx, state, org); err != nil {
		return err
	}
	for _, tmpl := range r.cat.Roles {
		nested, err := r.ensureNestedGroup(ctx, state, root, tmpl)
		if err != nil {
			return err
		}
		if err := r.ensureRole(ctx, state, org, tmpl, nested); err != nil {
			return err
		}
	}
	return nil
}

// ensurePermissions creates any missing permission for the full catalog
// scope set, mirroring what provisioning stamps out per organization.
func (r *Reconciler) ensurePermissions(ctx context.Context, state *reconcileState, org string) error {
	for _, scope := range r.cat.Scopes() {
		name := catalog.PermissionName(org, scope)
		if _, ok := state.permsByName[name]; ok {
			continue
		}
		perm, err := r.dir.CreatePermission(ctx, directory.Permission{
			Name:          name,
			ApplicationID: r.appID,
		})
		if err != nil {
			return fmt.Errorf("creating permission %s: %w", name, err)
		}
		state.permsByName[name] = *perm
		state.mutations++
		r.log.Info("created missing permission", "permission", name)
	}
	return nil
}

func (r *Reconciler) ensureNestedGroup(ctx context.Context, state *reconcileState, root directory.Group, tmpl catalog.RoleTemplate) (directory.Group, error) {
	name := catalog.NestedGroupName(root.Name, tmpl.Name)
	if g, ok := state.groupsByName[name]; ok {
		return g, nil
	}
	created, err := r.dir.CreateGroup(ctx, directory.Group{
		Name:        name,
		Description: tmpl.Description,
		ParentOrgID: root.ID,
	})
	if err != nil {
		return directory.Group{}, fmt.Errorf("creating nested group %s: %w", name, err)
	}
	if err := r.dir.AddNestedGroups(ctx, root.ID, []string{created.ID}); err != nil {
		return directory.Group{}, fmt.Errorf("attaching nested group %s: %w", name, err)
	}
	state.groupsByName[name] = *created
	state.mutations += 2
	r.log.Info("created missing nested group", "group", name)
	return *created, nil
}

// ensureRole creates a missing role bound to its template's permissions and
// attached to the nested group, or converges an existing role's permission
// set to exactly match the catalog.
func (r *Reconciler) ensureRole(ctx context.Context, state *reconcileState, org string, tmpl catalog.RoleTemplate, nested directory.Group) error {
	name := catalog.RoleName(org, tmpl.Name)
	expected := r.expectedPermissionIDs(state, org, tmpl)

	existing, ok := state.rolesByName[name]
	if !ok {
		created, err := r.dir.CreateRole(ctx, directory.Role{
			Name:          name,
			Description:   tmpl.Description,
			ApplicationID: r.appID,
			Permissions:   expected,
		})
		if err != nil {
			return fmt.Errorf("creating role %s: %w", name, err)
		}
		if err := r.dir.AddGroupRoles(ctx, nested.ID, []string{created.ID}); err != nil {
			return fmt.Errorf("binding role %s: %w", name, err)
		}
		state.rolesByName[name] = *created
		state.mutations += 2
		r.log.Info("created missing role", "role", name)
		return nil
	}

	if !sameIDSet(existing.Permissions, expected) {
		existing.Permissions = expected
		if err := r.dir.UpdateRole(ctx, existing); err != nil {
			return fmt.Errorf("updating role %s: %w", name, err)
		}
		state.rolesByName[name] = existing
		state.mutations++
		r.log.Info("updated role permission set", "role", name)
	}
	return nil
}

func (r *Reconciler) expectedPermissionIDs(state *reconcileState, org string, tmpl catalog.RoleTemplate) []string {
	ids := make([]string, 0, len(tmpl.Scopes))
	for _, scope := range tmpl.Scopes {
		if perm, ok := state.permsByName[catalog.PermissionName(org, scope)]; ok {
			ids = append(ids, perm.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

func sameIDSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}
