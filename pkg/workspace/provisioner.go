package workspace

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/geodeck/authcore/pkg/catalog"
	"github.com/geodeck/authcore/pkg/directory"
	"github.com/geodeck/authcore/pkg/observability"
)

// permissionConcurrency bounds parallel permission creations per workspace.
const permissionConcurrency = 8

// Provisioner builds and destroys per-organization workspaces.
type Provisioner struct {
	dir   directory.Client
	cat   *catalog.Catalog
	appID string
	log   *observability.Logger

	metrics *observability.Metrics
}

// ProvisionerOption configures a Provisioner.
type ProvisionerOption func(*Provisioner)

// WithMetrics records per-step provisioning outcomes.
func WithMetrics(m *observability.Metrics) ProvisionerOption {
	return func(p *Provisioner) { p.metrics = m }
}

// NewProvisioner builds a Provisioner. appID scopes created permissions and
// roles to this application in the Directory.
func NewProvisioner(dir directory.Client, cat *catalog.Catalog, appID string, log *observability.Logger, opts ...ProvisionerOption) *Provisioner {
	p := &Provisioner{dir: dir, cat: cat, appID: appID, log: log}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CreateWorkspace provisions the full authorization graph for a new
// organization: root group, one nested group per role template, one
// permission per catalog scope, one role per template bound to its
// permissions, and the owners as members of the Owner nested group.
//
// Creating the root group is the only step whose failure aborts the call;
// directory.ErrAlreadyExists means an organization with that name exists.
// Every later step is best-effort: failures are logged, recorded in the
// returned Ledger, and left for the Reconciler to converge. The root group
// is returned even when later steps failed, alongside ledger.Err().
func (p *Provisioner) CreateWorkspace(ctx context.Context, name, description string, ownerUserIDs []string) (*directory.Group, *Ledger, error) {
	org := catalog.NormalizeOrgName(name)
	if err := catalog.ValidateOrgName(org); err != nil {
		return nil, nil, err
	}

	log := p.log.WithField("org", org)
	ledger := &Ledger{Org: org}

	root, err := p.dir.CreateGroup(ctx, directory.Group{Name: org, Description: description})
	p.recordStep(ledger, StepRootGroup, org, err)
	if err != nil {
		return nil, ledger, fmt.Errorf("creating root group %s: %w", org, err)
	}

	nestedByRole := p.createNestedGroups(ctx, ledger, root)
	p.attachNestedGroups(ctx, ledger, root, nestedByRole)
	permIDs := p.createPermissions(ctx, ledger, org)
	roleIDs := p.createRoles(ctx, ledger, org, permIDs)
	p.bindRoles(ctx, ledger, org, nestedByRole, roleIDs)
	p.addOwners(ctx, ledger, root, nestedByRole, ownerUserIDs)

	if failures := ledger.Failures(); len(failures) > 0 {
		log.Warn("workspace provisioned with gaps", "failed_steps", len(failures))
	} else {
		log.Info("workspace provisioned", "steps", len(ledger.Steps))
	}
	return root, ledger, nil
}

// createNestedGroups stamps one nested group per role template and returns
// them keyed by role name. A failed creation leaves its role out of the map.
func (p *Provisioner) createNestedGroups(ctx context.Context, ledger *Ledger, root *directory.Group) map[string]*directory.Group {
	nested := make(map[string]*directory.Group, len(p.cat.Roles))
	for _, tmpl := range p.cat.Roles {
		name := catalog.NestedGroupName(root.Name, tmpl.Name)
		group, err := p.dir.CreateGroup(ctx, directory.Group{
			Name:        name,
			Description: tmpl.Description,
			ParentOrgID: root.ID,
		})
		p.recordStep(ledger, StepNestedGroup, name, err)
		if err != nil {
			p.log.WithError(err).Warn("failed to create nested group", "group", name)
			continue
		}
		nested[tmpl.Name] = group
	}
	return nested
}

func (p *Provisioner) attachNestedGroups(ctx context.Context, ledger *Ledger, root *directory.Group, nested map[string]*directory.Group) {
	childIDs := make([]string, 0, len(nested))
	for _, g := range nested {
		childIDs = append(childIDs, g.ID)
	}
	if len(childIDs) == 0 {
		return
	}
	err := p.dir.AddNestedGroups(ctx, root.ID, childIDs)
	p.recordStep(ledger, StepAttachNested, root.Name, err)
	if err != nil {
		p.log.WithError(err).Warn("failed to attach nested groups", "org", root.Name)
	}
}

// createPermissions creates one permission per catalog scope, concurrently,
// and returns the created ids keyed by permission name.
func (p *Provisioner) createPermissions(ctx context.Context, ledger *Ledger, org string) map[string]string {
	var mu sync.Mutex
	ids := make(map[string]string)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(permissionConcurrency)
	for _, scope := range p.cat.Scopes() {
		name := catalog.PermissionName(org, scope)
		g.Go(func() error {
			perm, err := p.dir.CreatePermission(ctx, directory.Permission{
				Name:          name,
				ApplicationID: p.appID,
			})
			mu.Lock()
			defer mu.Unlock()
			p.recordStep(ledger, StepPermission, name, err)
			if err != nil {
				p.log.WithError(err).Warn("failed to create permission", "permission", name)
				return nil
			}
			ids[name] = perm.ID
			return nil
		})
	}
	g.Wait()
	return ids
}

// createRoles creates one Directory role per template, bound to whichever
// of its scope permissions exist, and returns role ids keyed by role name.
func (p *Provisioner) createRoles(ctx context.Context, ledger *Ledger, org string, permIDs map[string]string) map[string]string {
	roleIDs := make(map[string]string, len(p.cat.Roles))
	for _, tmpl := range p.cat.Roles {
		name := catalog.RoleName(org, tmpl.Name)
		var perms []string
		for _, scope := range tmpl.Scopes {
			if id, ok := permIDs[catalog.PermissionName(org, scope)]; ok {
				perms = append(perms, id)
			}
		}
		role, err := p.dir.CreateRole(ctx, directory.Role{
			Name:          name,
			Description:   tmpl.Description,
			ApplicationID: p.appID,
			Permissions:   perms,
		})
		p.recordStep(ledger, StepRole, name, err)
		if err != nil {
			p.log.WithError(err).Warn("failed to create role", "role", name)
			continue
		}
		roleIDs[tmpl.Name] = role.ID
	}
	return roleIDs
}

func (p *Provisioner) bindRoles(ctx context.Context, ledger *Ledger, org string, nested map[string]*directory.Group, roleIDs map[string]string) {
	for roleName, group := range nested {
		roleID, ok := roleIDs[roleName]
		if !ok {
			continue
		}
		err := p.dir.AddGroupRoles(ctx, group.ID, []string{roleID})
		p.recordStep(ledger, StepBindRole, catalog.RoleName(org, roleName), err)
		if err != nil {
			p.log.WithError(err).Warn("failed to bind role", "group", group.Name)
		}
	}
}

// addOwners places the owners in both the root group and the Owner nested
// group so membership calculation resolves them without traversal.
func (p *Provisioner) addOwners(ctx context.Context, ledger *Ledger, root *directory.Group, nested map[string]*directory.Group, ownerUserIDs []string) {
	if len(ownerUserIDs) == 0 {
		return
	}
	targets := []*directory.Group{root}
	if owner, ok := nested[catalog.RoleOwner]; ok {
		targets = append(targets, owner)
	}
	for _, group := range targets {
		err := p.dir.AddGroupMembers(ctx, group.ID, ownerUserIDs)
		p.recordStep(ledger, StepOwnership, group.Name, err)
		if err != nil {
			p.log.WithError(err).Warn("failed to add owners", "group", group.Name)
		}
	}
}

// DeleteWorkspace tears down an organization's graph: nested groups are
// detached and deleted, org-prefixed roles and permissions owned by this
// application are removed, and finally the root group itself. Unlike
// creation, any failure aborts the remainder; whatever was already removed
// stays removed.
func (p *Provisioner) DeleteWorkspace(ctx context.Context, name string) error {
	org := catalog.NormalizeOrgName(name)
	log := p.log.WithField("org", org)

	root, err := p.findRootGroup(ctx, org)
	if err != nil {
		return err
	}

	nested, err := p.dir.GetNestedGroups(ctx, root.ID)
	if err != nil {
		return fmt.Errorf("listing nested groups of %s: %w", org, err)
	}

	// Detach everything; delete only the org's own nested groups. A group
	// nested under the root but named for another organization (shared
	// public access groups) is left intact.
	childIDs := make([]string, 0, len(nested))
	for _, g := range nested {
		childIDs = append(childIDs, g.ID)
	}
	if len(childIDs) > 0 {
		if err := p.dir.DeleteNestedGroups(ctx, root.ID, childIDs); err != nil {
			return fmt.Errorf("detaching nested groups of %s: %w", org, err)
		}
	}
	for _, g := range nested {
		if _, owned := catalog.RoleFromNestedGroup(org, g.Name); !owned {
			continue
		}
		if err := p.dir.DeleteGroup(ctx, g.ID); err != nil {
			return fmt.Errorf("deleting nested group %s: %w", g.Name, err)
		}
	}

	if err := p.deleteOrgRoles(ctx, org); err != nil {
		return err
	}
	if err := p.deleteOrgPermissions(ctx, org); err != nil {
		return err
	}

	if err := p.dir.DeleteGroup(ctx, root.ID); err != nil {
		return fmt.Errorf("deleting root group %s: %w", org, err)
	}
	log.Info("workspace deleted")
	return nil
}

func (p *Provisioner) findRootGroup(ctx context.Context, org string) (*directory.Group, error) {
	groups, err := p.dir.GetGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing groups: %w", err)
	}
	for i := range groups {
		if groups[i].Name == org && groups[i].ParentOrgID == "" {
			return &groups[i], nil
		}
	}
	return nil, fmt.Errorf("organization %s: %w", org, directory.ErrNotFound)
}

func (p *Provisioner) deleteOrgRoles(ctx context.Context, org string) error {
	roles, err := p.dir.GetRoles(ctx)
	if err != nil {
		return fmt.Errorf("listing roles: %w", err)
	}
	for _, role := range roles {
		if role.ApplicationID != p.appID || !catalog.HasOrgPrefix(role.Name, org) {
			continue
		}
		if err := p.dir.DeleteRole(ctx, role.ID); err != nil {
			return fmt.Errorf("deleting role %s: %w", role.Name, err)
		}
	}
	return nil
}

func (p *Provisioner) deleteOrgPermissions(ctx context.Context, org string) error {
	perms, err := p.dir.GetPermissions(ctx)
	if err != nil {
		return fmt.Errorf("listing permissions: %w", err)
	}
	for _, perm := range perms {
		if perm.ApplicationID != p.appID || !catalog.HasOrgPrefix(perm.Name, org) {
			continue
		}
		if err := p.dir.DeletePermission(ctx, perm.ID); err != nil {
			return fmt.Errorf("deleting permission %s: %w", perm.Name, err)
		}
	}
	return nil
}

func (p *Provisioner) recordStep(ledger *Ledger, step Step, target string, err error) {
	ledger.record(step, target, err)
	if p.metrics != nil {
		result := "ok"
		if err != nil {
			result = "error"
		}
		p.metrics.ProvisionStepsTotal.WithLabelValues(string(step), result).Inc()
	}
}
