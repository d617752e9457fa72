package membership

import (
	"context"
	"errors"
	"fmt"

	"github.com/geodeck/authcore/pkg/catalog"
	"github.com/geodeck/authcore/pkg/directory"
	"github.com/geodeck/authcore/pkg/observability"
)

// ErrNoPrimaryGroup is returned when a user's memberships contain no group
// matching a requested organization.
var ErrNoPrimaryGroup = errors.New("no primary group membership")

// GroupRoles aggregates every role bound to one nested group.
type GroupRoles struct {
	GroupID          string           `json:"groupId"`
	GroupName        string           `json:"groupName"`
	GroupDescription string           `json:"groupDescription,omitempty"`
	Roles            []directory.Role `json:"roles"`
}

// ListOptions filters nested-group listings by kind, where a kind is the
// role name encoded in the group's "{ORG}-{ROLE}" suffix. The Public kind
// is excluded unless explicitly included.
type ListOptions struct {
	IncludeKinds []string
	ExcludeKinds []string
}

// Resolver answers membership and hierarchy queries against the Directory.
type Resolver struct {
	dir   directory.Client
	log   *observability.Logger
	cache *Cache
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithCache routes membership calculation through a cache.
func WithCache(cache *Cache) ResolverOption {
	return func(r *Resolver) { r.cache = cache }
}

// NewResolver builds a Resolver.
func NewResolver(dir directory.Client, log *observability.Logger, opts ...ResolverOption) *Resolver {
	r := &Resolver{dir: dir, log: log}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CalculateMemberships returns the flattened list of every group the user
// belongs to, directly or transitively, cached when a cache is configured.
func (r *Resolver) CalculateMemberships(ctx context.Context, userID string) ([]directory.Group, error) {
	if r.cache != nil {
		if groups, ok := r.cache.Get(ctx, userID); ok {
			return groups, nil
		}
	}
	groups, err := r.dir.CalculateGroupMemberships(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("calculating memberships for %s: %w", userID, err)
	}
	if r.cache != nil {
		r.cache.Set(ctx, userID, groups)
	}
	return groups, nil
}

// InvalidateMemberships drops the cached membership list for a user.
// Callers mutating memberships invoke this so subsequent reads are fresh.
func (r *Resolver) InvalidateMemberships(ctx context.Context, userID string) {
	if r.cache != nil {
		r.cache.Invalidate(ctx, userID)
	}
}

// FindPrimaryGroupID locates the organization's root group among an
// already-calculated membership list by exact name match.
func (r *Resolver) FindPrimaryGroupID(memberships []directory.Group, orgName string) (string, error) {
	for _, g := range memberships {
		if g.Name == orgName {
			return g.ID, nil
		}
	}
	return "", fmt.Errorf("organization %s: %w", orgName, ErrNoPrimaryGroup)
}

// GetNestedGroups lists the role groups nested under a root group,
// filtered per opts. Groups nested under the root but not named for it
// (shared access groups) are always skipped.
func (r *Resolver) GetNestedGroups(ctx context.Context, rootID string, opts ListOptions) ([]directory.Group, error) {
	root, err := r.dir.GetGroup(ctx, rootID)
	if err != nil {
		return nil, fmt.Errorf("resolving root group %s: %w", rootID, err)
	}
	children, err := r.dir.GetNestedGroups(ctx, rootID)
	if err != nil {
		return nil, fmt.Errorf("listing nested groups of %s: %w", root.Name, err)
	}

	var out []directory.Group
	for _, child := range children {
		kind, owned := catalog.RoleFromNestedGroup(root.Name, child.Name)
		if !owned {
			continue
		}
		if !kindSelected(kind, opts) {
			continue
		}
		out = append(out, child)
	}
	return out, nil
}

// kindSelected applies the include/exclude filters. Public is opt-in.
func kindSelected(kind string, opts ListOptions) bool {
	for _, inc := range opts.IncludeKinds {
		if equalKind(kind, inc) {
			return true
		}
	}
	if len(opts.IncludeKinds) > 0 {
		return false
	}
	if equalKind(kind, catalog.RolePublic) {
		return false
	}
	for _, exc := range opts.ExcludeKinds {
		if equalKind(kind, exc) {
			return false
		}
	}
	return true
}

func equalKind(a, b string) bool {
	return catalog.NormalizeOrgName(a) == catalog.NormalizeOrgName(b)
}

// GetNestedGroupRoles lists the (group, role) bindings of every group
// nested under the given group, one binding per pair.
func (r *Resolver) GetNestedGroupRoles(ctx context.Context, groupID string) ([]directory.GroupRoleBinding, error) {
	bindings, err := r.dir.GetNestedGroupRoles(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("listing nested group roles of %s: %w", groupID, err)
	}
	return bindings, nil
}

// MapNestedGroupRoles merges raw bindings into one record per group id,
// accumulating every role bound to that group. Order follows first
// appearance.
func MapNestedGroupRoles(bindingLists ...[]directory.GroupRoleBinding) []GroupRoles {
	var out []GroupRoles
	index := make(map[string]int)
	for _, bindings := range bindingLists {
		for _, b := range bindings {
			i, ok := index[b.GroupID]
			if !ok {
				index[b.GroupID] = len(out)
				out = append(out, GroupRoles{
					GroupID:          b.GroupID,
					GroupName:        b.GroupName,
					GroupDescription: b.GroupDescription,
				})
				i = len(out) - 1
			}
			out[i].Roles = append(out[i].Roles, b.Role)
		}
	}
	return out
}

// GetMemberGroups resolves, for each organization the caller claims, the
// nested groups the user actually belongs to along with their bound roles.
// Resolution failures for one organization are logged and degrade to an
// empty result for that organization; the call itself never fails.
func (r *Resolver) GetMemberGroups(ctx context.Context, userID string, orgNames []string) []GroupRoles {
	memberships, err := r.CalculateMemberships(ctx, userID)
	if err != nil {
		r.log.WithError(err).Warn("membership calculation failed, returning no member groups", "user", userID)
		return nil
	}
	var out []GroupRoles
	for _, org := range orgNames {
		rootID, err := r.FindPrimaryGroupID(memberships, org)
		if err != nil {
			r.log.Debug("skipping unclaimed organization", "user", userID, "org", org)
			continue
		}
		var lists [][]directory.GroupRoleBinding
		failed := false
		for _, g := range memberships {
			if g.ParentOrgID != rootID {
				continue
			}
			bindings, err := r.dir.GetNestedGroupRoles(ctx, g.ID)
			if err != nil {
				r.log.WithError(err).Warn("nested role resolution failed for organization", "user", userID, "org", org)
				failed = true
				break
			}
			lists = append(lists, bindings)
		}
		if failed {
			continue
		}
		out = append(out, MapNestedGroupRoles(lists...)...)
	}
	return out
}

// nestedGroupByKind finds the root's nested group for one role kind.
func (r *Resolver) nestedGroupByKind(ctx context.Context, rootID, kind string) (*directory.Group, error) {
	groups, err := r.GetNestedGroups(ctx, rootID, ListOptions{IncludeKinds: []string{kind}})
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("nested group for role %s under %s: %w", kind, rootID, directory.ErrNotFound)
	}
	return &groups[0], nil
}

// IsGroupOwner reports whether the user is a direct member of the
// organization's Owner nested group.
func (r *Resolver) IsGroupOwner(ctx context.Context, userID, rootID string) (bool, error) {
	return r.isKindMember(ctx, userID, rootID, catalog.RoleOwner)
}

// IsGroupAdmin reports whether the user is a direct member of the
// organization's Admin nested group.
func (r *Resolver) IsGroupAdmin(ctx context.Context, userID, rootID string) (bool, error) {
	return r.isKindMember(ctx, userID, rootID, catalog.RoleAdmin)
}

func (r *Resolver) isKindMember(ctx context.Context, userID, rootID, kind string) (bool, error) {
	group, err := r.nestedGroupByKind(ctx, rootID, kind)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	for _, member := range group.Members {
		if member == userID {
			return true, nil
		}
	}
	return false, nil
}

// GetGroupOwners returns the members of the organization's Owner nested
// group. User records are resolved best-effort; an unresolvable member is
// returned with its id only.
func (r *Resolver) GetGroupOwners(ctx context.Context, rootID string) ([]directory.User, error) {
	return r.kindMembers(ctx, rootID, catalog.RoleOwner)
}

// GetGroupAdmins returns the members of the organization's Admin nested
// group.
func (r *Resolver) GetGroupAdmins(ctx context.Context, rootID string) ([]directory.User, error) {
	return r.kindMembers(ctx, rootID, catalog.RoleAdmin)
}

func (r *Resolver) kindMembers(ctx context.Context, rootID, kind string) ([]directory.User, error) {
	group, err := r.nestedGroupByKind(ctx, rootID, kind)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	users := make([]directory.User, 0, len(group.Members))
	for _, id := range group.Members {
		user, err := r.dir.GetUser(ctx, id)
		if err != nil {
			r.log.WithError(err).Debug("user record lookup failed", "user", id)
			users = append(users, directory.User{ID: id})
			continue
		}
		users = append(users, *user)
	}
	return users, nil
}

// GetSuperAdmins returns the subjects granted the global super-admin role.
func (r *Resolver) GetSuperAdmins(ctx context.Context) ([]string, error) {
	roles, err := r.dir.GetRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing roles: %w", err)
	}
	for _, role := range roles {
		if role.Name == catalog.SuperAdminRoleName {
			return role.Users, nil
		}
	}
	return nil, nil
}

// IsSuperAdmin reports whether the user holds the global super-admin role.
func (r *Resolver) IsSuperAdmin(ctx context.Context, userID string) (bool, error) {
	admins, err := r.GetSuperAdmins(ctx)
	if err != nil {
		return false, err
	}
	for _, id := range admins {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}
