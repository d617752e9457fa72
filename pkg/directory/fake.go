package directory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Fake is an in-memory Client for tests. It enforces the same uniqueness
// rules as the real Directory (group, role and permission names), supports
// per-operation error injection, and counts mutations so convergence tests
// can assert that a second reconcile pass is a no-op.
type Fake struct {
	mu sync.Mutex

	groups      map[string]*Group
	permissions map[string]*Permission
	roles       map[string]*Role
	users       map[string]*User

	nested     map[string][]string // parent group id -> child group ids
	groupRoles map[string][]string // group id -> role ids

	failures  map[string]error
	mutations int
}

// NewFake creates an empty in-memory Directory.
func NewFake() *Fake {
	return &Fake{
		groups:      make(map[string]*Group),
		permissions: make(map[string]*Permission),
		roles:       make(map[string]*Role),
		users:       make(map[string]*User),
		nested:      make(map[string][]string),
		groupRoles:  make(map[string][]string),
		failures:    make(map[string]error),
	}
}

// FailWith makes every subsequent call of the named operation return err.
// Passing nil clears the injection. Operation names match the Client method
// names, e.g. "CreatePermission".
func (f *Fake) FailWith(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, op)
		return
	}
	f.failures[op] = err
}

// Mutations returns the number of write operations applied so far.
func (f *Fake) Mutations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mutations
}

// AddUser seeds a user record.
func (f *Fake) AddUser(u User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user := u
	f.users[u.ID] = &user
}

func (f *Fake) check(op string) error {
	if err := f.failures[op]; err != nil {
		return err
	}
	return nil
}

func (f *Fake) CreateGroup(_ context.Context, group Group) (*Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("CreateGroup"); err != nil {
		return nil, err
	}
	for _, g := range f.groups {
		if g.Name == group.Name {
			return nil, fmt.Errorf("%w: group %s", ErrAlreadyExists, group.Name)
		}
	}
	created := group
	created.ID = uuid.NewString()
	f.groups[created.ID] = &created
	f.mutations++
	out := created
	return &out, nil
}

func (f *Fake) GetGroup(_ context.Context, id string) (*Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("GetGroup"); err != nil {
		return nil, err
	}
	g, ok := f.groups[id]
	if !ok {
		return nil, fmt.Errorf("%w: group %s", ErrNotFound, id)
	}
	out := *g
	return &out, nil
}

func (f *Fake) GetGroups(_ context.Context) ([]Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("GetGroups"); err != nil {
		return nil, err
	}
	out := make([]Group, 0, len(f.groups))
	for _, g := range f.groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *Fake) UpdateGroup(_ context.Context, group Group) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("UpdateGroup"); err != nil {
		return err
	}
	existing, ok := f.groups[group.ID]
	if !ok {
		return fmt.Errorf("%w: group %s", ErrNotFound, group.ID)
	}
	existing.Name = group.Name
	existing.Description = group.Description
	f.mutations++
	return nil
}

func (f *Fake) DeleteGroup(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("DeleteGroup"); err != nil {
		return err
	}
	if _, ok := f.groups[id]; !ok {
		return fmt.Errorf("%w: group %s", ErrNotFound, id)
	}
	delete(f.groups, id)
	delete(f.nested, id)
	delete(f.groupRoles, id)
	for parent, children := range f.nested {
		f.nested[parent] = removeString(children, id)
	}
	f.mutations++
	return nil
}

func (f *Fake) AddNestedGroups(_ context.Context, parentID string, childIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("AddNestedGroups"); err != nil {
		return err
	}
	if _, ok := f.groups[parentID]; !ok {
		return fmt.Errorf("%w: group %s", ErrNotFound, parentID)
	}
	for _, child := range childIDs {
		if _, ok := f.groups[child]; !ok {
			return fmt.Errorf("%w: group %s", ErrNotFound, child)
		}
		if !containsString(f.nested[parentID], child) {
			f.nested[parentID] = append(f.nested[parentID], child)
		}
	}
	f.mutations++
	return nil
}

func (f *Fake) DeleteNestedGroups(_ context.Context, parentID string, childIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("DeleteNestedGroups"); err != nil {
		return err
	}
	if _, ok := f.groups[parentID]; !ok {
		return fmt.Errorf("%w: group %s", ErrNotFound, parentID)
	}
	for _, child := range childIDs {
		f.nested[parentID] = removeString(f.nested[parentID], child)
	}
	f.mutations++
	return nil
}

func (f *Fake) GetNestedGroups(_ context.Context, id string) ([]Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("GetNestedGroups"); err != nil {
		return nil, err
	}
	if _, ok := f.groups[id]; !ok {
		return nil, fmt.Errorf("%w: group %s", ErrNotFound, id)
	}
	children := f.nested[id]
	out := make([]Group, 0, len(children))
	for _, childID := range children {
		if g, ok := f.groups[childID]; ok {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *Fake) GetNestedGroupMembers(_ context.Context, id string) ([]User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("GetNestedGroupMembers"); err != nil {
		return nil, err
	}
	if _, ok := f.groups[id]; !ok {
		return nil, fmt.Errorf("%w: group %s", ErrNotFound, id)
	}

	seen := make(map[string]bool)
	var out []User
	var walk func(groupID string)
	walk = func(groupID string) {
		g, ok := f.groups[groupID]
		if !ok {
			return
		}
		for _, uid := range g.Members {
			if seen[uid] {
				continue
			}
			seen[uid] = true
			out = append(out, f.userRecord(uid))
		}
		for _, child := range f.nested[groupID] {
			walk(child)
		}
	}
	walk(id)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *Fake) GetNestedGroupRoles(_ context.Context, id string) ([]GroupRoleBinding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("GetNestedGroupRoles"); err != nil {
		return nil, err
	}
	g, ok := f.groups[id]
	if !ok {
		return nil, fmt.Errorf("%w: group %s", ErrNotFound, id)
	}

	var out []GroupRoleBinding
	for _, roleID := range f.groupRoles[id] {
		role, ok := f.roles[roleID]
		if !ok {
			continue
		}
		out = append(out, GroupRoleBinding{
			GroupID:          g.ID,
			GroupName:        g.Name,
			GroupDescription: g.Description,
			Role:             *role,
		})
	}
	return out, nil
}

func (f *Fake) AddGroupMembers(_ context.Context, groupID string, userIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("AddGroupMembers"); err != nil {
		return err
	}
	g, ok := f.groups[groupID]
	if !ok {
		return fmt.Errorf("%w: group %s", ErrNotFound, groupID)
	}
	for _, uid := range userIDs {
		if !containsString(g.Members, uid) {
			g.Members = append(g.Members, uid)
		}
	}
	f.mutations++
	return nil
}

func (f *Fake) DeleteGroupMembers(_ context.Context, groupID string, userIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("DeleteGroupMembers"); err != nil {
		return err
	}
	g, ok := f.groups[groupID]
	if !ok {
		return fmt.Errorf("%w: group %s", ErrNotFound, groupID)
	}
	for _, uid := range userIDs {
		g.Members = removeString(g.Members, uid)
	}
	f.mutations++
	return nil
}

func (f *Fake) AddGroupRoles(_ context.Context, groupID string, roleIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("AddGroupRoles"); err != nil {
		return err
	}
	if _, ok := f.groups[groupID]; !ok {
		return fmt.Errorf("%w: group %s", ErrNotFound, groupID)
	}
	for _, roleID := range roleIDs {
		if _, ok := f.roles[roleID]; !ok {
			return fmt.Errorf("%w: role %s", ErrNotFound, roleID)
		}
		if !containsString(f.groupRoles[groupID], roleID) {
			f.groupRoles[groupID] = append(f.groupRoles[groupID], roleID)
		}
	}
	f.mutations++
	return nil
}

func (f *Fake) DeleteGroupRoles(_ context.Context, groupID string, roleIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("DeleteGroupRoles"); err != nil {
		return err
	}
	if _, ok := f.groups[groupID]; !ok {
		return fmt.Errorf("%w: group %s", ErrNotFound, groupID)
	}
	for _, roleID := range roleIDs {
		f.groupRoles[groupID] = removeString(f.groupRoles[groupID], roleID)
	}
	f.mutations++
	return nil
}

func (f *Fake) CalculateGroupMemberships(_ context.Context, userID string) ([]Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("CalculateGroupMemberships"); err != nil {
		return nil, err
	}

	// Direct memberships plus every transitive parent, flattened.
	member := make(map[string]bool)
	for id, g := range f.groups {
		if containsString(g.Members, userID) {
			member[id] = true
		}
	}
	for {
		grew := false
		for parent, children := range f.nested {
			if member[parent] {
				continue
			}
			for _, child := range children {
				if member[child] {
					member[parent] = true
					grew = true
					break
				}
			}
		}
		if !grew {
			break
		}
	}

	out := make([]Group, 0, len(member))
	for id := range member {
		out = append(out, *f.groups[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *Fake) CreatePermission(_ context.Context, perm Permission) (*Permission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("CreatePermission"); err != nil {
		return nil, err
	}
	for _, p := range f.permissions {
		if p.Name == perm.Name && p.ApplicationID == perm.ApplicationID {
			return nil, fmt.Errorf("%w: permission %s", ErrAlreadyExists, perm.Name)
		}
	}
	created := perm
	created.ID = uuid.NewString()
	f.permissions[created.ID] = &created
	f.mutations++
	out := created
	return &out, nil
}

func (f *Fake) GetPermissions(_ context.Context) ([]Permission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("GetPermissions"); err != nil {
		return nil, err
	}
	out := make([]Permission, 0, len(f.permissions))
	for _, p := range f.permissions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *Fake) DeletePermission(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("DeletePermission"); err != nil {
		return err
	}
	if _, ok := f.permissions[id]; !ok {
		return fmt.Errorf("%w: permission %s", ErrNotFound, id)
	}
	delete(f.permissions, id)
	f.mutations++
	return nil
}

func (f *Fake) CreateRole(_ context.Context, role Role) (*Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("CreateRole"); err != nil {
		return nil, err
	}
	for _, r := range f.roles {
		if r.Name == role.Name && r.ApplicationID == role.ApplicationID {
			return nil, fmt.Errorf("%w: role %s", ErrAlreadyExists, role.Name)
		}
	}
	created := role
	created.ID = uuid.NewString()
	f.roles[created.ID] = &created
	f.mutations++
	out := created
	return &out, nil
}

func (f *Fake) GetRoles(_ context.Context) ([]Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("GetRoles"); err != nil {
		return nil, err
	}
	out := make([]Role, 0, len(f.roles))
	for _, r := range f.roles {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *Fake) UpdateRole(_ context.Context, role Role) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("UpdateRole"); err != nil {
		return err
	}
	existing, ok := f.roles[role.ID]
	if !ok {
		return fmt.Errorf("%w: role %s", ErrNotFound, role.ID)
	}
	existing.Name = role.Name
	existing.Description = role.Description
	existing.Permissions = append([]string(nil), role.Permissions...)
	f.mutations++
	return nil
}

func (f *Fake) DeleteRole(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("DeleteRole"); err != nil {
		return err
	}
	if _, ok := f.roles[id]; !ok {
		return fmt.Errorf("%w: role %s", ErrNotFound, id)
	}
	delete(f.roles, id)
	for groupID, roleIDs := range f.groupRoles {
		f.groupRoles[groupID] = removeString(roleIDs, id)
	}
	f.mutations++
	return nil
}

func (f *Fake) GetUser(_ context.Context, id string) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("GetUser"); err != nil {
		return nil, err
	}
	u, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	out := *u
	return &out, nil
}

func (f *Fake) userRecord(id string) User {
	if u, ok := f.users[id]; ok {
		return *u
	}
	return User{ID: id}
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, item := range list {
		if item != s {
			out = append(out, item)
		}
	}
	return out
}

var _ Client = (*Fake)(nil)
