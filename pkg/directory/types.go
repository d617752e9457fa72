package directory

import "context"

// Group is a Directory group: either an organization root group
// (ParentOrgID empty) or a role-scoped nested group that carries a typed
// link to its owning organization's root group.
type Group struct {
	ID          string   `json:"_id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Members     []string `json:"members,omitempty"`
	ParentOrgID string   `json:"parentOrgId,omitempty"`
}

// Permission is a single named capability owned by an application.
type Permission struct {
	ID            string `json:"_id"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	ApplicationID string `json:"applicationId"`
}

// Role is a named bundle of permission ids. Users lists the subjects the
// role is granted to directly, which is how the global super-admin role is
// resolved.
type Role struct {
	ID            string   `json:"_id"`
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	ApplicationID string   `json:"applicationId"`
	Permissions   []string `json:"permissions,omitempty"`
	Users         []string `json:"users,omitempty"`
}

// User is the Directory's view of a subject.
type User struct {
	ID    string `json:"user_id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// GroupRoleBinding is one (group, role) edge as returned by the Directory's
// nested-group role listing. The same group appears once per bound role.
type GroupRoleBinding struct {
	GroupID          string `json:"groupId"`
	GroupName        string `json:"groupName"`
	GroupDescription string `json:"groupDescription,omitempty"`
	Role             Role   `json:"role"`
}

// Client is the Directory operation contract. Every call crosses the
// network, may fail with a generic upstream error, and has no
// compensating-transaction support.
type Client interface {
	CreateGroup(ctx context.Context, group Group) (*Group, error)
	GetGroup(ctx context.Context, id string) (*Group, error)
	GetGroups(ctx context.Context) ([]Group, error)
	UpdateGroup(ctx context.Context, group Group) error
	DeleteGroup(ctx context.Context, id string) error

	AddNestedGroups(ctx context.Context, parentID string, childIDs []string) error
	DeleteNestedGroups(ctx context.Context, parentID string, childIDs []string) error
	GetNestedGroups(ctx context.Context, id string) ([]Group, error)
	GetNestedGroupMembers(ctx context.Context, id string) ([]User, error)
	GetNestedGroupRoles(ctx context.Context, id string) ([]GroupRoleBinding, error)

	AddGroupMembers(ctx context.Context, groupID string, userIDs []string) error
	DeleteGroupMembers(ctx context.Context, groupID string, userIDs []string) error
	AddGroupRoles(ctx context.Context, groupID string, roleIDs []string) error
	DeleteGroupRoles(ctx context.Context, groupID string, roleIDs []string) error

	CalculateGroupMemberships(ctx context.Context, userID string) ([]Group, error)

	CreatePermission(ctx context.Context, perm Permission) (*Permission, error)
	GetPermissions(ctx context.Context) ([]Permission, error)
	DeletePermission(ctx context.Context, id string) error

	CreateRole(ctx context.Context, role Role) (*Role, error)
	GetRoles(ctx context.Context) ([]Role, error)
	UpdateRole(ctx context.Context, role Role) error
	DeleteRole(ctx context.Context, id string) error

	GetUser(ctx context.Context, id string) (*User, error)
}
