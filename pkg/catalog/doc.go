// Package catalog defines the static scope catalog for the authorization
// core: the capability domains the platform exposes, the read/write scopes
// derived from them, and the role templates (Public, Viewer, Editor, Admin,
// Owner) provisioned for every organization.
//
// The catalog is read-only configuration. Changing it never mutates live
// memberships; it drives the workspace reconciler, which converges existing
// organizations toward the current catalog.
//
// A catalog can be loaded from a YAML file (see Load) or taken from the
// compiled-in Default. All permission, role and nested-group names used
// across the Directory are produced by the name builders in this package so
// that the naming convention lives in exactly one place:
//
//	catalog.NestedGroupName("ACME", catalog.RoleAdmin)  // "ACME-ADMIN"
//	catalog.PermissionName("ACME", "read", "layers")    // "ACME:read:layers"
//	catalog.RoleName("ACME", catalog.RoleAdmin)         // "ACME:Admin"
package catalog
