package catalog

import (
	"fmt"
	"regexp"
	"strings"
)

// Directory naming conventions. Organizations are root groups with an
// uppercase slug name; everything else is namespaced by that slug.

var orgNamePattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9_-]*$`)

// NormalizeOrgName upper-cases and slugifies an organization name.
func NormalizeOrgName(name string) string {
	slug := strings.ToUpper(strings.TrimSpace(name))
	slug = strings.ReplaceAll(slug, " ", "-")
	return slug
}

// ValidateOrgName reports whether a normalized organization name is a legal
// uppercase slug. The "-" separator is allowed inside names, which is why
// primary-vs-nested disambiguation on the claims side cannot rely on
// splitting at the first dash.
func ValidateOrgName(name string) error {
	if name == "" {
		return fmt.Errorf("organization name is required")
	}
	if !orgNamePattern.MatchString(name) {
		return fmt.Errorf("organization name %q must be an uppercase slug", name)
	}
	return nil
}

// NestedGroupName builds the role-scoped nested-group name "{ORG}-{ROLE}".
func NestedGroupName(org, roleName string) string {
	return org + "-" + strings.ToUpper(roleName)
}

// PermissionName builds the permission name "{ORG}:{verb}:{domain}". With
// org == WildcardOrg this produces a global wildcard permission.
func PermissionName(org string, scope Scope) string {
	return org + ":" + scope.Token()
}

// RoleName builds the Directory role name "{ORG}:{RoleName}".
func RoleName(org, roleName string) string {
	return org + ":" + roleName
}

// RoleFromNestedGroup extracts the role suffix from a nested-group name
// belonging to the given organization. Returns false if the group does not
// follow the "{ORG}-{ROLE}" convention for that org.
func RoleFromNestedGroup(org, groupName string) (string, bool) {
	suffix, ok := strings.CutPrefix(groupName, org+"-")
	if !ok || suffix == "" {
		return "", false
	}
	return suffix, true
}

// HasOrgPrefix reports whether a role or permission name is namespaced by
// the given organization. Used by workspace teardown to collect everything
// owned by one org.
func HasOrgPrefix(name, org string) bool {
	return strings.HasPrefix(name, org+":")
}
