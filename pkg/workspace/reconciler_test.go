package workspace

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geodeck/authcore/pkg/catalog"
	"github.com/geodeck/authcore/pkg/directory"
)

func newTestReconciler(fake *directory.Fake) *Reconciler {
	return NewReconciler(fake, catalog.Default(), testAppID, testLogger())
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()
	cat := catalog.Default()

	t.Run("empty directory is a no-op", func(t *testing.T) {
		fake := directory.NewFake()
		r := newTestReconciler(fake)

		result, err := r.Reconcile(ctx)
		require.NoError(t, err)
		assert.Zero(t, result.Orgs)
		assert.Zero(t, result.Mutations)
	})

	t.Run("fully provisioned org needs no mutations", func(t *testing.T) {
		fake := directory.NewFake()
		_, _, err := newTestProvisioner(fake).CreateWorkspace(ctx, "ACME", "", []string{"auth0|owner"})
		require.NoError(t, err)

		result, err := newTestReconciler(fake).Reconcile(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Orgs)
		assert.Zero(t, result.Mutations)
	})

	t.Run("second run issues zero mutations", func(t *testing.T) {
		fake := directory.NewFake()
		// Bare root group, nothing else: reconciliation must build the
		// entire graph on the first pass.
		_, err := fake.CreateGroup(ctx, directory.Group{Name: "ACME"})
		require.NoError(t, err)

		r := newTestReconciler(fake)
		first, err := r.Reconcile(ctx)
		require.NoError(t, err)
		assert.Positive(t, first.Mutations)

		before := fake.Mutations()
		second, err := r.Reconcile(ctx)
		require.NoError(t, err)
		assert.Zero(t, second.Mutations)
		assert.Equal(t, before, fake.Mutations())
	})

	t.Run("converges a partially provisioned org", func(t *testing.T) {
		fake := directory.NewFake()
		fake.FailWith("CreatePermission", errors.New("directory unavailable"))
		_, ledger, err := newTestProvisioner(fake).CreateWorkspace(ctx, "ACME", "", nil)
		require.NoError(t, err)
		require.Error(t, ledger.Err())
		fake.FailWith("CreatePermission", nil)

		result, err := newTestReconciler(fake).Reconcile(ctx)
		require.NoError(t, err)
		assert.Positive(t, result.Mutations)

		perms, err := fake.GetPermissions(ctx)
		require.NoError(t, err)
		assert.Len(t, perms, len(cat.Scopes()))

		// Roles created during the gap were bound to no permissions; the
		// pass must converge them to their template scopes.
		permName := make(map[string]string, len(perms))
		for _, perm := range perms {
			permName[perm.ID] = perm.Name
		}
		roles, err := fake.GetRoles(ctx)
		require.NoError(t, err)
		for _, role := range roles {
			tmplName, _ := roleSuffix(role.Name, "ACME")
			tmpl, ok := cat.Role(tmplName)
			require.True(t, ok, "unexpected role %s", role.Name)
			expected := make([]string, 0, len(tmpl.Scopes))
			for _, s := range tmpl.Scopes {
				expected = append(expected, catalog.PermissionName("ACME", s))
			}
			var got []string
			for _, id := range role.Permissions {
				got = append(got, permName[id])
			}
			assert.ElementsMatch(t, expected, got, "role %s", role.Name)
		}
	})

	t.Run("recreates a missing nested group", func(t *testing.T) {
		fake := directory.NewFake()
		_, _, err := newTestProvisioner(fake).CreateWorkspace(ctx, "ACME", "", nil)
		require.NoError(t, err)

		root, err := findRoot(ctx, fake, "ACME")
		require.NoError(t, err)
		nested, err := fake.GetNestedGroups(ctx, root.ID)
		require.NoError(t, err)
		victim := nested[0]
		require.NoError(t, fake.DeleteNestedGroups(ctx, root.ID, []string{victim.ID}))
		require.NoError(t, fake.DeleteGroup(ctx, victim.ID))

		result, err := newTestReconciler(fake).Reconcile(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, result.Mutations)

		restored, err := fake.GetNestedGroups(ctx, root.ID)
		require.NoError(t, err)
		assert.Len(t, restored, len(cat.Roles))
	})

	t.Run("new catalog role is stamped onto existing orgs", func(t *testing.T) {
		fake := directory.NewFake()
		_, _, err := newTestProvisioner(fake).CreateWorkspace(ctx, "ACME", "", nil)
		require.NoError(t, err)

		grown := catalog.Default()
		grown.Roles = append(grown.Roles, catalog.RoleTemplate{
			Name:   "Analyst",
			Scopes: []catalog.Scope{{Verb: catalog.VerbRead, Domain: catalog.DomainStats}},
		})
		r := NewReconciler(fake, grown, testAppID, testLogger())

		result, err := r.Reconcile(ctx)
		require.NoError(t, err)
		assert.Positive(t, result.Mutations)

		root, err := findRoot(ctx, fake, "ACME")
		require.NoError(t, err)
		nested, err := fake.GetNestedGroups(ctx, root.ID)
		require.NoError(t, err)
		var names []string
		for _, g := range nested {
			names = append(names, g.Name)
		}
		assert.Contains(t, names, "ACME-ANALYST")

		again, err := r.Reconcile(ctx)
		require.NoError(t, err)
		assert.Zero(t, again.Mutations)
	})

	t.Run("skips foreign root groups", func(t *testing.T) {
		fake := directory.NewFake()
		_, err := fake.CreateGroup(ctx, directory.Group{Name: "not an org slug"})
		require.NoError(t, err)

		result, err := newTestReconciler(fake).Reconcile(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Orgs)
		assert.Zero(t, result.Mutations)
	})

	t.Run("snapshot failure aborts the pass", func(t *testing.T) {
		fake := directory.NewFake()
		fake.FailWith("GetGroups", errors.New("directory unavailable"))

		_, err := newTestReconciler(fake).Reconcile(ctx)
		require.Error(t, err)
	})
}

// roleSuffix splits "{ORG}:{Role}" into its role part.
func roleSuffix(name, org string) (string, bool) {
	prefix := org + ":"
	if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
		return "", false
	}
	return name[len(prefix):], true
}
