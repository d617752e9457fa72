package workspace

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geodeck/authcore/pkg/catalog"
	"github.com/geodeck/authcore/pkg/directory"
	"github.com/geodeck/authcore/pkg/observability"
)

const testAppID = "app-geodeck"

func testLogger() *observability.Logger {
	return observability.NewLogger(slog.LevelError, io.Discard)
}

func newTestProvisioner(fake *directory.Fake) *Provisioner {
	return NewProvisioner(fake, catalog.Default(), testAppID, testLogger())
}

func TestCreateWorkspace(t *testing.T) {
	ctx := context.Background()
	cat := catalog.Default()

	t.Run("provisions the full graph", func(t *testing.T) {
		fake := directory.NewFake()
		p := newTestProvisioner(fake)

		root, ledger, err := p.CreateWorkspace(ctx, "acme corp", "Acme Corporation", []string{"auth0|owner"})
		require.NoError(t, err)
		require.NotNil(t, root)
		assert.Equal(t, "ACME-CORP", root.Name)
		assert.Empty(t, root.ParentOrgID)
		require.NoError(t, ledger.Err())
		assert.True(t, ledger.Complete())

		nested, err := fake.GetNestedGroups(ctx, root.ID)
		require.NoError(t, err)
		require.Len(t, nested, len(cat.Roles))
		for _, g := range nested {
			assert.Equal(t, root.ID, g.ParentOrgID)
			_, owned := catalog.RoleFromNestedGroup("ACME-CORP", g.Name)
			assert.True(t, owned, "unexpected nested group %s", g.Name)
		}

		perms, err := fake.GetPermissions(ctx)
		require.NoError(t, err)
		assert.Len(t, perms, len(cat.Scopes()))

		roles, err := fake.GetRoles(ctx)
		require.NoError(t, err)
		require.Len(t, roles, len(cat.Roles))
		for _, role := range roles {
			assert.Equal(t, testAppID, role.ApplicationID)
			assert.True(t, catalog.HasOrgPrefix(role.Name, "ACME-CORP"))
		}
	})

	t.Run("roles carry their template scopes", func(t *testing.T) {
		fake := directory.NewFake()
		p := newTestProvisioner(fake)

		_, _, err := p.CreateWorkspace(ctx, "ACME", "", nil)
		require.NoError(t, err)

		perms, err := fake.GetPermissions(ctx)
		require.NoError(t, err)
		permName := make(map[string]string, len(perms))
		for _, perm := range perms {
			permName[perm.ID] = perm.Name
		}

		roles, err := fake.GetRoles(ctx)
		require.NoError(t, err)
		viewer, ok := cat.Role(catalog.RoleViewer)
		require.True(t, ok)
		for _, role := range roles {
			if role.Name != catalog.RoleName("ACME", catalog.RoleViewer) {
				continue
			}
			var tokens []string
			for _, id := range role.Permissions {
				tokens = append(tokens, permName[id])
			}
			expected := make([]string, 0, len(viewer.Scopes))
			for _, s := range viewer.Scopes {
				expected = append(expected, catalog.PermissionName("ACME", s))
			}
			assert.ElementsMatch(t, expected, tokens)
		}
	})

	t.Run("owner lands in root and owner groups", func(t *testing.T) {
		fake := directory.NewFake()
		p := newTestProvisioner(fake)

		root, _, err := p.CreateWorkspace(ctx, "ACME", "", []string{"auth0|owner"})
		require.NoError(t, err)

		memberships, err := fake.CalculateGroupMemberships(ctx, "auth0|owner")
		require.NoError(t, err)
		var names []string
		for _, g := range memberships {
			names = append(names, g.Name)
		}
		assert.Contains(t, names, root.Name)
		assert.Contains(t, names, catalog.NestedGroupName("ACME", catalog.RoleOwner))
	})

	t.Run("duplicate name aborts", func(t *testing.T) {
		fake := directory.NewFake()
		p := newTestProvisioner(fake)

		_, _, err := p.CreateWorkspace(ctx, "ACME", "", nil)
		require.NoError(t, err)

		_, ledger, err := p.CreateWorkspace(ctx, "acme", "", nil)
		require.Error(t, err)
		assert.True(t, directory.IsAlreadyExists(err))
		require.NotNil(t, ledger)
		assert.Len(t, ledger.Steps, 1)
	})

	t.Run("invalid name rejected before any call", func(t *testing.T) {
		fake := directory.NewFake()
		p := newTestProvisioner(fake)

		_, _, err := p.CreateWorkspace(ctx, "…", "", nil)
		require.Error(t, err)
		assert.Zero(t, fake.Mutations())
	})

	t.Run("downstream failures are recorded not raised", func(t *testing.T) {
		fake := directory.NewFake()
		fake.FailWith("CreatePermission", errors.New("directory unavailable"))
		p := newTestProvisioner(fake)

		root, ledger, err := p.CreateWorkspace(ctx, "ACME", "", nil)
		require.NoError(t, err)
		require.NotNil(t, root)

		require.Error(t, ledger.Err())
		var partial *PartialFailureError
		require.ErrorAs(t, ledger.Err(), &partial)
		assert.Equal(t, "ACME", partial.Org)
		assert.Len(t, partial.Failures, len(cat.Scopes()))
		for _, f := range partial.Failures {
			assert.Equal(t, StepPermission, f.Step)
		}
	})
}

func TestDeleteWorkspace(t *testing.T) {
	ctx := context.Background()

	t.Run("removes every org-prefixed artifact", func(t *testing.T) {
		fake := directory.NewFake()
		p := newTestProvisioner(fake)

		_, _, err := p.CreateWorkspace(ctx, "ACME", "", []string{"auth0|owner"})
		require.NoError(t, err)
		require.NoError(t, p.DeleteWorkspace(ctx, "ACME"))

		groups, err := fake.GetGroups(ctx)
		require.NoError(t, err)
		for _, g := range groups {
			assert.NotEqual(t, "ACME", g.Name)
			assert.False(t, catalog.HasOrgPrefix(g.Name, "ACME"))
			_, owned := catalog.RoleFromNestedGroup("ACME", g.Name)
			assert.False(t, owned, "leftover nested group %s", g.Name)
		}
		roles, err := fake.GetRoles(ctx)
		require.NoError(t, err)
		for _, role := range roles {
			assert.False(t, catalog.HasOrgPrefix(role.Name, "ACME"))
		}
		perms, err := fake.GetPermissions(ctx)
		require.NoError(t, err)
		for _, perm := range perms {
			assert.False(t, catalog.HasOrgPrefix(perm.Name, "ACME"))
		}
	})

	t.Run("leaves sibling organizations untouched", func(t *testing.T) {
		fake := directory.NewFake()
		p := newTestProvisioner(fake)

		_, _, err := p.CreateWorkspace(ctx, "ACME", "", nil)
		require.NoError(t, err)
		_, _, err = p.CreateWorkspace(ctx, "GLOBEX", "", nil)
		require.NoError(t, err)

		require.NoError(t, p.DeleteWorkspace(ctx, "ACME"))

		root, err := findRoot(ctx, fake, "GLOBEX")
		require.NoError(t, err)
		nested, err := fake.GetNestedGroups(ctx, root.ID)
		require.NoError(t, err)
		assert.Len(t, nested, len(catalog.Default().Roles))
	})

	t.Run("unknown organization", func(t *testing.T) {
		fake := directory.NewFake()
		p := newTestProvisioner(fake)

		err := p.DeleteWorkspace(ctx, "NOPE")
		require.Error(t, err)
		assert.True(t, directory.IsNotFound(err))
	})

	t.Run("failure aborts the remainder", func(t *testing.T) {
		fake := directory.NewFake()
		p := newTestProvisioner(fake)

		_, _, err := p.CreateWorkspace(ctx, "ACME", "", nil)
		require.NoError(t, err)

		fake.FailWith("DeleteRole", errors.New("directory unavailable"))
		require.Error(t, p.DeleteWorkspace(ctx, "ACME"))

		// The root group survives because role deletion comes first.
		_, err = findRoot(ctx, fake, "ACME")
		require.NoError(t, err)
	})
}

func findRoot(ctx context.Context, fake *directory.Fake, org string) (*directory.Group, error) {
	groups, err := fake.GetGroups(ctx)
	if err != nil {
		return nil, err
	}
	for i := range groups {
		if groups[i].Name == org && groups[i].ParentOrgID == "" {
			return &groups[i], nil
		}
	}
	return nil, directory.ErrNotFound
}
