package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OmarEhab007/wiregate/internal/domain"
	"github.com/OmarEhab007/wiregate/internal/protocol"
)

func TestLoginSuccessAndFailure(t *testing.T) {
	ctx := context.Background()
	s := New("")

	_, err := s.CreateUser(ctx, "alice", "correct-horse", []string{"writer"})
	require.NoError(t, err)

	sess, err := s.Login(ctx, "alice", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, []string{"writer"}, sess.Roles)
	assert.NotEmpty(t, sess.Token)

	_, err = s.Login(ctx, "alice", "wrong-password")
	require.Error(t, err)
	assert.Equal(t, protocol.CodeUnauthorized, err.(*protocol.Error).Code)

	_, err = s.Login(ctx, "nobody", "whatever")
	require.Error(t, err)
}

func TestLoginWithSecret(t *testing.T) {
	ctx := context.Background()

	noBootstrap := New("")
	_, err := noBootstrap.LoginWithSecret(ctx, "anything")
	require.Error(t, err)

	s := New("top-secret")
	_, err = s.LoginWithSecret(ctx, "wrong")
	require.Error(t, err)

	sess, err := s.LoginWithSecret(ctx, "top-secret")
	require.NoError(t, err)
	assert.True(t, sess.HasRole("superadmin"))
	assert.Equal(t, "superadmin", sess.UserID)
}

func TestValidateSessionExpiry(t *testing.T) {
	ctx := context.Background()
	s := New("")
	_, err := s.CreateUser(ctx, "bob", "pw", nil)
	require.NoError(t, err)
	sess, err := s.Login(ctx, "bob", "pw")
	require.NoError(t, err)

	got, err := s.ValidateSession(ctx, sess.Token)
	require.NoError(t, err)
	require.NotNil(t, got)

	// Force expiry and confirm lazy eviction.
	expired := int64(0)
	s.mu.Lock()
	s.sessions[sess.Token].ExpiresAt = &expired
	s.mu.Unlock()

	got, err = s.ValidateSession(ctx, sess.Token)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, ok := s.sessions[sess.Token]
	assert.False(t, ok)
}

func TestACLAndOwnership(t *testing.T) {
	ctx := context.Background()
	s := New("")

	require.NoError(t, s.GrantACL(ctx, domain.ACLEntry{
		SubjectType:  "user",
		SubjectID:    "u1",
		ResourceType: "bucket",
		ResourceName: "orders",
		Operations:   []string{"write"},
	}))

	entries, err := s.ListACL(ctx, "user", "u1")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NoError(t, s.RevokeACL(ctx, entries[0].ID))
	entries, err = s.ListACL(ctx, "user", "u1")
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, s.SetOwner(ctx, "bucket", "orders", "u1"))
	owner, ok, err := s.GetOwner(ctx, "bucket", "orders")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "u1", owner)
}

func TestRolePermissionsSeed(t *testing.T) {
	ctx := context.Background()
	s := New("")
	s.SeedRolePermissions("analyst", []domain.RolePermission{
		{Role: "analyst", Allow: []string{"store.get"}, Buckets: []string{"orders"}},
	})

	perms, err := s.RolePermissions(ctx, "analyst")
	require.NoError(t, err)
	require.Len(t, perms, 1)
	assert.Equal(t, []string{"store.get"}, perms[0].Allow)
}

func TestUserAndRoleLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New("")

	u, err := s.CreateUser(ctx, "carol", "pw", []string{"reader"})
	require.NoError(t, err)

	_, err = s.CreateUser(ctx, "carol", "pw2", nil)
	require.Error(t, err)

	require.NoError(t, s.UpdateUserRoles(ctx, u.ID, []string{"writer", "reader"}))
	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"writer", "reader"}, got.Roles)

	require.NoError(t, s.CreateRole(ctx, "analyst"))
	require.Error(t, s.CreateRole(ctx, "analyst"))

	roles, err := s.ListRoles(ctx)
	require.NoError(t, err)
	assert.Contains(t, roles, "analyst")

	require.NoError(t, s.DeleteRole(ctx, "analyst"))
	require.Error(t, s.DeleteRole(ctx, "analyst"))

	require.NoError(t, s.DeleteUser(ctx, u.ID))
	_, err = s.GetUser(ctx, u.ID)
	require.Error(t, err)
}
