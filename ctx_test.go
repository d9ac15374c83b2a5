package accounts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileContextRoundTrip(t *testing.T) {
	profile := testProfile(StatusAccessGranted, RoleDriver)

	ctx := WithContext(context.Background(), profile)
	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, profile.ID, got.ID)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
}

func TestClaimsContextRoundTrip(t *testing.T) {
	claims := &JWTClaims{UID: "user-1", UserRole: string(RolePassenger), Admin: true}

	ctx := WithClaimsContext(context.Background(), claims)
	got, ok := GetClaims(ctx)
	require.True(t, ok)
	assert.Equal(t, "user-1", got.UserID())

	assert.True(t, IsAdminContext(ctx))
	assert.False(t, IsAdminContext(context.Background()))
}

func TestScopeContextRoundTrip(t *testing.T) {
	hub := NewWatchHub()
	scope := NewSessionScope(hub)
	defer scope.Close()

	ctx := WithScopeContext(context.Background(), scope)
	got, ok := ScopeFromContext(ctx)
	require.True(t, ok)
	assert.Same(t, scope, got)

	_, ok = ScopeFromContext(context.Background())
	assert.False(t, ok)
}

func TestHasUserUUID(t *testing.T) {
	assert.False(t, HasUserUUID(nil))
	assert.False(t, HasUserUUID(&SessionObject{UserID: "not-a-uuid"}))
	assert.True(t, HasUserUUID(&SessionObject{UserID: "0e7de91a-7a18-46dc-ab34-2e59cc5d9872"}))
}
