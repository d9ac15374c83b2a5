package accounts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuther(repo *memRepo, opts ...func(*Auther)) *Auther {
	auther := NewAuthenticator(NewIdentityService(repo), repo.profiles, testConfig{signingKey: "test-signing-key"})
	for _, opt := range opts {
		opt(auther)
	}
	return auther
}

func TestLoginIssuesTokenAndDashboards(t *testing.T) {
	repo, _, profile := signupFixture(t)

	repo.profiles.mu.Lock()
	repo.profiles.byID[profile.ID].Status = StatusAccessGranted
	repo.profiles.mu.Unlock()

	auther := newTestAuther(repo)

	result, err := auther.Login(context.Background(), profile.Email, "Sup3rSaf3!pw")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.Equal(t, []Dashboard{DashboardPassenger}, result.Dashboards)
	assert.False(t, result.NeedsChoice)

	claims, err := auther.TokenService().Validate(result.Token)
	require.NoError(t, err)
	assert.Equal(t, profile.ID.String(), claims.UserID())
	assert.Equal(t, RolePassenger, claims.Role())
	assert.False(t, claims.IsAdmin())
}

func TestLoginHybridNeedsChoice(t *testing.T) {
	repo, _, profile := signupFixture(t)

	repo.profiles.mu.Lock()
	repo.profiles.byID[profile.ID].Status = StatusAccessGranted
	repo.profiles.byID[profile.ID].Role = RoleHybrid
	repo.profiles.mu.Unlock()

	result, err := newTestAuther(repo).Login(context.Background(), profile.Email, "Sup3rSaf3!pw")
	require.NoError(t, err)
	assert.ElementsMatch(t, []Dashboard{DashboardDriver, DashboardPassenger}, result.Dashboards)
	assert.True(t, result.NeedsChoice)
}

func TestLoginAdminCapabilityTravelsInToken(t *testing.T) {
	repo, _, profile := signupFixture(t)

	repo.profiles.mu.Lock()
	repo.profiles.byID[profile.ID].Status = StatusAccessGranted
	repo.profiles.mu.Unlock()
	repo.identities.mu.Lock()
	repo.identities.byID[profile.ID].Admin = true
	repo.identities.mu.Unlock()

	auther := newTestAuther(repo)
	result, err := auther.Login(context.Background(), profile.Email, "Sup3rSaf3!pw")
	require.NoError(t, err)
	assert.Contains(t, result.Dashboards, DashboardAdmin)

	claims, err := auther.TokenService().Validate(result.Token)
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin())
}

func TestLoginGrantsTokenButNoDashboardsBeforeApproval(t *testing.T) {
	repo, _, profile := signupFixture(t)

	for _, status := range []AccountStatus{StatusAwaitingEmailVerification, StatusAwaitingAdminApproval, StatusSuspended, StatusRejected} {
		repo.profiles.mu.Lock()
		repo.profiles.byID[profile.ID].Status = status
		repo.profiles.mu.Unlock()

		result, err := newTestAuther(repo).Login(context.Background(), profile.Email, "Sup3rSaf3!pw")
		require.NoError(t, err, "status %s still signs in", status)
		assert.NotEmpty(t, result.Token)
		assert.Empty(t, result.Dashboards, "status %s reaches no dashboard", status)
		assert.False(t, result.NeedsChoice)
	}
}

func TestLoginFailsWithoutProfile(t *testing.T) {
	repo := newMemRepo()
	provider := NewIdentityService(repo)

	_, err := provider.RegisterIdentity(context.Background(), "orphan@example.com", "Sup3rSaf3!pw")
	require.NoError(t, err)

	_, err = newTestAuther(repo).Login(context.Background(), "orphan@example.com", "Sup3rSaf3!pw")
	require.ErrorIs(t, err, ErrProfileNotFound)
}

func TestLoginEmitsActivity(t *testing.T) {
	repo, _, profile := signupFixture(t)
	sink := &recordingSink{}
	auther := newTestAuther(repo, func(a *Auther) { a.WithActivitySink(sink) })

	_, err := auther.Login(context.Background(), profile.Email, "wrong-password")
	require.Error(t, err)
	_, err = auther.Login(context.Background(), profile.Email, "Sup3rSaf3!pw")
	require.NoError(t, err)

	require.Len(t, sink.ofType(ActivityEventLoginFailure), 1)
	require.Len(t, sink.ofType(ActivityEventLoginSuccess), 1)
}

func TestSessionFromToken(t *testing.T) {
	repo, _, profile := signupFixture(t)
	auther := newTestAuther(repo)

	result, err := auther.Login(context.Background(), profile.Email, "Sup3rSaf3!pw")
	require.NoError(t, err)

	session, err := auther.SessionFromToken(result.Token)
	require.NoError(t, err)
	assert.Equal(t, profile.ID.String(), session.GetUserID())

	id, err := session.GetUserUUID()
	require.NoError(t, err)
	assert.Equal(t, profile.ID, id)
	assert.True(t, HasUserUUID(session))

	claims := auther.CurrentSessionClaims(session)
	assert.False(t, claims.Admin)
	assert.Equal(t, RolePassenger, claims.Role)

	restored, err := auther.ProfileFromSession(context.Background(), session)
	require.NoError(t, err)
	assert.Equal(t, profile.ID, restored.ID)
}

func TestSessionFromTokenRejectsGarbage(t *testing.T) {
	repo := newMemRepo()
	auther := newTestAuther(repo)

	_, err := auther.SessionFromToken("not-a-token")
	require.Error(t, err)
	assert.True(t, IsMalformedError(err))
}
