package accounts

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRegistration() RegisterAccountMessage {
	return RegisterAccountMessage{
		FirstName:       "Maria",
		LastName:        "Santos",
		Gender:          "female",
		Mobile:          "+639171234567",
		City:            "Makati",
		Role:            "passenger",
		Email:           "maria@example.com",
		Password:        "Sup3rSaf3!pw",
		ConfirmPassword: "Sup3rSaf3!pw",
	}
}

func TestRegisterAccountHappyPath(t *testing.T) {
	repo := newMemRepo()
	provider := NewIdentityService(repo)
	sink := &recordingSink{}
	handler := NewRegisterAccountHandler(provider, repo).WithActivitySink(sink)

	profile, err := handler.Execute(context.Background(), validRegistration())
	require.NoError(t, err)

	assert.Equal(t, StatusAwaitingEmailVerification, profile.Status, "every account starts unverified")
	assert.Equal(t, "maria@example.com", profile.Email)
	assert.Equal(t, RolePassenger, profile.Role)

	identity := repo.identities.get(profile.ID)
	require.NotNil(t, identity, "identity and profile share the same key")
	assert.False(t, identity.EmailVerified)
	require.NoError(t, ComparePasswordAndHash("Sup3rSaf3!pw", identity.PasswordHash))

	code := repo.codes.latestFor("maria@example.com", ActionCodeVerifyEmail)
	require.NotNil(t, code, "a verification code is issued at signup")
	assert.Equal(t, ActionCodeRequested, code.Status)

	require.Len(t, sink.ofType(ActivityEventAccountRegistered), 1)
}

func TestRegisterAccountDuplicateEmail(t *testing.T) {
	repo := newMemRepo()
	provider := NewIdentityService(repo)
	handler := NewRegisterAccountHandler(provider, repo)

	_, err := handler.Execute(context.Background(), validRegistration())
	require.NoError(t, err)

	_, err = handler.Execute(context.Background(), validRegistration())
	require.Error(t, err)
	assert.Equal(t, "Email already in use.", UserMessage(err))
}

func TestRegisterAccountCompensatesOrphanedIdentity(t *testing.T) {
	repo := newMemRepo()
	repo.profiles.failCreate = errors.New("profiles collection unavailable")
	provider := NewIdentityService(repo)
	handler := NewRegisterAccountHandler(provider, repo)

	_, err := handler.Execute(context.Background(), validRegistration())
	require.Error(t, err)

	// The identity write is undone so nobody can sign in to a dataless
	// account.
	_, err = repo.identities.GetByEmail(context.Background(), "maria@example.com")
	require.Error(t, err)
}

func TestRegisterAccountValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*RegisterAccountMessage)
	}{
		{"missing first name", func(m *RegisterAccountMessage) { m.FirstName = "" }},
		{"missing last name", func(m *RegisterAccountMessage) { m.LastName = "" }},
		{"bad email", func(m *RegisterAccountMessage) { m.Email = "not-an-email" }},
		{"bad mobile", func(m *RegisterAccountMessage) { m.Mobile = "abc" }},
		{"bad role", func(m *RegisterAccountMessage) { m.Role = "admin" }},
		{"city outside service area", func(m *RegisterAccountMessage) { m.City = "Cebu" }},
		{"weak password", func(m *RegisterAccountMessage) {
			m.Password = "short"
			m.ConfirmPassword = "short"
		}},
		{"mismatched confirmation", func(m *RegisterAccountMessage) { m.ConfirmPassword = "Sup3rSaf3!pw2" }},
	}

	repo := newMemRepo()
	provider := NewIdentityService(repo)
	handler := NewRegisterAccountHandler(provider, repo)

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg := validRegistration()
			tc.mutate(&msg)

			_, err := handler.Execute(context.Background(), msg)
			require.Error(t, err)
		})
	}

	// Nothing was written across all the failed attempts.
	profiles, err := repo.profiles.ListProfiles(context.Background(), ProfileFilter{})
	require.NoError(t, err)
	assert.Empty(t, profiles)
}

func TestRegisterAccountEmptyCityIsAllowed(t *testing.T) {
	repo := newMemRepo()
	handler := NewRegisterAccountHandler(NewIdentityService(repo), repo)

	msg := validRegistration()
	msg.City = ""

	_, err := handler.Execute(context.Background(), msg)
	require.NoError(t, err)
}

func TestRegisterAccountSurfacesStoreTimeout(t *testing.T) {
	repo := newMemRepo()
	repo.profiles.failCreate = context.DeadlineExceeded
	provider := NewIdentityService(repo)
	handler := NewRegisterAccountHandler(provider, repo)

	_, err := handler.Execute(context.Background(), validRegistration())
	require.Error(t, err)

	// A hung store surfaces as the timeout kind, not a generic internal
	// failure.
	assert.True(t, IsTimeout(err))
	assert.Equal(t, "The request timed out. Please try again.", UserMessage(err))
}

func TestRegisterAccountCancelledContext(t *testing.T) {
	repo := newMemRepo()
	handler := NewRegisterAccountHandler(NewIdentityService(repo), repo)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := handler.Execute(ctx, validRegistration())
	require.Error(t, err)
}
