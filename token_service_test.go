package accounts

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenService(expirationHours int) TokenService {
	return NewTokenService([]byte("test-signing-key"), expirationHours, "sharearide-test", []string{"sharearide"}, nil)
}

func TestTokenServiceRoundTrip(t *testing.T) {
	ts := newTestTokenService(24)
	profile := testProfile(StatusAccessGranted, RoleDriver)

	token, err := ts.Generate(profile, true)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ts.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, profile.ID.String(), claims.Subject())
	assert.Equal(t, profile.ID.String(), claims.UserID())
	assert.Equal(t, RoleDriver, claims.Role())
	assert.True(t, claims.IsAdmin())
	assert.True(t, claims.Expires().After(time.Now()))
	assert.False(t, claims.IssuedAt().IsZero())
}

func TestTokenServiceNilProfile(t *testing.T) {
	ts := newTestTokenService(24)
	_, err := ts.Generate(nil, false)
	require.Error(t, err)
}

func TestTokenServiceExpiredToken(t *testing.T) {
	ts := newTestTokenService(-1)
	profile := testProfile(StatusAccessGranted, RolePassenger)

	token, err := ts.Generate(profile, false)
	require.NoError(t, err)

	_, err = ts.Validate(token)
	require.Error(t, err)
	assert.True(t, IsTokenExpiredError(err))
}

func TestTokenServiceWrongKey(t *testing.T) {
	ts := newTestTokenService(24)
	profile := testProfile(StatusAccessGranted, RolePassenger)

	token, err := ts.Generate(profile, false)
	require.NoError(t, err)

	other := NewTokenService([]byte("a-different-key"), 24, "sharearide-test", []string{"sharearide"}, nil)
	_, err = other.Validate(token)
	require.Error(t, err)
	assert.True(t, IsMalformedError(err))
}

func TestTokenServiceIssuerAndAudience(t *testing.T) {
	ts := newTestTokenService(24)
	profile := testProfile(StatusAccessGranted, RolePassenger)

	token, err := ts.Generate(profile, false)
	require.NoError(t, err)

	wrongIssuer := NewTokenService([]byte("test-signing-key"), 24, "someone-else", []string{"sharearide"}, nil)
	_, err = wrongIssuer.Validate(token)
	require.Error(t, err)

	wrongAudience := NewTokenService([]byte("test-signing-key"), 24, "sharearide-test", []string{"other-app"}, nil)
	_, err = wrongAudience.Validate(token)
	require.Error(t, err)
}

func TestSignClaimsAssignsTokenID(t *testing.T) {
	ts := newTestTokenService(24)

	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "sharearide-test",
			Subject:   "subject-1",
			Audience:  jwt.ClaimStrings{"sharearide"},
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UID: "subject-1",
	}

	ensureTokenID(&claims.RegisteredClaims)
	assert.NotEmpty(t, claims.ID)

	token, err := ts.SignClaims(claims)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	_, err = ts.SignClaims(nil)
	require.Error(t, err)
}

func TestSessionFromAuthClaims(t *testing.T) {
	ts := newTestTokenService(24)
	profile := testProfile(StatusAccessGranted, RoleHybrid)

	token, err := ts.Generate(profile, true)
	require.NoError(t, err)

	claims, err := ts.Validate(token)
	require.NoError(t, err)

	session, err := sessionFromAuthClaims(claims)
	require.NoError(t, err)
	assert.Equal(t, profile.ID.String(), session.GetUserID())
	assert.Equal(t, "sharearide-test", session.GetIssuer())
	assert.Equal(t, []string{"sharearide"}, session.GetAudience())
	assert.Equal(t, RoleHybrid, session.Role())
	assert.True(t, session.IsAdmin())
}
