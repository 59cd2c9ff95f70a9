package auth

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medbook/medbook/internal/domain"
)

const testSigningKey = "test-signing-key-at-least-32-chars!!"

func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	svc, err := NewTokenService(testSigningKey)
	require.NoError(t, err)
	return svc
}

// =============================================================================
// TokenService Construction
// =============================================================================

func TestNewTokenService_RejectsShortKey(t *testing.T) {
	svc, err := NewTokenService("too-short")
	assert.Error(t, err)
	assert.Nil(t, svc)
}

// =============================================================================
// Access Tokens
// =============================================================================

func TestAccessToken_RoundTrip(t *testing.T) {
	svc := newTestTokenService(t)

	userID := uuid.New()
	token, expiresAt, err := svc.GenerateAccessToken(userID, "Dr. Alice", domain.RoleDoctor)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.False(t, expiresAt.IsZero())

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)

	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "Dr. Alice", claims.Name)
	assert.Equal(t, domain.RoleDoctor, claims.Role)
	assert.Equal(t, TokenTypeAccess, claims.Type)
	assert.Equal(t, "medbook", claims.Issuer)
	assert.Equal(t, userID.String(), claims.Subject)
}

func TestAccessToken_RejectedWithWrongKey(t *testing.T) {
	svc := newTestTokenService(t)
	other, err := NewTokenService("a-completely-different-key-32chars!!")
	require.NoError(t, err)

	token, _, err := svc.GenerateAccessToken(uuid.New(), "bob", domain.RolePatient)
	require.NoError(t, err)

	claims, err := other.ValidateAccessToken(token)
	assert.Error(t, err)
	assert.Nil(t, claims)
}

func TestAccessToken_RejectsGarbage(t *testing.T) {
	svc := newTestTokenService(t)

	claims, err := svc.ValidateAccessToken("not.a.jwt")
	assert.Error(t, err)
	assert.Nil(t, claims)
}

// =============================================================================
// Refresh Tokens
// =============================================================================

func TestRefreshToken_OpaqueAndUnique(t *testing.T) {
	svc := newTestTokenService(t)

	t1, exp1, err := svc.GenerateRefreshToken()
	require.NoError(t, err)
	t2, _, err := svc.GenerateRefreshToken()
	require.NoError(t, err)

	assert.NotEmpty(t, t1)
	assert.NotEqual(t, t1, t2)
	assert.False(t, exp1.IsZero())

	// Opaque tokens must not validate as access tokens
	claims, err := svc.ValidateAccessToken(t1)
	assert.Error(t, err)
	assert.Nil(t, claims)
}
