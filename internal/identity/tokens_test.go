package identity_test

import (
	"testing"
	"time"

	"github.com/shindakun/resetpassword/internal/identity"
	"github.com/shindakun/resetpassword/internal/identity/identitytest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenVerifierWithSecret(t *testing.T) {
	v := identity.NewTokenVerifier(identitytest.JWTSecret)
	require.True(t, v.Verifies())

	token := identitytest.MintToken(identitytest.JWTSecret, "user-1", "ana@example.com", time.Now().Add(time.Hour))
	claims, err := v.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "ana@example.com", claims.Email)

	forged := identitytest.MintToken("some-other-secret-0123456789abcdef", "user-1", "ana@example.com", time.Now().Add(time.Hour))
	_, err = v.Parse(forged)
	require.Error(t, err)
	assert.NotErrorIs(t, err, identity.ErrTokenExpired)
}

func TestTokenVerifierWithoutSecret(t *testing.T) {
	v := identity.NewTokenVerifier("")
	require.False(t, v.Verifies())

	token := identitytest.MintToken("anything-goes", "user-2", "bia@example.com", time.Now().Add(time.Hour))
	claims, err := v.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "bia@example.com", claims.Email)

	_, err = v.Parse("not-a-jwt")
	require.Error(t, err)
}

func TestTokenVerifierExpired(t *testing.T) {
	expired := identitytest.MintToken(identitytest.JWTSecret, "user-1", "ana@example.com", time.Now().Add(-time.Minute))

	for _, secret := range []string{identitytest.JWTSecret, ""} {
		claims, err := identity.NewTokenVerifier(secret).Parse(expired)
		require.ErrorIs(t, err, identity.ErrTokenExpired)
		require.NotNil(t, claims)
		assert.Equal(t, "ana@example.com", claims.Email)
	}
}
