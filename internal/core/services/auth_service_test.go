package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicecast/internal/core/domain"
)

func TestTokenRoundTrip(t *testing.T) {
	auth := NewAuthService("test-secret", time.Hour)

	token, err := auth.GenerateToken(domain.Identity{
		UserID:   "u1",
		Username: "alice",
		Role:     domain.RoleAdmin,
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("u1"), claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, domain.RoleAdmin, claims.Role)
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	auth := NewAuthService("test-secret", time.Hour)
	other := NewAuthService("other-secret", time.Hour)

	token, err := other.GenerateToken(domain.Identity{UserID: "u1", Role: domain.RoleAdmin})
	require.NoError(t, err)

	_, err = auth.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	auth := NewAuthService("test-secret", time.Hour)

	_, err := auth.ValidateToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	auth := NewAuthService("test-secret", -time.Minute)

	token, err := auth.GenerateToken(domain.Identity{UserID: "u1", Role: domain.RoleAdmin})
	require.NoError(t, err)

	_, err = auth.ValidateToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestCheckBroadcastPermission(t *testing.T) {
	auth := NewAuthService("test-secret", time.Hour)

	assert.NoError(t, auth.CheckBroadcastPermission(&Claims{Role: domain.RoleAdmin}))
	assert.ErrorIs(t, auth.CheckBroadcastPermission(&Claims{Role: domain.RoleMember}), domain.ErrPermissionDenied)
}
