package jwttoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authmw "ledgerd/pkg/platform/middleware/auth"
)

func newService() *JWTService {
	return NewJWTService("test-signing-key", "ledgerd", "evidence-api")
}

func TestGenerateAndValidate(t *testing.T) {
	svc := newService()

	token, err := svc.GenerateAccessToken("acme", "ci-bot", []string{authmw.PermEvidenceWrite}, time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "acme", claims.TenantID)
	assert.Equal(t, "ci-bot", claims.ActorID)
	assert.Equal(t, []string{authmw.PermEvidenceWrite}, claims.Permissions)
}

func TestValidateExpiredToken(t *testing.T) {
	svc := newService()

	token, err := svc.GenerateAccessToken("acme", "ci-bot", nil, -time.Minute)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestValidateWrongKey(t *testing.T) {
	token, err := newService().GenerateAccessToken("acme", "ci-bot", nil, time.Hour)
	require.NoError(t, err)

	other := NewJWTService("different-key", "ledgerd", "evidence-api")
	_, err = other.ValidateToken(token)
	require.Error(t, err)
}

func TestValidateGarbage(t *testing.T) {
	_, err := newService().ValidateToken("not-a-jwt")
	require.Error(t, err)
}

func TestAdapterMapsClaims(t *testing.T) {
	svc := newService()
	adapter := NewJWTServiceAdapter(svc)

	token, err := svc.GenerateAccessToken("acme", "ci-bot", []string{authmw.PermEvidenceRead}, time.Hour)
	require.NoError(t, err)

	claims, err := adapter.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "acme", claims.TenantID)
	assert.Equal(t, []string{authmw.PermEvidenceRead}, claims.Permissions)
}
