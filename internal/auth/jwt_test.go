package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caregrid/sentinel/internal/domain"
)

func newTestJWTManager() *JWTManager {
	return NewJWTManager("test-secret-key", 8*time.Hour)
}

func TestGenerateAndValidateToken(t *testing.T) {
	mgr := newTestJWTManager()
	userID := uuid.New()
	sessionID := uuid.New().String()

	token, err := mgr.GenerateToken(userID, sessionID, "Dr. Okafor", domain.RoleDoctor)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := mgr.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.Subject)
	assert.Equal(t, sessionID, claims.SessionID)
	assert.Equal(t, string(domain.RoleDoctor), claims.Role)
	assert.Equal(t, "Dr. Okafor", claims.DisplayName)

	parsed, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, userID, parsed)
}

func TestTokenWithoutSessionRejected(t *testing.T) {
	mgr := newTestJWTManager()

	token, err := mgr.GenerateToken(uuid.New(), "", "", domain.RoleNurse)
	require.NoError(t, err)

	_, err = mgr.ValidateToken(token)
	assert.Error(t, err)
}

func TestInvalidSecretRejected(t *testing.T) {
	mgr1 := NewJWTManager("secret-1", 8*time.Hour)
	mgr2 := NewJWTManager("secret-2", 8*time.Hour)

	token, err := mgr1.GenerateToken(uuid.New(), uuid.New().String(), "", domain.RoleAdmin)
	require.NoError(t, err)

	_, err = mgr2.ValidateToken(token)
	assert.Error(t, err)
}

func TestExpiredTokenRejected(t *testing.T) {
	mgr := NewJWTManager("secret", 1*time.Millisecond)

	token, err := mgr.GenerateToken(uuid.New(), uuid.New().String(), "", domain.RoleAdmin)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	_, err = mgr.ValidateToken(token)
	assert.Error(t, err)
}
