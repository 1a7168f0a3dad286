package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken_RoundTrip(t *testing.T) {
	userID := uuid.New()
	token, err := GenerateToken("test-secret", userID, "agent@minibank.sn", "AGENT", time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken("test-secret", token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "agent@minibank.sn", claims.Email)
	assert.Equal(t, "AGENT", claims.Type)
}

func TestToken_WrongSecretRejected(t *testing.T) {
	token, err := GenerateToken("secret-a", uuid.New(), "a@b.c", "AGENT", time.Hour)
	require.NoError(t, err)

	_, err = ParseToken("secret-b", token)
	assert.Error(t, err)
}

func TestToken_ExpiredRejected(t *testing.T) {
	token, err := GenerateToken("test-secret", uuid.New(), "a@b.c", "AGENT", -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken("test-secret", token)
	assert.Error(t, err)
}

func TestRevocationList_NilClientNeverRevokes(t *testing.T) {
	// Without Redis the list degrades to "nothing is revoked" instead
	// of blocking logins.
	list := NewRevocationList(nil)

	assert.NoError(t, list.Revoke("some-token", time.Hour))
	revoked, err := list.IsRevoked("some-token")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRevocationList_NilReceiver(t *testing.T) {
	var list *RevocationList
	assert.NoError(t, list.Revoke("tok", time.Minute))
	revoked, err := list.IsRevoked("tok")
	require.NoError(t, err)
	assert.False(t, revoked)
}
