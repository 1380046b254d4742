package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zecrypt/vault/internal/common"
)

func TestGenerateAndParseToken(t *testing.T) {
	key := []byte("test-secret")

	token, err := GenerateToken("u1", ScopeFull, key, time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ParseToken(token, key)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, ScopeFull, claims.Scope)
}

func TestParseToken_WrongKey(t *testing.T) {
	token, err := GenerateToken("u1", ScopeTwoStep, []byte("key-a"), time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(token, []byte("key-b"))
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestParseToken_Expired(t *testing.T) {
	key := []byte("test-secret")

	token, err := GenerateToken("u1", ScopeFull, key, -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(token, key)
	assert.ErrorIs(t, err, common.ErrTokenExpired)
}

func TestParseToken_Garbage(t *testing.T) {
	_, err := ParseToken("definitely.not.ajwt", []byte("k"))
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestScopesAreDistinct(t *testing.T) {
	key := []byte("k")

	twoStep, err := GenerateToken("u1", ScopeTwoStep, key, time.Minute)
	require.NoError(t, err)

	claims, err := ParseToken(twoStep, key)
	require.NoError(t, err)
	assert.Equal(t, ScopeTwoStep, claims.Scope)
	assert.NotEqual(t, ScopeFull, claims.Scope)
}
