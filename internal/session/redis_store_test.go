package session

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	sessions, err := NewRedisStore("redis://" + server.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sessions.Close() })
	return sessions, server
}

func TestNewRedisStoreRejectsBadURL(t *testing.T) {
	_, err := NewRedisStore("not a url")
	assert.Error(t, err)
}

func TestSaveAndLookupRefreshSession(t *testing.T) {
	sessions, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, sessions.SaveRefreshSession(ctx, "hash-1", "usr_1", time.Now().Add(time.Hour)))

	user, err := sessions.LookupRefreshSession(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, "usr_1", user.ID)
}

func TestLookupUnknownRefreshSession(t *testing.T) {
	sessions, _ := setupTestRedis(t)

	_, err := sessions.LookupRefreshSession(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestRefreshSessionExpires(t *testing.T) {
	sessions, server := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, sessions.SaveRefreshSession(ctx, "hash-1", "usr_1", time.Now().Add(time.Minute)))
	server.FastForward(2 * time.Minute)

	_, err := sessions.LookupRefreshSession(ctx, "hash-1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestRevokeRefreshSession(t *testing.T) {
	sessions, _ := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, sessions.SaveRefreshSession(ctx, "hash-1", "usr_1", time.Now().Add(time.Hour)))
	require.NoError(t, sessions.RevokeRefreshSession(ctx, "hash-1"))

	_, err := sessions.LookupRefreshSession(ctx, "hash-1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestRevokedAccessTokens(t *testing.T) {
	sessions, server := setupTestRedis(t)
	ctx := context.Background()

	revoked, err := sessions.IsAccessTokenRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, sessions.RevokeAccessToken(ctx, "jti-1", time.Now().Add(time.Minute)))
	revoked, err = sessions.IsAccessTokenRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	server.FastForward(2 * time.Minute)
	revoked, err = sessions.IsAccessTokenRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}
