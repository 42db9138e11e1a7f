package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestLockRepo(t *testing.T) (TurnLockRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisTurnLockRepository(client, zap.NewNop()), mr
}

func TestTurnLock_AcquireAndRelease(t *testing.T) {
	repo, _ := newTestLockRepo(t)
	ctx := context.Background()
	sessionID := uuid.New()

	token, err := repo.Acquire(ctx, sessionID, time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	// Вторая попытка на ту же сессию отклоняется.
	second, err := repo.Acquire(ctx, sessionID, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, second)

	require.NoError(t, repo.Release(ctx, sessionID, token))

	token, err = repo.Acquire(ctx, sessionID, time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestTurnLock_IndependentSessions(t *testing.T) {
	repo, _ := newTestLockRepo(t)
	ctx := context.Background()

	token, err := repo.Acquire(ctx, uuid.New(), time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	token, err = repo.Acquire(ctx, uuid.New(), time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

func TestTurnLock_ExpiresByTTL(t *testing.T) {
	repo, mr := newTestLockRepo(t)
	ctx := context.Background()
	sessionID := uuid.New()

	token, err := repo.Acquire(ctx, sessionID, time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	mr.FastForward(2 * time.Minute)

	token, err = repo.Acquire(ctx, sessionID, time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}

// Держатель, переживший TTL, не должен снимать замок перехватившего хода.
func TestTurnLock_StaleHolderCannotReleaseNewLock(t *testing.T) {
	repo, mr := newTestLockRepo(t)
	ctx := context.Background()
	sessionID := uuid.New()

	stale, err := repo.Acquire(ctx, sessionID, time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, stale)

	mr.FastForward(2 * time.Minute)

	current, err := repo.Acquire(ctx, sessionID, time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, current)

	// Запоздавший Release со старым токеном - no-op.
	require.NoError(t, repo.Release(ctx, sessionID, stale))

	blocked, err := repo.Acquire(ctx, sessionID, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, blocked, "замок текущего хода должен остаться на месте")

	require.NoError(t, repo.Release(ctx, sessionID, current))
}
