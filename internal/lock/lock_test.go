//go:build integration

package lock

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/pkg/cache"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/pkg/logger"
)

// ============================================================================
// Integration tests — require a running Redis.
// Run with: go test -tags=integration ./internal/lock/
// ============================================================================

func init() {
	_ = logger.Init("development")
}

func setupTestRedis(t *testing.T) {
	t.Helper()
	err := cache.Init(cache.Config{Host: "localhost", Port: "6379", DB: 3})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = cache.Client.FlushDB(context.Background())
		_ = cache.Close()
	})
}

func TestAcquireRelease_RoundTrip(t *testing.T) {
	setupTestRedis(t)
	ctx := context.Background()

	exists, err := CheckExists(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, exists)

	token, err := Acquire(ctx, "alice", time.Second, time.Second)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	exists, err = CheckExists(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, Release(ctx, "alice", token))

	exists, err = CheckExists(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestAcquire_BlocksConcurrentHolder(t *testing.T) {
	setupTestRedis(t)
	ctx := context.Background()

	token, err := Acquire(ctx, "bob", 5*time.Second, time.Second)
	require.NoError(t, err)

	_, err = Acquire(ctx, "bob", 5*time.Second, 300*time.Millisecond)
	require.ErrorIs(t, err, ErrLockAcquisitionFailed)

	require.NoError(t, Release(ctx, "bob", token))
}

func TestAcquire_SucceedsAfterHolderReleases(t *testing.T) {
	setupTestRedis(t)
	ctx := context.Background()

	token, err := Acquire(ctx, "carol", 5*time.Second, time.Second)
	require.NoError(t, err)

	go func() {
		time.Sleep(200 * time.Millisecond)
		_ = Release(ctx, "carol", token)
	}()

	newToken, err := Acquire(ctx, "carol", 5*time.Second, 2*time.Second)
	require.NoError(t, err)
	assert.NotEqual(t, token, newToken)
}

func TestRelease_NotOwnedWhenTokenMismatch(t *testing.T) {
	setupTestRedis(t)
	ctx := context.Background()

	_, err := Acquire(ctx, "dave", 5*time.Second, time.Second)
	require.NoError(t, err)

	err = Release(ctx, "dave", "someone-elses-token")
	assert.ErrorIs(t, err, ErrNotOwned)
}

func TestRelease_AlreadyExpiredWhenKeyGone(t *testing.T) {
	setupTestRedis(t)
	ctx := context.Background()

	token, err := Acquire(ctx, "erin", 100*time.Millisecond, time.Second)
	require.NoError(t, err)

	time.Sleep(300 * time.Millisecond) // let lease TTL expire

	err = Release(ctx, "erin", token)
	assert.ErrorIs(t, err, ErrAlreadyExpired)
}

func TestClearAll_RemovesEveryLock(t *testing.T) {
	setupTestRedis(t)
	ctx := context.Background()

	_, err := Acquire(ctx, "frank", 5*time.Second, time.Second)
	require.NoError(t, err)
	_, err = Acquire(ctx, "grace", 5*time.Second, time.Second)
	require.NoError(t, err)

	deleted, err := ClearAll(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, deleted, int64(2))

	exists, err := CheckExists(ctx, "frank")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestWithLock_ReleasesOnNormalReturn(t *testing.T) {
	setupTestRedis(t)
	ctx := context.Background()

	var ran int32
	err := WithLock(ctx, "henry", time.Second, time.Second, func(_ context.Context) error {
		atomic.AddInt32(&ran, 1)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), ran)

	exists, err := CheckExists(ctx, "henry")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestWithLock_ReleasesOnError(t *testing.T) {
	setupTestRedis(t)
	ctx := context.Background()

	wantErr := assert.AnError
	err := WithLock(ctx, "irene", time.Second, time.Second, func(_ context.Context) error {
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)

	exists, err := CheckExists(ctx, "irene")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestWithLock_SerializesConcurrentCallers(t *testing.T) {
	setupTestRedis(t)
	ctx := context.Background()

	var inCriticalSection int32
	var maxObserved int32

	run := func() {
		_ = WithLock(ctx, "julia", 2*time.Second, 3*time.Second, func(_ context.Context) error {
			n := atomic.AddInt32(&inCriticalSection, 1)
			if n > maxObserved {
				maxObserved = n
			}
			time.Sleep(150 * time.Millisecond)
			atomic.AddInt32(&inCriticalSection, -1)
			return nil
		})
	}

	done := make(chan struct{}, 2)
	go func() { run(); done <- struct{}{} }()
	go func() { run(); done <- struct{}{} }()
	<-done
	<-done

	assert.LessOrEqual(t, maxObserved, int32(1), "lock should serialize concurrent callers")
}
