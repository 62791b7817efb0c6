// Package lock implements the per-customer distributed lock (spec
// §4.J): an advisory guard around every customer-affecting pipeline so
// concurrent inbound events for the same user serialize. Built directly
// on the teacher's own Redis SetNX-lock idiom
// (internal/card/service.go's AcquireTreasuryLock/ReleaseTreasuryLock),
// generalized from a single fixed treasury key to one lock per cust_id,
// blocking acquisition, and ownership-checked release.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/pkg/cache"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/pkg/logger"
)

const (
	keyPrefix             = "lock:cust:"
	defaultLeaseTTL       = 30 * time.Second
	defaultBlockingTO     = 30 * time.Second
	pollInterval          = 200 * time.Millisecond
	stillWaitingLogPeriod = 5 * time.Second
)

// releaseIfOwnedScript atomically deletes key only if its value still
// matches token — the GET-then-DEL teacher's ReleaseTreasuryLock does in
// two calls would race against another holder re-acquiring between them.
var releaseIfOwnedScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

func key(custID string) string {
	return keyPrefix + custID
}

// Acquire blocks until the per-custID lock is obtained or blockingTimeout
// elapses, logging "still waiting" every 5s while it polls (spec §4.J).
// leaseTTL is how long the lock is held before it self-expires if never
// released (defaults to 30s); blockingTimeout is the overall wait budget
// (zero or a negative value uses the 30s default; there is no unlimited
// wait).
// Returns a token that must be passed to Release.
func Acquire(ctx context.Context, custID string, leaseTTL, blockingTimeout time.Duration) (string, error) {
	if leaseTTL <= 0 {
		leaseTTL = defaultLeaseTTL
	}
	if blockingTimeout <= 0 {
		blockingTimeout = defaultBlockingTO
	}

	token := uuid.NewString()
	deadline := time.Now().Add(blockingTimeout)
	lastLog := time.Now()

	for {
		acquired, err := cache.SetNX(ctx, key(custID), token, leaseTTL)
		if err != nil {
			return "", fmt.Errorf("lock: acquire %s: %w", custID, err)
		}
		if acquired {
			return token, nil
		}

		if time.Now().After(deadline) {
			return "", fmt.Errorf("%w: cust_id=%s after %s", ErrLockAcquisitionFailed, custID, blockingTimeout)
		}
		if time.Since(lastLog) >= stillWaitingLogPeriod {
			logger.Info("lock: still waiting to acquire", zap.String("cust_id", custID))
			lastLog = time.Now()
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Release releases the lock held under token. Best-effort: distinguishes
// "not owned" (someone else holds it now) from "already expired" (key is
// simply gone) the way spec §4.J names both sub-cases, but in either
// case the lock is no longer held by the caller, which is what every
// caller actually wants from a deferred Release.
func Release(ctx context.Context, custID, token string) error {
	result, err := releaseIfOwnedScript.Run(ctx, cache.Client, []string{key(custID)}, token).Int64()
	if err != nil {
		return fmt.Errorf("lock: release %s: %w", custID, err)
	}
	if result == 1 {
		return nil
	}

	exists, existsErr := CheckExists(ctx, custID)
	if existsErr == nil && !exists {
		return ErrAlreadyExpired
	}
	return ErrNotOwned
}

// CheckExists reports whether custID currently has a held lock.
func CheckExists(ctx context.Context, custID string) (bool, error) {
	return cache.Exists(ctx, key(custID))
}

// ClearAll removes every held lock. Test-only (spec §4.J).
func ClearAll(ctx context.Context) (int64, error) {
	return cache.ScanDelete(ctx, keyPrefix+"*")
}

// WithLock is the scoped-acquisition construct spec §4.J calls for:
// acquires the per-custID lock, runs fn, and releases on every exit path
// (fn returning normally, fn panicking, or fn returning an error).
func WithLock(ctx context.Context, custID string, leaseTTL, blockingTimeout time.Duration, fn func(ctx context.Context) error) error {
	token, err := Acquire(ctx, custID, leaseTTL, blockingTimeout)
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := Release(ctx, custID, token); releaseErr != nil {
			logger.Warn("lock: release on exit failed", zap.String("cust_id", custID), zap.Error(releaseErr))
		}
	}()
	return fn(ctx)
}
