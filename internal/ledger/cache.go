package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/pkg/cache"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/pkg/logger"
)

// DefaultBalanceTTL is the default cache entry lifetime (spec §4.D).
const DefaultBalanceTTL = 20 * time.Minute

// BalanceCache implements spec §4.D's "hard part": a generation-scoped,
// selectively-invalidated Redis cache of running-balance query results.
// Every method degrades to a cache miss on Redis error — callers always
// fall back to the authoritative Store.
type BalanceCache struct {
	generationKey string
	ttl           time.Duration
}

// NewBalanceCache constructs a BalanceCache. generationKey is the Redis
// key holding the global generation counter (bumping it orphans every
// existing cache key instantly).
func NewBalanceCache(generationKey string, ttl time.Duration) *BalanceCache {
	if ttl <= 0 {
		ttl = DefaultBalanceTTL
	}
	return &BalanceCache{generationKey: generationKey, ttl: ttl}
}

// generation reads the current generation counter, defaulting to 0 (and
// tolerating Redis being down — callers just get generation 0, which is
// stable enough for key construction even if it can't be trusted for
// invalidation bookkeeping across a restart).
func (c *BalanceCache) generation(ctx context.Context) int64 {
	val, err := cache.Get(ctx, c.generationKey)
	if err != nil || val == "" {
		return 0
	}
	var gen int64
	_, scanErr := fmt.Sscanf(val, "%d", &gen)
	if scanErr != nil {
		return 0
	}
	return gen
}

// BumpGeneration instantly orphans every existing cache key (bulk flush).
// Used as the fallback when selective invalidation fails.
func (c *BalanceCache) BumpGeneration(ctx context.Context) {
	if _, err := cache.Incr(ctx, c.generationKey); err != nil {
		logger.Warn("Failed to bump balance cache generation", zap.Error(err))
	}
}

// Key builds the cache key for a balance query on (accountName,
// accountSub), optionally as-of a specific date (zero time means "live").
func (c *BalanceCache) Key(ctx context.Context, accountName, accountSub string, asOf time.Time, age time.Duration) string {
	gen := c.generation(ctx)
	dateComponent := "live"
	if !asOf.IsZero() {
		dateComponent = asOf.Truncate(time.Minute).UTC().Format("2006-01-02T15:04")
	}
	hash := hash16(accountName, accountSub, dateComponent, age.String())
	return fmt.Sprintf("ledger:bal:v%d:%s:%s:%s", gen, accountName, accountSub, hash)
}

func hash16(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Get reads a cached BalanceReport for key, returning (nil, false) on a
// miss or any Redis error.
func (c *BalanceCache) Get(ctx context.Context, key string) (*BalanceReport, bool) {
	raw, err := cache.Get(ctx, key)
	if err != nil || raw == "" {
		return nil, false
	}
	var report BalanceReport
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		logger.Warn("Failed to decode cached balance report", zap.Error(err))
		return nil, false
	}
	return &report, true
}

// Set stores report under key with the cache's configured TTL. Failures
// are logged, not returned — a cache write is never load-bearing.
func (c *BalanceCache) Set(ctx context.Context, key string, report *BalanceReport) {
	raw, err := json.Marshal(report)
	if err != nil {
		logger.Warn("Failed to encode balance report for cache", zap.Error(err))
		return
	}
	if err := cache.Set(ctx, key, raw, c.ttl); err != nil {
		logger.Warn("Failed to write balance report to cache", zap.Error(err))
	}
}

// Invalidate performs the selective invalidation spec §4.D requires:
// scan-delete every cache key matching the two affected (name, sub) globs.
// On any scan/delete failure it falls back to a full generation bump so
// correctness (staleness is never silently tolerated) is preserved.
func (c *BalanceCache) Invalidate(ctx context.Context, accounts ...Account) {
	gen := c.generation(ctx)
	for _, a := range accounts {
		pattern := fmt.Sprintf("ledger:bal:v%d:%s:%s:*", gen, a.Name, a.Sub)
		if _, err := cache.ScanDelete(ctx, pattern); err != nil {
			logger.Warn("Selective balance cache invalidation failed, bumping generation", zap.Error(err))
			c.BumpGeneration(ctx)
			return
		}
	}
}
