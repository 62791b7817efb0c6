package oracle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/money"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/pkg/logger"
)

// FreshWindow is the spec §4.B default freshness window: a quote older
// than this triggers a refresh at next use.
const FreshWindow = 600 * time.Second

// DefaultMaxWindow is nearest_quote's default search window.
const DefaultMaxWindow = time.Hour

// ErrQuoteNotFound is returned by NearestQuote when no document lies
// within the requested window.
var ErrQuoteNotFound = errors.New("oracle: no quote found within window")

// quoteDoc is the BSON shape persisted to the rates_ts time-series
// collection (timeField "timestamp", metaField "pair").
type quoteDoc struct {
	Timestamp time.Time `bson:"timestamp"`
	Pair      string    `bson:"pair"`
	HiveUSD   float64   `bson:"hive_usd"`
	HBDUSD    float64   `bson:"hbd_usd"`
	BTCUSD    float64   `bson:"btc_usd"`
	HiveHBD   float64   `bson:"hive_hbd"`
	Source    string    `bson:"source"`
}

// Cache is the price oracle: an in-memory most-recent Quote plus the
// persistent rates_ts collection, queried via AllQuotes/NearestQuote.
type Cache struct {
	coll    *mongo.Collection
	sources []Source
	hiveHBD HiveInternalMarketFunc

	mu      sync.RWMutex
	current money.Quote
}

// NewCache constructs a Cache. sources supplies the USD-rate providers
// (spec: coinbase/coingecko/bitstamp/binance); hiveHBD supplies the Hive
// internal-market HIVE/HBD rate.
func NewCache(coll *mongo.Collection, sources []Source, hiveHBD HiveInternalMarketFunc) *Cache {
	return &Cache{coll: coll, sources: sources, hiveHBD: hiveHBD}
}

// Current returns the in-memory most-recent Quote and whether it is fresh
// as of now.
func (c *Cache) Current(now time.Time) (money.Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current, c.current.Fresh(now, FreshWindow)
}

// AllQuotes queries every configured USD source in parallel, retains the
// successful ones, and merges them via the median-of-USD-rates policy
// (spec §4.B); hive_hbd comes from the Hive internal market, independent
// of the USD merge. The merged Quote is stamped with FetchDate=now,
// stored as the in-memory current quote, and persisted to rates_ts.
func (c *Cache) AllQuotes(ctx context.Context, now time.Time) (money.Quote, error) {
	type result struct {
		price float64
		err   error
	}
	results := make([]result, len(c.sources))
	var wg sync.WaitGroup
	for i, src := range c.sources {
		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()
			price, err := src.GetPrice(ctx, "usd")
			if err != nil {
				logger.Warn("Price source failed", zap.String("source", src.Name()), zap.Error(err))
			}
			results[i] = result{price: price, err: err}
		}(i, src)
	}
	wg.Wait()

	var btcUSDSamples []float64
	for _, r := range results {
		if r.err == nil && r.price > 0 {
			btcUSDSamples = append(btcUSDSamples, r.price)
		}
	}
	if len(btcUSDSamples) == 0 {
		return money.Quote{}, fmt.Errorf("oracle: all price sources failed")
	}
	btcUSD := median(btcUSDSamples)

	hiveHBD := 1.0
	if c.hiveHBD != nil {
		rate, err := c.hiveHBD(ctx)
		if err != nil {
			logger.Warn("Hive internal market fetch failed, falling back to 1:1", zap.Error(err))
		} else if rate > 0 {
			hiveHBD = rate
		}
	}

	// hive_usd and hbd_usd are not independently sourced by any of these
	// exchanges: hbd_usd is carried over from the most recent in-memory
	// quote if present, else HBD is treated as a USD-pegged stablecoin
	// (hbd_usd=1); hive_usd is then hbd_usd * hive_hbd. btc_usd is not
	// used for either.
	hbdUSD := 1.0
	c.mu.RLock()
	if !c.current.FetchDate.IsZero() {
		hbdUSD = float64(c.current.HBDUSD)
	}
	c.mu.RUnlock()
	hiveUSD := hbdUSD * hiveHBD

	q, err := money.NewQuote(money.Rate(hiveUSD), money.Rate(hbdUSD), money.Rate(btcUSD), money.Rate(hiveHBD), "merged:median", now)
	if err != nil {
		return money.Quote{}, fmt.Errorf("oracle: merged quote invalid: %w", err)
	}

	c.mu.Lock()
	c.current = q
	c.mu.Unlock()

	if c.coll != nil {
		if err := c.persist(ctx, q); err != nil {
			logger.Error("Failed to persist quote to rates_ts", zap.Error(err))
		}
	}
	return q, nil
}

func median(xs []float64) float64 {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func (c *Cache) persist(ctx context.Context, q money.Quote) error {
	doc := quoteDoc{
		Timestamp: q.FetchDate,
		Pair:      "BTC-USD",
		HiveUSD:   float64(q.HiveUSD),
		HBDUSD:    float64(q.HBDUSD),
		BTCUSD:    float64(q.BTCUSD),
		HiveHBD:   float64(q.HiveHBD),
		Source:    q.Source,
	}
	_, err := c.coll.InsertOne(ctx, doc)
	return err
}

// NearestQuote returns the rates_ts document whose timestamp is nearest
// to t within maxWindow (0 uses DefaultMaxWindow), optionally filtered by
// pair. Ties prefer the document with timestamp <= t (past-biased).
func (c *Cache) NearestQuote(ctx context.Context, t time.Time, maxWindow time.Duration, pair string) (money.Quote, error) {
	if maxWindow <= 0 {
		maxWindow = DefaultMaxWindow
	}
	lower := t.Add(-maxWindow)
	upper := t.Add(maxWindow)

	filter := bson.M{"timestamp": bson.M{"$gte": lower, "$lte": upper}}
	if pair != "" {
		filter["pair"] = pair
	}

	past, err := c.closest(ctx, filter, t, false)
	if err != nil {
		return money.Quote{}, err
	}
	future, err := c.closest(ctx, filter, t, true)
	if err != nil {
		return money.Quote{}, err
	}

	switch {
	case past == nil && future == nil:
		return money.Quote{}, ErrQuoteNotFound
	case past == nil:
		return toQuote(*future), nil
	case future == nil:
		return toQuote(*past), nil
	default:
		pastDelta := t.Sub(past.Timestamp)
		futureDelta := future.Timestamp.Sub(t)
		if futureDelta < pastDelta {
			return toQuote(*future), nil
		}
		return toQuote(*past), nil // tie or past-closer: past-biased
	}
}

// closest finds the single nearest doc on one side of t (future=true
// means timestamp > t, ascending sort by distance; false means <= t,
// descending sort by distance).
func (c *Cache) closest(ctx context.Context, base bson.M, t time.Time, future bool) (*quoteDoc, error) {
	filter := bson.M{}
	for k, v := range base {
		filter[k] = v
	}
	var sortDir int
	if future {
		filter["timestamp"] = mergeGTE(base["timestamp"], bson.M{"$gt": t})
		sortDir = 1
	} else {
		filter["timestamp"] = mergeGTE(base["timestamp"], bson.M{"$lte": t})
		sortDir = -1
	}

	opts := options.FindOne().SetSort(bson.D{{Key: "timestamp", Value: sortDir}})
	var doc quoteDoc
	err := c.coll.FindOne(ctx, filter, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("oracle: nearest_quote query: %w", err)
	}
	return &doc, nil
}

func mergeGTE(base interface{}, extra bson.M) bson.M {
	out := bson.M{}
	if m, ok := base.(bson.M); ok {
		for k, v := range m {
			out[k] = v
		}
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func toQuote(d quoteDoc) money.Quote {
	return money.Quote{
		HiveUSD:   money.Rate(d.HiveUSD),
		HBDUSD:    money.Rate(d.HBDUSD),
		BTCUSD:    money.Rate(d.BTCUSD),
		HiveHBD:   money.Rate(d.HiveHBD),
		Source:    d.Source,
		FetchDate: d.Timestamp,
	}
}
