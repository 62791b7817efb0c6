package ops

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/pkg/logger"
)

// trxLRUSize is the spec §4.G 50-entry trx_id dedup window.
const trxLRUSize = 50

// DefaultSkewThreshold is the default allowed gap between an event's
// timestamp and wall-clock before an operator alert fires.
const DefaultSkewThreshold = 10 * time.Second

// BlockCounter tracks the Hive ingest's position in the block stream: the
// last fully-processed block, the block currently being processed, a
// short-lived trx_id dedup window (so a trx containing multiple tracked
// ops gets a correct op_in_trx), and a time-skew alert with error-code
// deduplication.
type BlockCounter struct {
	mu             sync.Mutex
	lastGoodBlock  int64
	currentBlock   int64
	seenTrx        *lru.Cache[string, int]
	skewThreshold  time.Duration
	alertedCodes   map[string]bool
}

// NewBlockCounter constructs a BlockCounter starting at startBlock.
func NewBlockCounter(startBlock int64, skewThreshold time.Duration) (*BlockCounter, error) {
	cache, err := lru.New[string, int](trxLRUSize)
	if err != nil {
		return nil, fmt.Errorf("ops: new block counter: %w", err)
	}
	if skewThreshold <= 0 {
		skewThreshold = DefaultSkewThreshold
	}
	return &BlockCounter{
		lastGoodBlock: startBlock - 1,
		currentBlock:  startBlock,
		seenTrx:       cache,
		skewThreshold: skewThreshold,
		alertedCodes:  map[string]bool{},
	}, nil
}

// Observe records one incoming Hive event: advances the block counter if
// blockNum is new, and returns op_in_trx — the 0-based index of this op
// among ops already seen for trxID within the current dedup window.
// Advancing blocks resets the per-trx counter implicitly since the LRU
// evicts old trx_ids.
func (c *BlockCounter) Observe(blockNum int64, trxID string) (opInTrx int, gap int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if blockNum > c.currentBlock {
		gap = blockNum - c.currentBlock - 1
		c.lastGoodBlock = c.currentBlock
		c.currentBlock = blockNum
	}

	n, _ := c.seenTrx.Get(trxID)
	c.seenTrx.Add(trxID, n+1)
	return n, gap
}

// Positions returns (last_good_block, current_block).
func (c *BlockCounter) Positions() (lastGood, current int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastGoodBlock, c.currentBlock
}

// CheckSkew compares eventTime to wall-clock now; if the gap exceeds the
// configured threshold it raises (logs) an operator alert tagged with
// code, but only once per code until ClearSkew(code) is called — a
// persistent skew does not spam the log on every event.
func (c *BlockCounter) CheckSkew(code string, eventTime, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	skew := now.Sub(eventTime)
	if skew < 0 {
		skew = -skew
	}
	if skew <= c.skewThreshold {
		delete(c.alertedCodes, code)
		return false
	}
	if c.alertedCodes[code] {
		return true // already alerted, suppressed
	}
	c.alertedCodes[code] = true
	logger.Warn("Hive ingest time skew exceeds threshold",
		zap.String("code", code), zap.Duration("skew", skew), zap.Duration("threshold", c.skewThreshold),
		zap.Bool("notification", true))
	return true
}

// ClearSkew forgets that code was already alerted, so the next
// CheckSkew breach for it logs again.
func (c *BlockCounter) ClearSkew(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.alertedCodes, code)
}
