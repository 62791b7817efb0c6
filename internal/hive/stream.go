package hive

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/ops"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/pkg/logger"
)

const (
	reconnectBaseBackoff = 2 * time.Second
	reconnectMaxBackoff  = 60 * time.Second
	maxStreamRetries     = 20
	blockPollInterval    = 3 * time.Second
)

// Event is one tracked Hive operation surfaced by Stream, shaped per
// spec §6.1's stream() return type.
type Event struct {
	Type      string
	TrxID     string
	BlockNum  int64
	OpInTrx   int
	Timestamp time.Time
	Payload   []byte
}

// EventHandler processes one Stream event. A returned error is logged
// but does not stop the stream — spec §4.G's ingest keeps advancing so
// long as the underlying block source itself recovers.
type EventHandler func(ctx context.Context, evt Event) error

// StreamOptions configures Stream (spec §4.G).
type StreamOptions struct {
	// StartBlock: a positive value starts there; a negative value means
	// "now minus N blocks" (resolved against the chain head at call time).
	StartBlock int64
	// EndBlock, if > 0, stops the stream once it has processed that block.
	EndBlock int64
	// OpTypesFilter restricts which Hive op_types are yielded. A nil map
	// falls back to ops.TrackedHiveOpTypes, the spec's closed tracked set.
	OpTypesFilter map[string]bool
	// SkewThreshold overrides ops.DefaultSkewThreshold for this stream.
	SkewThreshold time.Duration
}

// Stream is the long-running Hive block consumer (spec §4.G): it walks
// blocks sequentially from opts.StartBlock, de-duplicating/ordering ops
// within a transaction via an ops.BlockCounter, and invokes handler for
// each tracked op. It blocks until ctx is cancelled or opts.EndBlock is
// reached, reconnecting through transient RPC failures with exponential
// backoff and surfacing a *StreamError after exhausting its retry budget.
func (c *Client) Stream(ctx context.Context, opts StreamOptions, handler EventHandler) error {
	startBlock, err := c.resolveStartBlock(ctx, opts.StartBlock)
	if err != nil {
		return fmt.Errorf("hive: resolve start block: %w", err)
	}

	counter, err := ops.NewBlockCounter(startBlock, opts.SkewThreshold)
	if err != nil {
		return fmt.Errorf("hive: %w", err)
	}

	filter := opts.OpTypesFilter
	if filter == nil {
		filter = ops.TrackedHiveOpTypes
	}

	current := startBlock
	backoff := reconnectBaseBackoff
	tries := 0

	for {
		if opts.EndBlock > 0 && current > opts.EndBlock {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		head, err := c.GetDynamicGlobalProperties(ctx)
		if err != nil {
			if surfaced := c.awaitRetry(ctx, "get_dynamic_global_properties", err, &tries, &backoff); surfaced != nil {
				return surfaced
			}
			continue
		}

		if current > head.HeadBlockNumber {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(blockPollInterval):
			}
			continue
		}

		block, err := c.GetBlock(ctx, current)
		if err != nil {
			if surfaced := c.awaitRetry(ctx, "get_block", err, &tries, &backoff); surfaced != nil {
				return surfaced
			}
			continue
		}

		// A successful round resets the retry budget.
		tries = 0
		backoff = reconnectBaseBackoff

		_, gap := counter.Observe(block.BlockNum, "")
		if gap > 0 {
			logger.Warn("hive ingest detected a block gap",
				zap.Int64("expected_after", block.BlockNum-gap-1), zap.Int64("got", block.BlockNum), zap.Int64("gap", gap))
		}

		counter.CheckSkew("hive_time_skew", block.Timestamp, time.Now().UTC())

		for _, tx := range block.Transactions {
			for _, op := range tx.Operations {
				if !filter[op.Type] {
					continue
				}
				opInTrx, _ := counter.Observe(block.BlockNum, tx.TrxID)
				evt := Event{
					Type:      op.Type,
					TrxID:     tx.TrxID,
					BlockNum:  block.BlockNum,
					OpInTrx:   opInTrx,
					Timestamp: block.Timestamp,
					Payload:   op.Payload,
				}
				if err := handler(ctx, evt); err != nil {
					logger.Error("hive event handler failed",
						zap.String("op_type", evt.Type), zap.String("trx_id", evt.TrxID), zap.Error(err))
				}
			}
		}

		current++
	}
}

// awaitRetry backs off (base 2s, cap 60s) and returns nil to signal the
// caller should retry, or a non-nil *StreamError once maxStreamRetries
// is exhausted.
func (c *Client) awaitRetry(ctx context.Context, stage string, cause error, tries *int, backoff *time.Duration) error {
	*tries++
	logger.Warn("hive stream error, backing off",
		zap.String("stage", stage), zap.Int("try", *tries), zap.Error(cause))

	if *tries >= maxStreamRetries {
		return &StreamError{Tries: *tries, Cause: cause}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(*backoff):
	}
	*backoff *= 2
	if *backoff > reconnectMaxBackoff {
		*backoff = reconnectMaxBackoff
	}
	return nil
}

// resolveStartBlock turns a spec §4.G start_block value into an absolute
// block number: non-negative values are used as-is, negative values mean
// "N blocks behind the current head".
func (c *Client) resolveStartBlock(ctx context.Context, startBlock int64) (int64, error) {
	if startBlock >= 0 {
		return startBlock, nil
	}
	head, err := c.GetDynamicGlobalProperties(ctx)
	if err != nil {
		return 0, err
	}
	resolved := head.HeadBlockNumber + startBlock // startBlock is negative
	if resolved < 1 {
		resolved = 1
	}
	return resolved, nil
}
