// Package monitor implements the change-stream monitor (spec §4.I):
// "post-persistence dispatch" that guarantees a downstream handler runs
// after a source-of-truth Mongo write is durable, at least once.
// Handlers must be idempotent.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/pkg/cache"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/pkg/logger"
)

const (
	reconnectBaseBackoff = 2 * time.Second
	reconnectMaxBackoff  = 60 * time.Second
	maxWatchRetries      = 20
)

// Handler processes one dispatched document. target is the Target.Name
// that produced it. Handlers must be idempotent — the same document can
// be redelivered after a resume.
type Handler func(ctx context.Context, target string, fullDocument bson.M) error

// Monitor runs one change-stream watcher per Target, each in its own
// goroutine, dispatching correlated documents to handler.
type Monitor struct {
	redisKeyPrefix string
}

// New constructs a Monitor. redisKeyPrefix namespaces the resume-token
// keys it stores in Redis (e.g. "monitor:resume").
func New(redisKeyPrefix string) *Monitor {
	if redisKeyPrefix == "" {
		redisKeyPrefix = "monitor:resume"
	}
	return &Monitor{redisKeyPrefix: redisKeyPrefix}
}

// Run watches every target until ctx is cancelled or a target's retry
// budget is exhausted, whichever comes first. It blocks.
func (m *Monitor) Run(ctx context.Context, targets []Target, handler Handler) error {
	errCh := make(chan error, len(targets))
	for _, target := range targets {
		go func(t Target) {
			errCh <- m.watch(ctx, t, handler)
		}(target)
	}

	var firstErr error
	for range targets {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *Monitor) resumeKey(target string) string {
	return fmt.Sprintf("%s:%s", m.redisKeyPrefix, target)
}

// watch runs target's change stream with automatic reconnect/backoff,
// returning when ctx is cancelled, retries are exhausted, or the stream
// ends without an error.
func (m *Monitor) watch(ctx context.Context, target Target, handler Handler) error {
	tries := 0
	backoff := reconnectBaseBackoff
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := m.watchOnce(ctx, target, handler)
		if err == nil {
			return nil // stream ended without an error and ctx is still live
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		tries++
		if tries >= maxWatchRetries {
			return &WatchError{Target: target.Name, Cause: fmt.Errorf("exhausted %d retries: %w", tries, err)}
		}

		if isNonResumable(err) {
			logger.Error("monitor: resume token invalid, dropping and restarting from now",
				zap.String("target", target.Name), zap.Error(err))
			if _, delErr := cache.Delete(ctx, m.resumeKey(target.Name)); delErr != nil {
				logger.Warn("monitor: failed to delete stale resume token", zap.String("target", target.Name), zap.Error(delErr))
			}
			tries = 0
			backoff = reconnectBaseBackoff
			continue
		}

		logger.Warn("monitor: watch error, retrying", zap.String("target", target.Name), zap.Int("tries", tries), zap.Error(err))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
		if backoff > reconnectMaxBackoff {
			backoff = reconnectMaxBackoff
		}
	}
}

// watchOnce opens one change stream for target and drains it until it
// errors or ctx is cancelled.
func (m *Monitor) watchOnce(ctx context.Context, target Target, handler Handler) error {
	pipeline := buildPipeline(target)
	streamOpts := options.ChangeStream().SetFullDocument(options.UpdateLookup)

	if token := m.loadResumeToken(ctx, target.Name); token != nil {
		streamOpts.SetResumeAfter(token)
	}

	stream, err := target.Collection.Watch(ctx, pipeline, streamOpts)
	if err != nil {
		return err
	}
	defer stream.Close(ctx)

	for stream.Next(ctx) {
		var event changeEvent
		if err := stream.Decode(&event); err != nil {
			logger.Error("monitor: failed to decode change event", zap.String("target", target.Name), zap.Error(err))
			continue
		}

		if target.Correlate != nil && !target.Correlate(event.FullDocument) {
			m.saveResumeToken(ctx, target.Name, stream.ResumeToken())
			continue
		}

		if err := handler(ctx, target.Name, event.FullDocument); err != nil {
			logger.Error("monitor: handler failed, will redeliver on resume", zap.String("target", target.Name), zap.Error(err))
		}
		m.saveResumeToken(ctx, target.Name, stream.ResumeToken())
	}
	if err := stream.Err(); err != nil {
		return err
	}
	return ctx.Err()
}

type changeEvent struct {
	OperationType     string                 `bson:"operationType"`
	FullDocument      bson.M                 `bson:"fullDocument"`
	UpdateDescription updateDescriptionEvent `bson:"updateDescription"`
}

type updateDescriptionEvent struct {
	UpdatedFields bson.M `bson:"updatedFields"`
}

// buildPipeline narrows the change stream to inserts/updates/replaces,
// the target's op_type (when set) and its ignored-fields rule.
func buildPipeline(target Target) mongo.Pipeline {
	matchConds := bson.A{
		bson.D{{Key: "operationType", Value: bson.D{{Key: "$in", Value: bson.A{"insert", "update", "replace"}}}}},
	}
	if target.OpTypeFilter != "" {
		matchConds = append(matchConds, bson.D{{Key: "fullDocument.op_type", Value: string(target.OpTypeFilter)}})
	}
	if len(target.IgnoredFields) > 0 {
		matchConds = append(matchConds, ignoredFieldsOnlyCond(target.IgnoredFields))
	}

	return mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{{Key: "$and", Value: matchConds}}}},
	}
}

// ignoredFieldsOnlyCond matches every change EXCEPT an update whose
// updatedFields are entirely a subset of ignored — i.e. it lets through
// inserts/replaces unconditionally, and updates that touch at least one
// field outside the ignored list.
func ignoredFieldsOnlyCond(ignored []string) bson.D {
	ignoredArr := make(bson.A, len(ignored))
	for i, f := range ignored {
		ignoredArr[i] = f
	}
	return bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "operationType", Value: bson.D{{Key: "$ne", Value: "update"}}}},
		bson.D{{Key: "$expr", Value: bson.D{{Key: "$not", Value: bson.D{{Key: "$setIsSubset", Value: bson.A{
			bson.D{{Key: "$map", Value: bson.D{
				{Key: "input", Value: bson.D{{Key: "$objectToArray", Value: "$updateDescription.updatedFields"}}},
				{Key: "as", Value: "f"},
				{Key: "in", Value: "$$f.k"},
			}}},
			ignoredArr,
		}}}}}}},
	}}}
}

// loadResumeToken reads target's stored resume token from Redis, nil if
// none is stored or it fails to decode (treated the same as "no token",
// which starts a fresh stream at the current time).
func (m *Monitor) loadResumeToken(ctx context.Context, target string) bson.Raw {
	val, err := cache.Get(ctx, m.resumeKey(target))
	if err != nil || val == "" {
		return nil
	}
	var token bson.Raw
	if err := bson.UnmarshalExtJSON([]byte(val), true, &token); err != nil {
		logger.Warn("monitor: failed to decode stored resume token", zap.String("target", target), zap.Error(err))
		return nil
	}
	return token
}

func (m *Monitor) saveResumeToken(ctx context.Context, target string, token bson.Raw) {
	if token == nil {
		return
	}
	encoded, err := bson.MarshalExtJSON(token, true, true)
	if err != nil {
		logger.Warn("monitor: failed to encode resume token", zap.String("target", target), zap.Error(err))
		return
	}
	if err := cache.Set(ctx, m.resumeKey(target), string(encoded), 0); err != nil {
		logger.Warn("monitor: failed to persist resume token", zap.String("target", target), zap.Error(err))
	}
}

// isNonResumable reports whether err is the class of change-stream error
// spec §4.I calls out by name: resume token not found, or the oplog has
// rolled past it. The mongo driver surfaces both as a CommandError with
// the "resumable" label cleared; ErrMissingResumeToken covers the local
// case of an empty/invalid stored token.
func isNonResumable(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return !cmdErr.HasErrorLabel("ResumableChangeStreamError")
	}
	return errors.Is(err, mongo.ErrMissingResumeToken)
}
