// Package notify implements the notification dispatcher (spec §4.N):
// mechanical construction of a user-visible memo and an internal log
// entry for a tracked operation and a reason. It never decides policy —
// policy (whether/when to notify) lives in the pipelines that call it.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/ops"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/pkg/logger"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/pkg/queue"
)

// DefaultStream is the Redis stream name the dispatcher publishes to —
// pkg/queue's "notification sink bus" a downstream bot/sidecar consumes.
const DefaultStream = "v4vapp:notifications"

// Notification is the dispatcher's output: a user-facing memo and the
// internal audit record for one reason on one tracked operation.
type Notification struct {
	GroupID   string    `json:"group_id"`
	ShortID   string    `json:"short_id"`
	CustID    string    `json:"cust_id"`
	Reason    string    `json:"reason"`
	Memo      string    `json:"memo"`
	Timestamp time.Time `json:"timestamp"`
}

// Build constructs the Notification for op and reason. The user-visible
// memo always contains "§ <short_id>" (spec §4.N) so a customer's wallet
// client or support staff can correlate a payment memo back to the
// originating tracked operation.
func Build(op ops.TrackedOperation, reason string) Notification {
	base := op.TrackedBase()
	return Notification{
		GroupID:   base.GroupID,
		ShortID:   base.ShortID,
		CustID:    base.CustID,
		Reason:    reason,
		Memo:      fmt.Sprintf("%s § %s", reason, base.ShortID),
		Timestamp: time.Now(),
	}
}

// Dispatcher logs every notification (tagged notification=true, the
// internal log entry spec §4.N requires) and publishes it to the
// notification sink bus for a downstream consumer.
type Dispatcher struct {
	queue  *queue.StreamQueue
	stream string
}

// NewDispatcher constructs a Dispatcher. stream defaults to
// DefaultStream.
func NewDispatcher(q *queue.StreamQueue, stream string) *Dispatcher {
	if stream == "" {
		stream = DefaultStream
	}
	return &Dispatcher{queue: q, stream: stream}
}

// Notify builds and dispatches a Notification for op/reason: logs it
// internally, then publishes it to the sink bus. Publish failures are
// logged, not returned — a lost notification must never fail the
// pipeline that produced it.
func (d *Dispatcher) Notify(ctx context.Context, op ops.TrackedOperation, reason string) Notification {
	n := Build(op, reason)

	logger.Info(reason,
		zap.String("group_id", n.GroupID),
		zap.String("short_id", n.ShortID),
		zap.String("cust_id", n.CustID),
		zap.Bool("notification", true),
	)

	if d.queue == nil {
		return n
	}
	payload, err := json.Marshal(n)
	if err != nil {
		logger.Warn("notify: failed to encode notification for sink bus", zap.String("group_id", n.GroupID), zap.Error(err))
		return n
	}
	if _, err := d.queue.Publish(ctx, d.stream, payload); err != nil {
		logger.Warn("notify: failed to publish notification", zap.String("group_id", n.GroupID), zap.Error(err))
	}
	return n
}
