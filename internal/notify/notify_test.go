package notify

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/ops"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/pkg/logger"
)

func init() {
	_ = logger.Init("development")
}

// fakeOp is a minimal ops.TrackedOperation for memo-building tests.
type fakeOp struct {
	base ops.Base
}

func (f *fakeOp) TrackedBase() *ops.Base { return &f.base }

func TestBuild_MemoContainsShortID(t *testing.T) {
	op := &fakeOp{base: ops.Base{GroupID: "g1", ShortID: "abc123", CustID: "alice"}}

	n := Build(op, "payment succeeded")

	assert.Equal(t, "g1", n.GroupID)
	assert.Equal(t, "abc123", n.ShortID)
	assert.Equal(t, "alice", n.CustID)
	assert.Equal(t, "payment succeeded", n.Reason)
	assert.Contains(t, n.Memo, "§ abc123")
	assert.True(t, strings.HasPrefix(n.Memo, "payment succeeded"))
	assert.False(t, n.Timestamp.IsZero())
}

func TestBuild_DifferentReasonsSameOpDistinctMemos(t *testing.T) {
	op := &fakeOp{base: ops.Base{GroupID: "g2", ShortID: "xyz789", CustID: "bob"}}

	n1 := Build(op, "rate limit exceeded")
	n2 := Build(op, "lightning payment failed")

	assert.NotEqual(t, n1.Memo, n2.Memo)
	assert.Contains(t, n1.Memo, "§ xyz789")
	assert.Contains(t, n2.Memo, "§ xyz789")
}

func TestDispatcher_Notify_NilQueueStillLogsAndReturns(t *testing.T) {
	op := &fakeOp{base: ops.Base{GroupID: "g3", ShortID: "short3", CustID: "carol"}}
	d := NewDispatcher(nil, "")

	n := d.Notify(context.Background(), op, "withdrawal processed")

	assert.Equal(t, "g3", n.GroupID)
	assert.Contains(t, n.Memo, "§ short3")
}

func TestNewDispatcher_DefaultsStreamName(t *testing.T) {
	d := NewDispatcher(nil, "")
	assert.Equal(t, DefaultStream, d.stream)
}

func TestNewDispatcher_CustomStreamName(t *testing.T) {
	d := NewDispatcher(nil, "custom:stream")
	assert.Equal(t, "custom:stream", d.stream)
}

func TestBuild_TimestampIsRecent(t *testing.T) {
	op := &fakeOp{base: ops.Base{GroupID: "g4", ShortID: "short4"}}
	before := time.Now()
	n := Build(op, "reason")
	after := time.Now()

	require.False(t, n.Timestamp.Before(before))
	require.False(t, n.Timestamp.After(after))
}
