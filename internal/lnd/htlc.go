package lnd

import (
	"fmt"
	"sync"
	"time"
)

// HtlcEventType mirrors lnrpc.HtlcEvent_EventType: which direction the HTLC
// moved relative to this node.
type HtlcEventType string

const (
	HtlcReceive HtlcEventType = "RECEIVE"
	HtlcSend    HtlcEventType = "SEND"
	HtlcForward HtlcEventType = "FORWARD"
	HtlcUnknown HtlcEventType = "UNKNOWN"
)

// HtlcEvent is the bridge's simplified view of an lnrpc.HtlcEvent: event type
// plus channel/htlc correlation ids and the terminal outcome, if any.
type HtlcEvent struct {
	IncomingChannelID uint64
	OutgoingChannelID uint64
	IncomingHtlcID    uint64
	OutgoingHtlcID    uint64
	TimestampNs       int64
	EventType         HtlcEventType
	Settled           bool
	Failed            bool
	Final             bool
}

// GroupKey computes the correlation id an HtlcTracker groups related events
// under. The incoming (channel, htlc) pair anchors a forward's lifecycle:
// LND's terminating "final htlc event" for a forward only reports the
// incoming side, so the outgoing side can't be relied on to key the group.
// Events with no incoming id (a pure SEND, our own outbound payment) fall
// back to the outgoing pair.
func (e HtlcEvent) GroupKey() string {
	if e.IncomingHtlcID != 0 {
		return fmt.Sprintf("in:%d:%d", e.IncomingChannelID, e.IncomingHtlcID)
	}
	return fmt.Sprintf("out:%d:%d", e.OutgoingChannelID, e.OutgoingHtlcID)
}

// htlcGroup tracks one HTLC's event history pending completion.
type htlcGroup struct {
	events    []HtlcEvent
	createdAt time.Time
	complete  bool
}

// HtlcTracker aggregates the HTLC event stream into per-HTLC groups,
// completing a group once its terminating settle/fail event arrives. Partial
// groups older than maxAge are discarded by Prune — spec §4.H.2 keeps them
// only up to the originating invoice's expiry.
type HtlcTracker struct {
	mu     sync.Mutex
	groups map[string]*htlcGroup
	maxAge time.Duration
}

func NewHtlcTracker(maxAge time.Duration) *HtlcTracker {
	return &HtlcTracker{groups: map[string]*htlcGroup{}, maxAge: maxAge}
}

// Add records evt under its computed group key and reports whether the
// group is now complete.
func (t *HtlcTracker) Add(evt HtlcEvent, now time.Time) (key string, complete bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key = evt.GroupKey()
	g, ok := t.groups[key]
	if !ok {
		g = &htlcGroup{createdAt: now}
		t.groups[key] = g
	}
	g.events = append(g.events, evt)
	if evt.Settled || evt.Failed {
		g.complete = true
	}
	return key, g.complete
}

// Events returns the accumulated events for key.
func (t *HtlcTracker) Events(key string) []HtlcEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	g, ok := t.groups[key]
	if !ok {
		return nil
	}
	out := make([]HtlcEvent, len(g.events))
	copy(out, g.events)
	return out
}

// Delete removes a group, normally called after its completion notification
// has been dispatched.
func (t *HtlcTracker) Delete(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.groups, key)
}

// Prune discards incomplete groups older than maxAge, returning their keys.
func (t *HtlcTracker) Prune(now time.Time) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var discarded []string
	for key, g := range t.groups {
		if !g.complete && now.Sub(g.createdAt) > t.maxAge {
			discarded = append(discarded, key)
			delete(t.groups, key)
		}
	}
	return discarded
}
