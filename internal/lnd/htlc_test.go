package lnd

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHtlcEvent_GroupKey_UsesIncomingPairWhenPresent(t *testing.T) {
	evt := HtlcEvent{
		IncomingChannelID: 111,
		IncomingHtlcID:    7,
		OutgoingChannelID: 222,
		OutgoingHtlcID:    9,
	}
	assert.Equal(t, "in:111:7", evt.GroupKey())
}

func TestHtlcEvent_GroupKey_FallsBackToOutgoingPair(t *testing.T) {
	evt := HtlcEvent{
		OutgoingChannelID: 222,
		OutgoingHtlcID:    9,
	}
	assert.Equal(t, "out:222:9", evt.GroupKey())
}

func TestHtlcTracker_Add_AccumulatesAndCompletesOnSettle(t *testing.T) {
	tracker := NewHtlcTracker(time.Hour)
	now := time.Unix(1700000000, 0)

	forward := HtlcEvent{IncomingChannelID: 1, IncomingHtlcID: 5, EventType: HtlcForward}
	key, complete := tracker.Add(forward, now)
	assert.Equal(t, "in:1:5", key)
	assert.False(t, complete)
	assert.Len(t, tracker.Events(key), 1)

	settle := HtlcEvent{IncomingChannelID: 1, IncomingHtlcID: 5, EventType: HtlcForward, Settled: true, Final: true}
	key2, complete2 := tracker.Add(settle, now.Add(time.Second))
	assert.Equal(t, key, key2)
	assert.True(t, complete2)
	assert.Len(t, tracker.Events(key), 2)
}

func TestHtlcTracker_Add_CompletesOnFailure(t *testing.T) {
	tracker := NewHtlcTracker(time.Hour)
	now := time.Unix(1700000000, 0)

	failEvt := HtlcEvent{OutgoingChannelID: 3, OutgoingHtlcID: 2, Failed: true}
	_, complete := tracker.Add(failEvt, now)
	assert.True(t, complete)
}

func TestHtlcTracker_Delete_RemovesGroup(t *testing.T) {
	tracker := NewHtlcTracker(time.Hour)
	now := time.Unix(1700000000, 0)

	evt := HtlcEvent{IncomingChannelID: 1, IncomingHtlcID: 1}
	key, _ := tracker.Add(evt, now)
	assert.NotNil(t, tracker.Events(key))

	tracker.Delete(key)
	assert.Nil(t, tracker.Events(key))
}

func TestHtlcTracker_Prune_DiscardsOnlyStaleIncompleteGroups(t *testing.T) {
	tracker := NewHtlcTracker(10 * time.Minute)
	start := time.Unix(1700000000, 0)

	staleKey, _ := tracker.Add(HtlcEvent{IncomingChannelID: 1, IncomingHtlcID: 1}, start)
	freshKey, _ := tracker.Add(HtlcEvent{IncomingChannelID: 2, IncomingHtlcID: 2}, start.Add(15*time.Minute))
	completeKey, _ := tracker.Add(HtlcEvent{IncomingChannelID: 3, IncomingHtlcID: 3, Settled: true}, start)

	now := start.Add(20 * time.Minute)
	discarded := tracker.Prune(now)

	assert.Contains(t, discarded, staleKey)
	assert.NotContains(t, discarded, freshKey)
	assert.NotContains(t, discarded, completeKey)

	assert.Nil(t, tracker.Events(staleKey))
	assert.NotNil(t, tracker.Events(freshKey))
	assert.NotNil(t, tracker.Events(completeKey))
}
