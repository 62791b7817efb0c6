package ops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveHiveGroupID(t *testing.T) {
	got := DeriveHiveGroupID(12345, "abc123", 1)
	assert.Equal(t, "12345-abc123-1", got)
}

func TestDeriveLightningGroupID(t *testing.T) {
	got := DeriveLightningGroupID("deadbeef")
	assert.Equal(t, "ln-deadbeef", got)
}

func TestDeriveShortIDLengthBounds(t *testing.T) {
	_, err := DeriveShortID("key", 5)
	assert.Error(t, err)
	_, err = DeriveShortID("key", 13)
	assert.Error(t, err)

	id, err := DeriveShortID("key", 8)
	require.NoError(t, err)
	assert.Len(t, id, 8)
}

func TestDeriveShortIDDeterministic(t *testing.T) {
	a, err := DeriveShortID("12345-abc123-1-conv_hive_to_keepsats", 8)
	require.NoError(t, err)
	b, err := DeriveShortID("12345-abc123-1-conv_hive_to_keepsats", 8)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := DeriveShortID("other-key", 8)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestAddReply(t *testing.T) {
	transfer := &Transfer{Base: Base{GroupID: "g1"}}
	AddReply(transfer, Reply{ReplyID: "r1", ReplyType: ReplyTransfer, ReplyMsat: 1000})
	require.Len(t, transfer.Replies, 1)
	assert.Equal(t, "r1", transfer.Replies[0].ReplyID)
}

func TestTrackedHiveOpTypesClosedSet(t *testing.T) {
	assert.True(t, TrackedHiveOpTypes["transfer"])
	assert.True(t, TrackedHiveOpTypes["account_witness_vote"])
	assert.False(t, TrackedHiveOpTypes["comment"])
	assert.False(t, TrackedHiveOpTypes["vote"])
}
