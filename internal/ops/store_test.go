//go:build integration

package ops

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/money"
)

func TestStoreSaveLoadRoundTripsTransfer(t *testing.T) {
	coll := setupTestCollection(t)
	store := NewStore(coll)
	ctx := context.Background()

	amt, err := money.Of(money.HIVE, "10.000")
	require.NoError(t, err)

	groupID := DeriveHiveGroupID(555, "trx-abc", 0)
	shortID, err := DeriveShortID(groupID, 8)
	require.NoError(t, err)

	transfer := &Transfer{
		Base: Base{
			GroupID: groupID, ShortID: shortID, OpType: OpTransfer,
			Timestamp: time.Unix(1700000000, 0).UTC(), CustID: "alice",
		},
		From: "alice", To: "server", Unit: money.HIVE, Amount: amt,
		Memo: "lnbc1000n...", TrxID: "trx-abc", Block: 555,
	}

	require.NoError(t, store.Save(ctx, transfer))

	loaded, err := store.Load(ctx, groupID)
	require.NoError(t, err)

	got, ok := loaded.(*Transfer)
	require.True(t, ok)
	assert.Equal(t, "alice", got.From)
	assert.Equal(t, "server", got.To)
	assert.Equal(t, "10.000 HIVE", got.Amount.String())
	assert.Equal(t, shortID, got.ShortID)

	byShort, err := store.LoadByShortID(ctx, shortID)
	require.NoError(t, err)
	assert.Equal(t, groupID, byShort.TrackedBase().GroupID)
}

func TestStoreSaveIsIdempotent(t *testing.T) {
	coll := setupTestCollection(t)
	store := NewStore(coll)
	ctx := context.Background()

	op := &Invoice{
		Base: Base{GroupID: "ln-hash-1", OpType: OpInvoice, Timestamp: time.Now().UTC()},
		PaymentHash: "hash-1", ValueMsat: 5000, State: "OPEN",
	}
	require.NoError(t, store.Save(ctx, op))
	op.State = "SETTLED"
	require.NoError(t, store.Save(ctx, op))

	count, err := coll.CountDocuments(ctx, map[string]any{"group_id": "ln-hash-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	loaded, err := store.Load(ctx, "ln-hash-1")
	require.NoError(t, err)
	assert.Equal(t, "SETTLED", loaded.(*Invoice).State)
}

func TestStoreLoadNotFound(t *testing.T) {
	coll := setupTestCollection(t)
	store := NewStore(coll)
	_, err := store.Load(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateConvWithExplicitQuote(t *testing.T) {
	coll := setupTestCollection(t)
	store := NewStore(coll)
	ctx := context.Background()

	amt, err := money.Of(money.HIVE, "100.000")
	require.NoError(t, err)
	q, err := money.NewQuote(0.25, 0.999, 60000, 0.2505, "test", time.Unix(1700000000, 0))
	require.NoError(t, err)

	op := &Transfer{
		Base: Base{GroupID: "g-conv", OpType: OpTransfer, Timestamp: q.FetchDate},
		Unit: money.HIVE, Amount: amt,
	}
	require.NoError(t, store.Save(ctx, op))
	require.NoError(t, store.UpdateConv(ctx, op, amt, &q, nil))

	loaded, err := store.Load(ctx, "g-conv")
	require.NoError(t, err)
	assert.Equal(t, "25.000 USD", loaded.TrackedBase().Conv.USD.String())
}
