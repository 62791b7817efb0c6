package pipelines

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/ledger"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/money"
)

func testQuote(t *testing.T) money.Quote {
	t.Helper()
	q, err := money.NewQuote(0.30, 1.0, 60000, 0.30/60000, "test", time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return q
}

func TestEntryCtxGroupID(t *testing.T) {
	ec := entryCtx{GroupID: "op-123"}
	require.Equal(t, "op-123-conv_hive_to_keepsats", ec.groupID(ledger.LedgerConvHiveToKeepsats))
	require.Equal(t, "op-123-deposit_keepsats", ec.groupID(ledgerDepositKeepsats))
}

func TestEntryCtxGroupIDDistinctPerEntry(t *testing.T) {
	ec := entryCtx{GroupID: "op-456"}
	a := ec.groupID(ledger.LedgerConvHiveToKeepsats)
	b := ec.groupID(ledger.LedgerContraHiveToKeepsats)
	c := ec.groupID(ledger.LedgerFeeIncome)
	require.NotEqual(t, a, b)
	require.NotEqual(t, b, c)
	require.NotEqual(t, a, c)
}

func TestFeeSplit(t *testing.T) {
	quote := testQuote(t)
	full, err := money.OfInt(money.MSATS, 1_000_000)
	require.NoError(t, err)

	netConv, feeConv, err := feeSplit(full, 10_000, quote) // 1% fee
	require.NoError(t, err)

	require.False(t, feeConv.Msats.IsZero())
	require.Equal(t, int64(10_000), feeConv.Msats.Scaled().Int64())
	require.Equal(t, int64(990_000), netConv.Msats.Scaled().Int64())
}

func TestFeeSplitZeroFee(t *testing.T) {
	quote := testQuote(t)
	full, err := money.OfInt(money.MSATS, 500_000)
	require.NoError(t, err)

	netConv, feeConv, err := feeSplit(full, 0, quote)
	require.NoError(t, err)
	require.True(t, feeConv.Msats.IsZero())
	require.Equal(t, int64(500_000), netConv.Msats.Scaled().Int64())
}
