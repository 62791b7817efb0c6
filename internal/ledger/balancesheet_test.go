//go:build integration

package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/money"
)

func mustAccount(t *testing.T, typ AccountType, name, sub string, contra bool) Account {
	t.Helper()
	a, err := NewAccount(typ, name, sub, contra)
	require.NoError(t, err)
	return a
}

func TestGenerateBalanceSheetBalances(t *testing.T) {
	coll := setupTestCollection(t)
	store := NewStore(coll)
	ctx := context.Background()

	q := testQuote(t)
	treasury := mustAccount(t, Asset, "Treasury Hive", "main", false)
	equity := mustAccount(t, Equity, "Owner's Capital", "main", false)

	amt, err := money.Of(money.HIVE, "1000.000")
	require.NoError(t, err)

	entry, err := NewEntry(EntryInput{
		GroupID:      "opening-1",
		OpType:       "opening_balance",
		LedgerType:   LedgerOpeningBalance,
		Timestamp:    q.FetchDate,
		Description:  "initial capitalization",
		Debit:        treasury,
		Credit:       equity,
		DebitUnit:    money.HIVE,
		DebitAmount:  amt,
		CreditUnit:   money.HIVE,
		CreditAmount: amt,
		Quote:        &q,
	})
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, entry))

	sheet, err := store.GenerateBalanceSheet(ctx, q.FetchDate.Add(time.Minute))
	require.NoError(t, err)

	assert.True(t, sheet.IsBalanced())
	assert.Equal(t, "1000.000 HIVE", sheet.Assets.Total.Hive.String())
	assert.Equal(t, "1000.000 HIVE", sheet.Equity.Total.Hive.String())
	assert.True(t, sheet.Liabilities.Total.Hive.IsZero())

	rendered := sheet.Render()
	assert.Contains(t, rendered, "Treasury Hive")
	assert.Contains(t, rendered, "Balanced: true")
}

func TestGenerateProfitAndLossAndTradingPnL(t *testing.T) {
	coll := setupTestCollection(t)
	store := NewStore(coll)
	ctx := context.Background()

	q := testQuote(t)
	treasury := mustAccount(t, Asset, "Treasury Hive", "main", false)
	feeIncome := mustAccount(t, Revenue, "Fee Income Hive", "main", false)

	fee, err := money.Of(money.HIVE, "10.000")
	require.NoError(t, err)

	feeEntry, err := NewEntry(EntryInput{
		GroupID:      "fee-1",
		LedgerType:   LedgerFeeIncome,
		Timestamp:    q.FetchDate,
		Description:  "bridge fee",
		Debit:        treasury,
		Credit:       feeIncome,
		DebitUnit:    money.HIVE,
		DebitAmount:  fee,
		CreditUnit:   money.HIVE,
		CreditAmount: fee,
		Quote:        &q,
	})
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, feeEntry))

	exchangeAccount := mustAccount(t, Asset, "Exchange Deposits Hive", "main", false)
	tradeEntry, err := NewEntry(EntryInput{
		GroupID:      "trade-1",
		LedgerType:   LedgerFillOrderSell,
		Timestamp:    q.FetchDate,
		Description:  "rebalancer sell fill",
		Debit:        exchangeAccount,
		Credit:       feeIncome,
		DebitUnit:    money.HIVE,
		DebitAmount:  fee,
		CreditUnit:   money.HIVE,
		CreditAmount: fee,
		Quote:        &q,
	})
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, tradeEntry))

	pnl, err := store.GenerateProfitAndLoss(ctx, q.FetchDate.Add(time.Minute), 0)
	require.NoError(t, err)
	assert.Equal(t, "20.000 HIVE", pnl.Revenue.Total.Hive.String())
	assert.Equal(t, "20.000 HIVE", pnl.NetIncome.Hive.String())
	assert.Contains(t, pnl.Render(), "Net Income")

	tradingPnL, err := store.GenerateTradingPnL(ctx, q.FetchDate.Add(time.Minute), 0)
	require.NoError(t, err)
	assert.Equal(t, "10.000 HIVE", tradingPnL.Revenue.Total.Hive.String())
}
