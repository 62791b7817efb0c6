package pipelines

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/exchange"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/ledger"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/money"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/pkg/logger"
)

// RebalanceTreasury runs pipeline M.7: checks the server's Hive treasury
// balance against the configured band and, if it drifts outside it,
// submits a single market order on the configured exchange to bring it
// back toward Config.ExchangeRebalanceTargetHive. Grounded on
// original_source's conversion/binance_adapter.py call sites (market_buy
// / market_sell from a balance-band check) and the Adapter interface's
// own doc comment describing an ExchangeOrderResult-shaped report.
//
// Returns (false, nil) when the treasury is within band and no order was
// placed — this is the expected, frequent outcome of a periodic call,
// not an error.
func (e *Engine) RebalanceTreasury(ctx context.Context) (bool, error) {
	if e.exch == nil {
		return false, nil
	}
	treasuryHive := mustAccount(ledger.Asset, "Treasury Hive", e.serverAccount, false)
	report, err := e.ledgerStore.RunningBalance(ctx, treasuryHive, ledger.Filter{})
	if err != nil {
		return false, fmt.Errorf("pipelines: rebalance_treasury: running balance: %w", err)
	}
	balance := report.Final.Hive

	var side exchange.OrderSide
	var delta money.Amount
	switch {
	case balance.Cmp(e.cfg.ExchangeUpperBandHive) > 0:
		side = exchange.Sell
		delta = balance.Sub(e.cfg.ExchangeRebalanceTargetHive)
	case balance.Cmp(e.cfg.ExchangeLowerBandHive) < 0:
		side = exchange.Buy
		delta = e.cfg.ExchangeRebalanceTargetHive.Sub(balance)
	default:
		return false, nil
	}
	if delta.Sign() <= 0 {
		return false, nil
	}

	var result exchange.OrderResult
	if side == exchange.Sell {
		result, err = e.exch.MarketSell(ctx, money.HIVE, money.BTC, delta)
	} else {
		result, err = e.exch.MarketBuy(ctx, money.HIVE, money.BTC, delta)
	}
	if err != nil {
		return false, fmt.Errorf("pipelines: rebalance_treasury: %s %s: %w", side, e.exch.Name(), err)
	}

	quote, err := e.exchangeQuote(ctx, result)
	if err != nil {
		return false, fmt.Errorf("pipelines: rebalance_treasury: derive executed quote: %w", err)
	}

	treasuryKeepsats := mustAccount(ledger.Asset, "Treasury Keepsats", e.serverAccount, false)
	hiveConv, err := money.Convert(result.ExecutedQty, quote)
	if err != nil {
		return false, fmt.Errorf("pipelines: rebalance_treasury: convert executed quantity: %w", err)
	}

	var entry ledger.Entry
	if side == exchange.Sell {
		entry, err = ledger.NewEntry(ledger.EntryInput{
			GroupID: fmt.Sprintf("rebalance-%s-%s", result.Exchange, result.OrderID), CustID: e.serverAccount, OpType: "exchange_rebalance",
			LedgerType: ledger.LedgerExchangeConversion, Timestamp: e.now(),
			Description: fmt.Sprintf("Sold %s HIVE on %s", result.ExecutedQty.Decimal(), result.Exchange),
			Debit:       treasuryKeepsats, DebitUnit: money.MSATS, DebitAmount: hiveConv.Msats, DebitConv: &hiveConv,
			Credit: treasuryHive, CreditUnit: money.HIVE, CreditAmount: result.ExecutedQty, CreditConv: &hiveConv,
		})
	} else {
		entry, err = ledger.NewEntry(ledger.EntryInput{
			GroupID: fmt.Sprintf("rebalance-%s-%s", result.Exchange, result.OrderID), CustID: e.serverAccount, OpType: "exchange_rebalance",
			LedgerType: ledger.LedgerExchangeConversion, Timestamp: e.now(),
			Description: fmt.Sprintf("Bought %s HIVE on %s", result.ExecutedQty.Decimal(), result.Exchange),
			Debit:       treasuryHive, DebitUnit: money.HIVE, DebitAmount: result.ExecutedQty, DebitConv: &hiveConv,
			Credit: treasuryKeepsats, CreditUnit: money.MSATS, CreditAmount: hiveConv.Msats, CreditConv: &hiveConv,
		})
	}
	if err != nil {
		return false, fmt.Errorf("pipelines: rebalance_treasury: exchange_conversion entry: %w", err)
	}
	if err := e.saveEntry(ctx, "rebalance_treasury", entry); err != nil {
		return false, err
	}

	if !result.FeeAmount.IsZero() {
		feeExpense := mustAccount(ledger.Expense, "Fee Expenses Hive", e.serverAccount, false)
		feeConv, convErr := money.Convert(result.FeeAmount, quote)
		if convErr != nil {
			return false, fmt.Errorf("pipelines: rebalance_treasury: convert fee amount: %w", convErr)
		}
		feeEntry, err := ledger.NewEntry(ledger.EntryInput{
			GroupID: fmt.Sprintf("rebalance-%s-%s-fee", result.Exchange, result.OrderID), CustID: e.serverAccount, OpType: "exchange_rebalance",
			LedgerType: ledgerFeeExpense, Timestamp: e.now(),
			Description: fmt.Sprintf("%s trading fee (%s)", result.Exchange, result.FeeAsset),
			Debit:       feeExpense, DebitUnit: result.FeeAmount.Currency, DebitAmount: result.FeeAmount, DebitConv: &feeConv,
			Credit: treasuryHive, CreditUnit: result.FeeAmount.Currency, CreditAmount: result.FeeAmount, CreditConv: &feeConv,
		})
		if err != nil {
			return false, fmt.Errorf("pipelines: rebalance_treasury: fee_expense entry: %w", err)
		}
		if err := e.saveEntry(ctx, "rebalance_treasury", feeEntry); err != nil {
			return false, err
		}
	}

	// M.7 has no originating customer op to attach a reply/notification
	// to (spec §4.O's sanity-check pattern applies here too): log with
	// notification=true rather than route through notify.Dispatcher,
	// which requires a real tracked operation.
	logger.Info(fmt.Sprintf("Rebalanced treasury: %s %s HIVE on %s", side, result.ExecutedQty.Decimal(), result.Exchange),
		zap.String("order_id", result.OrderID),
		zap.Bool("notification", true),
	)
	return true, nil
}

// exchangeQuote builds a money.Quote from the executed average price so
// the resulting ledger entries value HIVE at the exchange's own fill
// price rather than the process-global oracle quote (spec §4.M.7: "The
// quote used is the exchange's executed price, not the oracle quote").
// result's avg price is HIVE/BTC; the BTC/USD leg is carried over from
// the last oracle quote since the exchange order itself has no USD rate.
func (e *Engine) exchangeQuote(ctx context.Context, result exchange.OrderResult) (money.Quote, error) {
	base, err := e.currentQuote(ctx)
	if err != nil {
		return money.Quote{}, err
	}
	executedHiveUSD := money.Rate(result.AvgPrice) * base.BTCUSD
	return money.NewQuote(executedHiveUSD, base.HBDUSD, base.BTCUSD, base.HiveHBD, fmt.Sprintf("%s-executed", result.Exchange), e.now())
}
