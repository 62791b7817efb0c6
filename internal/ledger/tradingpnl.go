package ledger

import (
	"context"
	"fmt"
	"time"
)

// tradingLedgerTypes are the ledger_type values the exchange rebalancer
// (pipeline M.7) produces; trading P&L is a filtered slice of the same
// Revenue/Expense aggregation the core balance-sheet engine already does,
// not a separate computation. Grounded on accounting/trading_pnl.py,
// which likewise just narrows the ledger query rather than introducing a
// new aggregation algorithm.
var tradingLedgerTypes = []LedgerType{
	LedgerExchangeConversion,
	LedgerFillOrderBuy,
	LedgerFillOrderSell,
	LedgerLimitOrderCreate,
}

// GenerateTradingPnL reuses GenerateProfitAndLoss's rendering and
// aggregation but restricts the entry set to exchange-rebalancer ledger
// types, giving a standalone trading desk view without duplicating the
// balance-sheet/P&L engine.
func (s *Store) GenerateTradingPnL(ctx context.Context, asOf time.Time, age time.Duration) (*ProfitAndLoss, error) {
	f := Filter{To: asOf}
	if age > 0 {
		f.From = asOf.Add(-age)
	}

	pnl := &ProfitAndLoss{AsOf: asOf, Age: age, Revenue: newSectionTotals(), Expenses: newSectionTotals()}
	for _, lt := range tradingLedgerTypes {
		f.LedgerType = lt
		entries, err := s.FindEntries(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("ledger: generate_trading_pnl: %w", err)
		}
		for _, e := range entries {
			if e.Debit.Type == Revenue {
				pnl.Revenue.add(e.Debit.Name, e.Debit.Sub, e.Debit.Contra, summaryFromConversion(e.DebitConv, -1))
			}
			if e.Credit.Type == Revenue {
				pnl.Revenue.add(e.Credit.Name, e.Credit.Sub, e.Credit.Contra, summaryFromConversion(e.CreditConv, 1))
			}
			if e.Debit.Type == Expense {
				pnl.Expenses.add(e.Debit.Name, e.Debit.Sub, e.Debit.Contra, summaryFromConversion(e.DebitConv, 1))
			}
			if e.Credit.Type == Expense {
				pnl.Expenses.add(e.Credit.Name, e.Credit.Sub, e.Credit.Contra, summaryFromConversion(e.CreditConv, -1))
			}
		}
	}
	pnl.NetIncome = pnl.Revenue.Total.Sub(pnl.Expenses.Total)
	return pnl, nil
}
