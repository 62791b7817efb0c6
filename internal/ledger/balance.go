package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/money"
)

// ConvertedSummary sums a Conversion's fields across an arbitrary number
// of entries — the running multi-currency total spec §4.D and §4.E both
// depend on.
type ConvertedSummary struct {
	Hive  money.Amount
	HBD   money.Amount
	USD   money.Amount
	Sats  money.Amount
	Msats money.Amount
}

// zeroSummary returns a ConvertedSummary of all-zero amounts in the five
// tracked currencies.
func zeroSummary() ConvertedSummary {
	return ConvertedSummary{
		Hive:  money.Zero(money.HIVE),
		HBD:   money.Zero(money.HBD),
		USD:   money.Zero(money.USD),
		Sats:  money.Zero(money.SATS),
		Msats: money.Zero(money.MSATS),
	}
}

// Add returns the element-wise sum of s and o.
func (s ConvertedSummary) Add(o ConvertedSummary) ConvertedSummary {
	return ConvertedSummary{
		Hive:  s.Hive.Add(o.Hive),
		HBD:   s.HBD.Add(o.HBD),
		USD:   s.USD.Add(o.USD),
		Sats:  s.Sats.Add(o.Sats),
		Msats: s.Msats.Add(o.Msats),
	}
}

// Sub returns the element-wise difference s-o.
func (s ConvertedSummary) Sub(o ConvertedSummary) ConvertedSummary {
	return ConvertedSummary{
		Hive:  s.Hive.Sub(o.Hive),
		HBD:   s.HBD.Sub(o.HBD),
		USD:   s.USD.Sub(o.USD),
		Sats:  s.Sats.Sub(o.Sats),
		Msats: s.Msats.Sub(o.Msats),
	}
}

func summaryFromConversion(c money.Conversion, sign int) ConvertedSummary {
	s := ConvertedSummary{Hive: c.Hive, HBD: c.HBD, USD: c.USD, Sats: c.Sats, Msats: c.Msats}
	if sign < 0 {
		return zeroSummary().Sub(s)
	}
	return s
}

// BalanceRow is one line of a running-balance report: the entry's
// timestamp/description, the signed local-unit amount, its converted
// snapshot, and the running totals through this row.
type BalanceRow struct {
	Timestamp      time.Time
	Description    string
	GroupID        string
	LocalUnit      money.Currency
	SignedAmount   money.Amount
	Conv           money.Conversion
	RunningLocal   money.Amount
	RunningSummary ConvertedSummary
}

// BalanceReport is the full running-balance result for one account,
// cacheable as a unit.
type BalanceReport struct {
	AccountName string
	AccountSub  string
	Contra      bool
	Rows        []BalanceRow
	Final       ConvertedSummary
}

// RunningBalance produces the per-currency running-balance rows for
// account (name, sub, contra) over the entries returned by filter,
// applying spec §4.D's signing rule: if the queried account equals the
// debit account, sign is +1 (−1 if contra); inverted for credit.
func (s *Store) RunningBalance(ctx context.Context, account Account, f Filter) (*BalanceReport, error) {
	f.AccountName = account.Name
	f.AccountSub = account.Sub
	entries, err := s.FindEntries(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("ledger: running balance: %w", err)
	}

	report := &BalanceReport{AccountName: account.Name, AccountSub: account.Sub, Contra: account.Contra}
	runningSummary := zeroSummary()
	var runningLocal money.Amount
	var localUnit money.Currency

	for _, e := range entries {
		var sign int
		var localAmt money.Amount
		var unit money.Currency
		var conv money.Conversion

		switch {
		case e.Debit.Name == account.Name && e.Debit.Sub == account.Sub:
			sign = 1
			if account.Contra {
				sign = -1
			}
			localAmt = e.DebitAmount
			unit = e.DebitUnit
			conv = e.DebitConv
		case e.Credit.Name == account.Name && e.Credit.Sub == account.Sub:
			sign = -1
			if account.Contra {
				sign = 1
			}
			localAmt = e.CreditAmount
			unit = e.CreditUnit
			conv = e.CreditConv
		default:
			continue
		}

		if localUnit == "" {
			localUnit = unit
			runningLocal = money.Zero(unit)
		}

		signedLocal := localAmt
		if sign < 0 {
			signedLocal = localAmt.Neg()
		}
		if unit == localUnit {
			runningLocal = runningLocal.Add(signedLocal)
		}

		rowSummary := summaryFromConversion(conv, sign)
		runningSummary = runningSummary.Add(rowSummary)

		report.Rows = append(report.Rows, BalanceRow{
			Timestamp:      e.Timestamp,
			Description:    e.Description,
			GroupID:        e.GroupID,
			LocalUnit:      unit,
			SignedAmount:   signedLocal,
			Conv:           conv,
			RunningLocal:   runningLocal,
			RunningSummary: runningSummary,
		})
	}
	report.Final = runningSummary
	return report, nil
}
