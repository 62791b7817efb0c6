package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/money"
)

// maxMsatToleranceBalance is the is_balanced tolerance (spec §4.E), same
// magnitude as the per-entry invariant tolerance.
const maxMsatToleranceBalance = 1

// SubAccountTotals maps sub-account name to its ConvertedSummary, plus a
// Total row summing across every sub.
type SubAccountTotals struct {
	Subs  map[string]ConvertedSummary
	Total ConvertedSummary
}

// SectionTotals maps account name to its SubAccountTotals, plus a Total
// row summing across every account in the section.
type SectionTotals struct {
	Accounts map[string]*SubAccountTotals
	Total    ConvertedSummary
}

func newSectionTotals() *SectionTotals {
	return &SectionTotals{Accounts: map[string]*SubAccountTotals{}, Total: zeroSummary()}
}

func (s *SectionTotals) add(name, sub string, contra bool, summary ConvertedSummary) {
	if contra {
		summary = zeroSummary().Sub(summary)
	}
	acc, ok := s.Accounts[name]
	if !ok {
		acc = &SubAccountTotals{Subs: map[string]ConvertedSummary{}, Total: zeroSummary()}
		s.Accounts[name] = acc
	}
	acc.Subs[sub] = acc.Subs[sub].Add(summary)
	acc.Total = acc.Total.Add(summary)
	s.Total = s.Total.Add(summary)
}

// BalanceSheet is the nested {Assets, Liabilities, Equity} tree spec
// §4.E's generate_balance_sheet produces.
type BalanceSheet struct {
	AsOf        time.Time
	Assets      *SectionTotals
	Liabilities *SectionTotals
	Equity      *SectionTotals
}

// IsBalanced holds when the Msats column of Assets.Total -
// (Liabilities.Total + Equity.Total) is within 1 msat in absolute value.
// The HIVE, HBD, USD and SATS columns are not compared.
func (b *BalanceSheet) IsBalanced() bool {
	rhs := b.Liabilities.Total.Add(b.Equity.Total)
	delta := b.Assets.Total.Sub(rhs)
	return withinTolerance(delta)
}

func withinTolerance(delta ConvertedSummary) bool {
	return absWithin(delta.Msats.Scaled(), maxMsatToleranceBalance)
}

func absWithin(v *big.Int, tolerance int64) bool {
	abs := new(big.Int).Abs(v)
	return abs.Cmp(big.NewInt(tolerance)) <= 0
}

// GenerateBalanceSheet aggregates every entry with timestamp <= asOf into
// the nested Assets/Liabilities/Equity tree. Contra accounts are
// subtracted within their natural section.
func (s *Store) GenerateBalanceSheet(ctx context.Context, asOf time.Time) (*BalanceSheet, error) {
	entries, err := s.FindEntries(ctx, Filter{To: asOf})
	if err != nil {
		return nil, fmt.Errorf("ledger: generate_balance_sheet: %w", err)
	}

	sheet := &BalanceSheet{AsOf: asOf, Assets: newSectionTotals(), Liabilities: newSectionTotals(), Equity: newSectionTotals()}

	apply := func(acc Account, conv money.Conversion, sign int) {
		section := sectionFor(sheet, acc.Type)
		if section == nil {
			return // Revenue/Expense don't appear on the balance sheet
		}
		if section != sheet.Assets {
			sign = -sign // Liabilities and Equity grow with credits
		}
		section.add(acc.Name, acc.Sub, acc.Contra, summaryFromConversion(conv, sign))
	}

	for _, e := range entries {
		apply(e.Debit, e.DebitConv, 1)
		apply(e.Credit, e.CreditConv, -1)
	}
	return sheet, nil
}

func sectionFor(sheet *BalanceSheet, t AccountType) *SectionTotals {
	switch t {
	case Asset:
		return sheet.Assets
	case Liability:
		return sheet.Liabilities
	case Equity, Dividend:
		return sheet.Equity
	default:
		return nil
	}
}

// ProfitAndLoss is the {Revenue, Expenses, Net Income} report over a
// window.
type ProfitAndLoss struct {
	AsOf      time.Time
	Age       time.Duration
	Revenue   *SectionTotals
	Expenses  *SectionTotals
	NetIncome ConvertedSummary
}

// GenerateProfitAndLoss returns the Revenue/Expense aggregation over
// [asOf-age, asOf] (age=0 means all-time).
func (s *Store) GenerateProfitAndLoss(ctx context.Context, asOf time.Time, age time.Duration) (*ProfitAndLoss, error) {
	f := Filter{To: asOf}
	if age > 0 {
		f.From = asOf.Add(-age)
	}
	entries, err := s.FindEntries(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("ledger: generate_profit_and_loss: %w", err)
	}

	pnl := &ProfitAndLoss{AsOf: asOf, Age: age, Revenue: newSectionTotals(), Expenses: newSectionTotals()}
	for _, e := range entries {
		// Revenue grows with credits, Expenses with debits.
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
	pnl.NetIncome = pnl.Revenue.Total.Sub(pnl.Expenses.Total)
	return pnl, nil
}

// renderSection renders one section as deterministic fixed-width text:
// SATS/msats as integers, HIVE/HBD at 3dp, USD at 2dp, one line per
// (account, sub), a total after each account and the section total last.
// renderRow cuts the value columns at 126 chars; the account/sub labels
// in front add 54 more, so a whole line is not capped at 126 chars.
func renderSection(title string, section *SectionTotals) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", title)
	names := make([]string, 0, len(section.Accounts))
	for name := range section.Accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		acc := section.Accounts[name]
		subs := make([]string, 0, len(acc.Subs))
		for sub := range acc.Subs {
			subs = append(subs, sub)
		}
		sort.Strings(subs)
		for _, sub := range subs {
			fmt.Fprintf(&b, "  %-30s %-20s %s\n", name, sub, renderRow(acc.Subs[sub]))
		}
		fmt.Fprintf(&b, "  %-51s %s\n", name+" Total", renderRow(acc.Total))
	}
	fmt.Fprintf(&b, "%-53s %s\n", title+" Total", renderRow(section.Total))
	return b.String()
}

func renderRow(c ConvertedSummary) string {
	// USD amounts carry 3dp; the render rounds them to 2dp.
	usd := new(big.Float).Quo(new(big.Float).SetInt(c.USD.Scaled()), big.NewFloat(1000)).Text('f', 2)
	line := fmt.Sprintf("SATS %12s  MSATS %15s  HIVE %12s  HBD %12s  USD %10s",
		c.Sats.Decimal(), c.Msats.Decimal(), c.Hive.Decimal(), c.HBD.Decimal(), usd)
	if len(line) > 126 {
		line = line[:126]
	}
	return line
}

// Render produces the full deterministic text render of the balance
// sheet.
func (b *BalanceSheet) Render() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Balance Sheet as of %s\n\n", b.AsOf.Format(time.RFC3339))
	sb.WriteString(renderSection("Assets", b.Assets))
	sb.WriteString("\n")
	sb.WriteString(renderSection("Liabilities", b.Liabilities))
	sb.WriteString("\n")
	sb.WriteString(renderSection("Equity", b.Equity))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Balanced: %v\n", b.IsBalanced())
	return sb.String()
}

// Render produces the full deterministic text render of the P&L report.
func (p *ProfitAndLoss) Render() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Profit & Loss as of %s (age=%s)\n\n", p.AsOf.Format(time.RFC3339), p.Age)
	sb.WriteString(renderSection("Revenue", p.Revenue))
	sb.WriteString("\n")
	sb.WriteString(renderSection("Expenses", p.Expenses))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "%-53s %s\n", "Net Income", renderRow(p.NetIncome))
	return sb.String()
}
