package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/money"
)

// LedgerType enumerates the business meaning of an entry. The set mirrors
// spec §3.5's ~25-value enum; it is intentionally open-ended as a Go
// string type rather than a closed const block so pipelines can introduce
// a new type without touching this package, but the ones the core emits
// are named here for type-safety at the call sites that matter most.
type LedgerType string

const (
	LedgerConvHiveToKeepsats    LedgerType = "conv_hive_to_keepsats"
	LedgerConvKeepsatsToHive    LedgerType = "conv_keepsats_to_hive"
	LedgerFeeIncome             LedgerType = "fee_income"
	LedgerWithdrawLightning     LedgerType = "withdraw_lightning"
	LedgerLightningExternalSend LedgerType = "lightning_external_send"
	LedgerHoldKeepsats          LedgerType = "hold_keepsats"
	LedgerReleaseKeepsats       LedgerType = "release_keepsats"
	LedgerContraHiveToKeepsats  LedgerType = "contra_hive_to_keepsats"
	LedgerLimitOrderCreate      LedgerType = "limit_order_create"
	LedgerFillOrderBuy          LedgerType = "fill_order_buy"
	LedgerFillOrderSell         LedgerType = "fill_order_sell"
	LedgerExchangeConversion    LedgerType = "exchange_conversion"
	LedgerOpeningBalance        LedgerType = "opening_balance"
	LedgerInternalTransfer      LedgerType = "internal_transfer"
	LedgerDepositHive           LedgerType = "deposit_hive"
)

// maxMsatTolerance is the largest acceptable economic mismatch between
// the debit and credit sides of an entry, per spec §3.5's invariant.
const maxMsatTolerance = 1

// ErrInvariantViolation is returned when an entry fails a hard accounting
// invariant (imbalance beyond tolerance, whitelist violation). Callers
// must never swallow this error; it indicates the entry must not be
// persisted.
var ErrInvariantViolation = errors.New("ledger: invariant violation")

// Entry is a two-sided atomic journal entry. Construct with NewEntry,
// which enforces the msats-balance invariant before returning.
type Entry struct {
	GroupID     string
	ShortID     string
	CustID      string
	OpType      string
	LedgerType  LedgerType
	Timestamp   time.Time
	Description string
	UserMemo    string
	Link        string

	Debit  Account
	Credit Account

	DebitUnit   money.Currency
	DebitAmount money.Amount
	DebitConv   money.Conversion

	CreditUnit   money.Currency
	CreditAmount money.Amount
	CreditConv   money.Conversion
}

// EntryInput is the constructor argument bundle for NewEntry. Either
// DebitConv/CreditConv can be supplied pre-built (e.g. when a pipeline
// already computed the Conversion for a different purpose), or left zero
// and Quote is used to derive them.
type EntryInput struct {
	GroupID     string
	ShortID     string
	CustID      string
	OpType      string
	LedgerType  LedgerType
	Timestamp   time.Time
	Description string
	UserMemo    string
	Link        string

	Debit  Account
	Credit Account

	DebitUnit    money.Currency
	DebitAmount  money.Amount
	DebitConv    *money.Conversion
	CreditUnit   money.Currency
	CreditAmount money.Amount
	CreditConv   *money.Conversion

	Quote *money.Quote
}

// NewEntry builds and validates a LedgerEntry. If DebitConv/CreditConv are
// omitted, they are computed from (unit, amount, Quote); Quote must be
// supplied in that case. Fails with ErrInvariantViolation if the debit
// and credit sides' msats values differ by more than 1 msat.
func NewEntry(in EntryInput) (Entry, error) {
	if in.GroupID == "" {
		return Entry{}, fmt.Errorf("ledger: group_id is required")
	}

	debitConv, err := resolveConv(in.DebitConv, in.DebitUnit, in.DebitAmount, in.Quote)
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: debit conversion: %w", err)
	}
	creditConv, err := resolveConv(in.CreditConv, in.CreditUnit, in.CreditAmount, in.Quote)
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: credit conversion: %w", err)
	}

	e := Entry{
		GroupID:      in.GroupID,
		ShortID:      in.ShortID,
		CustID:       in.CustID,
		OpType:       in.OpType,
		LedgerType:   in.LedgerType,
		Timestamp:    in.Timestamp,
		Description:  in.Description,
		UserMemo:     in.UserMemo,
		Link:         in.Link,
		Debit:        in.Debit,
		Credit:       in.Credit,
		DebitUnit:    in.DebitUnit,
		DebitAmount:  in.DebitAmount,
		DebitConv:    debitConv,
		CreditUnit:   in.CreditUnit,
		CreditAmount: in.CreditAmount,
		CreditConv:   creditConv,
	}

	if err := e.checkBalance(); err != nil {
		return Entry{}, err
	}
	return e, nil
}

func resolveConv(pre *money.Conversion, unit money.Currency, amt money.Amount, q *money.Quote) (money.Conversion, error) {
	if pre != nil {
		return *pre, nil
	}
	if q == nil {
		return money.Conversion{}, fmt.Errorf("quote required when conversion is not pre-built")
	}
	if amt.Currency == "" {
		amt = money.Zero(unit)
	}
	return money.Convert(amt, *q)
}

// checkBalance enforces the 1 msat economic-value tolerance between the
// debit and credit legs. An entry moves one value between two accounts,
// so the debit leg's msat-equivalent must equal the credit leg's —
// NormalSign governs how a posting affects each account's running
// balance (used when aggregating entries, e.g. GenerateBalanceSheet),
// not whether a single entry itself balances.
func (e Entry) checkBalance() error {
	delta := new(big.Int).Sub(e.DebitConv.Msats.Scaled(), e.CreditConv.Msats.Scaled())
	abs := new(big.Int).Abs(delta)
	if abs.Cmp(big.NewInt(maxMsatTolerance)) > 0 {
		return fmt.Errorf("%w: debit/credit msats delta %s exceeds tolerance", ErrInvariantViolation, delta.String())
	}
	return nil
}

// Journal renders a single-line journal string, e.g.:
// "2024-01-02T15:04:05Z conv_hive_to_keepsats        DR Customer Deposits Hive:alice 10.000 HIVE | CR Treasury Keepsats:alice 10.000 HIVE"
func (e Entry) Journal() string {
	return fmt.Sprintf("%s %-28s DR %s %s | CR %s %s",
		e.Timestamp.Format(time.RFC3339), e.LedgerType,
		accountSub(e.Debit), e.DebitAmount.String(),
		accountSub(e.Credit), e.CreditAmount.String())
}

func accountSub(a Account) string {
	if a.Sub == "" {
		return a.Name
	}
	return fmt.Sprintf("%s:%s", a.Name, a.Sub)
}

// TAccount renders a two-column T-account diagram for log output.
func (e Entry) TAccount() string {
	return fmt.Sprintf(
		"%s\n  Debit  | %-40s | %s\n  Credit | %-40s | %s",
		e.Description,
		accountSub(e.Debit), e.DebitAmount.String(),
		accountSub(e.Credit), e.CreditAmount.String(),
	)
}
