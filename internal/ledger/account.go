// Package ledger implements the double-entry accounting core: accounts,
// journal entries, the Mongo-backed store and balance cache, and the
// balance-sheet/P&L aggregation engine.
package ledger

import "fmt"

// AccountType is one of the five accounting classes plus the Dividend
// class used only by equity distributions.
type AccountType string

const (
	Asset     AccountType = "Asset"
	Liability AccountType = "Liability"
	Equity    AccountType = "Equity"
	Revenue   AccountType = "Revenue"
	Expense   AccountType = "Expense"
	Dividend  AccountType = "Dividend"
)

// normalDebit is the set of account types that increase with a debit.
var normalDebit = map[AccountType]bool{Asset: true, Expense: true, Dividend: true}

// whitelist is the closed set of (account_type -> allowed names). Account
// construction rejects any name outside this table, mirroring the
// Literal[...] field constraints of the Python ledger account classes this
// type is grounded on.
var whitelist = map[AccountType]map[string]bool{
	Asset: set(
		"Customer Deposits Hive",
		"Customer Deposits Lightning",
		"Escrow Hive",
		"Treasury Hive",
		"Treasury Lightning",
		"Treasury Keepsats",
		"Exchange Deposits Hive",
		"Exchange Deposits Lightning",
		"Converted Hive Offset",
		"Converted Keepsats Offset",
		"External Lightning Payments",
		"Keepsats Lightning Movements",
		"Unset",
	),
	Liability: set(
		"Customer Liability",
		"Keepsats Hold",
		"VSC Liability",
		"Owner Loan Payable (funding)",
	),
	Equity: set(
		"Owner's Capital",
		"Retained Earnings",
		"Dividends/Distributions",
	),
	Revenue: set(
		"Fee Income Hive",
		"Fee Income Lightning",
		"Fee Income Keepsats",
		"DHF Income",
		"Other Income",
	),
	Expense: set(
		"Hosting Expenses Privex",
		"Hosting Expenses Voltage",
		"Fee Expenses Lightning",
		"Fee Expenses Hive",
	),
}

func set(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// Account is the 4-tuple {account_type, name, sub, contra}. Equality and
// hashing are over the full tuple. Construct with NewAccount so the name
// whitelist is enforced; the zero value is not a valid Account.
type Account struct {
	Type   AccountType
	Name   string
	Sub    string
	Contra bool
}

// NewAccount validates name against the closed whitelist for typ before
// constructing the Account.
func NewAccount(typ AccountType, name, sub string, contra bool) (Account, error) {
	names, ok := whitelist[typ]
	if !ok {
		return Account{}, fmt.Errorf("ledger: unrecognized account type %q", typ)
	}
	if !names[name] {
		return Account{}, fmt.Errorf("ledger: account name %q is not in the %s whitelist", name, typ)
	}
	return Account{Type: typ, Name: name, Sub: sub, Contra: contra}, nil
}

// Key returns the (name, sub) composite used for balance-cache keys and
// selective invalidation globs.
func (a Account) Key() (name, sub string) {
	return a.Name, a.Sub
}

// String renders "Name (Type) - Sub: sub" or with a trailing " (Contra)",
// matching the Python ledger account repr this type is grounded on — kept
// stable because it doubles as a log and admin-UI display format.
func (a Account) String() string {
	s := fmt.Sprintf("%s (%s) - Sub: %s", a.Name, a.Type, a.Sub)
	if a.Contra {
		s += " (Contra)"
	}
	return s
}

// Equal reports whether a and b share the full 4-tuple.
func (a Account) Equal(b Account) bool {
	return a.Type == b.Type && a.Name == b.Name && a.Sub == b.Sub && a.Contra == b.Contra
}

// NormalSign returns +1 if a debit increases this account's balance, and
// -1 if a debit decreases it (i.e. a credit increases it). A contra
// account inverts the type's natural rule.
func (a Account) NormalSign() int {
	debitIncreases := normalDebit[a.Type]
	if a.Contra {
		debitIncreases = !debitIncreases
	}
	if debitIncreases {
		return 1
	}
	return -1
}
