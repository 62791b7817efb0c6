// Package money implements exact fixed-point monetary amounts and
// multi-currency conversion snapshots for the ledger bridge.
//
// Amounts are never represented as binary floats: every currency has a
// fixed decimal precision and arithmetic happens on scaled integers so
// that rounding is deterministic and auditable.
package money

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// Currency is one of the six units the bridge reasons about.
type Currency string

const (
	HIVE  Currency = "HIVE"
	HBD   Currency = "HBD"
	USD   Currency = "USD"
	BTC   Currency = "BTC"
	SATS  Currency = "SATS"
	MSATS Currency = "MSATS"
)

// precision maps a currency to the number of decimal places its exact
// Amount carries. SATS and MSATS are integer units (precision 0).
var precision = map[Currency]int32{
	HIVE:  3,
	HBD:   3,
	USD:   3,
	BTC:   8,
	SATS:  0,
	MSATS: 0,
}

// Precision returns the decimal precision for c, or an error if c is not
// one of the recognized currencies.
func Precision(c Currency) (int32, error) {
	p, ok := precision[c]
	if !ok {
		return 0, fmt.Errorf("money: unrecognized currency %q", c)
	}
	return p, nil
}

// IsValid reports whether c is a recognized currency.
func IsValid(c Currency) bool {
	_, ok := precision[c]
	return ok
}

// Conversion constants between the Lightning-side integer units.
const (
	MsatsPerSat = 1000
	SatsPerBTC  = 100_000_000
	MsatsPerBTC = MsatsPerSat * SatsPerBTC
)

// Amount is an exact decimal quantity of a single Currency, stored as an
// arbitrary-precision integer scaled to the currency's fixed precision.
// Construct via the Of helper; never build a bare float for monetary math.
type Amount struct {
	Currency Currency
	// scaled is the amount multiplied by 10^Precision, so HIVE amounts are
	// stored in milli-HIVE, SATS/MSATS are stored as themselves.
	scaled *big.Int
}

// Of constructs an Amount of currency c from a decimal string value (e.g.
// "10.000"). Using a string avoids float64 rounding creeping in before the
// Amount is even built.
func Of(c Currency, value string) (Amount, error) {
	p, err := Precision(c)
	if err != nil {
		return Amount{}, err
	}
	r, ok := new(big.Rat).SetString(value)
	if !ok {
		return Amount{}, fmt.Errorf("money: invalid decimal %q", value)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(p)), nil)
	scaled := new(big.Int).Mul(r.Num(), scale)
	scaled.Quo(scaled, r.Denom())
	return Amount{Currency: c, scaled: scaled}, nil
}

// OfInt constructs an Amount directly from an integer count of the
// currency's smallest unit (e.g. OfInt(SATS, 1500) == 1500 sats).
func OfInt(c Currency, units int64) (Amount, error) {
	if !IsValid(c) {
		return Amount{}, fmt.Errorf("money: unrecognized currency %q", c)
	}
	return Amount{Currency: c, scaled: big.NewInt(units)}, nil
}

// Zero returns the zero Amount of currency c.
func Zero(c Currency) Amount {
	a, _ := OfInt(c, 0)
	return a
}

// IsZero reports whether a is the zero amount.
func (a Amount) IsZero() bool {
	return a.scaled == nil || a.scaled.Sign() == 0
}

// Sign returns -1, 0, or 1.
func (a Amount) Sign() int {
	if a.scaled == nil {
		return 0
	}
	return a.scaled.Sign()
}

// Scaled returns the amount's smallest-unit integer representation
// (e.g. milli-HIVE for HIVE, sats for SATS).
func (a Amount) Scaled() *big.Int {
	if a.scaled == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(a.scaled)
}

// String renders the amount with its currency's fixed precision, e.g.
// "10.000 HIVE" or "1500 SATS".
func (a Amount) String() string {
	return fmt.Sprintf("%s %s", a.Decimal(), a.Currency)
}

// Decimal renders just the numeric value at the currency's fixed
// precision, with no currency suffix (e.g. "10.000") — the form Of()
// parses back, used for persistence.
func (a Amount) Decimal() string {
	p, _ := Precision(a.Currency)
	return formatScaled(a.Scaled(), p)
}

func formatScaled(v *big.Int, precision int32) string {
	if precision == 0 {
		return v.String()
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(precision)), nil)
	whole := new(big.Int)
	frac := new(big.Int)
	whole.QuoRem(v, scale, frac)
	sign := ""
	if v.Sign() < 0 && whole.Sign() == 0 {
		sign = "-" // -1 < v < 0: whole is 0 and carries no sign
	}
	if frac.Sign() < 0 {
		frac.Neg(frac)
	}
	return fmt.Sprintf("%s%s.%0*d", sign, whole.String(), precision, frac.Int64())
}

// Add returns a+b. Panics if the currencies differ — callers convert
// first via Quote.Convert.
func (a Amount) Add(b Amount) Amount {
	mustSameCurrency(a, b)
	return Amount{Currency: a.Currency, scaled: new(big.Int).Add(a.Scaled(), b.Scaled())}
}

// Sub returns a-b.
func (a Amount) Sub(b Amount) Amount {
	mustSameCurrency(a, b)
	return Amount{Currency: a.Currency, scaled: new(big.Int).Sub(a.Scaled(), b.Scaled())}
}

// Neg returns -a.
func (a Amount) Neg() Amount {
	return Amount{Currency: a.Currency, scaled: new(big.Int).Neg(a.Scaled())}
}

// Cmp compares a and b, which must share a currency.
func (a Amount) Cmp(b Amount) int {
	mustSameCurrency(a, b)
	return a.Scaled().Cmp(b.Scaled())
}

// amountJSON is Amount's wire/cache representation — the unexported
// scaled field can't round-trip through encoding/json on its own.
type amountJSON struct {
	Currency Currency `json:"currency"`
	Value    string   `json:"value"`
}

// MarshalJSON renders the amount as {"currency":"HIVE","value":"10.000"}.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(amountJSON{Currency: a.Currency, Value: a.Decimal()})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var aux amountJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Currency == "" {
		*a = Amount{}
		return nil
	}
	v, err := Of(aux.Currency, aux.Value)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

func mustSameCurrency(a, b Amount) {
	if a.Currency != b.Currency {
		panic(fmt.Sprintf("money: currency mismatch %s vs %s", a.Currency, b.Currency))
	}
}
