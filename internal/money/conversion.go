package money

import (
	"fmt"
	"math/big"
	"time"
)

// Conversion is a closed record produced by applying a Quote to a
// principal Amount: the same economic value expressed in every unit the
// bridge cares about, plus provenance (ConvFrom, FetchDate) so it can be
// replayed or reported on later. Supports element-wise arithmetic for
// aggregation in ledger reports.
type Conversion struct {
	ConvFrom  Currency
	Value     Amount // the original principal, in ConvFrom
	Hive      Amount
	HBD       Amount
	USD       Amount
	Sats      Amount
	Msats     Amount
	SatsHive  Rate // sats-per-HIVE rate in effect, for provenance
	FetchDate time.Time
	MsatsFee  *Amount // optional fee leg, present only on fee-bearing entries
}

// Convert applies quote to amt, producing the full multi-currency
// Conversion snapshot. Every derived field is rounded independently to its
// own currency's precision using banker's rounding; no float arithmetic is
// used at any step.
func Convert(amt Amount, q Quote) (Conversion, error) {
	principal := ratOf(amt)

	var usdRat *big.Rat
	switch amt.Currency {
	case HIVE:
		usdRat = new(big.Rat).Mul(principal, rateRat(q.HiveUSD))
	case HBD:
		usdRat = new(big.Rat).Mul(principal, rateRat(q.HBDUSD))
	case USD:
		usdRat = new(big.Rat).Set(principal)
	case BTC:
		usdRat = new(big.Rat).Mul(principal, rateRat(q.BTCUSD))
	case SATS:
		usdRat = new(big.Rat).Quo(new(big.Rat).Mul(principal, rateRat(q.BTCUSD)), big.NewRat(SatsPerBTC, 1))
	case MSATS:
		usdRat = new(big.Rat).Quo(new(big.Rat).Mul(principal, rateRat(q.BTCUSD)), big.NewRat(MsatsPerBTC, 1))
	default:
		return Conversion{}, fmt.Errorf("money: cannot convert unrecognized currency %q", amt.Currency)
	}

	if q.HiveUSD <= 0 || q.HBDUSD <= 0 || q.BTCUSD <= 0 {
		return Conversion{}, fmt.Errorf("money: quote has non-positive rate, cannot convert")
	}

	hiveRat := new(big.Rat).Quo(usdRat, rateRat(q.HiveUSD))
	hbdRat := new(big.Rat).Quo(usdRat, rateRat(q.HBDUSD))
	btcRat := new(big.Rat).Quo(usdRat, rateRat(q.BTCUSD))
	satsRat := new(big.Rat).Mul(btcRat, big.NewRat(SatsPerBTC, 1))
	msatsRat := new(big.Rat).Mul(btcRat, big.NewRat(MsatsPerBTC, 1))

	hive, err := roundToAmount(HIVE, hiveRat)
	if err != nil {
		return Conversion{}, err
	}
	hbd, err := roundToAmount(HBD, hbdRat)
	if err != nil {
		return Conversion{}, err
	}
	usd, err := roundToAmount(USD, usdRat)
	if err != nil {
		return Conversion{}, err
	}
	sats, err := roundToAmount(SATS, satsRat)
	if err != nil {
		return Conversion{}, err
	}
	msats, err := roundToAmount(MSATS, msatsRat)
	if err != nil {
		return Conversion{}, err
	}

	return Conversion{
		ConvFrom:  amt.Currency,
		Value:     amt,
		Hive:      hive,
		HBD:       hbd,
		USD:       usd,
		Sats:      sats,
		Msats:     msats,
		SatsHive:  q.SatsHive(),
		FetchDate: q.FetchDate,
	}, nil
}

func rateRat(r Rate) *big.Rat {
	return new(big.Rat).SetFloat64(float64(r))
}

// IsUnset reports whether every derived field of c is zero, meaning no
// conversion was ever actually applied (e.g. a placeholder entry).
func (c Conversion) IsUnset() bool {
	return c.Hive.IsZero() && c.HBD.IsZero() && c.USD.IsZero() && c.Sats.IsZero() && c.Msats.IsZero()
}

// Add returns the element-wise sum of c and o. ConvFrom/FetchDate/SatsHive
// are taken from c; Value is summed only when both sides share a currency,
// otherwise left at c's Value (aggregation is rarely meaningful there).
func (c Conversion) Add(o Conversion) Conversion {
	out := c
	out.Hive = c.Hive.Add(o.Hive)
	out.HBD = c.HBD.Add(o.HBD)
	out.USD = c.USD.Add(o.USD)
	out.Sats = c.Sats.Add(o.Sats)
	out.Msats = c.Msats.Add(o.Msats)
	out.MsatsFee = addOptional(c.MsatsFee, o.MsatsFee)
	if c.Value.Currency != "" && c.Value.Currency == o.Value.Currency {
		out.Value = c.Value.Add(o.Value)
	}
	return out
}

// Sub returns the element-wise difference c-o.
func (c Conversion) Sub(o Conversion) Conversion {
	out := c
	out.Hive = c.Hive.Sub(o.Hive)
	out.HBD = c.HBD.Sub(o.HBD)
	out.USD = c.USD.Sub(o.USD)
	out.Sats = c.Sats.Sub(o.Sats)
	out.Msats = c.Msats.Sub(o.Msats)
	out.MsatsFee = subOptional(c.MsatsFee, o.MsatsFee)
	return out
}

// Neg returns the element-wise negation of c.
func (c Conversion) Neg() Conversion {
	out := c
	out.Hive = c.Hive.Neg()
	out.HBD = c.HBD.Neg()
	out.USD = c.USD.Neg()
	out.Sats = c.Sats.Neg()
	out.Msats = c.Msats.Neg()
	if c.MsatsFee != nil {
		neg := c.MsatsFee.Neg()
		out.MsatsFee = &neg
	}
	return out
}

// MulScalar returns every field of c scaled by the integer n, e.g. for
// batching N identical fee legs into one reporting row.
func (c Conversion) MulScalar(n int64) Conversion {
	out := c
	out.Hive = scaleAmount(c.Hive, n)
	out.HBD = scaleAmount(c.HBD, n)
	out.USD = scaleAmount(c.USD, n)
	out.Sats = scaleAmount(c.Sats, n)
	out.Msats = scaleAmount(c.Msats, n)
	if c.MsatsFee != nil {
		s := scaleAmount(*c.MsatsFee, n)
		out.MsatsFee = &s
	}
	return out
}

// AmountFor returns the field of c denominated in currency — Hive, HBD,
// USD, Sats, or Msats — letting a caller pick the right leg by a
// currency value rather than a hardcoded field access.
func (c Conversion) AmountFor(currency Currency) Amount {
	switch currency {
	case HIVE:
		return c.Hive
	case HBD:
		return c.HBD
	case USD:
		return c.USD
	case SATS:
		return c.Sats
	case MSATS:
		return c.Msats
	default:
		return Amount{}
	}
}

func scaleAmount(a Amount, n int64) Amount {
	return Amount{Currency: a.Currency, scaled: new(big.Int).Mul(a.Scaled(), big.NewInt(n))}
}

func addOptional(a, b *Amount) *Amount {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		v := *b
		return &v
	case b == nil:
		v := *a
		return &v
	default:
		v := a.Add(*b)
		return &v
	}
}

func subOptional(a, b *Amount) *Amount {
	switch {
	case a == nil && b == nil:
		return nil
	case b == nil:
		v := *a
		return &v
	case a == nil:
		v := b.Neg()
		return &v
	default:
		v := a.Sub(*b)
		return &v
	}
}
