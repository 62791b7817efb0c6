package money

import "math/big"

// roundBankers rounds the rational r to the nearest integer, breaking ties
// to the nearest even integer (IEEE 754 "round half to even"), which is
// the rounding rule spec §4.A mandates for every currency conversion.
func roundBankers(r *big.Rat) *big.Int {
	num := new(big.Int).Set(r.Num())
	den := new(big.Int).Set(r.Denom())

	neg := num.Sign() < 0
	if neg {
		num.Neg(num)
	}

	quo := new(big.Int)
	rem := new(big.Int)
	quo.QuoRem(num, den, rem)

	twice := new(big.Int).Lsh(rem, 1) // 2*rem
	cmp := twice.Cmp(den)
	switch {
	case cmp > 0:
		quo.Add(quo, big.NewInt(1))
	case cmp == 0:
		if quo.Bit(0) == 1 { // quo is odd, round up to the even neighbor
			quo.Add(quo, big.NewInt(1))
		}
	}
	if neg {
		quo.Neg(quo)
	}
	return quo
}

// roundToAmount rounds rational value (expressed in whole units of c, e.g.
// whole HIVE, whole USD) to c's fixed precision and returns the Amount.
func roundToAmount(c Currency, value *big.Rat) (Amount, error) {
	p, err := Precision(c)
	if err != nil {
		return Amount{}, err
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(p)), nil)
	scaled := new(big.Rat).Mul(value, new(big.Rat).SetInt(scale))
	return Amount{Currency: c, scaled: roundBankers(scaled)}, nil
}

// ratOf expresses an Amount as a big.Rat of whole units (e.g. 10.000 HIVE
// becomes the rational 10).
func ratOf(a Amount) *big.Rat {
	p, _ := Precision(a.Currency)
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(p)), nil)
	return new(big.Rat).SetFrac(a.Scaled(), scale)
}
