package money

import (
	"fmt"
	"time"
)

// Quote is an immutable snapshot of cross-rates at a point in time. Every
// quote carries its own FetchDate so conversions can be re-derived "as of
// T" without re-querying a price source.
type Quote struct {
	HiveUSD   Rate
	HBDUSD    Rate
	BTCUSD    Rate
	HiveHBD   Rate
	Source    string
	FetchDate time.Time
}

// Rate is a plain decimal exchange rate (not a fixed-precision Amount —
// rates are never persisted or compared at currency precision).
type Rate float64

// NewQuote validates the four base rates are non-zero (division against a
// zero rate would be meaningless) before constructing the snapshot.
func NewQuote(hiveUSD, hbdUSD, btcUSD, hiveHBD Rate, source string, fetchDate time.Time) (Quote, error) {
	for name, r := range map[string]Rate{
		"hive_usd": hiveUSD, "hbd_usd": hbdUSD, "btc_usd": btcUSD, "hive_hbd": hiveHBD,
	} {
		if r <= 0 {
			return Quote{}, fmt.Errorf("money: quote rate %s must be positive, got %v", name, r)
		}
	}
	return Quote{
		HiveUSD:   hiveUSD,
		HBDUSD:    hbdUSD,
		BTCUSD:    btcUSD,
		HiveHBD:   hiveHBD,
		Source:    source,
		FetchDate: fetchDate,
	}, nil
}

// SatsHive returns the number of sats one HIVE is worth under this quote.
func (q Quote) SatsHive() Rate {
	return q.satsPerUSD() * Rate(q.HiveUSD)
}

// SatsHBD returns the number of sats one HBD is worth under this quote.
func (q Quote) SatsHBD() Rate {
	return q.satsPerUSD() * Rate(q.HBDUSD)
}

// SatsUSD returns the number of sats one USD is worth under this quote.
func (q Quote) SatsUSD() Rate {
	return q.satsPerUSD()
}

func (q Quote) satsPerUSD() Rate {
	return Rate(SatsPerBTC) / q.BTCUSD
}

// Age reports how old the quote is relative to now.
func (q Quote) Age(now time.Time) time.Duration {
	return now.Sub(q.FetchDate)
}

// Fresh reports whether the quote's age is within maxAge (spec default
// 600s) as of now.
func (q Quote) Fresh(now time.Time, maxAge time.Duration) bool {
	return q.Age(now) <= maxAge
}
