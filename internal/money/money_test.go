package money

import (
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmountArithmetic(t *testing.T) {
	a, err := Of(HIVE, "10.500")
	require.NoError(t, err)
	b, err := Of(HIVE, "2.250")
	require.NoError(t, err)

	sum := a.Add(b)
	assert.Equal(t, "12.750 HIVE", sum.String())

	diff := a.Sub(b)
	assert.Equal(t, "8.250 HIVE", diff.String())

	assert.Equal(t, 1, a.Cmp(b))
	assert.Equal(t, "-10.500 HIVE", a.Neg().String())
}

func TestAmountCurrencyMismatchPanics(t *testing.T) {
	a, _ := Of(HIVE, "1")
	b, _ := Of(USD, "1")
	assert.Panics(t, func() { a.Add(b) })
}

func TestOfIntSats(t *testing.T) {
	a, err := OfInt(SATS, 1500)
	require.NoError(t, err)
	assert.Equal(t, "1500 SATS", a.String())
	assert.False(t, a.IsZero())
}

func TestPrecisionTable(t *testing.T) {
	cases := map[Currency]int32{HIVE: 3, HBD: 3, USD: 3, BTC: 8, SATS: 0, MSATS: 0}
	for c, want := range cases {
		got, err := Precision(c)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := Precision("XRP")
	assert.Error(t, err)
}

func testQuote(t *testing.T) Quote {
	t.Helper()
	q, err := NewQuote(0.25, 0.999, 60000, 0.2505, "test", time.Unix(1700000000, 0))
	require.NoError(t, err)
	return q
}

func TestQuoteRejectsNonPositiveRate(t *testing.T) {
	_, err := NewQuote(0, 1, 1, 1, "test", time.Now())
	assert.Error(t, err)
}

func TestQuoteFreshness(t *testing.T) {
	q := testQuote(t)
	now := q.FetchDate.Add(5 * time.Minute)
	assert.True(t, q.Fresh(now, 600*time.Second))
	later := q.FetchDate.Add(20 * time.Minute)
	assert.False(t, q.Fresh(later, 600*time.Second))
}

func TestConvertHiveToAllUnits(t *testing.T) {
	q := testQuote(t)
	amt, err := Of(HIVE, "100.000")
	require.NoError(t, err)

	conv, err := Convert(amt, q)
	require.NoError(t, err)

	assert.Equal(t, HIVE, conv.ConvFrom)
	assert.Equal(t, "100.000 HIVE", conv.Hive.String())
	// 100 HIVE * 0.25 USD/HIVE = 25 USD
	assert.Equal(t, "25.000 USD", conv.USD.String())
	assert.False(t, conv.IsUnset())
}

func TestConvertRoundTripsApproximately(t *testing.T) {
	q := testQuote(t)
	amt, err := Of(USD, "50.000")
	require.NoError(t, err)

	conv, err := Convert(amt, q)
	require.NoError(t, err)
	assert.Equal(t, "50.000 USD", conv.USD.String())
	assert.False(t, conv.Sats.IsZero())
	assert.False(t, conv.Msats.IsZero())
}

func TestConversionUnsetZeroValue(t *testing.T) {
	var c Conversion
	assert.True(t, c.IsUnset())
}

func TestConversionArithmetic(t *testing.T) {
	q := testQuote(t)
	a, err := Of(HIVE, "10.000")
	require.NoError(t, err)
	convA, err := Convert(a, q)
	require.NoError(t, err)

	b, err := Of(HIVE, "5.000")
	require.NoError(t, err)
	convB, err := Convert(b, q)
	require.NoError(t, err)

	sum := convA.Add(convB)
	assert.Equal(t, "15.000 HIVE", sum.Hive.String())

	diff := convA.Sub(convB)
	assert.Equal(t, "5.000 HIVE", diff.Hive.String())

	neg := convA.Neg()
	assert.Equal(t, "-10.000 HIVE", neg.Hive.String())

	scaled := convA.MulScalar(3)
	assert.Equal(t, "30.000 HIVE", scaled.Hive.String())
}

func TestAmountJSONRoundTrip(t *testing.T) {
	a, err := Of(HIVE, "12.340")
	require.NoError(t, err)

	raw, err := json.Marshal(a)
	require.NoError(t, err)

	var got Amount
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, a.String(), got.String())
}

func TestRoundBankersHalfToEven(t *testing.T) {
	// 2.5 rounds to 2 (even), 3.5 rounds to 4 (even).
	r1 := roundBankers(big.NewRat(5, 2))
	assert.Equal(t, int64(2), r1.Int64())
	r2 := roundBankers(big.NewRat(7, 2))
	assert.Equal(t, int64(4), r2.Int64())
}
