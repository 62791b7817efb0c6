package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/money"
)

func TestBuildSymbol(t *testing.T) {
	assert.Equal(t, "HIVEBTC", BuildSymbol(money.HIVE, money.BTC))
}

func TestParseBinanceQty_EmptyReturnsZero(t *testing.T) {
	amt, err := parseBinanceQty(money.HIVE, "")
	require.NoError(t, err)
	assert.True(t, amt.IsZero())
	assert.Equal(t, money.HIVE, amt.Currency)
}

func TestParseBinanceQty_UnrecognizedAssetFallsBackToBTC(t *testing.T) {
	amt, err := parseBinanceQty(money.Currency("BNB"), "0.001")
	require.NoError(t, err)
	assert.Equal(t, money.BTC, amt.Currency)
}

func TestCurrencyOrBTC(t *testing.T) {
	assert.Equal(t, money.HIVE, currencyOrBTC(money.HIVE))
	assert.Equal(t, money.BTC, currencyOrBTC(money.Currency("NOTREAL")))
}

func newTestServer(t *testing.T, handler http.HandlerFunc) (*BinanceAdapter, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	a := NewBinanceAdapter("key", "secret", true)
	a.baseURL = srv.URL
	a.httpClient = srv.Client()
	return a, srv.Close
}

func TestGetCurrentPrice_ParsesBidPrice(t *testing.T) {
	a, closeFn := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/bookTicker", r.URL.Path)
		_ = json.NewEncoder(w).Encode(binanceBookTickerResponse{BidPrice: "0.0000123", AskPrice: "0.0000125"})
	})
	defer closeFn()

	price, err := a.GetCurrentPrice(context.Background(), money.HIVE, money.BTC)
	require.NoError(t, err)
	assert.InDelta(t, 0.0000123, price, 1e-10)
}

func TestGetBalance_FindsMatchingAsset(t *testing.T) {
	a, closeFn := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/account", r.URL.Path)
		assert.NotEmpty(t, r.URL.Query().Get("signature"))
		_ = json.NewEncoder(w).Encode(binanceAccountResponse{Balances: []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		}{{Asset: "HIVE", Free: "123.456", Locked: "0"}}})
	})
	defer closeFn()

	bal, err := a.GetBalance(context.Background(), money.HIVE)
	require.NoError(t, err)
	assert.Equal(t, "123.456 HIVE", bal.String())
}

func TestMarketSell_BelowMinimumMapsToSentinelError(t *testing.T) {
	a, closeFn := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"code": -1013, "msg": "Filter failure: MIN_NOTIONAL"})
	})
	defer closeFn()

	qty, err := money.Of(money.HIVE, "1.000")
	require.NoError(t, err)
	_, err = a.MarketSell(context.Background(), money.HIVE, money.BTC, qty)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBelowMinimum)
}

func TestMarketBuy_ComputesAvgPriceAndFee(t *testing.T) {
	a, closeFn := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "BUY", r.Form.Get("side"))
		_ = json.NewEncoder(w).Encode(binanceOrderResponse{
			Symbol: "HIVEBTC", OrderId: 42, Status: "FILLED",
			ExecutedQty: "10", CummulativeQuoteQty: "0.00100000",
			Fills: []struct {
				Price           string `json:"price"`
				Qty             string `json:"qty"`
				Commission      string `json:"commission"`
				CommissionAsset string `json:"commissionAsset"`
			}{{Price: "0.0001", Qty: "10", Commission: "0.00000010", CommissionAsset: "BTC"}},
		})
	})
	defer closeFn()

	qty, err := money.OfInt(money.HIVE, 10)
	require.NoError(t, err)
	result, err := a.MarketBuy(context.Background(), money.HIVE, money.BTC, qty)
	require.NoError(t, err)
	assert.Equal(t, "42", result.OrderID)
	assert.Equal(t, Buy, result.Side)
	assert.InDelta(t, 0.0001, result.AvgPrice, 1e-9)
	assert.Equal(t, "BTC", result.FeeAsset)
}
