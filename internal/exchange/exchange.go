// Package exchange implements the trading-venue adapter the exchange
// rebalancer (pipeline M.7) uses to sell or buy HIVE against BTC when
// the server's Hive treasury drifts outside its configured band.
//
// Distinct from internal/oracle (component B): oracle reads public spot
// prices to value ledger entries, this package places real orders
// against an account-holding exchange. Grounded on
// original_source/conversion/binance_adapter.py's BinanceAdapter, which
// wraps the same split (a read-only price/balance surface plus
// market_buy/market_sell) this package exposes as the Adapter interface.
package exchange

import (
	"context"
	"errors"
	"fmt"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/money"
)

// OrderSide is the direction of a market order.
type OrderSide string

const (
	Sell OrderSide = "SELL"
	Buy  OrderSide = "BUY"
)

// OrderResult is the standardized execution report every Adapter
// implementation returns, mirroring original_source's ExchangeOrderResult
// (exchange, symbol, order_id, side, status, requested/executed qty,
// quote_qty, avg_price, fee, fee_asset, raw_response) adapted to the
// bridge's money.Amount rather than a bare Decimal.
type OrderResult struct {
	Exchange     string
	Symbol       string
	OrderID      string
	Side         OrderSide
	Status       string
	RequestedQty money.Amount
	ExecutedQty  money.Amount
	QuoteQty     money.Amount
	AvgPrice     float64
	FeeAmount    money.Amount
	FeeAsset     string
	RawResponse  map[string]interface{}
}

// ErrBelowMinimum is returned when an order's quantity or notional value
// falls under the venue's minimum order requirements.
var ErrBelowMinimum = errors.New("exchange: order below venue minimum")

// ErrConnection wraps a transport-level failure talking to the venue.
type ErrConnection struct {
	Exchange string
	Cause    error
}

func (e *ErrConnection) Error() string {
	return fmt.Sprintf("exchange: %s connection error: %v", e.Exchange, e.Cause)
}

func (e *ErrConnection) Unwrap() error { return e.Cause }

// Adapter is the venue-agnostic trading interface pipeline M.7 depends
// on, not the concrete Binance client — the same testability-by-
// interface pattern internal/hive.HiveClient and
// internal/lnd.LightningClient already use.
type Adapter interface {
	Name() string
	GetBalance(ctx context.Context, asset money.Currency) (money.Amount, error)
	GetCurrentPrice(ctx context.Context, base, quote money.Currency) (float64, error)
	MarketSell(ctx context.Context, base, quote money.Currency, quantity money.Amount) (OrderResult, error)
	MarketBuy(ctx context.Context, base, quote money.Currency, quantity money.Amount) (OrderResult, error)
}

// BuildSymbol joins base and quote into the venue's concatenated symbol
// convention (e.g. HIVE + BTC -> "HIVEBTC").
func BuildSymbol(base, quote money.Currency) string {
	return string(base) + string(quote)
}
