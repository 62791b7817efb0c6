// Package pipelines implements the conversion pipelines (spec §4.M):
// the deterministic, per-customer-locked sequences of ledger entries and
// side-effects that turn an inbound tracked operation into settled
// accounting plus an outbound reply and notification.
package pipelines

import (
	"context"
	"fmt"
	"time"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/exchange"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/hive"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/ledger"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/lnd"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/lnurl"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/lock"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/money"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/notify"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/oracle"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/ops"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/pending"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/ratelimit"
)

// Config bundles the thresholds spec §4.M's pipeline steps reference by
// name ("configured return-fee reservation", "max LND fee ppm", "dust
// threshold", "tiny payment threshold", ...). None of these have a
// single universal default in the distilled spec; they are operator
// knobs read from config.toml's [pipelines] section.
type Config struct {
	// MaxLNDFeePPM bounds the Lightning routing fee as parts-per-million
	// of the payment amount (spec §4.M.1 step 3).
	MaxLNDFeePPM int64

	// HiveReturnFeeReservationHive is withheld from every HIVE→Lightning
	// conversion to cover the Hive network fee on the eventual change
	// transfer back to the sender.
	HiveReturnFeeReservationHive money.Amount

	// ServerFeePPM is the bridge's own service fee, in parts-per-million
	// of the converted amount.
	ServerFeePPM int64

	// DustThresholdSats: a computed "change" transfer below this is
	// dropped rather than queued (spec §4.M.1 step 5).
	DustThresholdSats int64

	// TinyPaymentThresholdMsat: replies at or below this value force the
	// custom_json reply route instead of a Hive transfer (spec §4.M.8).
	TinyPaymentThresholdMsat int64

	// KeepsatsHoldSub is the Sub value used for the "Keepsats Hold"
	// liability (escrow) account pipeline M.6 moves funds into and out of.
	KeepsatsHoldSub string

	// FeeThresholdMsat is the ceiling at or below which an A→server custom_json
	// transfer with the fee flag set (spec §4.M.5) is treated as a fee
	// payment rather than a rejected/ambiguous transfer.
	FeeThresholdMsat int64

	// ExchangeLowerBandHive/ExchangeUpperBandHive bound the server's
	// Hive treasury balance before pipeline M.7 rebalances it.
	ExchangeLowerBandHive money.Amount
	ExchangeUpperBandHive money.Amount
	// ExchangeRebalanceTargetHive is the balance the rebalancer aims to
	// restore the treasury to once it fires.
	ExchangeRebalanceTargetHive money.Amount

	LockLeaseTTL       time.Duration
	LockBlockingTO     time.Duration
}

// Engine wires every component a conversion pipeline depends on,
// following the same dependencies-as-unexported-fields,
// constructor-injected shape as the teacher's card.Service.
type Engine struct {
	ledgerStore *ledger.Store
	opsStore    *ops.Store
	hiveClient  hive.HiveClient
	lndClient   lnd.LightningClient
	lnurl       *lnurl.Resolver
	policy      *Policy
	rateLimit   *ratelimit.Engine
	notifier    *notify.Dispatcher
	quotes      *oracle.Cache
	exch        exchange.Adapter

	serverAccount string
	cfg           Config

	now func() time.Time
}

// NewEngine constructs an Engine. exch may be nil when the exchange
// rebalancer (M.7) is disabled for this deployment.
func NewEngine(
	ledgerStore *ledger.Store,
	opsStore *ops.Store,
	hiveClient hive.HiveClient,
	lndClient lnd.LightningClient,
	lnurlResolver *lnurl.Resolver,
	policy *Policy,
	rateLimit *ratelimit.Engine,
	notifier *notify.Dispatcher,
	quotes *oracle.Cache,
	exch exchange.Adapter,
	serverAccount string,
	cfg Config,
) *Engine {
	return &Engine{
		ledgerStore:   ledgerStore,
		opsStore:      opsStore,
		hiveClient:    hiveClient,
		lndClient:     lndClient,
		lnurl:         lnurlResolver,
		policy:        policy,
		rateLimit:     rateLimit,
		notifier:      notifier,
		quotes:        quotes,
		exch:          exch,
		serverAccount: serverAccount,
		cfg:           cfg,
		now:           time.Now,
	}
}

// currentQuote returns the process-global last-known-good quote (spec
// §5 "Quotes are a process-global last-known-good value"), falling back
// to a fresh fetch when none is cached yet.
func (e *Engine) currentQuote(ctx context.Context) (money.Quote, error) {
	if q, ok := e.quotes.Current(e.now()); ok {
		return q, nil
	}
	return e.quotes.AllQuotes(ctx, e.now())
}

// withCustomerLock runs fn under the per-customer lock configured for
// this Engine (spec §4.J), the same scoped-acquisition shape every
// pipeline step uses.
func (e *Engine) withCustomerLock(ctx context.Context, custID string, fn func(ctx context.Context) error) error {
	return lock.WithLock(ctx, custID, e.cfg.LockLeaseTTL, e.cfg.LockBlockingTO, fn)
}

// checkPreconditions runs the bad-actor/dev-mode policy gate and the
// rate-limit check shared by every inbound withdrawal pipeline (spec
// §4.M.1 "Preconditions"). requestedSats is the outbound amount the
// caller is about to commit to.
func (e *Engine) checkPreconditions(ctx context.Context, custID string, requestedSats int64) error {
	if e.policy != nil {
		if err := e.policy.Check(ctx, custID); err != nil {
			return err
		}
	}
	if e.rateLimit != nil {
		result, err := e.rateLimit.Check(ctx, custID, requestedSats)
		if err != nil {
			return fmt.Errorf("pipelines: rate-limit check: %w", err)
		}
		if !result.LimitOK {
			return fmt.Errorf("pipelines: customer %s over rate-limit window(s): %s", custID, result.SatsListStr)
		}
	}
	return nil
}

// saveEntry persists e via Engine's ledger store, wrapping the error
// with the caller's pipeline name for logs.
func (e *Engine) saveEntry(ctx context.Context, pipeline string, entry ledger.Entry) error {
	if err := e.ledgerStore.Save(ctx, entry); err != nil {
		return fmt.Errorf("pipelines: %s: save ledger entry %s: %w", pipeline, entry.LedgerType, err)
	}
	return nil
}

func mustAccount(typ ledger.AccountType, name, sub string, contra bool) ledger.Account {
	a, err := ledger.NewAccount(typ, name, sub, contra)
	if err != nil {
		// Every (type, name) pair used by this package is a fixed,
		// compile-time-known literal drawn from ledger's whitelist; a
		// failure here means a pipeline references a name that was
		// never whitelisted, a programming error, not a runtime one.
		panic(fmt.Sprintf("pipelines: %v", err))
	}
	return a
}
