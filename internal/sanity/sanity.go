// Package sanity implements component O: the periodic background
// invariant audits spec §4.O names. Each check returns (ok, message);
// all three run concurrently under a single 5-second timeout, following
// the same ticking-supervisor shape as internal/pending's Resender.
package sanity

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/ledger"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/lnd"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/pkg/logger"
)

// passThroughToleranceMsat is the "pass-through accounts zero" tolerance
// (spec §4.O), over three decimal orders looser than ledger's own 1 msat
// maxMsatToleranceBalance, since staging accounts accumulate rounding
// residue across several conversion legs.
const passThroughToleranceMsat = 2000

// passThroughAccounts are the server's internal clearing/staging
// accounts pipelines M.1-M.3 move value through on its way between Hive
// and Keepsats/Lightning; by construction their conversion+contra legs
// should always net back to (near) zero.
var passThroughAccounts = []string{
	"Customer Deposits Hive",
	"Converted Hive Offset",
	"Converted Keepsats Offset",
	"External Lightning Payments",
}

// Config holds the one operator-tunable knob spec §4.O leaves open: how
// far the LND channel-balance/ledger delta is allowed to drift before
// it's reported unhealthy.
type Config struct {
	ExternalLightningDeltaToleranceSats int64
}

// Result is one audit's outcome.
type Result struct {
	Name    string
	OK      bool
	Message string
}

// Checker runs the three sanity audits spec §4.O names against a live
// ledger store and LND node.
type Checker struct {
	ledgerStore   *ledger.Store
	lndClient     lnd.LightningClient
	serverAccount string
	cfg           Config
	now           func() time.Time
}

// NewChecker constructs a Checker.
func NewChecker(ledgerStore *ledger.Store, lndClient lnd.LightningClient, serverAccount string, cfg Config) *Checker {
	return &Checker{
		ledgerStore:   ledgerStore,
		lndClient:     lndClient,
		serverAccount: serverAccount,
		cfg:           cfg,
		now:           time.Now,
	}
}

// Run ticks every interval until ctx is cancelled, running RunOnce and
// logging any failing check with notification=true each time (spec
// §4.O: "failures are logged with notification=true").
func (c *Checker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce runs all three audits concurrently under a 5-second overall
// timeout (spec §4.O) and logs every failing result with
// notification=true. It never returns an error itself: a check that
// cannot complete (timeout, store error) is reported as a failing
// Result rather than aborting its siblings.
func (c *Checker) RunOnce(ctx context.Context) []Result {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	checks := []struct {
		name string
		fn   func(context.Context) (bool, string, error)
	}{
		{"balance_sheet_balances", c.balanceSheetBalances},
		{"pass_through_accounts_zero", c.passThroughAccountsZero},
		{"external_lightning_delta", c.externalLightningDelta},
	}

	results := make([]Result, len(checks))
	var wg sync.WaitGroup
	for i, chk := range checks {
		wg.Add(1)
		go func(i int, name string, fn func(context.Context) (bool, string, error)) {
			defer wg.Done()
			ok, msg, err := fn(ctx)
			if err != nil {
				ok = false
				msg = err.Error()
			}
			results[i] = Result{Name: name, OK: ok, Message: msg}
		}(i, chk.name, chk.fn)
	}
	wg.Wait()

	for _, r := range results {
		if !r.OK {
			logger.Warn(fmt.Sprintf("sanity check failed: %s: %s", r.Name, r.Message),
				zap.String("check", r.Name),
				zap.Bool("notification", true),
			)
		}
	}
	return results
}

// balanceSheetBalances checks that Assets == Liabilities + Equity within
// ledger's own 1 msat tolerance (spec §4.O bullet 1; the tolerance
// itself lives on BalanceSheet.IsBalanced, component E).
func (c *Checker) balanceSheetBalances(ctx context.Context) (bool, string, error) {
	sheet, err := c.ledgerStore.GenerateBalanceSheet(ctx, c.now())
	if err != nil {
		return false, "", fmt.Errorf("sanity: generate balance sheet: %w", err)
	}
	if sheet.IsBalanced() {
		return true, "balance sheet balanced", nil
	}
	delta := sheet.Assets.Total.Sub(sheet.Liabilities.Total.Add(sheet.Equity.Total))
	return false, fmt.Sprintf("assets - (liabilities + equity) = %s msats", delta.Msats.Decimal()), nil
}

// passThroughAccountsZero checks that the server's internal clearing
// accounts (spec §4.O bullet 2) sum to within passThroughToleranceMsat
// across every sub-account.
func (c *Checker) passThroughAccountsZero(ctx context.Context) (bool, string, error) {
	sheet, err := c.ledgerStore.GenerateBalanceSheet(ctx, c.now())
	if err != nil {
		return false, "", fmt.Errorf("sanity: generate balance sheet: %w", err)
	}
	total := big.NewInt(0)
	for _, name := range passThroughAccounts {
		acc, ok := sheet.Assets.Accounts[name]
		if !ok {
			continue
		}
		total.Add(total, acc.Total.Msats.Scaled())
	}
	abs := new(big.Int).Abs(total)
	if abs.Cmp(big.NewInt(passThroughToleranceMsat)) <= 0 {
		return true, "pass-through accounts net to zero", nil
	}
	return false, fmt.Sprintf("pass-through accounts net to %s msats", total.String()), nil
}

// externalLightningDelta checks that LND's reported local channel
// balance agrees with the ledger's External Lightning Payments
// contra-asset balance within the configured tolerance (spec §4.O
// bullet 3).
func (c *Checker) externalLightningDelta(ctx context.Context) (bool, string, error) {
	channelBalance, err := c.lndClient.GetChannelBalance(ctx)
	if err != nil {
		return false, "", fmt.Errorf("sanity: get channel balance: %w", err)
	}
	sheet, err := c.ledgerStore.GenerateBalanceSheet(ctx, c.now())
	if err != nil {
		return false, "", fmt.Errorf("sanity: generate balance sheet: %w", err)
	}

	ledgerMsat := big.NewInt(0)
	if acc, ok := sheet.Assets.Accounts["External Lightning Payments"]; ok {
		ledgerMsat = acc.Total.Msats.Scaled()
	}
	lndMsat := big.NewInt(channelBalance.LocalSats * 1000)
	delta := new(big.Int).Sub(lndMsat, ledgerMsat)

	toleranceMsat := c.cfg.ExternalLightningDeltaToleranceSats * 1000
	if new(big.Int).Abs(delta).Cmp(big.NewInt(toleranceMsat)) <= 0 {
		return true, "external Lightning delta within tolerance", nil
	}
	return false, fmt.Sprintf("LND local channel balance vs External Lightning Payments delta = %s msats", delta.String()), nil
}
