// Package ratelimit implements the rolling-window per-customer outbound
// sats cap (spec §4.L): an ordered list of (window, cap) pairs, each
// checked against the customer's outbound-sats total over that window
// as recorded in the ledger.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/ledger"
)

// Window is one (duration, sats cap) pair in the configured list.
type Window struct {
	Hours time.Duration
	Sats  int64
}

// DefaultTrackedTypes is the set of ledger entry types that count as
// "outbound sats" for rate-limiting purposes (spec §4.L's "ledger
// entries of specific types") — the Lightning-withdrawal and external-
// send legs pipeline M.1 posts on SUCCEEDED.
var DefaultTrackedTypes = []ledger.LedgerType{
	ledger.LedgerWithdrawLightning,
	ledger.LedgerLightningExternalSend,
}

// WindowPercent is one window's utilization, spec §4.L's `percents`
// list entry.
type WindowPercent struct {
	Window  Window
	Percent float64
}

// LimitCheckResult is spec §4.L's result shape.
type LimitCheckResult struct {
	LimitOK         bool
	Percents        []WindowPercent
	SatsListStr     string
	NextLimitExpiry time.Time
}

// Engine checks a requested sats amount against the configured windows.
type Engine struct {
	store        *ledger.Store
	windows      []Window
	trackedTypes []ledger.LedgerType
	now          func() time.Time
}

// NewEngine constructs an Engine. trackedTypes defaults to
// DefaultTrackedTypes when nil.
func NewEngine(store *ledger.Store, windows []Window, trackedTypes []ledger.LedgerType) *Engine {
	if trackedTypes == nil {
		trackedTypes = DefaultTrackedTypes
	}
	return &Engine{store: store, windows: windows, trackedTypes: trackedTypes, now: time.Now}
}

// Check computes, for every configured window, the customer's outbound
// sats total in that window and whether adding requestedSats would
// exceed the window's cap. LimitOK is true only if every window passes.
func (e *Engine) Check(ctx context.Context, custID string, requestedSats int64) (LimitCheckResult, error) {
	now := e.now()
	result := LimitCheckResult{LimitOK: true}
	satsListParts := make([]string, 0, len(e.windows))

	for _, w := range e.windows {
		spent, err := e.outboundSats(ctx, custID, now.Add(-w.Hours))
		if err != nil {
			return LimitCheckResult{}, fmt.Errorf("ratelimit: window %s: %w", w.Hours, err)
		}

		total := spent + requestedSats
		pct := 0.0
		if w.Sats > 0 {
			pct = float64(total) / float64(w.Sats) * 100
		}
		result.Percents = append(result.Percents, WindowPercent{Window: w, Percent: pct})
		satsListParts = append(satsListParts, fmt.Sprintf("%d/%d", spent, w.Sats))

		if total > w.Sats {
			result.LimitOK = false
		}

		if pct >= nearCapThresholdPercent {
			expiry := e.windowExpiry(ctx, custID, w, now)
			if result.NextLimitExpiry.IsZero() || expiry.Before(result.NextLimitExpiry) {
				result.NextLimitExpiry = expiry
			}
		}
	}

	result.SatsListStr = joinComma(satsListParts)
	return result, nil
}

// nearCapThresholdPercent is the utilization percentage at or above which a
// window counts as "near-cap" for NextLimitExpiry purposes.
const nearCapThresholdPercent = 80.0

// outboundSats sums the Sats value of every tracked-type ledger entry
// for custID with a timestamp at or after since.
func (e *Engine) outboundSats(ctx context.Context, custID string, since time.Time) (int64, error) {
	var total int64
	for _, lt := range e.trackedTypes {
		entries, err := e.store.FindEntries(ctx, ledger.Filter{CustID: custID, LedgerType: lt, From: since})
		if err != nil {
			return 0, err
		}
		for _, entry := range entries {
			total += custSatsLeg(entry, custID)
		}
	}
	return total, nil
}

// custSatsLeg returns the Sats magnitude of whichever side of entry
// belongs to custID (spec §3.4: the customer-facing account's Sub is
// the cust_id). Falls back to 0 if neither side matches, which
// shouldn't happen given the query already filtered on CustID.
func custSatsLeg(entry ledger.Entry, custID string) int64 {
	if entry.Debit.Sub == custID {
		return entry.DebitConv.Sats.Scaled().Int64()
	}
	if entry.Credit.Sub == custID {
		return entry.CreditConv.Sats.Scaled().Int64()
	}
	return 0
}

// windowExpiry estimates when this window's utilization will drop back
// under the near-cap threshold: the timestamp of the oldest tracked
// entry still inside the window, plus the window's duration — once that
// entry ages out, the running total drops.
func (e *Engine) windowExpiry(ctx context.Context, custID string, w Window, now time.Time) time.Time {
	var oldest time.Time
	for _, lt := range e.trackedTypes {
		entries, err := e.store.FindEntries(ctx, ledger.Filter{CustID: custID, LedgerType: lt, From: now.Add(-w.Hours)})
		if err != nil || len(entries) == 0 {
			continue
		}
		if oldest.IsZero() || entries[0].Timestamp.Before(oldest) {
			oldest = entries[0].Timestamp
		}
	}
	if oldest.IsZero() {
		return now.Add(w.Hours)
	}
	return oldest.Add(w.Hours)
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}
