package pipelines

import (
	"context"
	"fmt"
	"time"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/ledger"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/money"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/ops"
)

// HoldKeepsats runs pipeline M.6's hold half: advisory escrow that moves
// msats out of the customer's VSC Liability sub into the shared Keepsats
// Hold pool pending some external outcome (a pending withdrawal, a
// disputed transfer, ...). Grounded on original_source's
// process/hold_release_keepsats.py hold_keepsats, with the escrow pool
// given its own whitelisted chart-of-accounts entry ("Keepsats Hold")
// rather than the original's same-named "VSC Liability" sub="keepsats" —
// a redesign decision recorded in DESIGN.md.
func (e *Engine) HoldKeepsats(ctx context.Context, op ops.TrackedOperation, custID string, amountMsat int64, fee bool) (ledger.Entry, error) {
	base := op.TrackedBase()
	suffix := "_hold"
	if fee {
		suffix = "_hold_fee"
	}
	groupID := base.GroupID + suffix

	quote, err := e.currentQuote(ctx)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("pipelines: hold_keepsats: fetch quote: %w", err)
	}
	amt, err := money.OfInt(money.MSATS, amountMsat)
	if err != nil {
		return ledger.Entry{}, err
	}
	conv, err := money.Convert(amt, quote)
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("pipelines: hold_keepsats: convert amount: %w", err)
	}

	custLiability := mustAccount(ledger.Liability, "VSC Liability", custID, false)
	holdPool := mustAccount(ledger.Liability, "Keepsats Hold", e.cfg.KeepsatsHoldSub, false)

	entry, err := ledger.NewEntry(ledger.EntryInput{
		GroupID: groupID, ShortID: base.ShortID, CustID: custID, OpType: string(base.OpType),
		LedgerType: ledger.LedgerHoldKeepsats, Timestamp: e.now(),
		Description: fmt.Sprintf("Hold %d sats for %s", amountMsat/1000, custID),
		Debit:       custLiability, DebitUnit: money.MSATS, DebitAmount: conv.Msats, DebitConv: &conv,
		Credit: holdPool, CreditUnit: money.MSATS, CreditAmount: conv.Msats, CreditConv: &conv,
	})
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("pipelines: hold_keepsats entry: %w", err)
	}
	if err := e.saveEntry(ctx, "hold_keepsats", entry); err != nil {
		return ledger.Entry{}, err
	}
	return entry, nil
}

// ReleaseKeepsats runs pipeline M.6's release half: the exact reversal of
// a prior hold, found by its paired group_id suffix (spec §4.M.6 "both
// carry the same group_id prefix with _hold / _release suffix for
// pairing"). Grounded on original_source's release_keepsats, which looks
// up the matching HOLD_KEEPSATS entry and mirrors its amounts rather than
// recomputing a fresh quote.
func (e *Engine) ReleaseKeepsats(ctx context.Context, op ops.TrackedOperation, fee bool) (*ledger.Entry, error) {
	base := op.TrackedBase()
	holdSuffix := "_hold"
	if fee {
		holdSuffix = "_hold_fee"
	}
	holdGroupID := base.GroupID + holdSuffix

	found, err := e.ledgerStore.FindEntries(ctx, ledger.Filter{GroupID: holdGroupID})
	if err != nil {
		return nil, fmt.Errorf("pipelines: release_keepsats: lookup hold entry: %w", err)
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("pipelines: release_keepsats: no hold entry for group %s", holdGroupID)
	}
	held := found[0]

	releaseSuffix := "_release"
	if fee {
		releaseSuffix = "_release_fee"
	}
	custLiability := mustAccount(ledger.Liability, "VSC Liability", held.CustID, false)
	holdPool := mustAccount(ledger.Liability, "Keepsats Hold", e.cfg.KeepsatsHoldSub, false)

	lockDuration := e.now().Sub(held.Timestamp)
	entry, err := ledger.NewEntry(ledger.EntryInput{
		GroupID: base.GroupID + releaseSuffix, ShortID: base.ShortID, CustID: held.CustID, OpType: string(base.OpType),
		LedgerType: ledger.LedgerReleaseKeepsats, Timestamp: e.now(),
		Description: fmt.Sprintf("Release Keepsats for %s after %s", held.CustID, lockDuration.Round(time.Second)),
		Debit:       holdPool, DebitUnit: money.MSATS, DebitAmount: held.DebitAmount, DebitConv: &held.DebitConv,
		Credit: custLiability, CreditUnit: money.MSATS, CreditAmount: held.CreditAmount, CreditConv: &held.CreditConv,
	})
	if err != nil {
		return nil, fmt.Errorf("pipelines: release_keepsats entry: %w", err)
	}
	if err := e.saveEntry(ctx, "release_keepsats", entry); err != nil {
		return nil, err
	}
	return &entry, nil
}
