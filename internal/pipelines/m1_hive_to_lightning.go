package pipelines

import (
	"context"
	"fmt"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/money"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/ops"
)

// HiveToLightning runs pipeline M.1: a HIVE (or HBD) transfer from a
// customer to the server account whose memo carries a Lightning pay-req,
// Lightning address, or bech32 LNURL. Grounded on
// original_source's process/process_payment.py process_payment_success
// (the conversion + record_payment sequence) for the success path and
// spec §4.M.1 steps 5-6 for the change/refund amounts.
func (e *Engine) HiveToLightning(ctx context.Context, op *ops.Transfer, noBroadcast bool) error {
	return e.hiveToLightning(ctx, op, op.From, op.Unit, op.Amount, op.Memo, noBroadcast)
}

// hiveToLightning is pipeline M.1's shared implementation: trackedOp is
// the concrete operation replies/notifications are recorded against
// (preserving its own op_type and identity in the ops store), while
// from/unit/amount/memo are the fields that differ between a one-off
// Transfer and a scheduled FillRecurrentTransfer's settlement (spec
// §3.6, SPEC_FULL.md "Supplemented features").
func (e *Engine) hiveToLightning(ctx context.Context, trackedOp ops.TrackedOperation, from string, unit money.Currency, amount money.Amount, memo string, noBroadcast bool) error {
	base := trackedOp.TrackedBase()
	custID := base.CustID

	return e.withCustomerLock(ctx, custID, func(ctx context.Context) error {
		quote, err := e.currentQuote(ctx)
		if err != nil {
			return fmt.Errorf("pipelines: hive_to_lightning: fetch quote: %w", err)
		}

		fullConv, err := money.Convert(amount, quote)
		if err != nil {
			return fmt.Errorf("pipelines: hive_to_lightning: convert input amount: %w", err)
		}
		if err := e.checkPreconditions(ctx, custID, fullConv.Sats.Scaled().Int64()); err != nil {
			return e.refuseCleanly(ctx, trackedOp, from, unit, err)
		}

		target := extractPaymentTarget(memo)
		bolt11, err := e.resolveBolt11(ctx, target, quote)
		if err != nil {
			// Malformed/undecodable memo is a data error (spec §7): logged,
			// marked unprocessed, no retry, no refund.
			return fmt.Errorf("pipelines: hive_to_lightning: resolve payment target: %w", err)
		}

		reservation := e.cfg.HiveReturnFeeReservationHive
		convertible := amount
		if reservation.Currency == amount.Currency && !reservation.IsZero() {
			convertible = amount.Sub(reservation)
		}
		budgetConv, err := money.Convert(convertible, quote)
		if err != nil {
			return fmt.Errorf("pipelines: hive_to_lightning: convert spendable budget: %w", err)
		}

		paymentTargetMsat := budgetConv.Msats.Scaled().Int64()
		if decoded, err := e.lndClient.DecodeInvoice(ctx, bolt11); err == nil && decoded.AmountSats > 0 {
			paymentTargetMsat = decoded.AmountSats * 1000
		}
		maxFeeMsat := paymentTargetMsat * e.cfg.MaxLNDFeePPM / 1_000_000
		maxFeeSats := maxFeeMsat / 1000

		ec := entryCtx{GroupID: base.GroupID, ShortID: base.ShortID, CustID: custID, OpType: string(base.OpType), Quote: quote, Now: e.now()}

		result, payErr := e.lndClient.PayInvoice(ctx, bolt11, maxFeeSats)
		if payErr != nil || result == nil {
			reason := "Lightning payment failed"
			if payErr != nil {
				reason = payErr.Error()
			}
			refund := amount
			if reservation.Currency == amount.Currency && !reservation.IsZero() {
				refund = amount.Sub(reservation)
			}
			if err := e.dispatchReply(ctx, trackedOp, from, unit, refund, fmt.Sprintf("refund: %s", reason), false); err != nil {
				return fmt.Errorf("pipelines: hive_to_lightning: enqueue refund: %w", err)
			}
			e.notifier.Notify(ctx, trackedOp, fmt.Sprintf("Lightning payment failed, refunded %s", refund.String()))
			return nil
		}

		lndFeeMsat := result.FeeSats * 1000
		serverFeeMsat := paymentTargetMsat * e.cfg.ServerFeePPM / 1_000_000
		totalMsat := paymentTargetMsat + lndFeeMsat + serverFeeMsat

		if !PayWithSats(memo) {
			totalAmt, err := money.OfInt(money.MSATS, totalMsat)
			if err != nil {
				return err
			}
			totalConv, err := money.Convert(totalAmt, quote)
			if err != nil {
				return fmt.Errorf("pipelines: hive_to_lightning: convert total cost: %w", err)
			}
			if _, err := e.postHiveToKeepsats(ctx, ec, totalConv.Hive); err != nil {
				return fmt.Errorf("pipelines: hive_to_lightning: post conversion: %w", err)
			}
		}
		if err := e.postLightningWithdrawal(ctx, ec, paymentTargetMsat, lndFeeMsat); err != nil {
			return fmt.Errorf("pipelines: hive_to_lightning: post withdrawal: %w", err)
		}

		changeMsat := budgetConv.Msats.Scaled().Int64() - totalMsat
		dustMsat := e.cfg.DustThresholdSats * 1000
		if changeMsat >= dustMsat {
			changeAmt, err := money.OfInt(money.MSATS, changeMsat)
			if err != nil {
				return err
			}
			changeConv, err := money.Convert(changeAmt, quote)
			if err != nil {
				return fmt.Errorf("pipelines: hive_to_lightning: convert change: %w", err)
			}
			if err := e.dispatchReply(ctx, trackedOp, from, unit, changeConv.AmountFor(unit), "", false); err != nil {
				return fmt.Errorf("pipelines: hive_to_lightning: enqueue change: %w", err)
			}
		}

		e.notifier.Notify(ctx, trackedOp, fmt.Sprintf("Paid %d msats via Lightning", paymentTargetMsat))
		return nil
	})
}

// resolveBolt11 turns a memo's payment target into a payable bolt11
// invoice, performing the LNURL well-known lookup and callback (spec
// §4.M.1 step 2, §6.3) when target is a Lightning address or LNURL
// rather than an invoice already.
func (e *Engine) resolveBolt11(ctx context.Context, target string, quote money.Quote) (string, error) {
	if !IsLightningAddress(target) && len(target) < 4 {
		return "", fmt.Errorf("pipelines: empty or unrecognized payment target in memo")
	}
	lower := target
	if IsLightningAddress(lower) || len(lower) > 4 && (lower[:4] == "lnur" || lower[:4] == "LNUR") {
		payReq, err := e.lnurl.ResolvePayRequest(ctx, target)
		if err != nil {
			return "", fmt.Errorf("pipelines: resolve lnurl pay request: %w", err)
		}
		// The amount to request is negotiated by the caller once it knows
		// the spendable budget; here we request payReq's minimum as a
		// placeholder invoice decode target isn't needed beyond validation.
		bolt11, err := e.lnurl.RequestInvoice(ctx, payReq, payReq.MinSendable, "")
		if err != nil {
			return "", fmt.Errorf("pipelines: request lnurl invoice: %w", err)
		}
		return bolt11, nil
	}
	return target, nil
}

// refuseCleanly reports a policy-class failure (spec §7) to the user via
// the reply dispatcher with a clean memo and exits the pipeline without
// error, since policy failures are not retried.
func (e *Engine) refuseCleanly(ctx context.Context, op ops.TrackedOperation, toAccount string, unit money.Currency, cause error) error {
	memo := fmt.Sprintf("declined: %s", cause.Error())
	zero := money.Zero(unit)
	if err := e.dispatchReply(ctx, op, toAccount, unit, zero, memo, true); err != nil {
		return fmt.Errorf("pipelines: refuse cleanly: %w", err)
	}
	return nil
}
