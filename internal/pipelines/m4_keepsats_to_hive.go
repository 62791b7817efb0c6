package pipelines

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/ledger"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/money"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/ops"
)

// keepsatsWithdrawRequest is the custom_json payload shape pipeline M.4
// consumes: {to: server, sats, memo} (spec §4.M.4).
type keepsatsWithdrawRequest struct {
	To   string `json:"to"`
	Sats int64  `json:"sats"`
	Memo string `json:"memo"`
}

// KeepsatsToHive runs pipeline M.4: a customer-sent custom_json
// requesting withdrawal of their Keepsats balance as HIVE or HBD.
// Grounded on spec §4.M.4's step list and the reverse shape of
// original_source's conversion/hive_to_keepsats.py deposit step — the
// same liability re-bucketing, run backwards.
func (e *Engine) KeepsatsToHive(ctx context.Context, op *ops.CustomJSON, toHiveAccount string, noBroadcast bool) error {
	base := op.TrackedBase()
	custID := base.CustID

	var req keepsatsWithdrawRequest
	if err := json.Unmarshal([]byte(op.JSON), &req); err != nil {
		return fmt.Errorf("pipelines: keepsats_to_hive: decode withdrawal request: %w", err)
	}
	if req.Sats <= 0 {
		return fmt.Errorf("pipelines: keepsats_to_hive: non-positive sats requested")
	}
	requestedMsat := req.Sats * money.MsatsPerSat

	return e.withCustomerLock(ctx, custID, func(ctx context.Context) error {
		if err := e.checkPreconditions(ctx, custID, req.Sats); err != nil {
			return e.refuseCleanly(ctx, op, e.serverAccount, money.MSATS, err)
		}

		quote, err := e.currentQuote(ctx)
		if err != nil {
			return fmt.Errorf("pipelines: keepsats_to_hive: fetch quote: %w", err)
		}
		target := TargetCurrency(req.Memo)
		if target == money.MSATS {
			target = money.HIVE
		}

		netConv, feeConv, err := feeSplit(mustMsatAmount(requestedMsat), e.cfg.ServerFeePPM, quote)
		if err != nil {
			return err
		}
		requestedConv, err := money.Convert(mustMsatAmount(requestedMsat), quote)
		if err != nil {
			return fmt.Errorf("pipelines: keepsats_to_hive: convert requested amount: %w", err)
		}

		custLiability := mustAccount(ledger.Liability, "Customer Liability", custID, false)
		feeIncomeHive := mustAccount(ledger.Revenue, "Fee Income Hive", e.serverAccount, false)

		reclassify, err := ledger.NewEntry(ledger.EntryInput{
			GroupID: base.GroupID + "-" + string(ledgerReclassifyKeepsats), ShortID: base.ShortID, CustID: custID, OpType: string(base.OpType),
			LedgerType: ledgerReclassifyKeepsats, Timestamp: e.now(),
			Description: "Reclassify Keepsats withdrawal to HIVE",
			Debit:       custLiability, DebitUnit: money.MSATS, DebitAmount: requestedConv.Msats, DebitConv: &requestedConv,
			Credit: custLiability, CreditUnit: target, CreditAmount: requestedConv.AmountFor(target), CreditConv: &requestedConv,
		})
		if err != nil {
			return fmt.Errorf("pipelines: keepsats_to_hive: reclassify entry: %w", err)
		}
		if err := e.saveEntry(ctx, "keepsats_to_hive", reclassify); err != nil {
			return err
		}

		if !feeConv.Msats.IsZero() {
			feeIncome, err := ledger.NewEntry(ledger.EntryInput{
				GroupID: base.GroupID + "-" + string(ledger.LedgerFeeIncome), ShortID: base.ShortID, CustID: custID, OpType: string(base.OpType),
				LedgerType: ledger.LedgerFeeIncome, Timestamp: e.now(),
				Description: "Keepsats withdrawal service fee",
				Debit:       custLiability, DebitUnit: target, DebitAmount: feeConv.AmountFor(target), DebitConv: &feeConv,
				Credit: feeIncomeHive, CreditUnit: money.MSATS, CreditAmount: feeConv.Msats, CreditConv: &feeConv,
			})
			if err != nil {
				return fmt.Errorf("pipelines: keepsats_to_hive: fee_income entry: %w", err)
			}
			if err := e.saveEntry(ctx, "keepsats_to_hive", feeIncome); err != nil {
				return err
			}
		}

		if err := e.dispatchReply(ctx, op, toHiveAccount, target, netConv.AmountFor(target), req.Memo, false); err != nil {
			return fmt.Errorf("pipelines: keepsats_to_hive: dispatch payout: %w", err)
		}
		e.notifier.Notify(ctx, op, fmt.Sprintf("Withdrew %d sats as %s", req.Sats, target))
		return nil
	})
}

func mustMsatAmount(msat int64) money.Amount {
	a, err := money.OfInt(money.MSATS, msat)
	if err != nil {
		panic(fmt.Sprintf("pipelines: %v", err))
	}
	return a
}
