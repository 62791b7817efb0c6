package pipelines

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/ledger"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/money"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/ops"
)

// internalTransferRequest is the custom_json payload shape pipeline M.5
// consumes: one Hive customer moving Keepsats to another, entirely
// off-chain (spec §4.M.5).
type internalTransferRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	Sats int64  `json:"sats"`
	Memo string `json:"memo"`
	Fee  bool   `json:"fee"`
}

// InternalTransfer runs pipeline M.5: a customer-sent custom_json moving
// Keepsats from one VSC Liability sub to another with no Hive or
// Lightning leg at all. Grounded on original_source's
// process/process_custom_json.py, which posts a single CUSTOM_JSON_TRANSFER
// entry for the ordinary case and a FEE_INCOME entry when the sender
// marks the transfer as a fee payment to the server.
func (e *Engine) InternalTransfer(ctx context.Context, op *ops.CustomJSON) error {
	base := op.TrackedBase()

	var req internalTransferRequest
	if err := json.Unmarshal([]byte(op.JSON), &req); err != nil {
		return fmt.Errorf("pipelines: internal_transfer: decode request: %w", err)
	}
	if req.Sats <= 0 {
		return fmt.Errorf("pipelines: internal_transfer: non-positive sats requested")
	}
	amountMsat := req.Sats * money.MsatsPerSat

	return e.withCustomerLock(ctx, req.From, func(ctx context.Context) error {
		quote, err := e.currentQuote(ctx)
		if err != nil {
			return fmt.Errorf("pipelines: internal_transfer: fetch quote: %w", err)
		}
		amt, err := money.OfInt(money.MSATS, amountMsat)
		if err != nil {
			return err
		}
		conv, err := money.Convert(amt, quote)
		if err != nil {
			return fmt.Errorf("pipelines: internal_transfer: convert amount: %w", err)
		}

		isFeePayment := req.Fee && req.To == e.serverAccount && amountMsat <= e.cfg.FeeThresholdMsat
		if isFeePayment {
			fromLiability := mustAccount(ledger.Liability, "VSC Liability", req.From, false)
			feeIncome := mustAccount(ledger.Revenue, "Fee Income Keepsats", req.From, false)
			entry, err := ledger.NewEntry(ledger.EntryInput{
				GroupID: base.GroupID + "-fee_income", ShortID: base.ShortID, CustID: req.From, OpType: string(base.OpType),
				LedgerType: ledger.LedgerFeeIncome, Timestamp: e.now(),
				Description: fmt.Sprintf("Fee for Keepsats %d sats for %s", req.Sats, req.From),
				Debit:       fromLiability, DebitUnit: money.MSATS, DebitAmount: conv.Msats, DebitConv: &conv,
				Credit: feeIncome, CreditUnit: money.MSATS, CreditAmount: conv.Msats, CreditConv: &conv,
			})
			if err != nil {
				return fmt.Errorf("pipelines: internal_transfer: fee_income entry: %w", err)
			}
			if err := e.saveEntry(ctx, "internal_transfer", entry); err != nil {
				return err
			}
			e.notifier.Notify(ctx, op, fmt.Sprintf("%s paid a %d sat fee", req.From, req.Sats))
			return nil
		}

		fromLiability := mustAccount(ledger.Liability, "VSC Liability", req.From, false)
		toLiability := mustAccount(ledger.Liability, "VSC Liability", req.To, false)
		entry, err := ledger.NewEntry(ledger.EntryInput{
			GroupID: base.GroupID + "-custom_json_transfer", ShortID: base.ShortID, CustID: req.From, OpType: string(base.OpType),
			LedgerType: ledgerCustomJSONTransfer, Timestamp: e.now(),
			Description: fmt.Sprintf("Transfer %s -> %s %d sats", req.From, req.To, req.Sats),
			UserMemo:    req.Memo,
			Debit:       fromLiability, DebitUnit: money.MSATS, DebitAmount: conv.Msats, DebitConv: &conv,
			Credit: toLiability, CreditUnit: money.MSATS, CreditAmount: conv.Msats, CreditConv: &conv,
		})
		if err != nil {
			return fmt.Errorf("pipelines: internal_transfer entry: %w", err)
		}
		if err := e.saveEntry(ctx, "internal_transfer", entry); err != nil {
			return err
		}
		e.notifier.Notify(ctx, op, fmt.Sprintf("%s sent %d sats to %s", req.From, req.Sats, req.To))
		return nil
	})
}
