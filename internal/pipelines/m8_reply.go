package pipelines

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/money"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/ops"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/pending"
)

// replyCustomJSON is the payload shape sent as a custom_json reply
// (spec §4.M.8 route (b)) when a Hive transfer isn't the right vehicle
// — either because the amount is at or below the tiny-payment threshold,
// or because the caller explicitly requested the custom_json route (e.g.
// Keepsats receipts and declines, which never touch the Hive chain).
type replyCustomJSON struct {
	To     string `json:"to"`
	Unit   string `json:"unit"`
	Amount string `json:"amount"`
	Memo   string `json:"memo"`
}

// dispatchReply is the shared terminal step the customer-facing pipelines
// (M.1-M.4) call to conclude: queue a Hive transfer (primary) or a
// custom_json (fallback) back to the customer, and record the reply id on
// the originating op (spec §4.M.8). forceCustomJSON is set by callers when
// the reply is inherently off-chain (Keepsats receipts, declines); a reply
// whose msats value is at or under Config.TinyPaymentThresholdMsat takes
// the custom_json route too.
func (e *Engine) dispatchReply(ctx context.Context, op ops.TrackedOperation, toAccount string, unit money.Currency, amount money.Amount, memo string, forceCustomJSON bool) error {
	base := op.TrackedBase()
	uniqueKey := fmt.Sprintf("%s:reply", base.GroupID)

	if !forceCustomJSON && e.quotes != nil {
		if q, err := e.currentQuote(ctx); err == nil {
			if conv, err := money.Convert(amount, q); err == nil && conv.Msats.Scaled().Int64() <= e.cfg.TinyPaymentThresholdMsat {
				forceCustomJSON = true
			}
		}
	}

	if forceCustomJSON {
		payload := replyCustomJSON{To: toAccount, Unit: string(unit), Amount: amount.Decimal(), Memo: memo}
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("pipelines: encode reply custom_json: %w", err)
		}
		if err := pending.EnqueueCustomJSON(ctx, e.opsStore, base.GroupID, uniqueKey, e.serverAccount, nil, string(encoded), false); err != nil {
			return fmt.Errorf("pipelines: enqueue reply custom_json: %w", err)
		}
		ops.AddReply(op, ops.Reply{ReplyID: uniqueKey, ReplyType: ops.ReplyCustomJSON, ReplyMessage: memo})
		return e.opsStore.Save(ctx, op)
	}

	if err := pending.EnqueueTransaction(ctx, e.opsStore, base.GroupID, uniqueKey, e.serverAccount, toAccount, amount, memo, false); err != nil {
		return fmt.Errorf("pipelines: enqueue reply transfer: %w", err)
	}
	msat, _ := moneyToMsat(amount)
	ops.AddReply(op, ops.Reply{ReplyID: uniqueKey, ReplyType: ops.ReplyTransfer, ReplyMsat: msat, ReplyMessage: memo})
	return e.opsStore.Save(ctx, op)
}

// moneyToMsat best-effort renders amount's msat-equivalent for the
// Reply.ReplyMsat audit field; non-Lightning-unit amounts (HIVE, HBD)
// have no meaningful msat figure and are left at zero rather than
// forcing every caller to supply a Quote just to log a reply.
func moneyToMsat(amount money.Amount) (int64, error) {
	if amount.Currency != money.MSATS {
		return 0, nil
	}
	return amount.Scaled().Int64(), nil
}
