package pipelines

import (
	"context"
	"fmt"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/money"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/ops"
)

// LightningToHive runs pipeline M.2: a settled inbound Invoice whose
// memo identifies a Hive customer and, via spec §6.6's markers, a
// desired settlement currency. Grounded on original_source's
// actions/lnd_to_hive.py for the HIVE/HBD branch; the Keepsats branch
// has no Hive-side conversion at all, so it uses the dedicated
// postLightningDeposit two-entry sequence instead (spec §4.M.2's literal
// DEPOSIT_LIGHTNING / CUSTOM_JSON_TRANSFER wording).
func (e *Engine) LightningToHive(ctx context.Context, op *ops.Invoice, toHiveAccount string, noBroadcast bool) error {
	base := op.TrackedBase()
	custID := base.CustID
	if len(base.Replies) > 0 {
		return fmt.Errorf("pipelines: lightning_to_hive: op %s already has replies, refusing reprocess", base.GroupID)
	}

	return e.withCustomerLock(ctx, custID, func(ctx context.Context) error {
		quote, err := e.currentQuote(ctx)
		if err != nil {
			return fmt.Errorf("pipelines: lightning_to_hive: fetch quote: %w", err)
		}
		ec := entryCtx{GroupID: base.GroupID, ShortID: base.ShortID, CustID: custID, OpType: string(base.OpType), Quote: quote, Now: e.now()}

		target := TargetCurrency(op.Memo)
		if target == money.MSATS {
			netConv, err := e.postLightningDeposit(ctx, ec, op.ValueMsat)
			if err != nil {
				return fmt.Errorf("pipelines: lightning_to_hive: post keepsats deposit: %w", err)
			}
			if err := e.dispatchReply(ctx, op, e.serverAccount, money.MSATS, netConv.Msats,
				fmt.Sprintf("Deposit %s to Keepsats", netConv.Msats.String()), true); err != nil {
				return fmt.Errorf("pipelines: lightning_to_hive: dispatch keepsats receipt: %w", err)
			}
			e.notifier.Notify(ctx, op, fmt.Sprintf("Received %d msats as Keepsats", op.ValueMsat))
			return nil
		}

		netConv, err := e.postLightningToHive(ctx, ec, target, op.ValueMsat)
		if err != nil {
			return fmt.Errorf("pipelines: lightning_to_hive: post conversion: %w", err)
		}
		if err := e.dispatchReply(ctx, op, toHiveAccount, target, netConv.AmountFor(target),
			fmt.Sprintf("Converted %d msats Lightning deposit", op.ValueMsat), false); err != nil {
			return fmt.Errorf("pipelines: lightning_to_hive: dispatch payout: %w", err)
		}
		e.notifier.Notify(ctx, op, fmt.Sprintf("Converted %d msats to %s", op.ValueMsat, target))
		return nil
	})
}
