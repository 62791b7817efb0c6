package pipelines

import (
	"context"
	"fmt"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/money"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/ops"
)

// HiveToKeepsats runs pipeline M.3: a plain HIVE/HBD transfer to the
// server whose memo carries no Lightning payment target, so it's
// credited directly as Keepsats. A thin wrapper over the shared
// conversion + contra + fee-income + deposit sequence (spec §4.M.3,
// "as above but shortcut"), grounded the same as M.1's conversion step
// on original_source's conversion/hive_to_keepsats.py.
func (e *Engine) HiveToKeepsats(ctx context.Context, op *ops.Transfer, noBroadcast bool) error {
	base := op.TrackedBase()
	custID := base.CustID

	return e.withCustomerLock(ctx, custID, func(ctx context.Context) error {
		quote, err := e.currentQuote(ctx)
		if err != nil {
			return fmt.Errorf("pipelines: hive_to_keepsats: fetch quote: %w", err)
		}
		fullConv, err := money.Convert(op.Amount, quote)
		if err != nil {
			return fmt.Errorf("pipelines: hive_to_keepsats: convert input amount: %w", err)
		}
		if err := e.checkPreconditions(ctx, custID, fullConv.Sats.Scaled().Int64()); err != nil {
			return e.refuseCleanly(ctx, op, op.From, op.Unit, err)
		}

		ec := entryCtx{GroupID: base.GroupID, ShortID: base.ShortID, CustID: custID, OpType: string(base.OpType), Quote: quote, Now: e.now()}
		netConv, err := e.postHiveToKeepsats(ctx, ec, op.Amount)
		if err != nil {
			return fmt.Errorf("pipelines: hive_to_keepsats: post conversion: %w", err)
		}

		if err := e.dispatchReply(ctx, op, e.serverAccount, money.MSATS, netConv.Msats,
			fmt.Sprintf("Deposit %s to Keepsats", netConv.Msats.String()), true); err != nil {
			return fmt.Errorf("pipelines: hive_to_keepsats: dispatch receipt: %w", err)
		}
		e.notifier.Notify(ctx, op, fmt.Sprintf("Converted %s to Keepsats", op.Amount.String()))
		return nil
	})
}
