package pipelines

import (
	"context"
	"fmt"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/ops"
)

// FillRecurrentTransfer processes a settled FillRecurrentTransfer event
// (spec §3.6's scheduled counterpart of Transfer) by running it through
// pipeline M.1's shared logic: a recurring transfer's scheduled fill
// carries exactly the same from/to/amount/memo shape as a one-off
// transfer, it just arrived via Hive's recurrent_transfer mechanism
// rather than a single signed broadcast (SPEC_FULL.md's "Supplemented
// features": "a fill_recurrent_transfer pipeline that behaves like
// §4.M.1 but is triggered on a schedule rather than a single inbound
// transfer"). Replies and notifications are recorded against op itself
// rather than a synthetic Transfer, so ops.Store.Save's group_id upsert
// persists this fill under its own FillRecurrentTransfer identity
// instead of overwriting it with a different op_type.
func (e *Engine) FillRecurrentTransfer(ctx context.Context, op *ops.FillRecurrentTransfer, noBroadcast bool) error {
	if err := e.hiveToLightning(ctx, op, op.From, op.Unit, op.Amount, op.Memo, noBroadcast); err != nil {
		return fmt.Errorf("pipelines: fill_recurrent_transfer: %w", err)
	}
	return nil
}
