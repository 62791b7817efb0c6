package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/monitor"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/mongostore"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/ops"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/pipelines"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/pkg/logger"
)

// custom_json id discriminators routing a tracked CustomJSON to M.4 vs
// M.5 (neither pipeline's own request shape carries a discriminator of
// its own — see DESIGN.md's Open Question decision on this convention).
const (
	customJSONIDKeepsatsWithdraw = "v4vapp_keepsats_withdraw"
	customJSONIDKeepsatsTransfer = "v4vapp_keepsats_transfer"
)

// dispatchTargets extends monitor.DefaultTargets with the two op types
// it doesn't cover on its own (custom_json, fill_recurrent_transfer),
// so every SPEC_FULL.md-named pipeline has a change-stream trigger.
func dispatchTargets(store *mongostore.Store) []monitor.Target {
	targets := monitor.DefaultTargets(store.Ops, store.Ledger, store.RatesTS)
	return append(targets,
		monitor.Target{
			Name:          "custom_json",
			Collection:    store.Ops,
			OpTypeFilter:  ops.OpCustomJSON,
			IgnoredFields: []string{"locked"},
			Correlate:     func(bson.M) bool { return true },
		},
		monitor.Target{
			Name:          "fill_recurrent_transfer",
			Collection:    store.Ops,
			OpTypeFilter:  ops.OpFillRecurrentTransfer,
			IgnoredFields: []string{"locked"},
			Correlate:     func(bson.M) bool { return true },
		},
	)
}

// dispatch is the monitor.Handler driving component I: every
// correlated change-stream event rehydrates its tracked op from the
// ops store and routes it to the pipeline SPEC_FULL.md's dataflow
// assigns it to. "payments", "ledger", and "rates_ts" have no
// downstream pipeline consumer yet and are acknowledged as a no-op.
func (b *Bridge) dispatch(ctx context.Context, target string, fullDocument bson.M) error {
	switch target {
	case "payments", "ledger", "rates_ts":
		return nil
	}

	groupID, _ := fullDocument["group_id"].(string)
	if groupID == "" {
		return nil
	}

	op, err := b.opsStore.Load(ctx, groupID)
	if err != nil {
		if errors.Is(err, ops.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("dispatch: load %s %s: %w", target, groupID, err)
	}

	switch target {
	case "invoices":
		inv, ok := op.(*ops.Invoice)
		if !ok || inv.State != "SETTLED" {
			return nil
		}
		if err := b.engine.LightningToHive(ctx, inv, b.cfg.ServerAccount, false); err != nil {
			return fmt.Errorf("dispatch: lightning_to_hive: %w", err)
		}
	case "hive_ops":
		transfer, ok := op.(*ops.Transfer)
		if !ok {
			return nil
		}
		if looksLikePaymentTarget(transfer.Memo) {
			if err := b.engine.HiveToLightning(ctx, transfer, false); err != nil {
				return fmt.Errorf("dispatch: hive_to_lightning: %w", err)
			}
		} else {
			if err := b.engine.HiveToKeepsats(ctx, transfer, false); err != nil {
				return fmt.Errorf("dispatch: hive_to_keepsats: %w", err)
			}
		}
	case "custom_json":
		cj, ok := op.(*ops.CustomJSON)
		if !ok {
			return nil
		}
		switch cj.ID {
		case customJSONIDKeepsatsWithdraw:
			if err := b.engine.KeepsatsToHive(ctx, cj, b.cfg.ServerAccount, false); err != nil {
				return fmt.Errorf("dispatch: keepsats_to_hive: %w", err)
			}
		case customJSONIDKeepsatsTransfer:
			if err := b.engine.InternalTransfer(ctx, cj); err != nil {
				return fmt.Errorf("dispatch: internal_transfer: %w", err)
			}
		default:
			logger.Warn("custom_json with unrecognized id, skipping dispatch",
				zap.String("id", cj.ID), zap.String("group_id", groupID))
		}
	case "fill_recurrent_transfer":
		fill, ok := op.(*ops.FillRecurrentTransfer)
		if !ok {
			return nil
		}
		if err := b.engine.FillRecurrentTransfer(ctx, fill, false); err != nil {
			return fmt.Errorf("dispatch: fill_recurrent_transfer: %w", err)
		}
	}
	return nil
}

// looksLikePaymentTarget applies the same heuristic pipelines.resolveBolt11
// uses internally (a memo only routes to M.1 when it plausibly carries a
// payable target): a Lightning address, or any non-marker word at least
// 4 characters long.
func looksLikePaymentTarget(memo string) bool {
	for _, f := range strings.Fields(memo) {
		if strings.HasPrefix(f, "#") {
			continue
		}
		candidate := strings.TrimPrefix(strings.ToLower(f), "lightning:")
		if pipelines.IsLightningAddress(candidate) || len(candidate) >= 4 {
			return true
		}
	}
	return false
}
