package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/hive"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/lnd"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/money"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/ops"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/pkg/logger"
)

// handleHiveEvent builds the hive.EventHandler (component G): decode the
// wire payload for a tracked op type into its ops variant, derive its
// group_id/short_id, and persist it. Processing (pipeline dispatch)
// happens later, triggered by the change-stream monitor (component I) —
// ingest is persist-only, per spec §4.I's "post-persistence dispatch"
// and SPEC_FULL.md's supplemented dataflow description.
func (b *Bridge) handleHiveEvent(store *ops.Store) hive.EventHandler {
	return func(ctx context.Context, evt hive.Event) error {
		groupID := ops.DeriveHiveGroupID(evt.BlockNum, evt.TrxID, evt.OpInTrx)
		shortID, err := ops.DeriveShortID(groupID, 8)
		if err != nil {
			return fmt.Errorf("ingest: derive short id: %w", err)
		}

		var trackedOp ops.TrackedOperation
		switch evt.Type {
		case "transfer":
			var w hiveTransferWire
			if err := json.Unmarshal(evt.Payload, &w); err != nil {
				return fmt.Errorf("ingest: decode transfer: %w", err)
			}
			amount, unit, err := parseHiveAsset(w.Amount)
			if err != nil {
				return fmt.Errorf("ingest: transfer amount: %w", err)
			}
			trackedOp = &ops.Transfer{
				Base:   newBase(groupID, shortID, ops.OpTransfer, evt.Timestamp, w.From),
				From:   w.From,
				To:     w.To,
				Unit:   unit,
				Amount: amount,
				Memo:   w.Memo,
				TrxID:  evt.TrxID,
				Block:  evt.BlockNum,
			}
		case "recurrent_transfer":
			var w hiveRecurrentTransferWire
			if err := json.Unmarshal(evt.Payload, &w); err != nil {
				return fmt.Errorf("ingest: decode recurrent_transfer: %w", err)
			}
			amount, unit, err := parseHiveAsset(w.Amount)
			if err != nil {
				return fmt.Errorf("ingest: recurrent_transfer amount: %w", err)
			}
			trackedOp = &ops.RecurrentTransfer{
				Base:            newBase(groupID, shortID, ops.OpRecurrentTransfer, evt.Timestamp, w.From),
				From:            w.From,
				To:              w.To,
				Unit:            unit,
				Amount:          amount,
				Memo:            w.Memo,
				RecurrenceHours: w.RecurrenceHours,
				ExecutionCount:  w.ExecutionCount,
			}
		case "fill_recurrent_transfer":
			var w hiveRecurrentTransferWire
			if err := json.Unmarshal(evt.Payload, &w); err != nil {
				return fmt.Errorf("ingest: decode fill_recurrent_transfer: %w", err)
			}
			amount, unit, err := parseHiveAsset(w.Amount)
			if err != nil {
				return fmt.Errorf("ingest: fill_recurrent_transfer amount: %w", err)
			}
			trackedOp = &ops.FillRecurrentTransfer{
				Base:   newBase(groupID, shortID, ops.OpFillRecurrentTransfer, evt.Timestamp, w.From),
				From:   w.From,
				To:     w.To,
				Unit:   unit,
				Amount: amount,
				Memo:   w.Memo,
			}
		case "custom_json":
			var w hiveCustomJSONWire
			if err := json.Unmarshal(evt.Payload, &w); err != nil {
				return fmt.Errorf("ingest: decode custom_json: %w", err)
			}
			custID := ""
			if len(w.RequiredPostingAuths) > 0 {
				custID = w.RequiredPostingAuths[0]
			} else if len(w.RequiredAuths) > 0 {
				custID = w.RequiredAuths[0]
			}
			trackedOp = &ops.CustomJSON{
				Base:                 newBase(groupID, shortID, ops.OpCustomJSON, evt.Timestamp, custID),
				RequiredAuths:        w.RequiredAuths,
				RequiredPostingAuths: w.RequiredPostingAuths,
				ID:                   w.ID,
				JSON:                 w.JSON,
			}
		case "limit_order_create":
			var w hiveLimitOrderCreateWire
			if err := json.Unmarshal(evt.Payload, &w); err != nil {
				return fmt.Errorf("ingest: decode limit_order_create: %w", err)
			}
			toSell, _, err := parseHiveAsset(w.AmountToSell)
			if err != nil {
				return fmt.Errorf("ingest: limit_order_create amount_to_sell: %w", err)
			}
			minReceive, _, err := parseHiveAsset(w.MinToReceive)
			if err != nil {
				return fmt.Errorf("ingest: limit_order_create min_to_receive: %w", err)
			}
			expiration, _ := time.Parse(time.RFC3339, w.Expiration)
			trackedOp = &ops.LimitOrderCreate{
				Base:         newBase(groupID, shortID, ops.OpLimitOrderCreate, evt.Timestamp, w.Owner),
				Owner:        w.Owner,
				OrderID:      w.OrderID,
				AmountToSell: toSell,
				MinToReceive: minReceive,
				FillOrKill:   w.FillOrKill,
				Expiration:   expiration,
			}
		case "fill_order":
			var w hiveFillOrderWire
			if err := json.Unmarshal(evt.Payload, &w); err != nil {
				return fmt.Errorf("ingest: decode fill_order: %w", err)
			}
			currentPays, _, err := parseHiveAsset(w.CurrentPays)
			if err != nil {
				return fmt.Errorf("ingest: fill_order current_pays: %w", err)
			}
			openPays, _, err := parseHiveAsset(w.OpenPays)
			if err != nil {
				return fmt.Errorf("ingest: fill_order open_pays: %w", err)
			}
			trackedOp = &ops.FillOrder{
				Base:           newBase(groupID, shortID, ops.OpFillOrder, evt.Timestamp, w.CurrentOwner),
				CurrentOwner:   w.CurrentOwner,
				CurrentOrderID: w.CurrentOrderID,
				CurrentPays:    currentPays,
				OpenOwner:      w.OpenOwner,
				OpenOrderID:    w.OpenOrderID,
				OpenPays:       openPays,
			}
		default:
			// Vote/reward/witness op types are in ops.TrackedHiveOpTypes,
			// so Stream delivers them here, but they have no tracked-op
			// type of their own and are not saved.
			return nil
		}

		if err := store.Save(ctx, trackedOp); err != nil {
			return fmt.Errorf("ingest: save %s: %w", evt.Type, err)
		}
		return nil
	}
}

func newBase(groupID, shortID string, opType ops.OpType, ts time.Time, custID string) ops.Base {
	return ops.Base{GroupID: groupID, ShortID: shortID, OpType: opType, Timestamp: ts, CustID: custID}
}

// parseHiveAsset splits a Hive wire asset string ("10.000 HIVE", "1500
// SATS") into its money.Amount and money.Currency.
func parseHiveAsset(asset string) (money.Amount, money.Currency, error) {
	fields := strings.Fields(asset)
	if len(fields) != 2 {
		return money.Amount{}, "", fmt.Errorf("malformed asset string %q", asset)
	}
	unit := money.Currency(strings.ToUpper(fields[1]))
	amount, err := money.Of(unit, fields[0])
	if err != nil {
		return money.Amount{}, "", err
	}
	return amount, unit, nil
}

type hiveTransferWire struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
	Memo   string `json:"memo"`
}

type hiveRecurrentTransferWire struct {
	From            string `json:"from"`
	To              string `json:"to"`
	Amount          string `json:"amount"`
	Memo            string `json:"memo"`
	RecurrenceHours int    `json:"recurrence"`
	ExecutionCount  int    `json:"executions"`
}

type hiveCustomJSONWire struct {
	RequiredAuths        []string `json:"required_auths"`
	RequiredPostingAuths []string `json:"required_posting_auths"`
	ID                   string   `json:"id"`
	JSON                 string   `json:"json"`
}

type hiveLimitOrderCreateWire struct {
	Owner        string `json:"owner"`
	OrderID      uint32 `json:"orderid"`
	AmountToSell string `json:"amount_to_sell"`
	MinToReceive string `json:"min_to_receive"`
	FillOrKill   bool   `json:"fill_or_kill"`
	Expiration   string `json:"expiration"`
}

type hiveFillOrderWire struct {
	CurrentOwner   string `json:"current_owner"`
	CurrentOrderID uint32 `json:"current_orderid"`
	CurrentPays    string `json:"current_pays"`
	OpenOwner      string `json:"open_owner"`
	OpenOrderID    uint32 `json:"open_orderid"`
	OpenPays       string `json:"open_pays"`
}

// handleInvoice builds the lnd.InvoiceHandler (component H): persist
// every invoice state transition, and on SETTLED dispatch straight to
// pipeline M.2 rather than waiting on the change-stream monitor — spec
// §4.H's literal "upon SETTLED state transition it's passed to the
// Lightning-to-X processor" names this as the fast path. The monitor's
// own "invoices" target (internal/monitor/targets.go) still re-triggers
// the same dispatch on recovery; LightningToHive's ledger postings
// upsert by group_id suffix, so a duplicate call is a no-op.
func (b *Bridge) handleInvoice(store *ops.Store) lnd.InvoiceHandler {
	return func(ctx context.Context, inv *ops.Invoice) error {
		if err := store.Save(ctx, inv); err != nil {
			return fmt.Errorf("ingest: save invoice: %w", err)
		}
		if inv.State != "SETTLED" {
			return nil
		}
		if err := b.engine.LightningToHive(ctx, inv, b.cfg.ServerAccount, false); err != nil {
			logger.Error("lightning_to_hive dispatch failed", zap.String("group_id", inv.GroupID), zap.Error(err))
		}
		return nil
	}
}

// handlePayment builds the lnd.PaymentHandler (component H): outbound
// payment status is audit-trail/correlation only — HiveToLightning
// already calls PayInvoice synchronously and handles its own result
// inline, so no further pipeline is triggered here.
func (b *Bridge) handlePayment(store *ops.Store) lnd.PaymentHandler {
	return func(ctx context.Context, pmt *ops.Payment) error {
		if err := store.Save(ctx, pmt); err != nil {
			return fmt.Errorf("ingest: save payment: %w", err)
		}
		return nil
	}
}

// handleHtlc builds the lnd.HtlcHandler (component H): HTLC-level
// events are logged for observability only, not separately tracked as
// ops.TrackedOperation documents (spec §4.H names invoices/payments as
// the tracked granularity).
func (b *Bridge) handleHtlc() lnd.HtlcHandler {
	return func(ctx context.Context, evt lnd.HtlcEvent) {
		logger.Debug("htlc event", zap.Any("event", evt))
	}
}
