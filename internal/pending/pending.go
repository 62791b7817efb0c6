// Package pending implements the durable retry queue (spec §4.K): a
// Mongo-backed collection of destined-but-not-yet-sent Hive transfers
// (PendingTransaction) and custom_json broadcasts (PendingCustomJSON),
// drained by a periodic resender loop.
package pending

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/hive"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/money"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/ops"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/pkg/logger"
)

// EnqueueTransaction durably records a Hive transfer that couldn't be
// sent immediately, keyed by groupID (spec §3.6's correlation key) and
// uniqueKey (spec §4.K's duplicate-enqueue guard — a unique partial
// index on ops.payload.unique_key rejects a second Save with the same
// key).
func EnqueueTransaction(ctx context.Context, store *ops.Store, groupID, uniqueKey, fromAccount, toAccount string, amount money.Amount, memo string, noBroadcast bool) error {
	op := &ops.PendingTransaction{
		Base: ops.Base{
			GroupID:   groupID,
			OpType:    ops.OpPendingTransaction,
			Timestamp: now(),
		},
		FromAccount: fromAccount,
		ToAccount:   toAccount,
		Unit:        amount.Currency,
		Amount:      amount,
		Memo:        memo,
		Active:      true,
		UniqueKey:   uniqueKey,
		NoBroadcast: noBroadcast,
	}
	if err := store.Save(ctx, op); err != nil {
		return fmt.Errorf("pending: enqueue transaction: %w", err)
	}
	return nil
}

// EnqueueCustomJSON durably records a custom_json broadcast that
// couldn't be sent immediately.
func EnqueueCustomJSON(ctx context.Context, store *ops.Store, groupID, uniqueKey, fromAccount string, requiredAuths []string, jsonData string, noBroadcast bool) error {
	op := &ops.PendingCustomJSON{
		Base: ops.Base{
			GroupID:   groupID,
			OpType:    ops.OpPendingCustomJSON,
			Timestamp: now(),
		},
		FromAccount:   fromAccount,
		RequiredAuths: requiredAuths,
		JSONData:      jsonData,
		Active:        true,
		UniqueKey:     uniqueKey,
		NoBroadcast:   noBroadcast,
	}
	if err := store.Save(ctx, op); err != nil {
		return fmt.Errorf("pending: enqueue custom_json: %w", err)
	}
	return nil
}

// now is a seam so tests can avoid relying on wall-clock ordering; in
// production it's just time.Now().
var now = time.Now

// Resender is the periodic drain loop (spec §4.K): lists all pending,
// groups transactions by currency, checks the server's Hive balance per
// currency, picks a feasible subset in insertion order, and broadcasts.
// A pending custom_json always proceeds — no balance check applies.
type Resender struct {
	store         *ops.Store
	client        hive.HiveClient
	serverAccount string
	interval      time.Duration
}

// NewResender constructs a Resender. interval defaults to 30s.
func NewResender(store *ops.Store, client hive.HiveClient, serverAccount string, interval time.Duration) *Resender {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Resender{store: store, client: client, serverAccount: serverAccount, interval: interval}
}

// Run ticks every interval until ctx is cancelled, calling RunOnce each
// time and logging (not returning) per-tick errors so one bad tick
// doesn't kill the loop.
func (r *Resender) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				logger.Error("pending: resend pass failed", zap.Error(err))
			}
		}
	}
}

// RunOnce drains one pass: resend pending transactions (balance-gated,
// grouped by currency) and pending custom_jsons (ungated).
func (r *Resender) RunOnce(ctx context.Context) error {
	if err := r.resendTransactions(ctx); err != nil {
		return err
	}
	return r.resendCustomJSONs(ctx)
}

func (r *Resender) resendTransactions(ctx context.Context) error {
	loaded, err := r.store.ListByOpType(ctx, ops.OpPendingTransaction)
	if err != nil {
		return fmt.Errorf("pending: list pending transactions: %w", err)
	}

	grouped := map[money.Currency][]*ops.PendingTransaction{}
	for _, raw := range loaded {
		p, ok := raw.(*ops.PendingTransaction)
		if !ok || !p.Active {
			continue
		}
		grouped[p.Unit] = append(grouped[p.Unit], p)
	}

	for currency, group := range grouped {
		if err := r.resendCurrencyGroup(ctx, currency, group); err != nil {
			logger.Error("pending: resend currency group failed", zap.String("currency", string(currency)), zap.Error(err))
		}
	}
	return nil
}

func (r *Resender) resendCurrencyGroup(ctx context.Context, currency money.Currency, group []*ops.PendingTransaction) error {
	account, err := r.client.GetAccount(ctx, r.serverAccount)
	if err != nil {
		return fmt.Errorf("pending: get server account: %w", err)
	}
	balance, err := accountBalance(account, currency)
	if err != nil {
		return err
	}

	spent := money.Zero(currency)
	for _, p := range group {
		candidate := spent.Add(p.Amount)
		if candidate.Cmp(balance) > 0 {
			logger.Info("pending: skipping transaction, would exceed server balance",
				zap.String("group_id", p.GroupID), zap.String("currency", string(currency)))
			continue
		}
		spent = candidate
		r.attemptTransaction(ctx, p)
	}
	return nil
}

func (r *Resender) attemptTransaction(ctx context.Context, p *ops.PendingTransaction) {
	if p.NoBroadcast {
		r.markDone(ctx, p)
		return
	}

	_, err := r.client.SendTransfer(ctx, p.FromAccount, p.ToAccount, p.Amount.Decimal(), string(p.Unit), p.Memo)
	if err != nil {
		p.ResendAttempt++
		p.LastError = err.Error()
		if saveErr := r.store.Save(ctx, p); saveErr != nil {
			logger.Error("pending: failed to persist resend_attempt", zap.String("group_id", p.GroupID), zap.Error(saveErr))
		}
		logger.Warn("pending: transaction resend failed", zap.String("group_id", p.GroupID), zap.Int("resend_attempt", p.ResendAttempt), zap.Error(err))
		return
	}
	r.markDone(ctx, p)
}

func (r *Resender) markDone(ctx context.Context, p *ops.PendingTransaction) {
	if err := r.store.Delete(ctx, p.GroupID); err != nil {
		logger.Error("pending: failed to delete completed pending transaction", zap.String("group_id", p.GroupID), zap.Error(err))
	}
}

func (r *Resender) resendCustomJSONs(ctx context.Context) error {
	loaded, err := r.store.ListByOpType(ctx, ops.OpPendingCustomJSON)
	if err != nil {
		return fmt.Errorf("pending: list pending custom_jsons: %w", err)
	}

	for _, raw := range loaded {
		p, ok := raw.(*ops.PendingCustomJSON)
		if !ok || !p.Active {
			continue
		}
		r.attemptCustomJSON(ctx, p)
	}
	return nil
}

func (r *Resender) attemptCustomJSON(ctx context.Context, p *ops.PendingCustomJSON) {
	if p.NoBroadcast {
		if err := r.store.Delete(ctx, p.GroupID); err != nil {
			logger.Error("pending: failed to delete completed pending custom_json", zap.String("group_id", p.GroupID), zap.Error(err))
		}
		return
	}

	_, err := r.client.SendCustomJSON(ctx, "v4vapp", p.RequiredAuths, p.JSONData)
	if err != nil {
		p.ResendAttempt++
		p.LastError = err.Error()
		if saveErr := r.store.Save(ctx, p); saveErr != nil {
			logger.Error("pending: failed to persist resend_attempt", zap.String("group_id", p.GroupID), zap.Error(saveErr))
		}
		logger.Warn("pending: custom_json resend failed", zap.String("group_id", p.GroupID), zap.Int("resend_attempt", p.ResendAttempt), zap.Error(err))
		return
	}
	if err := r.store.Delete(ctx, p.GroupID); err != nil {
		logger.Error("pending: failed to delete completed pending custom_json", zap.String("group_id", p.GroupID), zap.Error(err))
	}
}
