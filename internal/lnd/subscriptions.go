package lnd

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lnrpc/routerrpc"
	"go.uber.org/zap"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/internal/ops"
	"github.com/brianoflondon/v4vapp-backend-v2-sub002/pkg/logger"
)

// maxSubscriptionRetries bounds each subscription's own reconnect loop
// (spec §4.H: "exponential backoff, base 2s, cap 60s, max 20 tries before
// surfacing").
const maxSubscriptionRetries = 20

type InvoiceHandler func(ctx context.Context, inv *ops.Invoice) error
type HtlcHandler func(ctx context.Context, evt HtlcEvent)
type PaymentHandler func(ctx context.Context, pmt *ops.Payment) error

// SubscribeInvoices streams invoice state transitions, translating each into
// an ops.Invoice and invoking handler. addIndex/settleIndex are the resume
// cursors the caller persisted from the highest indices it has seen.
func (c *Client) SubscribeInvoices(ctx context.Context, addIndex, settleIndex uint64, handler InvoiceHandler) error {
	return c.withReconnect(ctx, "invoices", func() error {
		stream, err := c.lnClient.SubscribeInvoices(ctx, &lnrpc.InvoiceSubscription{
			AddIndex:    addIndex,
			SettleIndex: settleIndex,
		})
		if err != nil {
			return fmt.Errorf("open invoice subscription: %w", err)
		}

		for {
			raw, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return fmt.Errorf("invoice stream recv: %w", err)
			}

			addIndex = raw.AddIndex
			if raw.SettleIndex > 0 {
				settleIndex = raw.SettleIndex
			}

			inv := invoiceFromProto(raw)
			if err := handler(ctx, inv); err != nil {
				logger.Error("invoice handler failed",
					zap.String("payment_hash", inv.PaymentHash), zap.Error(err))
			}
		}
	})
}

// SubscribeHtlcEvents streams every HTLC event observed by the node.
func (c *Client) SubscribeHtlcEvents(ctx context.Context, handler HtlcHandler) error {
	return c.withReconnect(ctx, "htlc_events", func() error {
		stream, err := c.lnClient.SubscribeHtlcEvents(ctx, &lnrpc.SubscribeHtlcEventsRequest{})
		if err != nil {
			return fmt.Errorf("open htlc event subscription: %w", err)
		}

		for {
			raw, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return fmt.Errorf("htlc event stream recv: %w", err)
			}
			handler(ctx, htlcEventFromProto(raw))
		}
	})
}

// SubscribePayments streams state transitions for every outbound payment via
// the router sub-server's all-payments tracker, including IN_FLIGHT updates.
func (c *Client) SubscribePayments(ctx context.Context, handler PaymentHandler) error {
	return c.withReconnect(ctx, "payments", func() error {
		stream, err := c.routerClient.TrackPayments(ctx, &routerrpc.TrackPaymentsRequest{
			NoInflightUpdates: false,
		})
		if err != nil {
			return fmt.Errorf("open payment subscription: %w", err)
		}

		for {
			raw, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return fmt.Errorf("payment stream recv: %w", err)
			}

			pmt := paymentFromProto(raw)
			if err := handler(ctx, pmt); err != nil {
				logger.Error("payment handler failed",
					zap.String("payment_hash", pmt.PaymentHash), zap.Error(err))
			}
		}
	})
}

// withReconnect runs run to completion, and on error backs off (base 2s,
// capped at 60s) and retries up to maxSubscriptionRetries times, checking
// node liveness via CheckConnection between attempts so a dead LND process
// fails fast with an LNDSubscriptionError instead of looping forever.
func (c *Client) withReconnect(ctx context.Context, name string, run func() error) error {
	backoff := reconnectBaseBackoff

	for try := 1; try <= maxSubscriptionRetries; try++ {
		err := run()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		logger.Warn("lnd subscription dropped, reconnecting",
			zap.String("stream", name), zap.Int("try", try), zap.Error(err))

		if connErr := c.CheckConnection(ctx); connErr != nil {
			return &LNDSubscriptionError{Stream: name, Cause: connErr}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > reconnectMaxBackoff {
			backoff = reconnectMaxBackoff
		}
	}

	return &LNDSubscriptionError{
		Stream: name,
		Cause:  fmt.Errorf("exceeded %d retries", maxSubscriptionRetries),
	}
}

func invoiceFromProto(raw *lnrpc.Invoice) *ops.Invoice {
	hash := hex.EncodeToString(raw.RHash)
	groupID := ops.DeriveLightningGroupID(hash)
	shortID, _ := ops.DeriveShortID(groupID, 8)

	return &ops.Invoice{
		Base: ops.Base{
			GroupID:   groupID,
			ShortID:   shortID,
			OpType:    ops.OpInvoice,
			Timestamp: time.Unix(raw.CreationDate, 0).UTC(),
		},
		PaymentHash: hash,
		PaymentAddr: hex.EncodeToString(raw.PaymentAddr),
		ValueMsat:   raw.ValueMsat,
		Memo:        raw.Memo,
		State:       raw.State.String(),
		SettleIndex: raw.SettleIndex,
		AddIndex:    raw.AddIndex,
	}
}

func paymentFromProto(raw *lnrpc.Payment) *ops.Payment {
	groupID := ops.DeriveLightningGroupID(raw.PaymentHash)
	shortID, _ := ops.DeriveShortID(groupID, 8)

	return &ops.Payment{
		Base: ops.Base{
			GroupID:   groupID,
			ShortID:   shortID,
			OpType:    ops.OpPayment,
			Timestamp: time.Unix(0, raw.CreationTimeNs).UTC(),
		},
		PaymentHash: raw.PaymentHash,
		ValueMsat:   raw.ValueMsat,
		FeeMsat:     raw.FeeMsat,
		Status:      raw.Status.String(),
		Destination: paymentDestination(raw),
	}
}

func paymentDestination(raw *lnrpc.Payment) string {
	if len(raw.Htlcs) == 0 {
		return ""
	}
	last := raw.Htlcs[len(raw.Htlcs)-1]
	if last.Route == nil || len(last.Route.Hops) == 0 {
		return ""
	}
	return last.Route.Hops[len(last.Route.Hops)-1].PubKey
}

func htlcEventFromProto(raw *lnrpc.HtlcEvent) HtlcEvent {
	evt := HtlcEvent{
		IncomingChannelID: raw.IncomingChannelId,
		OutgoingChannelID: raw.OutgoingChannelId,
		IncomingHtlcID:    raw.IncomingHtlcId,
		OutgoingHtlcID:    raw.OutgoingHtlcId,
		TimestampNs:       int64(raw.TimestampNs),
		EventType:         htlcEventType(raw.EventType),
	}

	switch e := raw.Event.(type) {
	case *lnrpc.HtlcEvent_SettleEvent:
		evt.Settled = true
	case *lnrpc.HtlcEvent_LinkFailEvent:
		evt.Failed = true
	case *lnrpc.HtlcEvent_ForwardFailEvent:
		evt.Failed = true
	case *lnrpc.HtlcEvent_FinalHtlcEvent:
		evt.Final = true
		evt.Settled = e.FinalHtlcEvent.Settled
		evt.Failed = !e.FinalHtlcEvent.Settled
	}
	return evt
}

func htlcEventType(t lnrpc.HtlcEvent_EventType) HtlcEventType {
	switch t {
	case lnrpc.HtlcEvent_SEND:
		return HtlcSend
	case lnrpc.HtlcEvent_RECEIVE:
		return HtlcReceive
	case lnrpc.HtlcEvent_FORWARD:
		return HtlcForward
	default:
		return HtlcUnknown
	}
}
