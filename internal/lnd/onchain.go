package lnd

import (
	"context"
	"fmt"
	"time"

	"github.com/lightningnetwork/lnd/lnrpc"
	"go.uber.org/zap"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/pkg/logger"
)

// DefaultMaxReconnectTries bounds CheckConnection's retry loop when
// Config.ReconnectMaxTries is unset.
const DefaultMaxReconnectTries = 200

const (
	reconnectBaseBackoff = 2 * time.Second
	reconnectMaxBackoff  = 60 * time.Second
)

// GetWalletBalance returns LND's on-chain wallet balance split into confirmed
// and unconfirmed amounts. The bridge carries no on-chain BTC transport of
// its own (deposits and payouts move over Hive or Lightning), but the wallet
// balance still feeds CheckConnection's liveness ping and the treasury
// sanity check alongside the channel balance.
func (c *Client) GetWalletBalance(ctx context.Context) (*WalletBalance, error) {
	resp, err := c.lnClient.WalletBalance(ctx, &lnrpc.WalletBalanceRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet balance: %w", err)
	}

	return &WalletBalance{
		ConfirmedSats:   resp.ConfirmedBalance,
		UnconfirmedSats: resp.UnconfirmedBalance,
		TotalSats:       resp.TotalBalance,
	}, nil
}

// CheckConnection pings WalletBalance, retrying with exponential backoff
// (base 2s, capped at 60s) until it succeeds or the configured try count is
// exhausted, at which point it returns an LNDConnectionError. Every long-lived
// subscription (invoice, HTLC, payment) calls this between reconnect attempts
// rather than reopening the gRPC channel blind.
func (c *Client) CheckConnection(ctx context.Context) error {
	maxTries := c.Cfg.ReconnectMaxTries
	if maxTries <= 0 {
		maxTries = DefaultMaxReconnectTries
	}

	var lastErr error
	backoff := reconnectBaseBackoff
	for try := 1; try <= maxTries; try++ {
		_, err := c.lnClient.WalletBalance(ctx, &lnrpc.WalletBalanceRequest{})
		if err == nil {
			if try > 1 {
				logger.Warn("connection to LND recovered", zap.Int("tries", try))
			}
			return nil
		}
		lastErr = err
		logger.Warn("LND connection check failed, backing off",
			zap.Int("try", try), zap.Error(err))

		select {
		case <-ctx.Done():
			return fmt.Errorf("check connection: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > reconnectMaxBackoff {
			backoff = reconnectMaxBackoff
		}
	}

	return &LNDConnectionError{Tries: maxTries, Cause: lastErr}
}
