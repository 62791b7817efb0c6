package lnd

import (
	"context"
	"fmt"

	"github.com/lightningnetwork/lnd/lnrpc"
)

// GetChannelBalance returns the balance across all open Lightning channels.
//   - LocalSats:  our side — sats we can send via Lightning right now
//   - RemoteSats: their side — sats we can receive via Lightning right now
//
// LocalSats is the liquidity the treasury sanity check (component O)
// compares against the External Lightning Payments contra-asset balance.
func (c *Client) GetChannelBalance(ctx context.Context) (*ChannelBalance, error) {
	resp, err := c.lnClient.ChannelBalance(ctx, &lnrpc.ChannelBalanceRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to get channel balance: %w", err)
	}

	var localSats, remoteSats int64
	if resp.LocalBalance != nil {
		localSats = int64(resp.LocalBalance.Sat)
	}
	if resp.RemoteBalance != nil {
		remoteSats = int64(resp.RemoteBalance.Sat)
	}

	return &ChannelBalance{
		LocalSats:  localSats,
		RemoteSats: remoteSats,
	}, nil
}

// GetInfo returns basic LND node information.
// Used at startup (NewClient) for health validation and by the HIVE→Lightning
// liquidity precondition check.
func (c *Client) GetInfo(ctx context.Context) (*NodeInfo, error) {
	resp, err := c.lnClient.GetInfo(ctx, &lnrpc.GetInfoRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to get node info: %w", err)
	}

	return &NodeInfo{
		Alias:         resp.Alias,
		PubKey:        resp.IdentityPubkey,
		SyncedToChain: resp.SyncedToChain,
		SyncedToGraph: resp.SyncedToGraph,
		BlockHeight:   resp.BlockHeight,
		NumChannels:   resp.NumActiveChannels,
	}, nil
}

// HasLiquidity reports whether the node's spendable channel balance covers
// amountSats — the "server has liquidity" precondition of the HIVE→Lightning
// pipeline (spec §4.M.1).
func (c *Client) HasLiquidity(ctx context.Context, amountSats int64) (bool, error) {
	bal, err := c.GetChannelBalance(ctx)
	if err != nil {
		return false, err
	}
	return bal.LocalSats >= amountSats, nil
}
