package hive

import (
	"bytes"
	"context"
	"fmt"
)

// SendTransfer signs and broadcasts a `transfer` operation from the
// bridge's own account (spec §6.1 `send_transfer`).
func (c *Client) SendTransfer(ctx context.Context, from, to string, amount string, currency string, memo string) (*BroadcastResult, error) {
	if c.cfg.ActiveKeyWIF == "" {
		return nil, fmt.Errorf("hive: send_transfer requires an active key")
	}

	head, err := c.GetDynamicGlobalProperties(ctx)
	if err != nil {
		return nil, fmt.Errorf("hive: send transfer: %w", err)
	}

	var payload bytes.Buffer
	if err := serializeTransferOp(&payload, from, to, amount, currency, memo); err != nil {
		return nil, fmt.Errorf("hive: serialize transfer: %w", err)
	}

	opJSON := [2]interface{}{
		"transfer",
		map[string]interface{}{
			"from":   from,
			"to":     to,
			"amount": fmt.Sprintf("%s %s", amount, currency),
			"memo":   memo,
		},
	}

	trx, err := buildAndSign(head, transferOpID, &payload, opJSON, c.cfg.ActiveKeyWIF)
	if err != nil {
		return nil, fmt.Errorf("hive: sign transfer: %w", err)
	}

	return c.broadcast(ctx, trx)
}

// SendCustomJSON signs and broadcasts a `custom_json` operation using
// the bridge's posting authority (spec §6.1 `send_custom_json`).
func (c *Client) SendCustomJSON(ctx context.Context, id string, requiredPostingAuths []string, jsonData string) (*BroadcastResult, error) {
	if c.cfg.PostingKeyWIF == "" {
		return nil, fmt.Errorf("hive: send_custom_json requires a posting key")
	}

	head, err := c.GetDynamicGlobalProperties(ctx)
	if err != nil {
		return nil, fmt.Errorf("hive: send custom_json: %w", err)
	}

	var payload bytes.Buffer
	serializeCustomJSONOp(&payload, nil, requiredPostingAuths, id, jsonData)

	opJSON := [2]interface{}{
		"custom_json",
		map[string]interface{}{
			"required_auths":          []string{},
			"required_posting_auths": requiredPostingAuths,
			"id":                      id,
			"json":                    jsonData,
		},
	}

	trx, err := buildAndSign(head, customJSONOpID, &payload, opJSON, c.cfg.PostingKeyWIF)
	if err != nil {
		return nil, fmt.Errorf("hive: sign custom_json: %w", err)
	}

	return c.broadcast(ctx, trx)
}

type broadcastResultRaw struct {
	ID string `json:"id"`
}

func (c *Client) broadcast(ctx context.Context, trx *signedTransaction) (*BroadcastResult, error) {
	var result broadcastResultRaw
	if err := c.call(ctx, "condenser_api.broadcast_transaction_synchronous", []interface{}{trx}, &result); err != nil {
		return nil, fmt.Errorf("hive: broadcast transaction: %w", err)
	}
	return &BroadcastResult{TrxID: result.ID}, nil
}
