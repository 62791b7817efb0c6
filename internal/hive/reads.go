package hive

import (
	"context"
	"fmt"
	"time"
)

type rawAccount struct {
	Name          string `json:"name"`
	Balance       string `json:"balance"`
	HBDBalance    string `json:"hbd_balance"`
	VestingShares string `json:"vesting_shares"`
}

// GetAccount fetches one account's balances (spec §6.1).
func (c *Client) GetAccount(ctx context.Context, name string) (*Account, error) {
	var accounts []rawAccount
	if err := c.call(ctx, "condenser_api.get_accounts", [][]string{{name}}, &accounts); err != nil {
		return nil, fmt.Errorf("hive: get account %q: %w", name, err)
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("hive: account %q not found", name)
	}
	a := accounts[0]
	return &Account{
		Name:          a.Name,
		HiveBalance:   a.Balance,
		HBDBalance:    a.HBDBalance,
		VestingShares: a.VestingShares,
	}, nil
}

type rawTransaction struct {
	BlockNum   int64          `json:"block_num"`
	Operations []RawOperation `json:"operations"`
}

// GetTransaction fetches a full transaction by id (spec §6.1).
func (c *Client) GetTransaction(ctx context.Context, trxID string) (*Transaction, error) {
	var raw rawTransaction
	if err := c.call(ctx, "condenser_api.get_transaction", []string{trxID}, &raw); err != nil {
		return nil, fmt.Errorf("hive: get transaction %q: %w", trxID, err)
	}
	return &Transaction{
		TrxID:      trxID,
		BlockNum:   raw.BlockNum,
		Operations: raw.Operations,
	}, nil
}

type rawDynamicGlobalProperties struct {
	HeadBlockNumber int64  `json:"head_block_number"`
	Time            string `json:"time"`
}

// GetDynamicGlobalProperties polls the chain's head block number and
// wall-clock-comparable node time, used both to discover new blocks and
// to feed the ingest's time-skew check.
func (c *Client) GetDynamicGlobalProperties(ctx context.Context) (*DynamicGlobalProperties, error) {
	var raw rawDynamicGlobalProperties
	if err := c.call(ctx, "condenser_api.get_dynamic_global_properties", []interface{}{}, &raw); err != nil {
		return nil, fmt.Errorf("hive: get dynamic global properties: %w", err)
	}
	ts, err := time.Parse("2006-01-02T15:04:05", raw.Time)
	if err != nil {
		return nil, fmt.Errorf("hive: parse chain time %q: %w", raw.Time, err)
	}
	return &DynamicGlobalProperties{HeadBlockNumber: raw.HeadBlockNumber, Time: ts.UTC()}, nil
}

type rawBlockTransaction struct {
	TransactionID string         `json:"transaction_id"`
	Operations    []RawOperation `json:"operations"`
}

type rawBlock struct {
	Timestamp    string                `json:"timestamp"`
	Transactions []rawBlockTransaction `json:"transactions"`
}

type getBlockResult struct {
	Block rawBlock `json:"block"`
}

// GetBlock fetches one full block by number, used by the ingest's
// sequential block walk.
func (c *Client) GetBlock(ctx context.Context, blockNum int64) (*Block, error) {
	var result getBlockResult
	params := map[string]int64{"block_num": blockNum}
	if err := c.call(ctx, "block_api.get_block", params, &result); err != nil {
		return nil, fmt.Errorf("hive: get block %d: %w", blockNum, err)
	}
	ts, err := time.Parse("2006-01-02T15:04:05", result.Block.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("hive: parse block timestamp %q: %w", result.Block.Timestamp, err)
	}

	txs := make([]BlockTransaction, 0, len(result.Block.Transactions))
	for _, tx := range result.Block.Transactions {
		txs = append(txs, BlockTransaction{TrxID: tx.TransactionID, Operations: tx.Operations})
	}
	return &Block{BlockNum: blockNum, Timestamp: ts.UTC(), Transactions: txs}, nil
}
