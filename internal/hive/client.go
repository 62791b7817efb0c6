// Package hive implements the Hive client the bridge consumes: a
// JSON-RPC 2.0 transport over condenser_api/block_api, transaction
// signing and broadcast, and the block-stream ingest that feeds
// internal/ops.
package hive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/brianoflondon/v4vapp-backend-v2-sub002/pkg/logger"
)

// Config configures a Client.
type Config struct {
	Nodes          []string // candidate RPC node URLs, tried in order
	PostingKeyWIF  string   // posting-authority private key (custom_json)
	ActiveKeyWIF   string   // active-authority private key (transfer)
	AccountName    string   // the bridge's own Hive account
	RequestTimeout time.Duration
}

// Client is the bridge's concrete Hive RPC client.
type Client struct {
	cfg        Config
	httpClient *http.Client
	nodeIdx    int
}

// HiveClient is the interface the rest of the bridge consumes (spec
// §6.1) — narrow enough that a test double never needs the real
// signing/broadcast machinery.
type HiveClient interface {
	GetAccount(ctx context.Context, name string) (*Account, error)
	GetTransaction(ctx context.Context, trxID string) (*Transaction, error)
	GetDynamicGlobalProperties(ctx context.Context) (*DynamicGlobalProperties, error)
	GetBlock(ctx context.Context, blockNum int64) (*Block, error)
	SendTransfer(ctx context.Context, from, to string, amount string, currency string, memo string) (*BroadcastResult, error)
	SendCustomJSON(ctx context.Context, id string, requiredPostingAuths []string, jsonData string) (*BroadcastResult, error)
}

// Account is the subset of get_accounts fields the bridge reasons about.
type Account struct {
	Name          string
	HiveBalance   string
	HBDBalance    string
	VestingShares string
}

// Transaction is the subset of get_transaction fields the bridge needs
// to correlate a processed op back to its containing transaction.
type Transaction struct {
	TrxID      string
	BlockNum   int64
	Operations []RawOperation
}

// RawOperation is one Hive operation as it appears on the wire: a
// two-element array of [op_type, payload] in the JSON-RPC response,
// decoded into a typed pair.
type RawOperation struct {
	Type    string
	Payload json.RawMessage
}

func (o *RawOperation) UnmarshalJSON(data []byte) error {
	var pair [2]json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("hive: decode operation pair: %w", err)
	}
	if err := json.Unmarshal(pair[0], &o.Type); err != nil {
		return fmt.Errorf("hive: decode operation type: %w", err)
	}
	o.Payload = pair[1]
	return nil
}

// DynamicGlobalProperties is the subset of global chain state the
// ingest polls to discover the current head block.
type DynamicGlobalProperties struct {
	HeadBlockNumber int64
	Time            time.Time
}

// Block is a single Hive block: its number, timestamp, and the
// transactions (with their operations) it contains.
type Block struct {
	BlockNum     int64
	Timestamp    time.Time
	Transactions []BlockTransaction
}

// BlockTransaction pairs a transaction id with the operations it
// carries, in the order get_block returns them.
type BlockTransaction struct {
	TrxID      string
	Operations []RawOperation
}

// BroadcastResult is the outcome of a signed-and-broadcast transaction.
type BroadcastResult struct {
	TrxID string
}

// NewClient constructs a Client. It does not itself make any network
// call; node liveness is discovered lazily on first use, the same way
// beem's Hive() shuffles and lazily dials a node from its good-nodes
// list.
func NewClient(cfg Config) (*Client, error) {
	if len(cfg.Nodes) == 0 {
		return nil, fmt.Errorf("hive: at least one RPC node is required")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// jsonRPCRequest is the envelope every condenser_api/block_api/
// broadcast call uses.
type jsonRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int         `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type jsonRPCResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *jsonRPCError   `json:"error"`
}

// call invokes method against the current node, decoding result into
// target. On a transport or node-level failure it rotates to the next
// configured node, trying each configured node once before giving up —
// mirroring beem's good_nodes fallback list.
func (c *Client) call(ctx context.Context, method string, params interface{}, target interface{}) error {
	var lastErr error
	for attempt := 0; attempt < len(c.cfg.Nodes); attempt++ {
		node := c.cfg.Nodes[c.nodeIdx%len(c.cfg.Nodes)]
		err := c.callNode(ctx, node, method, params, target)
		if err == nil {
			return nil
		}
		lastErr = err
		logger.Warn("hive rpc call failed, rotating node",
			zap.String("node", node), zap.String("method", method), zap.Error(err))
		c.nodeIdx++
	}
	return fmt.Errorf("hive: %s: all nodes failed: %w", method, lastErr)
}

func (c *Client) callNode(ctx context.Context, node, method string, params interface{}, target interface{}) error {
	body, err := json.Marshal(jsonRPCRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, node, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	var rpcResp jsonRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if target == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, target); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}
