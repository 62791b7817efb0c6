package hive

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func streamFixtureServer(t *testing.T, head int64, blockOps map[int64][]map[string]interface{}) *httptest.Server {
	t.Helper()
	return jsonRPCServerFunc(t, func(method string, params json.RawMessage) (interface{}, *jsonRPCError) {
		switch method {
		case "condenser_api.get_dynamic_global_properties":
			return map[string]interface{}{"head_block_number": head, "time": "2026-01-01T00:00:00"}, nil
		case "block_api.get_block":
			var p struct {
				BlockNum int64 `json:"block_num"`
			}
			require.NoError(t, json.Unmarshal(params, &p))
			ops, ok := blockOps[p.BlockNum]
			if !ok {
				ops = nil
			}
			txOps := make([]interface{}, 0, len(ops))
			for _, op := range ops {
				txOps = append(txOps, []interface{}{op["type"], op["payload"]})
			}
			return map[string]interface{}{
				"block": map[string]interface{}{
					"timestamp": "2026-01-01T00:00:00",
					"transactions": []map[string]interface{}{
						{"transaction_id": "trx", "operations": txOps},
					},
				},
			}, nil
		default:
			t.Fatalf("unexpected method %s", method)
			return nil, nil
		}
	})
}

// jsonRPCServerFunc is a thin rename wrapper over jsonRPCServer so this
// file doesn't depend on client_test.go's helper name colliding oddly.
func jsonRPCServerFunc(t *testing.T, handler func(method string, params json.RawMessage) (interface{}, *jsonRPCError)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req jsonRPCRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		paramsRaw, _ := json.Marshal(req.Params)
		result, rpcErr := handler(req.Method, paramsRaw)
		resp := jsonRPCResponse{Error: rpcErr}
		if rpcErr == nil {
			b, err := json.Marshal(result)
			require.NoError(t, err)
			resp.Result = b
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestResolveStartBlock_Positive(t *testing.T) {
	srv := streamFixtureServer(t, 500, nil)
	defer srv.Close()

	client, err := NewClient(Config{Nodes: []string{srv.URL}})
	require.NoError(t, err)

	resolved, err := client.resolveStartBlock(context.Background(), 123)
	require.NoError(t, err)
	assert.Equal(t, int64(123), resolved)
}

func TestResolveStartBlock_NegativeResolvesAgainstHead(t *testing.T) {
	srv := streamFixtureServer(t, 500, nil)
	defer srv.Close()

	client, err := NewClient(Config{Nodes: []string{srv.URL}})
	require.NoError(t, err)

	resolved, err := client.resolveStartBlock(context.Background(), -100)
	require.NoError(t, err)
	assert.Equal(t, int64(400), resolved)
}

func TestStream_ProcessesSingleBlockAndStops(t *testing.T) {
	srv := streamFixtureServer(t, 1000, map[int64][]map[string]interface{}{
		100: {
			{"type": "transfer", "payload": map[string]interface{}{"from": "alice", "to": "bob"}},
			{"type": "account_witness_vote", "payload": map[string]interface{}{}},
		},
	})
	defer srv.Close()

	client, err := NewClient(Config{Nodes: []string{srv.URL}})
	require.NoError(t, err)

	var seen []Event
	err = client.Stream(context.Background(), StreamOptions{StartBlock: 100, EndBlock: 100}, func(_ context.Context, evt Event) error {
		seen = append(seen, evt)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, seen, 2)
	assert.Equal(t, "transfer", seen[0].Type)
	assert.Equal(t, int64(100), seen[0].BlockNum)
	assert.Equal(t, "account_witness_vote", seen[1].Type)
}

func TestStream_FiltersOpTypes(t *testing.T) {
	srv := streamFixtureServer(t, 1000, map[int64][]map[string]interface{}{
		100: {
			{"type": "transfer", "payload": map[string]interface{}{}},
			{"type": "not_tracked_op", "payload": map[string]interface{}{}},
		},
	})
	defer srv.Close()

	client, err := NewClient(Config{Nodes: []string{srv.URL}})
	require.NoError(t, err)

	var seen []Event
	err = client.Stream(context.Background(), StreamOptions{
		StartBlock:    100,
		EndBlock:      100,
		OpTypesFilter: map[string]bool{"transfer": true},
	}, func(_ context.Context, evt Event) error {
		seen = append(seen, evt)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.Equal(t, "transfer", seen[0].Type)
}

func TestStream_ContextCancellation(t *testing.T) {
	srv := streamFixtureServer(t, 1000, nil)
	defer srv.Close()

	client, err := NewClient(Config{Nodes: []string{srv.URL}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = client.Stream(ctx, StreamOptions{StartBlock: 100}, func(_ context.Context, _ Event) error { return nil })
	require.Error(t, err)
}
