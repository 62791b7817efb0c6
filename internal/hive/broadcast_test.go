package hive

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendTransfer_RequiresActiveKey(t *testing.T) {
	srv := jsonRPCServer(t, func(_ string, _ json.RawMessage) (interface{}, *jsonRPCError) {
		t.Fatal("should not reach RPC without an active key")
		return nil, nil
	})
	defer srv.Close()

	client, err := NewClient(Config{Nodes: []string{srv.URL}})
	require.NoError(t, err)

	_, err = client.SendTransfer(context.Background(), "alice", "bob", "1.000", "HIVE", "memo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "active key")
}

func TestSendTransfer_Success(t *testing.T) {
	var broadcastedMethod string
	srv := jsonRPCServer(t, func(method string, _ json.RawMessage) (interface{}, *jsonRPCError) {
		switch method {
		case "condenser_api.get_dynamic_global_properties":
			return map[string]interface{}{"head_block_number": 1000, "time": "2026-01-01T00:00:00"}, nil
		case "condenser_api.broadcast_transaction_synchronous":
			broadcastedMethod = method
			return map[string]interface{}{"id": "abc123"}, nil
		default:
			t.Fatalf("unexpected method %s", method)
			return nil, nil
		}
	})
	defer srv.Close()

	client, err := NewClient(Config{Nodes: []string{srv.URL}, ActiveKeyWIF: testWIF})
	require.NoError(t, err)

	result, err := client.SendTransfer(context.Background(), "alice", "bob", "1.000", "HIVE", "memo")
	require.NoError(t, err)
	assert.Equal(t, "abc123", result.TrxID)
	assert.Equal(t, "condenser_api.broadcast_transaction_synchronous", broadcastedMethod)
}

func TestSendCustomJSON_RequiresPostingKey(t *testing.T) {
	srv := jsonRPCServer(t, func(_ string, _ json.RawMessage) (interface{}, *jsonRPCError) {
		t.Fatal("should not reach RPC without a posting key")
		return nil, nil
	})
	defer srv.Close()

	client, err := NewClient(Config{Nodes: []string{srv.URL}})
	require.NoError(t, err)

	_, err = client.SendCustomJSON(context.Background(), "v4vapp", []string{"alice"}, `{}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "posting key")
}

func TestSendCustomJSON_Success(t *testing.T) {
	srv := jsonRPCServer(t, func(method string, _ json.RawMessage) (interface{}, *jsonRPCError) {
		switch method {
		case "condenser_api.get_dynamic_global_properties":
			return map[string]interface{}{"head_block_number": 1000, "time": "2026-01-01T00:00:00"}, nil
		case "condenser_api.broadcast_transaction_synchronous":
			return map[string]interface{}{"id": "def456"}, nil
		default:
			t.Fatalf("unexpected method %s", method)
			return nil, nil
		}
	})
	defer srv.Close()

	client, err := NewClient(Config{Nodes: []string{srv.URL}, PostingKeyWIF: testWIF})
	require.NoError(t, err)

	result, err := client.SendCustomJSON(context.Background(), "v4vapp", []string{"alice"}, `{"a":1}`)
	require.NoError(t, err)
	assert.Equal(t, "def456", result.TrxID)
}
