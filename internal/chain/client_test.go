package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
}

// newRPCServer answers JSON-RPC calls from results keyed by method.
func newRPCServer(t *testing.T, results map[string]interface{}, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		atomic.AddInt32(calls, 1)

		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if result, ok := results[req.Method]; ok {
			resp["result"] = result
		} else {
			resp["error"] = map[string]interface{}{"code": -32601, "message": "method not found"}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewClientEmptyURL(t *testing.T) {
	_, err := NewClient(context.Background(), "")
	assert.Error(t, err)
}

func TestGetChainIDCached(t *testing.T) {
	var calls int32
	srv := newRPCServer(t, map[string]interface{}{"eth_chainId": "0x2105"}, &calls)

	client, err := NewClient(context.Background(), srv.URL)
	require.NoError(t, err)
	defer client.Close()

	for i := 0; i < 3; i++ {
		id, err := client.GetChainID(context.Background())
		require.NoError(t, err)
		assert.Equal(t, uint64(8453), id.Uint64())
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestHasCode(t *testing.T) {
	var calls int32
	srv := newRPCServer(t, map[string]interface{}{"eth_getCode": "0x6080"}, &calls)

	client, err := NewClient(context.Background(), srv.URL)
	require.NoError(t, err)
	defer client.Close()

	ok, err := client.HasCode(context.Background(), common.HexToAddress("0x01"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHasCodeEmpty(t *testing.T) {
	var calls int32
	srv := newRPCServer(t, map[string]interface{}{"eth_getCode": "0x"}, &calls)

	client, err := NewClient(context.Background(), srv.URL)
	require.NoError(t, err)
	defer client.Close()

	ok, err := client.HasCode(context.Background(), common.HexToAddress("0x01"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPruneTimestamps(t *testing.T) {
	client := &Client{tsCache: map[uint64]uint64{1: 10, 5: 50, 9: 90}}
	client.PruneTimestamps(5)

	assert.Equal(t, map[uint64]uint64{5: 50, 9: 90}, client.tsCache)

	ts, err := client.BlockTimestamp(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, uint64(90), ts)
}
