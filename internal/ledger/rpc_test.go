package ledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeNode answers JSON-RPC requests with canned results per method.
type fakeNode struct {
	mu      sync.Mutex
	results map[string]string
	errors  map[string]string
	calls   []rpcRequest
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	n.calls = append(n.calls, req)
	result, hasResult := n.results[req.Method]
	msg, hasErr := n.errors[req.Method]
	n.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case hasErr:
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"` + msg + `"}}`))
	case hasResult:
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":` + result + `}`))
	default:
		http.Error(w, "unexpected method "+req.Method, http.StatusNotFound)
	}
}

func (n *fakeNode) methods() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.calls))
	for _, c := range n.calls {
		out = append(out, c.Method)
	}
	return out
}

func newTestRPCClient(t *testing.T, node *fakeNode) *RPCClient {
	t.Helper()
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)
	return NewRPCClient(RPCConfig{URL: srv.URL, PackageID: "0xpkg", PlatformWallet: "0xplatform"}, srv.Client())
}

func TestRPCClient_GetTransactionStatus(t *testing.T) {
	t.Parallel()

	node := &fakeNode{results: map[string]string{
		"iota_getTransactionBlock": `{
			"digest": "0xabc",
			"effects": {"status": {"status": "success"}},
			"transaction": {"data": {"sender": "0xrider"}},
			"balanceChanges": [
				{"owner": {"AddressOwner": "0xrider"}, "amount": "-121500"},
				{"owner": {"AddressOwner": "0xescrow"}, "amount": "121000"}
			]
		}`,
	}}
	c := newTestRPCClient(t, node)

	tx, err := c.GetTransactionStatus(context.Background(), "0xabc")
	require.NoError(t, err)

	assert.Equal(t, TxStatusSuccess, tx.Status)
	assert.Equal(t, "0xrider", tx.Sender)
	assert.Equal(t, int64(121000), tx.ReceivedBy("0xescrow"))
}

func TestRPCClient_GetTransactionStatus_NotFound(t *testing.T) {
	t.Parallel()

	node := &fakeNode{errors: map[string]string{"iota_getTransactionBlock": "Could not find the referenced transaction"}}
	c := newTestRPCClient(t, node)

	_, err := c.GetTransactionStatus(context.Background(), "0xmissing")
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestRPCClient_LockPayment_BuildsThenExecutes(t *testing.T) {
	t.Parallel()

	node := &fakeNode{results: map[string]string{
		"iota_moveCall": `{"txBytes": "AAEC"}`,
		"iota_executeTransactionBlock": `{
			"digest": "0xlock",
			"effects": {"status": {"status": "success"}},
			"objectChanges": [
				{"type": "mutated", "objectId": "0xgas", "objectType": "0x2::coin::Coin"},
				{"type": "created", "objectId": "0xescrow1", "objectType": "0xpkg::payment_escrow::Escrow"}
			]
		}`,
	}}
	c := newTestRPCClient(t, node)

	res, err := c.LockPayment(context.Background(), LockCall{TripID: "trip-1", Payee: "0xdriver", Amount: 121000, PlatformFee: 11000, FundingTxRef: "0xfund"})
	require.NoError(t, err)

	assert.Equal(t, "0xescrow1", res.EscrowID)
	assert.Equal(t, "0xlock", res.TxRef)
	assert.Equal(t, []string{"iota_moveCall", "iota_executeTransactionBlock"}, node.methods())

	params, ok := node.calls[0].Params.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "payment_escrow", params["module"])
	assert.Equal(t, "lock_payment", params["function"])
	assert.Equal(t, "10000000", params["gasBudget"])
}

func TestRPCClient_FailedEffectsAreRejected(t *testing.T) {
	t.Parallel()

	node := &fakeNode{results: map[string]string{
		"iota_moveCall": `{"txBytes": "AAEC"}`,
		"iota_executeTransactionBlock": `{
			"digest": "0xbad",
			"effects": {"status": {"status": "failure", "error": "MoveAbort"}}
		}`,
	}}
	c := newTestRPCClient(t, node)

	_, err := c.ReleasePayment(context.Background(), ReleaseCall{TripID: "trip-1", EscrowID: "0xescrow1", Payee: "0xdriver", Amount: 1})
	assert.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "MoveAbort")
}

func TestRPCClient_HTTPErrorSurfaces(t *testing.T) {
	t.Parallel()

	c := newTestRPCClient(t, &fakeNode{})

	_, err := c.RefundPayment(context.Background(), RefundCall{TripID: "trip-1", EscrowID: "0xescrow1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http 404")
}
