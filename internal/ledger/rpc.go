package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/newrelic/go-agent/v3/newrelic"
	"golang.org/x/time/rate"
)

const (
	escrowModule  = "payment_escrow"
	receiptModule = "trip_receipt"

	// FunctionLockPayment is the escrow contract entry the payer's transfer is built for.
	FunctionLockPayment = "lock_payment"
	functionRelease     = "release_payment"
	functionRefund      = "refund_payment"
	functionReceipt     = "create_receipt"
)

// RPCConfig configures an RPCClient.
type RPCConfig struct {
	URL               string
	PackageID         string
	PlatformWallet    string // Signer for platform-initiated calls
	GasBudget         int64
	RequestsPerSecond float64
	Burst             int
}

// RPCClient is a JSON-RPC 2.0 ledger client. Move calls are built with
// iota_moveCall and executed with iota_executeTransactionBlock; signing of
// platform calls is delegated to the node's managed platform account.
type RPCClient struct {
	cfg     RPCConfig
	http    *http.Client
	limiter *rate.Limiter
	nextID  atomic.Int64
}

// NewRPCClient creates a new RPCClient. A nil httpClient uses http.DefaultClient.
func NewRPCClient(cfg RPCConfig, httpClient *http.Client) *RPCClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if cfg.GasBudget <= 0 {
		cfg.GasBudget = 10000000
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &RPCClient{
		cfg:     cfg,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, burst),
	}
}

var _ Client = (*RPCClient)(nil)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type txBlock struct {
	Digest  string `json:"digest"`
	Effects struct {
		Status struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		} `json:"status"`
	} `json:"effects"`
	Transaction struct {
		Data struct {
			Sender string `json:"sender"`
		} `json:"data"`
	} `json:"transaction"`
	BalanceChanges []struct {
		Owner struct {
			AddressOwner string `json:"AddressOwner"`
		} `json:"owner"`
		Amount string `json:"amount"`
	} `json:"balanceChanges"`
	ObjectChanges []struct {
		Type       string `json:"type"`
		ObjectID   string `json:"objectId"`
		ObjectType string `json:"objectType"`
	} `json:"objectChanges"`
}

func (b *txBlock) toTransaction() (*Transaction, error) {
	tx := &Transaction{
		Digest: b.Digest,
		Status: TxStatus(b.Effects.Status.Status),
		Sender: b.Transaction.Data.Sender,
		Error:  b.Effects.Status.Error,
	}
	if tx.Status == "" {
		tx.Status = TxStatusPending
	}

	for _, c := range b.BalanceChanges {
		amount, err := strconv.ParseInt(c.Amount, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse balance change %q: %w", c.Amount, err)
		}
		tx.BalanceChanges = append(tx.BalanceChanges, BalanceChange{Owner: c.Owner.AddressOwner, Amount: amount})
	}

	return tx, nil
}

func (b *txBlock) createdObject(typeSuffix string) string {
	for _, o := range b.ObjectChanges {
		if o.Type == "created" && strings.Contains(o.ObjectType, typeSuffix) {
			return o.ObjectID
		}
	}
	return ""
}

var txOptions = map[string]bool{
	"showInput":          true,
	"showEffects":        true,
	"showBalanceChanges": true,
	"showObjectChanges":  true,
}

// SubmitPreparedTransfer executes a transfer the payer's wallet has signed.
func (c *RPCClient) SubmitPreparedTransfer(ctx context.Context, transfer SignedTransfer) (string, error) {
	block, err := c.execute(ctx, transfer.TxBytes, transfer.Signatures)
	if err != nil {
		return "", err
	}
	return block.Digest, nil
}

// GetTransactionStatus fetches a transaction block with its balance changes.
func (c *RPCClient) GetTransactionStatus(ctx context.Context, txRef string) (*Transaction, error) {
	var block txBlock
	err := c.call(ctx, "iota_getTransactionBlock", []any{txRef, txOptions}, &block)
	if err != nil {
		var rpcErr *rpcError
		if errors.As(err, &rpcErr) {
			return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, rpcErr.Message)
		}
		return nil, err
	}
	return block.toTransaction()
}

// LockPayment calls payment_escrow::lock_payment.
func (c *RPCClient) LockPayment(ctx context.Context, call LockCall) (*LockResult, error) {
	block, err := c.moveCall(ctx, c.cfg.PlatformWallet, escrowModule, FunctionLockPayment, []string{
		call.TripID,
		call.FundingTxRef,
		call.Payee,
		strconv.FormatInt(call.Amount, 10),
		strconv.FormatInt(call.PlatformFee, 10),
	})
	if err != nil {
		return nil, err
	}

	escrowID := block.createdObject("::" + escrowModule + "::")
	if escrowID == "" {
		return nil, fmt.Errorf("%w: lock %s created no escrow object", ErrRejected, block.Digest)
	}
	return &LockResult{EscrowID: escrowID, TxRef: block.Digest}, nil
}

// ReleasePayment calls payment_escrow::release_payment.
func (c *RPCClient) ReleasePayment(ctx context.Context, call ReleaseCall) (*Result, error) {
	block, err := c.moveCall(ctx, c.cfg.PlatformWallet, escrowModule, functionRelease, []string{
		call.EscrowID,
		call.Payee,
		strconv.FormatInt(call.Amount, 10),
	})
	if err != nil {
		return nil, err
	}
	return &Result{TxRef: block.Digest}, nil
}

// RefundPayment calls payment_escrow::refund_payment.
func (c *RPCClient) RefundPayment(ctx context.Context, call RefundCall) (*Result, error) {
	block, err := c.moveCall(ctx, c.cfg.PlatformWallet, escrowModule, functionRefund, []string{
		call.EscrowID,
		call.Payer,
	})
	if err != nil {
		return nil, err
	}
	return &Result{TxRef: block.Digest}, nil
}

// CreateReceipt calls trip_receipt::create_receipt.
func (c *RPCClient) CreateReceipt(ctx context.Context, call ReceiptCall) (*Result, error) {
	block, err := c.moveCall(ctx, c.cfg.PlatformWallet, receiptModule, functionReceipt, []string{
		call.TripID,
		call.Rider,
		call.Driver,
		call.PickupHash,
		call.DropoffHash,
		strconv.FormatInt(call.DistanceMetres, 10),
		strconv.Itoa(call.DurationMinutes),
		strconv.FormatInt(call.FareTotal, 10),
		strconv.FormatInt(call.StartedAt.Unix(), 10),
		strconv.FormatInt(call.EndedAt.Unix(), 10),
	})
	if err != nil {
		return nil, err
	}
	return &Result{
		TxRef:    block.Digest,
		ObjectID: block.createdObject("::" + receiptModule + "::"),
	}, nil
}

// moveCall builds a contract call and executes it, failing unless the
// ledger reports success.
func (c *RPCClient) moveCall(ctx context.Context, signer, module, function string, args []string) (*txBlock, error) {
	var built struct {
		TxBytes string `json:"txBytes"`
	}
	params := map[string]any{
		"signer":          signer,
		"packageObjectId": c.cfg.PackageID,
		"module":          module,
		"function":        function,
		"typeArguments":   []string{},
		"arguments":       args,
		"gasBudget":       strconv.FormatInt(c.cfg.GasBudget, 10),
	}
	if err := c.call(ctx, "iota_moveCall", params, &built); err != nil {
		return nil, fmt.Errorf("build %s::%s: %w", module, function, err)
	}

	block, err := c.execute(ctx, built.TxBytes, []string{})
	if err != nil {
		return nil, fmt.Errorf("execute %s::%s: %w", module, function, err)
	}
	return block, nil
}

func (c *RPCClient) execute(ctx context.Context, txBytes string, signatures []string) (*txBlock, error) {
	var block txBlock
	params := []any{txBytes, signatures, txOptions, "WaitForLocalExecution"}
	if err := c.call(ctx, "iota_executeTransactionBlock", params, &block); err != nil {
		var rpcErr *rpcError
		if errors.As(err, &rpcErr) {
			return nil, fmt.Errorf("%w: %s", ErrRejected, rpcErr.Message)
		}
		return nil, err
	}

	if status := TxStatus(block.Effects.Status.Status); status != TxStatusSuccess {
		return nil, fmt.Errorf("%w: transaction %s status %q: %s", ErrRejected, block.Digest, status, block.Effects.Status.Error)
	}
	return &block, nil
}

func (c *RPCClient) call(ctx context.Context, method string, params, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	segment := newrelic.StartExternalSegment(newrelic.FromContext(ctx), req)
	segment.Procedure = method
	resp, err := c.http.Do(req)
	segment.Response = resp
	segment.End()
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: http %d: %s", method, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("decode %s: %w", method, err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}
