package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
)

type escrowState string

const (
	escrowLocked   escrowState = "locked"
	escrowReleased escrowState = "released"
	escrowRefunded escrowState = "refunded"
)

type simEscrow struct {
	id        string
	tripID    string
	amount    int64
	state     escrowState
	lockTx    string
	settledTx string
}

// Simulated is an in-memory ledger. Transaction digests are derived from
// the operation, so repeating an operation yields the same digest.
type Simulated struct {
	mu           sync.Mutex
	transactions map[string]*Transaction
	escrows      map[string]*simEscrow // By trip ID
	receipts     map[string]*Result    // By trip ID
	balances     map[string]int64
	seq          int
}

// NewSimulated creates a new Simulated ledger.
func NewSimulated() *Simulated {
	return &Simulated{
		transactions: make(map[string]*Transaction),
		escrows:      make(map[string]*simEscrow),
		receipts:     make(map[string]*Result),
		balances:     make(map[string]int64),
	}
}

var _ Client = (*Simulated)(nil)

// SubmitPreparedTransfer records a successful transfer from sender to recipient.
func (s *Simulated) SubmitPreparedTransfer(ctx context.Context, transfer SignedTransfer) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if transfer.Amount <= 0 || transfer.Recipient == "" {
		return "", fmt.Errorf("%w: invalid transfer", ErrRejected)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	digest := simulatedDigest("transfer", transfer.Sender, transfer.Recipient, fmt.Sprint(transfer.Amount), fmt.Sprint(s.seq))
	s.transactions[digest] = &Transaction{
		Digest: digest,
		Status: TxStatusSuccess,
		Sender: transfer.Sender,
		BalanceChanges: []BalanceChange{
			{Owner: transfer.Sender, Amount: -transfer.Amount},
			{Owner: transfer.Recipient, Amount: transfer.Amount},
		},
	}
	s.balances[transfer.Sender] -= transfer.Amount
	s.balances[transfer.Recipient] += transfer.Amount

	return digest, nil
}

// GetTransactionStatus returns a recorded transaction.
func (s *Simulated) GetTransactionStatus(ctx context.Context, txRef string) (*Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[txRef]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, txRef)
	}

	cp := *tx
	cp.BalanceChanges = append([]BalanceChange(nil), tx.BalanceChanges...)
	return &cp, nil
}

// LockPayment creates an escrow for the trip, or returns the existing one.
func (s *Simulated) LockPayment(ctx context.Context, call LockCall) (*LockResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if call.TripID == "" || call.Amount <= 0 {
		return nil, fmt.Errorf("%w: invalid lock", ErrRejected)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.escrows[call.TripID]; ok {
		if e.state != escrowLocked {
			return nil, fmt.Errorf("%w: escrow for trip %s already %s", ErrRejected, call.TripID, e.state)
		}
		return &LockResult{EscrowID: e.id, TxRef: e.lockTx}, nil
	}

	e := &simEscrow{
		id:     simulatedDigest("escrow", call.TripID),
		tripID: call.TripID,
		amount: call.Amount,
		state:  escrowLocked,
		lockTx: simulatedDigest("lock", call.TripID, call.FundingTxRef),
	}
	s.escrows[call.TripID] = e
	s.transactions[e.lockTx] = &Transaction{Digest: e.lockTx, Status: TxStatusSuccess, Sender: call.Payer}

	return &LockResult{EscrowID: e.id, TxRef: e.lockTx}, nil
}

// ReleasePayment pays the escrow to the payee. Repeating a release returns the same digest.
func (s *Simulated) ReleasePayment(ctx context.Context, call ReleaseCall) (*Result, error) {
	return s.settle(ctx, call.TripID, call.EscrowID, call.Payee, call.Amount, escrowReleased)
}

// RefundPayment returns the escrow to the payer. Repeating a refund returns the same digest.
func (s *Simulated) RefundPayment(ctx context.Context, call RefundCall) (*Result, error) {
	return s.settle(ctx, call.TripID, call.EscrowID, call.Payer, call.Amount, escrowRefunded)
}

func (s *Simulated) settle(ctx context.Context, tripID, escrowID, to string, amount int64, target escrowState) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.escrows[tripID]
	if !ok || e.id != escrowID {
		return nil, fmt.Errorf("%w: unknown escrow %s", ErrRejected, escrowID)
	}

	switch e.state {
	case target:
		return &Result{TxRef: e.settledTx}, nil
	case escrowLocked:
	default:
		return nil, fmt.Errorf("%w: escrow %s already %s", ErrRejected, escrowID, e.state)
	}

	if amount <= 0 {
		amount = e.amount
	}

	digest := simulatedDigest(string(target), tripID, escrowID)
	s.transactions[digest] = &Transaction{
		Digest:         digest,
		Status:         TxStatusSuccess,
		BalanceChanges: []BalanceChange{{Owner: to, Amount: amount}},
	}
	s.balances[to] += amount
	e.state = target
	e.settledTx = digest

	return &Result{TxRef: digest}, nil
}

// CreateReceipt records a receipt for the trip, once.
func (s *Simulated) CreateReceipt(ctx context.Context, call ReceiptCall) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.receipts[call.TripID]; ok {
		cp := *r
		return &cp, nil
	}

	r := &Result{
		TxRef:    simulatedDigest("receipt", call.TripID),
		ObjectID: simulatedDigest("receipt-object", call.TripID),
	}
	s.receipts[call.TripID] = r
	s.transactions[r.TxRef] = &Transaction{Digest: r.TxRef, Status: TxStatusSuccess}

	cp := *r
	return &cp, nil
}

// Balance returns the simulated balance of an address.
func (s *Simulated) Balance(address string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[address]
}

// AddTransaction registers an externally produced transaction.
func (s *Simulated) AddTransaction(tx *Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *tx
	s.transactions[tx.Digest] = &cp
}

func simulatedDigest(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return "0x" + hex.EncodeToString(h.Sum(nil))
}
