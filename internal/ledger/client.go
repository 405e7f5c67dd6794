// Package ledger talks to the settlement ledger that holds trip escrows.
package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTransactionNotFound is returned when the ledger has no record of a transaction.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrRejected is returned when the ledger refuses an operation.
	ErrRejected = errors.New("ledger rejected operation")
)

// TxStatus is the execution status the ledger reports for a transaction.
type TxStatus string

const (
	TxStatusSuccess TxStatus = "success"
	TxStatusFailure TxStatus = "failure"
	TxStatusPending TxStatus = "pending"
)

// BalanceChange is the net amount an address gained or lost in a transaction.
type BalanceChange struct {
	Owner  string
	Amount int64
}

// Transaction is the ledger's view of an executed transaction.
type Transaction struct {
	Digest         string
	Status         TxStatus
	Sender         string
	BalanceChanges []BalanceChange
	Error          string
}

// ReceivedBy returns the positive balance change credited to owner.
func (t *Transaction) ReceivedBy(owner string) int64 {
	var total int64
	for _, c := range t.BalanceChanges {
		if c.Owner == owner && c.Amount > 0 {
			total += c.Amount
		}
	}
	return total
}

// SignedTransfer is a transfer built from a TransferSpec and signed by the payer's wallet.
type SignedTransfer struct {
	Sender     string
	Recipient  string
	Amount     int64
	TxBytes    string
	Signatures []string
}

// LockCall locks a verified funding transfer into an escrow for a trip.
type LockCall struct {
	TripID       string
	Payer        string
	Payee        string
	Amount       int64
	PlatformFee  int64
	FundingTxRef string
}

// LockResult identifies a newly created escrow.
type LockResult struct {
	EscrowID string
	TxRef    string
}

// ReleaseCall pays an escrow out to the driver.
type ReleaseCall struct {
	TripID   string
	EscrowID string
	Payee    string
	Amount   int64
}

// RefundCall returns an escrow to the rider.
type RefundCall struct {
	TripID   string
	EscrowID string
	Payer    string
	Amount   int64
}

// ReceiptCall writes a trip receipt to the ledger.
type ReceiptCall struct {
	TripID          string
	Rider           string
	Driver          string
	PickupHash      string
	DropoffHash     string
	DistanceMetres  int64
	DurationMinutes int
	FareTotal       int64
	StartedAt       time.Time
	EndedAt         time.Time
}

// Result is the outcome of a confirmed ledger call.
type Result struct {
	TxRef    string
	ObjectID string // Created object, when the call creates one
}

// Client is the logical contract with the settlement ledger. Every method
// returns only after the ledger confirmed the operation, or with an error.
type Client interface {
	// SubmitPreparedTransfer executes a transfer signed by the payer's wallet.
	SubmitPreparedTransfer(ctx context.Context, transfer SignedTransfer) (string, error)

	// GetTransactionStatus looks up an executed transaction.
	GetTransactionStatus(ctx context.Context, txRef string) (*Transaction, error)

	// LockPayment creates an escrow for a trip. Repeated calls for the
	// same trip return the existing escrow.
	LockPayment(ctx context.Context, call LockCall) (*LockResult, error)

	// ReleasePayment pays the escrow out to the driver.
	ReleasePayment(ctx context.Context, call ReleaseCall) (*Result, error)

	// RefundPayment returns the escrow to the rider.
	RefundPayment(ctx context.Context, call RefundCall) (*Result, error)

	// CreateReceipt writes an immutable trip receipt.
	CreateReceipt(ctx context.Context, call ReceiptCall) (*Result, error)
}
