package domain

import "time"

// SettlementKind identifies the ledger operation a settlement records.
type SettlementKind string

const (
	SettlementLock    SettlementKind = "LOCK"
	SettlementRelease SettlementKind = "RELEASE"
	SettlementRefund  SettlementKind = "REFUND"
)

// SettlementStatus represents the current status of a settlement.
type SettlementStatus string

const (
	SettlementStatusPending   SettlementStatus = "PENDING"
	SettlementStatusConfirmed SettlementStatus = "CONFIRMED"
	SettlementStatusFailed    SettlementStatus = "FAILED"
)

// Settlement records one ledger operation for a trip.
type Settlement struct {
	ID             string
	TripID         string
	Kind           SettlementKind
	EscrowID       string
	Amount         int64
	Minutes        int    // Billed duration a release was priced with
	FundingTxRef   string // Set on locks; one funding transfer backs one trip
	TxRef          string
	Status         SettlementStatus
	Error          string
	IdempotencyKey string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EscrowReference identifies funds held on the ledger for a trip.
type EscrowReference struct {
	EscrowID     string
	FundingTxRef string // The payer's own transfer into escrow
	LockTxRef    string
	Amount       int64
	PlatformFee  int64
	LockedAt     time.Time
}

// TransferSpec is an unsigned transfer the payer's wallet signs and submits.
type TransferSpec struct {
	TripID      string
	Sender      string
	Recipient   string
	Amount      int64
	PlatformFee int64
	PackageID   string
	Module      string
	Function    string
	Arguments   []string
	TypeArgs    []string
	GasBudget   int64
}
