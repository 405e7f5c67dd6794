package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"autodrive/internal/config"
	"autodrive/internal/domain"
	"autodrive/internal/ledger"
	"autodrive/internal/redis"
	"autodrive/internal/repository"
)

const (
	escrowModule         = "payment_escrow"
	settlementLockTTL    = 30 * time.Second
	defaultLedgerTimeout = 15 * time.Second
)

// EscrowService locks, releases and refunds trip payments on the ledger.
// Release and refund are idempotent per trip through settlement records.
type EscrowService struct {
	ledger         ledger.Client
	settlementRepo repository.SettlementRepository
	wallets        repository.WalletDirectory
	lockStore      redis.LockStoreInterface
	cfg            config.LedgerConfig
	logger         logrus.FieldLogger
	now            func() time.Time
}

// NewEscrowService creates a new EscrowService. lockStore may be nil when a
// single instance serves all requests.
func NewEscrowService(
	ledgerClient ledger.Client,
	settlementRepo repository.SettlementRepository,
	wallets repository.WalletDirectory,
	lockStore redis.LockStoreInterface,
	cfg config.LedgerConfig,
	logger logrus.FieldLogger,
) *EscrowService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultLedgerTimeout
	}
	return &EscrowService{
		ledger:         ledgerClient,
		settlementRepo: settlementRepo,
		wallets:        wallets,
		lockStore:      lockStore,
		cfg:            cfg,
		logger:         logger,
		now:            time.Now,
	}
}

// LockRequest contains the parameters for funding a trip escrow.
type LockRequest struct {
	TripID       string
	PayerID      string
	PayeeID      string // Optional until a driver is bound
	Amount       int64
	PlatformFee  int64
	FundingTxRef string // Only used by LockPayment
}

// ReleaseRequest contains the parameters for paying a driver.
type ReleaseRequest struct {
	TripID  string
	PayeeID string
	Escrow  *domain.EscrowReference
	Amount  int64
	Minutes int // Billed duration Amount was priced with
}

// RefundRequest contains the parameters for refunding a rider.
type RefundRequest struct {
	TripID      string
	RequesterID string
	PayerID     string
	Escrow      *domain.EscrowReference
}

// SettlementResult is the outcome of a release or refund.
type SettlementResult struct {
	TxRef          string
	AlreadySettled bool // A previous call already confirmed the settlement
}

// PrepareLock builds the unsigned transfer the rider's wallet must sign to
// fund the escrow.
func (s *EscrowService) PrepareLock(ctx context.Context, req LockRequest) (*domain.TransferSpec, error) {
	if err := validateLockRequest(req, false); err != nil {
		return nil, err
	}

	sender, err := s.wallets.WalletAddress(ctx, req.PayerID)
	if err != nil {
		return nil, fmt.Errorf("payer wallet: %w", err)
	}

	var payee string
	if req.PayeeID != "" {
		if payee, err = s.wallets.WalletAddress(ctx, req.PayeeID); err != nil {
			return nil, fmt.Errorf("payee wallet: %w", err)
		}
	}

	return &domain.TransferSpec{
		TripID:      req.TripID,
		Sender:      sender,
		Recipient:   s.cfg.EscrowAddress,
		Amount:      req.Amount,
		PlatformFee: req.PlatformFee,
		PackageID:   s.cfg.PackageID,
		Module:      escrowModule,
		Function:    ledger.FunctionLockPayment,
		Arguments:   []string{req.TripID, payee, strconv.FormatInt(req.PlatformFee, 10)},
		GasBudget:   s.cfg.GasBudget,
	}, nil
}

// LockPayment verifies the rider's funding transfer and locks it into an
// escrow for the trip. Calling it again for a locked trip returns the
// existing escrow.
func (s *EscrowService) LockPayment(ctx context.Context, req LockRequest) (*domain.EscrowReference, error) {
	if err := validateLockRequest(req, true); err != nil {
		return nil, err
	}

	existing, err := s.settlementRepo.GetByIdempotencyKey(ctx, settlementKey(domain.SettlementLock, req.TripID))
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Status == domain.SettlementStatusConfirmed {
		return &domain.EscrowReference{
			EscrowID:     existing.EscrowID,
			FundingTxRef: req.FundingTxRef,
			LockTxRef:    existing.TxRef,
			Amount:       existing.Amount,
			PlatformFee:  req.PlatformFee,
			LockedAt:     existing.UpdatedAt,
		}, nil
	}

	if err := s.checkFundingUnused(ctx, req); err != nil {
		return nil, err
	}

	payer, err := s.wallets.WalletAddress(ctx, req.PayerID)
	if err != nil {
		return nil, fmt.Errorf("payer wallet: %w", err)
	}
	var payee string
	if req.PayeeID != "" {
		if payee, err = s.wallets.WalletAddress(ctx, req.PayeeID); err != nil {
			return nil, fmt.Errorf("payee wallet: %w", err)
		}
	}

	if err := s.verifyFunding(ctx, req, payer); err != nil {
		return nil, err
	}

	lctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	locked, err := s.ledger.LockPayment(lctx, ledger.LockCall{
		TripID:       req.TripID,
		Payer:        payer,
		Payee:        payee,
		Amount:       req.Amount,
		PlatformFee:  req.PlatformFee,
		FundingTxRef: req.FundingTxRef,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: lock payment: %w", ErrExternalService, err)
	}

	now := s.now()
	ref := &domain.EscrowReference{
		EscrowID:     locked.EscrowID,
		FundingTxRef: req.FundingTxRef,
		LockTxRef:    locked.TxRef,
		Amount:       req.Amount,
		PlatformFee:  req.PlatformFee,
		LockedAt:     now,
	}

	// The ledger lock is idempotent per trip, so a lost audit record is
	// recovered by the next LockPayment call.
	record := &domain.Settlement{
		ID:             uuid.New().String(),
		TripID:         req.TripID,
		Kind:           domain.SettlementLock,
		EscrowID:       locked.EscrowID,
		Amount:         req.Amount,
		FundingTxRef:   req.FundingTxRef,
		TxRef:          locked.TxRef,
		Status:         domain.SettlementStatusConfirmed,
		IdempotencyKey: settlementKey(domain.SettlementLock, req.TripID),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.settlementRepo.Create(ctx, record); err != nil {
		if !errors.Is(err, repository.ErrConflict) {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"trip_id":   req.TripID,
				"escrow_id": locked.EscrowID,
			}).Error("failed to record escrow lock")
		} else if err := s.checkFundingUnused(ctx, req); err != nil {
			// Another trip claimed the same funding transfer first.
			return nil, err
		}
	}

	s.logger.WithFields(logrus.Fields{
		"trip_id":   req.TripID,
		"escrow_id": locked.EscrowID,
		"tx_ref":    locked.TxRef,
		"amount":    req.Amount,
	}).Info("payment locked in escrow")

	return ref, nil
}

// Release pays the escrow out to the driver. It is idempotent per trip.
func (s *EscrowService) Release(ctx context.Context, req ReleaseRequest) (*SettlementResult, error) {
	if req.TripID == "" {
		return nil, ErrInvalidTripID
	}
	if req.Escrow == nil {
		return nil, ErrUnpaidTrip
	}
	if req.Amount <= 0 {
		return nil, ErrInvalidPaymentAmount
	}

	return s.settle(ctx, domain.SettlementRelease, req.TripID, req.Escrow, req.Amount, req.Minutes, func(lctx context.Context) (*ledger.Result, error) {
		payee, err := s.wallets.WalletAddress(ctx, req.PayeeID)
		if err != nil {
			return nil, fmt.Errorf("payee wallet: %w", err)
		}
		return s.ledger.ReleasePayment(lctx, ledger.ReleaseCall{
			TripID:   req.TripID,
			EscrowID: req.Escrow.EscrowID,
			Payee:    payee,
			Amount:   req.Amount,
		})
	})
}

// Refund returns the escrow to the rider. It is idempotent per trip.
func (s *EscrowService) Refund(ctx context.Context, req RefundRequest) (*SettlementResult, error) {
	if req.TripID == "" {
		return nil, ErrInvalidTripID
	}
	if req.Escrow == nil {
		return nil, ErrUnpaidTrip
	}

	s.logger.WithFields(logrus.Fields{
		"trip_id":      req.TripID,
		"requested_by": req.RequesterID,
	}).Info("refund requested")

	return s.settle(ctx, domain.SettlementRefund, req.TripID, req.Escrow, req.Escrow.Amount, 0, func(lctx context.Context) (*ledger.Result, error) {
		payer, err := s.wallets.WalletAddress(ctx, req.PayerID)
		if err != nil {
			return nil, fmt.Errorf("payer wallet: %w", err)
		}
		return s.ledger.RefundPayment(lctx, ledger.RefundCall{
			TripID:   req.TripID,
			EscrowID: req.Escrow.EscrowID,
			Payer:    payer,
			Amount:   req.Escrow.Amount,
		})
	})
}

// ReceiptRequest contains the parameters for an on-ledger trip receipt.
type ReceiptRequest struct {
	Receipt *domain.Receipt
}

// IssueReceipt writes the receipt to the ledger and returns the receipt object ID.
func (s *EscrowService) IssueReceipt(ctx context.Context, req ReceiptRequest) (string, error) {
	r := req.Receipt
	if r == nil || r.TripID == "" {
		return "", ErrInvalidTripID
	}

	rider, err := s.wallets.WalletAddress(ctx, r.RiderID)
	if err != nil {
		return "", fmt.Errorf("rider wallet: %w", err)
	}
	driver, err := s.wallets.WalletAddress(ctx, r.DriverID)
	if err != nil {
		return "", fmt.Errorf("driver wallet: %w", err)
	}

	lctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	res, err := s.ledger.CreateReceipt(lctx, ledger.ReceiptCall{
		TripID:          r.TripID,
		Rider:           rider,
		Driver:          driver,
		PickupHash:      r.PickupHash,
		DropoffHash:     r.DropoffHash,
		DistanceMetres:  int64(r.DistanceKm*1000 + 0.5),
		DurationMinutes: r.DurationMinutes,
		FareTotal:       r.Fare.Total,
		StartedAt:       r.StartedAt,
		EndedAt:         r.EndedAt,
	})
	if err != nil {
		return "", fmt.Errorf("%w: create receipt: %w", ErrExternalService, err)
	}
	return res.ObjectID, nil
}

// Settlements returns the ledger settlements recorded for a trip.
func (s *EscrowService) Settlements(ctx context.Context, tripID string) ([]*domain.Settlement, error) {
	if tripID == "" {
		return nil, ErrInvalidTripID
	}
	return s.settlementRepo.ListByTrip(ctx, tripID)
}

// FindSettlement returns the settlement of the given kind for a trip in any
// status, or nil if none was recorded.
func (s *EscrowService) FindSettlement(ctx context.Context, kind domain.SettlementKind, tripID string) (*domain.Settlement, error) {
	if tripID == "" {
		return nil, ErrInvalidTripID
	}
	return s.settlementRepo.GetByIdempotencyKey(ctx, settlementKey(kind, tripID))
}

// settle runs a release or refund at most once per trip. A confirmed
// settlement short-circuits; concurrent callers are serialized through a
// Redis lock; failed attempts are retried on the same record.
func (s *EscrowService) settle(
	ctx context.Context,
	kind domain.SettlementKind,
	tripID string,
	escrow *domain.EscrowReference,
	amount int64,
	minutes int,
	call func(ctx context.Context) (*ledger.Result, error),
) (*SettlementResult, error) {
	key := settlementKey(kind, tripID)
	log := s.logger.WithFields(logrus.Fields{
		"trip_id":   tripID,
		"escrow_id": escrow.EscrowID,
		"kind":      kind,
	})

	existing, err := s.settlementRepo.GetByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Status == domain.SettlementStatusConfirmed {
		return &SettlementResult{TxRef: existing.TxRef, AlreadySettled: true}, nil
	}

	if s.lockStore != nil {
		token, ok, err := s.lockStore.AcquireLock(ctx, "settlement:"+key, settlementLockTTL)
		if err != nil {
			return nil, fmt.Errorf("%w: settlement lock: %w", ErrExternalService, err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s already in progress", ErrConcurrentModification, key)
		}
		defer func() {
			if err := s.lockStore.ReleaseLock(context.WithoutCancel(ctx), "settlement:"+key, token); err != nil {
				log.WithError(err).Warn("failed to release settlement lock")
			}
		}()

		// Another instance may have finished while we waited for the lock.
		if existing, err = s.settlementRepo.GetByIdempotencyKey(ctx, key); err != nil {
			return nil, err
		}
		if existing != nil && existing.Status == domain.SettlementStatusConfirmed {
			return &SettlementResult{TxRef: existing.TxRef, AlreadySettled: true}, nil
		}
	}

	record := existing
	if record != nil && record.Amount != amount {
		// A retry must pay what the first attempt recorded.
		return nil, fmt.Errorf("%w: %s recorded amount %d, got %d", ErrConcurrentModification, key, record.Amount, amount)
	}
	if record == nil {
		now := s.now()
		record = &domain.Settlement{
			ID:             uuid.New().String(),
			TripID:         tripID,
			Kind:           kind,
			EscrowID:       escrow.EscrowID,
			Amount:         amount,
			Minutes:        minutes,
			Status:         domain.SettlementStatusPending,
			IdempotencyKey: key,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.settlementRepo.Create(ctx, record); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return nil, fmt.Errorf("%w: %s already recorded", ErrConcurrentModification, key)
			}
			return nil, err
		}
	}

	lctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	res, err := call(lctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		if uerr := s.settlementRepo.UpdateResult(ctx, record.ID, domain.SettlementStatusFailed, "", err.Error()); uerr != nil {
			log.WithError(uerr).Error("failed to record settlement failure")
		}
		log.WithError(err).Warn("settlement failed")
		return nil, fmt.Errorf("%w: %s: %w", ErrExternalService, kind, err)
	}

	// The ledger confirmed; a lost status write is repaired by the next call
	// because the ledger settles each escrow once.
	if err := s.settlementRepo.UpdateResult(ctx, record.ID, domain.SettlementStatusConfirmed, res.TxRef, ""); err != nil {
		log.WithError(err).Error("failed to record settlement confirmation")
	}

	log.WithField("tx_ref", res.TxRef).Info("settlement confirmed")
	return &SettlementResult{TxRef: res.TxRef}, nil
}

// checkFundingUnused rejects a funding transaction that already backs the
// escrow of another trip.
func (s *EscrowService) checkFundingUnused(ctx context.Context, req LockRequest) error {
	used, err := s.settlementRepo.GetByFundingTxRef(ctx, req.FundingTxRef)
	if err != nil {
		return err
	}
	if used != nil && used.TripID != req.TripID {
		return fmt.Errorf("%w: funding transaction %s already backs trip %s", ErrPaymentVerification, req.FundingTxRef, used.TripID)
	}
	return nil
}

// verifyFunding checks that the payer sent the funding transaction, that it
// succeeded and that it paid the escrow address the expected amount within
// the configured tolerance.
func (s *EscrowService) verifyFunding(ctx context.Context, req LockRequest, payer string) error {
	lctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	tx, err := s.ledger.GetTransactionStatus(lctx, req.FundingTxRef)
	if err != nil {
		return fmt.Errorf("%w: funding transaction %s: %w", ErrExternalService, req.FundingTxRef, err)
	}

	switch tx.Status {
	case ledger.TxStatusSuccess:
	case ledger.TxStatusPending:
		return fmt.Errorf("%w: funding transaction %s not yet confirmed", ErrExternalService, req.FundingTxRef)
	default:
		return fmt.Errorf("%w: funding transaction %s failed: %s", ErrPaymentVerification, req.FundingTxRef, tx.Error)
	}

	if tx.Sender != payer {
		return fmt.Errorf("%w: funding transaction %s was not sent by the payer", ErrPaymentVerification, req.FundingTxRef)
	}

	received := tx.ReceivedBy(s.cfg.EscrowAddress)
	if received == 0 {
		return fmt.Errorf("%w: funding transaction %s did not pay the escrow address", ErrPaymentVerification, req.FundingTxRef)
	}

	diff := received - req.Amount
	if diff < 0 {
		diff = -diff
	}
	if diff > req.Amount*s.cfg.ToleranceBps/10000 {
		return fmt.Errorf("%w: received %d, expected %d", ErrPaymentVerification, received, req.Amount)
	}
	return nil
}

func validateLockRequest(req LockRequest, needFunding bool) error {
	if req.TripID == "" {
		return ErrInvalidTripID
	}
	if req.PayerID == "" {
		return ErrInvalidRiderID
	}
	if req.Amount <= 0 || req.PlatformFee < 0 {
		return ErrInvalidPaymentAmount
	}
	if needFunding && req.FundingTxRef == "" {
		return ErrInvalidPaymentReference
	}
	return nil
}

func settlementKey(kind domain.SettlementKind, tripID string) string {
	switch kind {
	case domain.SettlementLock:
		return "lock:" + tripID
	case domain.SettlementRelease:
		return "release:" + tripID
	default:
		return "refund:" + tripID
	}
}
