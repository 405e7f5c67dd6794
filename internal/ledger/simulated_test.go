package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulated_TransferIsVisible(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := NewSimulated()

	digest, err := l.SubmitPreparedTransfer(ctx, SignedTransfer{Sender: "0xrider", Recipient: "0xescrow", Amount: 121000})
	require.NoError(t, err)
	assert.Regexp(t, `^0x[0-9a-f]{64}$`, digest)

	tx, err := l.GetTransactionStatus(ctx, digest)
	require.NoError(t, err)
	assert.Equal(t, TxStatusSuccess, tx.Status)
	assert.Equal(t, int64(121000), tx.ReceivedBy("0xescrow"))
	assert.Equal(t, int64(0), tx.ReceivedBy("0xrider"))
	assert.Equal(t, int64(-121000), l.Balance("0xrider"))
}

func TestSimulated_UnknownTransaction(t *testing.T) {
	t.Parallel()

	_, err := NewSimulated().GetTransactionStatus(context.Background(), "0xmissing")
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestSimulated_LockIsIdempotentPerTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := NewSimulated()
	call := LockCall{TripID: "trip-1", Payer: "0xrider", Payee: "0xdriver", Amount: 1000, PlatformFee: 91, FundingTxRef: "0xfund"}

	first, err := l.LockPayment(ctx, call)
	require.NoError(t, err)
	second, err := l.LockPayment(ctx, call)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestSimulated_ReleaseIsIdempotentAndExclusiveWithRefund(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := NewSimulated()
	lock, err := l.LockPayment(ctx, LockCall{TripID: "trip-1", Amount: 1000})
	require.NoError(t, err)

	r1, err := l.ReleasePayment(ctx, ReleaseCall{TripID: "trip-1", EscrowID: lock.EscrowID, Payee: "0xdriver", Amount: 900})
	require.NoError(t, err)
	r2, err := l.ReleasePayment(ctx, ReleaseCall{TripID: "trip-1", EscrowID: lock.EscrowID, Payee: "0xdriver", Amount: 900})
	require.NoError(t, err)

	assert.Equal(t, r1.TxRef, r2.TxRef)
	assert.Equal(t, int64(900), l.Balance("0xdriver"))

	_, err = l.RefundPayment(ctx, RefundCall{TripID: "trip-1", EscrowID: lock.EscrowID, Payer: "0xrider"})
	assert.ErrorIs(t, err, ErrRejected)

	_, err = l.LockPayment(ctx, LockCall{TripID: "trip-1", Amount: 1000})
	assert.ErrorIs(t, err, ErrRejected)
}

func TestSimulated_RefundDefaultsToLockedAmount(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := NewSimulated()
	lock, err := l.LockPayment(ctx, LockCall{TripID: "trip-1", Amount: 1000})
	require.NoError(t, err)

	_, err = l.RefundPayment(ctx, RefundCall{TripID: "trip-1", EscrowID: lock.EscrowID, Payer: "0xrider"})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), l.Balance("0xrider"))
}

func TestSimulated_UnknownEscrowRejected(t *testing.T) {
	t.Parallel()

	_, err := NewSimulated().ReleasePayment(context.Background(), ReleaseCall{TripID: "trip-x", EscrowID: "0xnope"})
	assert.ErrorIs(t, err, ErrRejected)
}

func TestSimulated_ReceiptCreatedOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := NewSimulated()

	a, err := l.CreateReceipt(ctx, ReceiptCall{TripID: "trip-1"})
	require.NoError(t, err)
	b, err := l.CreateReceipt(ctx, ReceiptCall{TripID: "trip-1"})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEmpty(t, a.ObjectID)
}

func TestSimulated_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSimulated().LockPayment(ctx, LockCall{TripID: "trip-1", Amount: 1})
	assert.ErrorIs(t, err, context.Canceled)
}
