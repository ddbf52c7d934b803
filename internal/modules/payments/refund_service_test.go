package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestRefundService(t *testing.T, provider *fakeProvider) (*RefundService, *gorm.DB, *fakeOrders) {
	t.Helper()

	db := newTestDB(t)
	orders := &fakeOrders{}
	reg := NewRegistry()
	if provider != nil {
		reg.Register(provider)
	}
	return NewRefundService(db, reg, orders), db, orders
}

func seedSucceededTxn(t *testing.T, db *gorm.DB, provider string, amountCents int, orderID *string) PaymentTransaction {
	t.Helper()

	now := time.Now()
	txn := PaymentTransaction{
		ID:             uuid.NewString(),
		OrderID:        orderID,
		Method:         MethodCard,
		Provider:       &provider,
		AmountCents:    amountCents,
		Currency:       "EUR",
		Status:         StatusSucceeded,
		ProviderTxnID:  strPtr("ptx_" + uuid.NewString()),
		IdempotencyKey: uuid.NewString(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, db.Create(&txn).Error)
	return txn
}

func TestProcessRefundPartialThenExcessThenExact(t *testing.T) {
	provider := succeedingProvider("nexipay")
	svc, db, orders := newTestRefundService(t, provider)
	txn := seedSucceededTxn(t, db, "nexipay", 100, strPtr("order-1"))

	// Partial refund leaves the transaction succeeded.
	first, err := svc.ProcessRefund(context.Background(), ProcessRefundInput{
		TransactionID: txn.ID, AmountCents: 60,
	})
	require.NoError(t, err)
	assert.Equal(t, RefundStatusSucceeded, first.Status)
	assert.Equal(t, StatusSucceeded, first.TransactionStatus)
	assert.Empty(t, orders.refunded)

	// 60 + 50 would exceed the captured amount.
	_, err = svc.ProcessRefund(context.Background(), ProcessRefundInput{
		TransactionID: txn.ID, AmountCents: 50,
	})
	require.ErrorIs(t, err, ErrAmountExceeded)

	// Exactly the remainder promotes the transaction.
	last, err := svc.ProcessRefund(context.Background(), ProcessRefundInput{
		TransactionID: txn.ID, AmountCents: 40,
	})
	require.NoError(t, err)
	assert.Equal(t, RefundStatusSucceeded, last.Status)
	assert.Equal(t, StatusRefunded, last.TransactionStatus)
	assert.Equal(t, []string{"order-1"}, orders.refunded)

	var current PaymentTransaction
	require.NoError(t, db.First(&current, "id = ?", txn.ID).Error)
	assert.Equal(t, StatusRefunded, current.Status)
}

func TestProcessRefundDefaultsToRemaining(t *testing.T) {
	provider := succeedingProvider("nexipay")
	svc, db, _ := newTestRefundService(t, provider)
	txn := seedSucceededTxn(t, db, "nexipay", 100, nil)

	result, err := svc.ProcessRefund(context.Background(), ProcessRefundInput{TransactionID: txn.ID})
	require.NoError(t, err)

	assert.Equal(t, 100, result.AmountCents)
	assert.Equal(t, StatusRefunded, result.TransactionStatus)
}

func TestProcessRefundInvalidState(t *testing.T) {
	svc, db, _ := newTestRefundService(t, succeedingProvider("nexipay"))

	now := time.Now()
	txn := PaymentTransaction{
		ID:             uuid.NewString(),
		Method:         MethodCard,
		Provider:       strPtr("nexipay"),
		AmountCents:    100,
		Currency:       "EUR",
		Status:         StatusPending,
		IdempotencyKey: uuid.NewString(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, db.Create(&txn).Error)

	_, err := svc.ProcessRefund(context.Background(), ProcessRefundInput{TransactionID: txn.ID, AmountCents: 50})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestProcessRefundNotFound(t *testing.T) {
	svc, _, _ := newTestRefundService(t, nil)

	_, err := svc.ProcessRefund(context.Background(), ProcessRefundInput{TransactionID: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProcessRefundAdapterFailure(t *testing.T) {
	provider := &fakeProvider{
		name: "nexipay",
		refundFn: func(RefundRequest) (RefundResponse, error) {
			return RefundResponse{}, errors.New("gateway unavailable")
		},
	}
	svc, db, orders := newTestRefundService(t, provider)
	txn := seedSucceededTxn(t, db, "nexipay", 100, strPtr("order-1"))

	result, err := svc.ProcessRefund(context.Background(), ProcessRefundInput{TransactionID: txn.ID, AmountCents: 100})
	require.NoError(t, err)

	assert.Equal(t, RefundStatusFailed, result.Status)
	assert.Contains(t, result.FailureReason, "gateway unavailable")
	assert.Equal(t, StatusSucceeded, result.TransactionStatus)
	assert.Empty(t, orders.refunded)

	// The failed refund no longer reserves any of the refundable amount.
	retrySvc := NewRefundService(db, NewRegistry(succeedingProvider("nexipay")), orders)

	again, err := retrySvc.ProcessRefund(context.Background(), ProcessRefundInput{TransactionID: txn.ID, AmountCents: 100})
	require.NoError(t, err)
	assert.Equal(t, RefundStatusSucceeded, again.Status)
}

func TestProcessRefundProcessingDoesNotPromote(t *testing.T) {
	provider := &fakeProvider{
		name: "nexipay",
		refundFn: func(req RefundRequest) (RefundResponse, error) {
			return RefundResponse{ProviderRefundID: "pref_1", Status: RefundStatusProcessing}, nil
		},
	}
	svc, db, _ := newTestRefundService(t, provider)
	txn := seedSucceededTxn(t, db, "nexipay", 100, nil)

	result, err := svc.ProcessRefund(context.Background(), ProcessRefundInput{TransactionID: txn.ID, AmountCents: 100})
	require.NoError(t, err)

	assert.Equal(t, RefundStatusProcessing, result.Status)
	assert.Equal(t, StatusSucceeded, result.TransactionStatus)

	var current PaymentTransaction
	require.NoError(t, db.First(&current, "id = ?", txn.ID).Error)
	assert.Equal(t, StatusSucceeded, current.Status)
}

func TestGetRefundNotFound(t *testing.T) {
	svc, _, _ := newTestRefundService(t, nil)

	_, err := svc.GetRefund(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRefundNotFound)
}

func TestListRefundsForTransaction(t *testing.T) {
	provider := succeedingProvider("nexipay")
	svc, db, _ := newTestRefundService(t, provider)
	txn := seedSucceededTxn(t, db, "nexipay", 100, nil)

	_, err := svc.ListRefundsForTransaction(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.ProcessRefund(context.Background(), ProcessRefundInput{TransactionID: txn.ID, AmountCents: 30})
	require.NoError(t, err)
	_, err = svc.ProcessRefund(context.Background(), ProcessRefundInput{TransactionID: txn.ID, AmountCents: 20})
	require.NoError(t, err)

	refs, err := svc.ListRefundsForTransaction(context.Background(), txn.ID)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, 30, refs[0].AmountCents)
	assert.Equal(t, 20, refs[1].AmountCents)
}
