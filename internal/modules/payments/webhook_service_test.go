package payments

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestWebhookService(t *testing.T) (*WebhookService, *gorm.DB, *fakeOrders) {
	t.Helper()

	db := newTestDB(t)
	orders := &fakeOrders{}
	return NewWebhookService(db, orders), db, orders
}

func seedPendingTxn(t *testing.T, db *gorm.DB, provider, providerTxnID string, orderID *string) PaymentTransaction {
	t.Helper()

	now := time.Now()
	txn := PaymentTransaction{
		ID:             uuid.NewString(),
		OrderID:        orderID,
		Method:         MethodCard,
		Provider:       &provider,
		AmountCents:    100,
		Currency:       "EUR",
		Status:         StatusPending,
		ProviderTxnID:  &providerTxnID,
		IdempotencyKey: uuid.NewString(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, db.Create(&txn).Error)
	return txn
}

func TestHandlePaymentSucceeded(t *testing.T) {
	svc, db, orders := newTestWebhookService(t)
	txn := seedPendingTxn(t, db, "nexipay", "ptx_1", strPtr("order-1"))

	ev := WebhookEvent{EventID: "evt_1", Type: EventPaymentSucceeded, ProviderTxnID: "ptx_1"}
	require.NoError(t, svc.Handle(context.Background(), "nexipay", ev, []byte(`{"ok":true}`)))

	var current PaymentTransaction
	require.NoError(t, db.First(&current, "id = ?", txn.ID).Error)
	assert.Equal(t, StatusSucceeded, current.Status)
	assert.NotEmpty(t, current.ProviderResponse)
	assert.Equal(t, []string{"order-1"}, orders.paid)

	var pe ProviderEvent
	require.NoError(t, db.First(&pe, "provider = ? AND event_id = ?", "nexipay", "evt_1").Error)
	assert.NotNil(t, pe.ProcessedAt)
	assert.Nil(t, pe.ProcessError)
}

func TestHandleDuplicateDelivery(t *testing.T) {
	svc, db, orders := newTestWebhookService(t)
	seedPendingTxn(t, db, "nexipay", "ptx_1", strPtr("order-1"))

	ev := WebhookEvent{EventID: "evt_1", Type: EventPaymentSucceeded, ProviderTxnID: "ptx_1"}
	require.NoError(t, svc.Handle(context.Background(), "nexipay", ev, []byte(`{}`)))
	require.NoError(t, svc.Handle(context.Background(), "nexipay", ev, []byte(`{}`)))

	var count int64
	require.NoError(t, db.Model(&ProviderEvent{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	// The order transition ran once, not twice.
	assert.Equal(t, []string{"order-1"}, orders.paid)
}

func TestHandleStaleFailureKeepsSucceeded(t *testing.T) {
	svc, db, orders := newTestWebhookService(t)
	txn := seedPendingTxn(t, db, "nexipay", "ptx_1", strPtr("order-1"))
	require.NoError(t, db.Model(&PaymentTransaction{}).
		Where("id = ?", txn.ID).
		Update("status", StatusSucceeded).Error)

	ev := WebhookEvent{EventID: "evt_2", Type: EventPaymentFailed, ProviderTxnID: "ptx_1", FailureReason: "late decline"}
	require.NoError(t, svc.Handle(context.Background(), "nexipay", ev, []byte(`{"late":true}`)))

	var current PaymentTransaction
	require.NoError(t, db.First(&current, "id = ?", txn.ID).Error)
	assert.Equal(t, StatusSucceeded, current.Status)
	// Only the audit snapshot moved.
	assert.NotEmpty(t, current.ProviderResponse)
	assert.Empty(t, orders.failed)
}

func TestHandlePaymentFailed(t *testing.T) {
	svc, db, orders := newTestWebhookService(t)
	txn := seedPendingTxn(t, db, "nexipay", "ptx_1", strPtr("order-1"))

	ev := WebhookEvent{EventID: "evt_1", Type: EventPaymentFailed, ProviderTxnID: "ptx_1", FailureReason: "do not honor"}
	require.NoError(t, svc.Handle(context.Background(), "nexipay", ev, []byte(`{}`)))

	var current PaymentTransaction
	require.NoError(t, db.First(&current, "id = ?", txn.ID).Error)
	assert.Equal(t, StatusFailed, current.Status)
	require.NotNil(t, current.ErrorMessage)
	assert.Equal(t, "do not honor", *current.ErrorMessage)
	assert.Equal(t, []string{"order-1"}, orders.failed)
}

func TestHandleRefundCompletedPromotesTransaction(t *testing.T) {
	svc, db, orders := newTestWebhookService(t)
	txn := seedSucceededTxn(t, db, "nexipay", 100, strPtr("order-1"))

	now := time.Now()
	ref := Refund{
		ID:               uuid.NewString(),
		TransactionID:    txn.ID,
		Provider:         "nexipay",
		ProviderRefundID: strPtr("pref_1"),
		Status:           RefundStatusProcessing,
		AmountCents:      100,
		Currency:         "EUR",
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	require.NoError(t, db.Create(&ref).Error)

	ev := WebhookEvent{EventID: "evt_1", Type: EventRefundCompleted, ProviderRefundID: "pref_1", ProviderTxnID: *txn.ProviderTxnID}
	require.NoError(t, svc.Handle(context.Background(), "nexipay", ev, []byte(`{}`)))

	var currentRef Refund
	require.NoError(t, db.First(&currentRef, "id = ?", ref.ID).Error)
	assert.Equal(t, RefundStatusSucceeded, currentRef.Status)
	assert.NotNil(t, currentRef.ProcessedAt)

	var current PaymentTransaction
	require.NoError(t, db.First(&current, "id = ?", txn.ID).Error)
	assert.Equal(t, StatusRefunded, current.Status)
	assert.Equal(t, []string{"order-1"}, orders.refunded)
}

func TestHandleRefundCompletedPartialKeepsSucceeded(t *testing.T) {
	svc, db, orders := newTestWebhookService(t)
	txn := seedSucceededTxn(t, db, "nexipay", 100, strPtr("order-1"))

	now := time.Now()
	ref := Refund{
		ID:               uuid.NewString(),
		TransactionID:    txn.ID,
		Provider:         "nexipay",
		ProviderRefundID: strPtr("pref_1"),
		Status:           RefundStatusPending,
		AmountCents:      40,
		Currency:         "EUR",
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	require.NoError(t, db.Create(&ref).Error)

	ev := WebhookEvent{EventID: "evt_1", Type: EventRefundCompleted, ProviderRefundID: "pref_1"}
	require.NoError(t, svc.Handle(context.Background(), "nexipay", ev, []byte(`{}`)))

	var current PaymentTransaction
	require.NoError(t, db.First(&current, "id = ?", txn.ID).Error)
	assert.Equal(t, StatusSucceeded, current.Status)
	assert.Empty(t, orders.refunded)
}

func TestHandleUnknownTypeAcknowledged(t *testing.T) {
	svc, db, _ := newTestWebhookService(t)

	ev := WebhookEvent{EventID: "evt_1", Type: "customer.updated"}
	require.NoError(t, svc.Handle(context.Background(), "nexipay", ev, []byte(`{}`)))

	var pe ProviderEvent
	require.NoError(t, db.First(&pe, "event_id = ?", "evt_1").Error)
	assert.NotNil(t, pe.ProcessedAt)
}

func TestHandleMissingEventID(t *testing.T) {
	svc, _, _ := newTestWebhookService(t)

	err := svc.Handle(context.Background(), "nexipay", WebhookEvent{Type: EventPaymentSucceeded}, []byte(`{}`))
	assert.ErrorIs(t, err, ErrValidation)
}

func TestHandleUnknownTransactionErrors(t *testing.T) {
	svc, db, _ := newTestWebhookService(t)

	ev := WebhookEvent{EventID: "evt_1", Type: EventPaymentSucceeded, ProviderTxnID: "ptx_missing"}
	err := svc.Handle(context.Background(), "nexipay", ev, []byte(`{}`))
	require.Error(t, err)

	// The delivery rolled back entirely so the provider's retry can succeed
	// once the transaction row exists.
	var count int64
	require.NoError(t, db.Model(&ProviderEvent{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}
