package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/jorgegrios/sistemaPOS-sub000/internal/metrics"
	"github.com/jorgegrios/sistemaPOS-sub000/internal/shared/retry"
)

// OrderMarker is the slice of the orders module the payment core is allowed
// to touch. Terminal transitions only; no other order fields.
type OrderMarker interface {
	MarkPaid(ctx context.Context, orderID, transactionID string) error
	MarkPaymentFailed(ctx context.Context, orderID string) error
	MarkRefunded(ctx context.Context, orderID string) error
}

// CashRecorder posts a drawer movement for cash-method transactions.
type CashRecorder interface {
	RecordMovement(ctx context.Context, sessionID string, amountCents int, transactionID string) error
}

type Service struct {
	db       *gorm.DB
	registry *Registry
	ledger   IdempotencyStore
	orders   OrderMarker
	cashier  CashRecorder
	logger   *slog.Logger

	retryCfg      retry.Config
	chargeTimeout time.Duration
	ledgerTTL     time.Duration
}

func NewService(db *gorm.DB, registry *Registry, ledger IdempotencyStore, orders OrderMarker) *Service {
	return &Service{
		db:            db,
		registry:      registry,
		ledger:        ledger,
		orders:        orders,
		logger:        slog.Default(),
		retryCfg:      retry.DefaultConfig(),
		chargeTimeout: 15 * time.Second,
		ledgerTTL:     time.Hour,
	}
}

func (s *Service) SetLogger(logger *slog.Logger) { s.logger = logger }

func (s *Service) SetCashier(c CashRecorder) { s.cashier = c }

func (s *Service) SetRetryPolicy(maxAttempts int, baseDelay time.Duration) {
	s.retryCfg = retry.Config{MaxAttempts: maxAttempts, BaseDelay: baseDelay}
}

func (s *Service) SetChargeTimeout(d time.Duration) { s.chargeTimeout = d }

func (s *Service) SetIdempotencyTTL(d time.Duration) { s.ledgerTTL = d }

type ProcessPaymentInput struct {
	OrderID         *string
	SessionID       string // cashier session; used for cash movements only
	AmountCents     int
	Currency        string
	Method          string // cash|card|qr|wallet
	Provider        string // required unless method == cash
	PaymentMethodID string
	IdempotencyKey  string
	Metadata        map[string]string
}

type PaymentResult struct {
	TransactionID  string `json:"transactionId"`
	Status         string `json:"status"`
	Method         string `json:"method"`
	Provider       string `json:"provider,omitempty"`
	ProviderTxnID  string `json:"providerTransactionId,omitempty"`
	AmountCents    int    `json:"amountCents"`
	Currency       string `json:"currency"`
	RequiresAction bool   `json:"requiresAction,omitempty"`
	FailureReason  string `json:"failureReason,omitempty"`
}

// ProcessPayment turns a charge request into exactly one PaymentTransaction
// row. Replays under an unexpired idempotency key return the cached result
// without creating a row or contacting a provider. Adapter errors are retried
// with a linear backoff; a definitive decline is not.
func (s *Service) ProcessPayment(ctx context.Context, in ProcessPaymentInput) (PaymentResult, error) {
	if err := validateProcessPayment(in); err != nil {
		return PaymentResult{}, err
	}

	key := in.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}

	if cached, hit, err := s.ledger.Get(ctx, key); err != nil {
		// Ledger outage must not block payments; log and fall through.
		s.logger.ErrorContext(ctx, "idempotency lookup failed", "err", err)
	} else if hit {
		s.logger.InfoContext(ctx, "idempotent payment replay",
			"transaction_id", cached.TransactionID, "status", cached.Status)
		return cached, nil
	}

	// The pending row is written before any provider call so a crash
	// mid-retry still leaves a record to reconcile against.
	now := time.Now()
	txn := PaymentTransaction{
		ID:             uuid.NewString(),
		OrderID:        in.OrderID,
		Method:         in.Method,
		AmountCents:    in.AmountCents,
		Currency:       in.Currency,
		Status:         StatusPending,
		IdempotencyKey: key,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if in.Method != MethodCash {
		provider := in.Provider
		txn.Provider = &provider
	}
	if err := s.db.WithContext(ctx).Create(&txn).Error; err != nil {
		return PaymentResult{}, err
	}

	if in.Method == MethodCash {
		return s.settleCash(ctx, txn, in, key)
	}

	adapter, err := s.registry.Get(in.Provider)
	if err != nil {
		s.markFailed(ctx, txn, err.Error())
		metrics.PaymentsProcessed.WithLabelValues(in.Method, StatusFailed).Inc()
		return PaymentResult{}, err
	}

	resp, chargeErr := retry.DoWithResult(ctx, s.retryCfg, s.logger, func(attempt int) (ChargeResponse, error) {
		callCtx, cancel := context.WithTimeout(ctx, s.chargeTimeout)
		defer cancel()

		start := time.Now()
		resp, err := adapter.Charge(callCtx, ChargeRequest{
			TransactionID:   txn.ID,
			AmountCents:     in.AmountCents,
			Currency:        in.Currency,
			PaymentMethodID: in.PaymentMethodID,
			IdempotencyKey:  key,
			Metadata:        in.Metadata,
		})
		metrics.ProviderCallDuration.WithLabelValues(adapter.Name(), "charge").Observe(time.Since(start).Seconds())
		return resp, err
	})

	if chargeErr != nil {
		// All attempts raised; the transaction must not stay pending.
		s.markFailed(ctx, txn, chargeErr.Error())
		s.propagateOrderFailed(ctx, txn)
		metrics.PaymentsProcessed.WithLabelValues(in.Method, StatusFailed).Inc()

		result := PaymentResult{
			TransactionID: txn.ID,
			Status:        StatusFailed,
			Method:        in.Method,
			Provider:      in.Provider,
			AmountCents:   in.AmountCents,
			Currency:      in.Currency,
			FailureReason: chargeErr.Error(),
		}
		return result, nil
	}

	return s.finalizeCharge(ctx, txn, in, key, resp)
}

func validateProcessPayment(in ProcessPaymentInput) error {
	if in.AmountCents <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if len(in.Currency) != 3 {
		return fmt.Errorf("%w: currency must be a 3-letter code", ErrValidation)
	}
	switch in.Method {
	case MethodCash, MethodCard, MethodQR, MethodWallet:
	default:
		return fmt.Errorf("%w: unsupported method %q", ErrValidation, in.Method)
	}
	if in.Method != MethodCash && in.Provider == "" {
		return fmt.Errorf("%w: provider is required for method %q", ErrValidation, in.Method)
	}
	return nil
}

// settleCash short-circuits the provider path: a locally generated reference
// id, no adapter call, no retry loop.
func (s *Service) settleCash(ctx context.Context, txn PaymentTransaction, in ProcessPaymentInput, key string) (PaymentResult, error) {
	ref := "cash_" + uuid.NewString()
	now := time.Now()

	err := s.db.WithContext(ctx).Model(&PaymentTransaction{}).
		Where("id = ? AND status = ?", txn.ID, StatusPending).
		Updates(map[string]any{
			"status":          StatusSucceeded,
			"provider_txn_id": ref,
			"updated_at":      now,
		}).Error
	if err != nil {
		return PaymentResult{}, err
	}

	if s.cashier != nil && in.SessionID != "" {
		if err := s.cashier.RecordMovement(ctx, in.SessionID, in.AmountCents, txn.ID); err != nil {
			s.logger.ErrorContext(ctx, "cash movement not recorded",
				"transaction_id", txn.ID, "session_id", in.SessionID, "err", err)
		}
	}
	s.propagateOrderPaid(ctx, txn)
	metrics.PaymentsProcessed.WithLabelValues(MethodCash, StatusSucceeded).Inc()

	result := PaymentResult{
		TransactionID: txn.ID,
		Status:        StatusSucceeded,
		Method:        MethodCash,
		ProviderTxnID: ref,
		AmountCents:   in.AmountCents,
		Currency:      in.Currency,
	}
	if err := s.ledger.Put(ctx, key, result, s.ledgerTTL); err != nil {
		s.logger.ErrorContext(ctx, "idempotency store failed", "err", err)
	}
	return result, nil
}

func (s *Service) finalizeCharge(ctx context.Context, txn PaymentTransaction, in ProcessPaymentInput, key string, resp ChargeResponse) (PaymentResult, error) {
	now := time.Now()

	updates := map[string]any{"updated_at": now}
	if resp.ProviderTxnID != "" {
		updates["provider_txn_id"] = resp.ProviderTxnID
	}
	if len(resp.Raw) > 0 {
		updates["provider_response"] = datatypes.JSON(resp.Raw)
	}

	status := StatusPending
	switch resp.Status {
	case ChargeStatusSucceeded:
		status = StatusSucceeded
		updates["status"] = StatusSucceeded
	case ChargeStatusFailed:
		status = StatusFailed
		updates["status"] = StatusFailed
		updates["error_message"] = truncate(resp.FailureReason, 250)
	case ChargeStatusRequiresAction:
		// Row stays pending; the provider's webhook finalizes it.
	}

	// Conditional on pending: a webhook for the same providerTxnID may have
	// landed first, and a terminal state must never be overwritten.
	res := s.db.WithContext(ctx).Model(&PaymentTransaction{}).
		Where("id = ? AND status = ?", txn.ID, StatusPending).
		Updates(updates)
	if res.Error != nil {
		return PaymentResult{}, res.Error
	}
	if res.RowsAffected == 0 {
		// The webhook channel won the race; report whatever it recorded.
		var current PaymentTransaction
		if err := s.db.WithContext(ctx).First(&current, "id = ?", txn.ID).Error; err != nil {
			return PaymentResult{}, err
		}
		status = current.Status
	}

	switch status {
	case StatusSucceeded:
		s.propagateOrderPaid(ctx, txn)
	case StatusFailed:
		s.propagateOrderFailed(ctx, txn)
	}
	metrics.PaymentsProcessed.WithLabelValues(in.Method, status).Inc()

	result := PaymentResult{
		TransactionID:  txn.ID,
		Status:         status,
		Method:         in.Method,
		Provider:       in.Provider,
		ProviderTxnID:  resp.ProviderTxnID,
		AmountCents:    in.AmountCents,
		Currency:       in.Currency,
		RequiresAction: resp.Status == ChargeStatusRequiresAction,
		FailureReason:  resp.FailureReason,
	}
	if resp.Status == ChargeStatusRequiresAction {
		result.Status = ChargeStatusRequiresAction
	}

	// Failed results are never cached: the caller may legitimately retry the
	// same key after a decline.
	if resp.Status == ChargeStatusSucceeded || resp.Status == ChargeStatusRequiresAction {
		if err := s.ledger.Put(ctx, key, result, s.ledgerTTL); err != nil {
			s.logger.ErrorContext(ctx, "idempotency store failed", "err", err)
		}
	}
	return result, nil
}

// GetTransaction is a read-only lookup for the API surface.
func (s *Service) GetTransaction(ctx context.Context, id string) (PaymentTransaction, error) {
	var txn PaymentTransaction
	if err := s.db.WithContext(ctx).First(&txn, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return PaymentTransaction{}, ErrNotFound
		}
		return PaymentTransaction{}, err
	}
	return txn, nil
}

func (s *Service) markFailed(ctx context.Context, txn PaymentTransaction, msg string) {
	err := s.db.WithContext(ctx).Model(&PaymentTransaction{}).
		Where("id = ? AND status = ?", txn.ID, StatusPending).
		Updates(map[string]any{
			"status":        StatusFailed,
			"error_message": truncate(msg, 250),
			"updated_at":    time.Now(),
		}).Error
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to mark transaction failed",
			"transaction_id", txn.ID, "err", err)
	}
}

func (s *Service) propagateOrderPaid(ctx context.Context, txn PaymentTransaction) {
	if s.orders == nil || txn.OrderID == nil {
		return
	}
	if err := s.orders.MarkPaid(ctx, *txn.OrderID, txn.ID); err != nil {
		s.logger.ErrorContext(ctx, "order paid propagation failed",
			"order_id", *txn.OrderID, "transaction_id", txn.ID, "err", err)
	}
}

func (s *Service) propagateOrderFailed(ctx context.Context, txn PaymentTransaction) {
	if s.orders == nil || txn.OrderID == nil {
		return
	}
	if err := s.orders.MarkPaymentFailed(ctx, *txn.OrderID); err != nil {
		s.logger.ErrorContext(ctx, "order payment-failed propagation failed",
			"order_id", *txn.OrderID, "transaction_id", txn.ID, "err", err)
	}
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}
