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
	"gorm.io/gorm/clause"

	"github.com/jorgegrios/sistemaPOS-sub000/internal/metrics"
)

type RefundService struct {
	db            *gorm.DB
	registry      *Registry
	orders        OrderMarker
	logger        *slog.Logger
	refundTimeout time.Duration
}

func NewRefundService(db *gorm.DB, registry *Registry, orders OrderMarker) *RefundService {
	return &RefundService{
		db:            db,
		registry:      registry,
		orders:        orders,
		logger:        slog.Default(),
		refundTimeout: 15 * time.Second,
	}
}

func (s *RefundService) SetLogger(logger *slog.Logger) { s.logger = logger }

func (s *RefundService) SetRefundTimeout(d time.Duration) { s.refundTimeout = d }

type ProcessRefundInput struct {
	TransactionID string
	AmountCents   int // 0 => full remaining amount
	Reason        string
}

type RefundResult struct {
	RefundID          string `json:"refundId"`
	TransactionID     string `json:"transactionId"`
	Status            string `json:"status"`
	AmountCents       int    `json:"amountCents"`
	Currency          string `json:"currency"`
	ProviderRefundID  string `json:"providerRefundId,omitempty"`
	TransactionStatus string `json:"transactionStatus"`
	FailureReason     string `json:"failureReason,omitempty"`
}

// ProcessRefund refunds part or all of a succeeded transaction. The
// over-refund check runs inside the same transaction that inserts the pending
// Refund row, before any provider call, so concurrent refunds cannot push the
// non-failed sum past the transaction amount.
func (s *RefundService) ProcessRefund(ctx context.Context, in ProcessRefundInput) (RefundResult, error) {
	if in.TransactionID == "" {
		return RefundResult{}, fmt.Errorf("%w: transactionId is required", ErrValidation)
	}
	if in.AmountCents < 0 {
		return RefundResult{}, fmt.Errorf("%w: amount must not be negative", ErrValidation)
	}

	// Phase 1: lock transaction, enforce gates + the refundable invariant,
	// create the pending refund row.
	var txn PaymentTransaction
	var ref Refund
	var remaining int

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&txn, "id = ?", in.TransactionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		if txn.Status != StatusSucceeded {
			return fmt.Errorf("%w: status is %q", ErrInvalidState, txn.Status)
		}
		if txn.Provider == nil || txn.ProviderTxnID == nil {
			return fmt.Errorf("%w: transaction has no provider reference", ErrInvalidState)
		}

		var refundedSum int64
		if err := tx.WithContext(ctx).Model(&Refund{}).
			Where("transaction_id = ? AND status IN ?", txn.ID,
				[]string{RefundStatusPending, RefundStatusProcessing, RefundStatusSucceeded}).
			Select("COALESCE(SUM(amount_cents), 0)").
			Scan(&refundedSum).Error; err != nil {
			return err
		}

		remaining = txn.AmountCents - int(refundedSum)
		amount := in.AmountCents
		if amount == 0 {
			amount = remaining
		}
		if amount <= 0 || amount > remaining {
			return fmt.Errorf("%w: requested %d, remaining %d", ErrAmountExceeded, amount, remaining)
		}

		now := time.Now()
		var reasonPtr *string
		if in.Reason != "" {
			r := in.Reason
			reasonPtr = &r
		}

		ref = Refund{
			ID:            uuid.NewString(),
			TransactionID: txn.ID,
			Provider:      *txn.Provider,
			Status:        RefundStatusPending,
			AmountCents:   amount,
			Currency:      txn.Currency,
			Reason:        reasonPtr,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		return tx.WithContext(ctx).Create(&ref).Error
	})
	if err != nil {
		return RefundResult{}, err
	}

	// Phase 2: provider call, outside the transaction. Refund routing is
	// provider-name-driven: the adapter that charged refunds.
	adapter, err := s.registry.Get(ref.Provider)
	if err != nil {
		s.failRefund(ctx, ref.ID, err.Error())
		return RefundResult{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.refundTimeout)
	defer cancel()

	start := time.Now()
	resp, perr := adapter.Refund(callCtx, RefundRequest{
		ProviderTxnID:  *txn.ProviderTxnID,
		RefundID:       ref.ID,
		AmountCents:    ref.AmountCents,
		Currency:       ref.Currency,
		Reason:         in.Reason,
		IdempotencyKey: ref.ID,
	})
	metrics.ProviderCallDuration.WithLabelValues(adapter.Name(), "refund").Observe(time.Since(start).Seconds())

	// Phase 3: finalize. Adapter failure marks the refund failed and leaves
	// the transaction untouched.
	if perr != nil || resp.Status == RefundStatusFailed {
		msg := resp.FailureReason
		if perr != nil {
			msg = perr.Error()
		}
		if msg == "" {
			msg = "refund declined by provider"
		}
		s.failRefund(ctx, ref.ID, msg)
		metrics.RefundsProcessed.WithLabelValues(RefundStatusFailed).Inc()

		return RefundResult{
			RefundID:          ref.ID,
			TransactionID:     txn.ID,
			Status:            RefundStatusFailed,
			AmountCents:       ref.AmountCents,
			Currency:          ref.Currency,
			TransactionStatus: txn.Status,
			FailureReason:     msg,
		}, nil
	}

	status := resp.Status
	if status != RefundStatusProcessing {
		status = RefundStatusSucceeded
	}

	txnStatus := txn.Status
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		upd := map[string]any{
			"status":     status,
			"updated_at": now,
		}
		if resp.ProviderRefundID != "" {
			upd["provider_refund_id"] = resp.ProviderRefundID
		}
		if len(resp.Raw) > 0 {
			upd["provider_response"] = datatypes.JSON(resp.Raw)
		}
		if status == RefundStatusSucceeded {
			upd["processed_at"] = &now
		}
		if err := tx.WithContext(ctx).Model(&Refund{}).
			Where("id = ?", ref.ID).
			Updates(upd).Error; err != nil {
			return err
		}

		// A refund that exhausts the remaining amount promotes the
		// transaction; partial refunds leave it succeeded.
		if status == RefundStatusSucceeded && ref.AmountCents >= remaining {
			res := tx.WithContext(ctx).Model(&PaymentTransaction{}).
				Where("id = ? AND status = ?", txn.ID, StatusSucceeded).
				Updates(map[string]any{"status": StatusRefunded, "updated_at": now})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				txnStatus = StatusRefunded
			}
		}
		return nil
	})
	if err != nil {
		return RefundResult{}, err
	}

	if txnStatus == StatusRefunded && txn.OrderID != nil && s.orders != nil {
		if err := s.orders.MarkRefunded(ctx, *txn.OrderID); err != nil {
			s.logger.ErrorContext(ctx, "order refunded propagation failed",
				"order_id", *txn.OrderID, "transaction_id", txn.ID, "err", err)
		}
	}
	metrics.RefundsProcessed.WithLabelValues(status).Inc()

	return RefundResult{
		RefundID:          ref.ID,
		TransactionID:     txn.ID,
		Status:            status,
		AmountCents:       ref.AmountCents,
		Currency:          ref.Currency,
		ProviderRefundID:  resp.ProviderRefundID,
		TransactionStatus: txnStatus,
	}, nil
}

func (s *RefundService) GetRefund(ctx context.Context, id string) (Refund, error) {
	var ref Refund
	if err := s.db.WithContext(ctx).First(&ref, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Refund{}, ErrRefundNotFound
		}
		return Refund{}, err
	}
	return ref, nil
}

func (s *RefundService) ListRefundsForTransaction(ctx context.Context, transactionID string) ([]Refund, error) {
	var exists int64
	if err := s.db.WithContext(ctx).Model(&PaymentTransaction{}).
		Where("id = ?", transactionID).
		Count(&exists).Error; err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, ErrNotFound
	}

	var refs []Refund
	if err := s.db.WithContext(ctx).
		Order("created_at ASC").
		Find(&refs, "transaction_id = ?", transactionID).Error; err != nil {
		return nil, err
	}
	return refs, nil
}

func (s *RefundService) failRefund(ctx context.Context, refundID, msg string) {
	err := s.db.WithContext(ctx).Model(&Refund{}).
		Where("id = ? AND status IN ?", refundID, []string{RefundStatusPending, RefundStatusProcessing}).
		Updates(map[string]any{
			"status":        RefundStatusFailed,
			"error_message": truncate(msg, 250),
			"updated_at":    time.Now(),
		}).Error
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to mark refund failed", "refund_id", refundID, "err", err)
	}
}
