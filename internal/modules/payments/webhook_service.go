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

type WebhookService struct {
	db     *gorm.DB
	orders OrderMarker
	logger *slog.Logger
}

func NewWebhookService(db *gorm.DB, orders OrderMarker) *WebhookService {
	return &WebhookService{db: db, orders: orders, logger: slog.Default()}
}

func (s *WebhookService) SetLogger(logger *slog.Logger) { s.logger = logger }

// Handle applies one verified provider event. Deliveries are at-least-once
// and unordered: the event-id ledger absorbs duplicates, and every state
// transition is conditional on its allowed predecessor states, so stale
// events degrade to no-ops instead of regressions.
func (s *WebhookService) Handle(ctx context.Context, providerName string, ev WebhookEvent, rawBody []byte) error {
	if ev.EventID == "" {
		return fmt.Errorf("%w: missing event id", ErrValidation)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		pe := ProviderEvent{
			ID:          uuid.NewString(),
			Provider:    providerName,
			EventID:     ev.EventID,
			EventType:   ev.Type,
			PayloadJSON: datatypes.JSON(rawBody),
			ReceivedAt:  now,
		}

		// Dedup on unique(provider,event_id); a duplicate delivery is
		// acknowledged without reprocessing.
		res := tx.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&pe)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			s.logger.InfoContext(ctx, "webhook event deduplicated",
				"provider", providerName, "event_id", ev.EventID, "type", ev.Type)
			metrics.WebhookEvents.WithLabelValues(providerName, "duplicate").Inc()
			return nil
		}

		var applyErr error
		switch ev.Type {
		case EventPaymentSucceeded:
			applyErr = s.applyPaymentSucceeded(ctx, tx, providerName, ev, rawBody)
		case EventPaymentFailed:
			applyErr = s.applyPaymentFailed(ctx, tx, providerName, ev, rawBody)
		case EventRefundCompleted:
			applyErr = s.applyRefundCompleted(ctx, tx, providerName, ev, rawBody)
		default:
			// Providers send more event types than this core consumes.
			// Acknowledge so they stop retrying.
			s.logger.InfoContext(ctx, "webhook event ignored",
				"provider", providerName, "event_id", ev.EventID, "type", ev.Type)
		}

		if applyErr != nil {
			msg := truncate(applyErr.Error(), 250)
			if err := tx.WithContext(ctx).Model(&ProviderEvent{}).
				Where("id = ?", pe.ID).
				Updates(map[string]any{"process_error": msg}).Error; err != nil {
				return err
			}
			s.logger.ErrorContext(ctx, "webhook event apply failed",
				"provider", providerName, "event_id", ev.EventID, "type", ev.Type, "err", msg)
			// Propagate so the handler answers 5xx and the provider retries.
			return applyErr
		}

		processed := now
		if err := tx.WithContext(ctx).Model(&ProviderEvent{}).
			Where("id = ?", pe.ID).
			Updates(map[string]any{"processed_at": &processed}).Error; err != nil {
			return err
		}

		s.logger.InfoContext(ctx, "webhook event processed",
			"provider", providerName, "event_id", ev.EventID, "type", ev.Type)
		return nil
	})

	if err != nil {
		metrics.WebhookEvents.WithLabelValues(providerName, "error").Inc()
		return err
	}
	metrics.WebhookEvents.WithLabelValues(providerName, "processed").Inc()
	return nil
}

func (s *WebhookService) applyPaymentSucceeded(ctx context.Context, tx *gorm.DB, provider string, ev WebhookEvent, rawBody []byte) error {
	txn, err := s.lockTransaction(ctx, tx, provider, ev.ProviderTxnID)
	if err != nil {
		return err
	}

	now := time.Now()

	// Invariant: only pending may move to succeeded. A transaction already
	// succeeded or refunded keeps its state; only the audit snapshot updates.
	res := tx.WithContext(ctx).Model(&PaymentTransaction{}).
		Where("id = ? AND status = ?", txn.ID, StatusPending).
		Updates(map[string]any{
			"status":            StatusSucceeded,
			"error_message":     nil,
			"provider_response": datatypes.JSON(rawBody),
			"updated_at":        now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return s.snapshotResponse(ctx, tx, txn.ID, rawBody, now)
	}

	if txn.OrderID != nil && s.orders != nil {
		if err := s.orders.MarkPaid(ctx, *txn.OrderID, txn.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *WebhookService) applyPaymentFailed(ctx context.Context, tx *gorm.DB, provider string, ev WebhookEvent, rawBody []byte) error {
	txn, err := s.lockTransaction(ctx, tx, provider, ev.ProviderTxnID)
	if err != nil {
		return err
	}

	now := time.Now()
	msg := ev.FailureReason
	if msg == "" {
		msg = "provider webhook: failed"
	}

	// A stale failure must never claw back a succeeded or refunded charge.
	res := tx.WithContext(ctx).Model(&PaymentTransaction{}).
		Where("id = ? AND status = ?", txn.ID, StatusPending).
		Updates(map[string]any{
			"status":            StatusFailed,
			"error_message":     truncate(msg, 250),
			"provider_response": datatypes.JSON(rawBody),
			"updated_at":        now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return s.snapshotResponse(ctx, tx, txn.ID, rawBody, now)
	}

	if txn.OrderID != nil && s.orders != nil {
		if err := s.orders.MarkPaymentFailed(ctx, *txn.OrderID); err != nil {
			return err
		}
	}
	return nil
}

func (s *WebhookService) applyRefundCompleted(ctx context.Context, tx *gorm.DB, provider string, ev WebhookEvent, rawBody []byte) error {
	if ev.ProviderRefundID == "" {
		return errors.New("missing provider refund id")
	}

	var ref Refund
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&ref, "provider = ? AND provider_refund_id = ?", provider, ev.ProviderRefundID).Error; err != nil {
		// Not found => the orchestrator has not recorded the provider refund
		// id yet; error out so the provider redelivers later.
		return err
	}

	now := time.Now()
	res := tx.WithContext(ctx).Model(&Refund{}).
		Where("id = ? AND status IN ?", ref.ID, []string{RefundStatusPending, RefundStatusProcessing}).
		Updates(map[string]any{
			"status":            RefundStatusSucceeded,
			"error_message":     nil,
			"provider_response": datatypes.JSON(rawBody),
			"processed_at":      &now,
			"updated_at":        now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Already finalized by the orchestrator or an earlier delivery.
		return nil
	}

	// The completed refund may exhaust the refundable amount; recompute and
	// promote the owning transaction if so.
	var txn PaymentTransaction
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&txn, "id = ?", ref.TransactionID).Error; err != nil {
		return err
	}

	var refundedSum int64
	if err := tx.WithContext(ctx).Model(&Refund{}).
		Where("transaction_id = ? AND status = ?", txn.ID, RefundStatusSucceeded).
		Select("COALESCE(SUM(amount_cents), 0)").
		Scan(&refundedSum).Error; err != nil {
		return err
	}

	if int(refundedSum) >= txn.AmountCents {
		promoted := tx.WithContext(ctx).Model(&PaymentTransaction{}).
			Where("id = ? AND status = ?", txn.ID, StatusSucceeded).
			Updates(map[string]any{"status": StatusRefunded, "updated_at": now})
		if promoted.Error != nil {
			return promoted.Error
		}
		if promoted.RowsAffected > 0 && txn.OrderID != nil && s.orders != nil {
			if err := s.orders.MarkRefunded(ctx, *txn.OrderID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *WebhookService) lockTransaction(ctx context.Context, tx *gorm.DB, provider, providerTxnID string) (PaymentTransaction, error) {
	if providerTxnID == "" {
		return PaymentTransaction{}, errors.New("missing provider transaction id")
	}

	var txn PaymentTransaction
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&txn, "provider = ? AND provider_txn_id = ?", provider, providerTxnID).Error; err != nil {
		// Not found: the webhook may have raced ahead of the orchestrator's
		// own provider_txn_id write. Error out; the provider retries.
		return PaymentTransaction{}, err
	}
	return txn, nil
}

func (s *WebhookService) snapshotResponse(ctx context.Context, tx *gorm.DB, txnID string, rawBody []byte, now time.Time) error {
	return tx.WithContext(ctx).Model(&PaymentTransaction{}).
		Where("id = ?", txnID).
		Updates(map[string]any{
			"provider_response": datatypes.JSON(rawBody),
			"updated_at":        now,
		}).Error
}
