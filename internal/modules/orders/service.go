package orders

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"
)

// Service implements the payment core's OrderMarker. All writes are
// conditional on the current payment_status so out-of-order notifications
// cannot regress a terminal state.
type Service struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, logger: slog.Default()}
}

func (s *Service) SetLogger(logger *slog.Logger) { s.logger = logger }

func (s *Service) MarkPaid(ctx context.Context, orderID, transactionID string) error {
	now := time.Now()
	paidAt := now

	res := s.db.WithContext(ctx).Model(&Order{}).
		Where("id = ? AND payment_status IN ?", orderID,
			[]string{PaymentStatusUnpaid, PaymentStatusFailed}).
		Updates(map[string]any{
			"payment_status": PaymentStatusPaid,
			"paid_at":        &paidAt,
			"updated_at":     now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		s.logger.InfoContext(ctx, "order marked paid",
			"order_id", orderID, "transaction_id", transactionID)
	}
	return nil
}

func (s *Service) MarkPaymentFailed(ctx context.Context, orderID string) error {
	return s.db.WithContext(ctx).Model(&Order{}).
		Where("id = ? AND payment_status = ?", orderID, PaymentStatusUnpaid).
		Updates(map[string]any{
			"payment_status": PaymentStatusFailed,
			"updated_at":     time.Now(),
		}).Error
}

func (s *Service) MarkRefunded(ctx context.Context, orderID string) error {
	return s.db.WithContext(ctx).Model(&Order{}).
		Where("id = ? AND payment_status = ?", orderID, PaymentStatusPaid).
		Updates(map[string]any{
			"payment_status": PaymentStatusRefunded,
			"updated_at":     time.Now(),
		}).Error
}
