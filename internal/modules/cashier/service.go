package cashier

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// RecordMovement implements the payment core's CashRecorder.
func (s *Service) RecordMovement(ctx context.Context, sessionID string, amountCents int, transactionID string) error {
	m := CashMovement{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		AmountCents: amountCents,
		RefType:     "payment",
		RefID:       transactionID,
		CreatedAt:   time.Now(),
	}
	return s.db.WithContext(ctx).Create(&m).Error
}
