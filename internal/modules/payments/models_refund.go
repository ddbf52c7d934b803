package payments

import (
	"time"

	"gorm.io/datatypes"
)

const (
	RefundStatusPending    = "pending"
	RefundStatusProcessing = "processing"
	RefundStatusSucceeded  = "succeeded"
	RefundStatusFailed     = "failed"
)

type Refund struct {
	ID            string `gorm:"type:char(36);primaryKey"`
	TransactionID string `gorm:"type:char(36);not null;index:ix_refunds_transaction_id"`

	Provider         string  `gorm:"type:varchar(64);not null"`
	ProviderRefundID *string `gorm:"type:varchar(128);index:ix_refunds_provider_refund"`

	Status      string `gorm:"type:varchar(32);not null"`
	AmountCents int    `gorm:"not null"`
	Currency    string `gorm:"type:char(3);not null"`

	Reason       *string `gorm:"type:varchar(255)"`
	ErrorMessage *string `gorm:"type:varchar(255)"`

	ProviderResponse datatypes.JSON `gorm:"type:json"`

	ProcessedAt *time.Time `gorm:"type:datetime(3)"`
	CreatedAt   time.Time  `gorm:"type:datetime(3);not null"`
	UpdatedAt   time.Time  `gorm:"type:datetime(3);not null"`
}

func (Refund) TableName() string { return "refunds" }
