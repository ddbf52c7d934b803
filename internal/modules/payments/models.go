package payments

import (
	"time"

	"gorm.io/datatypes"
)

const (
	StatusPending   = "pending"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusRefunded  = "refunded"
)

const (
	MethodCash   = "cash"
	MethodCard   = "card"
	MethodQR     = "qr"
	MethodWallet = "wallet"
)

// PaymentTransaction is the single source of truth for a charge. Both the
// orchestrator and the webhook dispatcher write to it; every status change is
// a conditional update keyed on the allowed predecessor states, so the two
// channels stay commutative.
type PaymentTransaction struct {
	ID             string  `gorm:"type:char(36);primaryKey"`
	OrderID        *string `gorm:"type:char(36);index:ix_payment_transactions_order_id"`
	Method         string  `gorm:"type:varchar(16);not null"`
	Provider       *string `gorm:"type:varchar(64)"`
	AmountCents    int     `gorm:"not null"`
	Currency       string  `gorm:"type:char(3);not null"`
	Status         string  `gorm:"type:varchar(32);not null"`
	ProviderTxnID  *string `gorm:"type:varchar(128);index:ix_payment_transactions_provider_txn"`
	IdempotencyKey string  `gorm:"type:varchar(64);not null;index:ix_payment_transactions_idem_key"`
	ErrorMessage   *string `gorm:"type:varchar(255)"`

	// Last provider payload seen for this transaction, for audit.
	// Last-write-wins on purpose.
	ProviderResponse datatypes.JSON `gorm:"type:json"`

	CreatedAt time.Time `gorm:"type:datetime(3);not null"`
	UpdatedAt time.Time `gorm:"type:datetime(3);not null"`
}

func (PaymentTransaction) TableName() string { return "payment_transactions" }
