package cashier

import "time"

// CashMovement is an append-only drawer entry, one row per cash transaction.
type CashMovement struct {
	ID          string `gorm:"type:char(36);primaryKey"`
	SessionID   string `gorm:"type:char(36);not null;index:ix_cash_movements_session_id"`
	AmountCents int    `gorm:"not null"`
	RefType     string `gorm:"type:varchar(16);not null"`
	RefID       string `gorm:"type:char(36);not null;index:ix_cash_movements_ref"`

	CreatedAt time.Time `gorm:"type:datetime(3);not null"`
}

func (CashMovement) TableName() string { return "cash_movements" }
