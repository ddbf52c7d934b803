package orders

import "time"

const (
	PaymentStatusUnpaid   = "unpaid"
	PaymentStatusPaid     = "paid"
	PaymentStatusFailed   = "failed"
	PaymentStatusRefunded = "refunded"
)

// Order carries only the fields the payment core is allowed to see. The rest
// of the order domain (items, table, kitchen state) lives outside this
// service.
type Order struct {
	ID            string  `gorm:"type:char(36);primaryKey"`
	TableNo       *string `gorm:"type:varchar(16)"`
	Status        string  `gorm:"type:varchar(32);not null"`
	PaymentStatus string  `gorm:"type:varchar(32);not null;default:'unpaid'"`
	TotalCents    int     `gorm:"not null"`
	Currency      string  `gorm:"type:char(3);not null"`

	PaidAt    *time.Time `gorm:"type:datetime(3)"`
	CreatedAt time.Time  `gorm:"type:datetime(3);not null"`
	UpdatedAt time.Time  `gorm:"type:datetime(3);not null"`
}

func (Order) TableName() string { return "orders" }
