// createtable creates the service's MySQL tables. Run once against a fresh
// database; every statement is CREATE TABLE IF NOT EXISTS so reruns are safe.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS payment_transactions (
		id CHAR(36) NOT NULL,
		order_id CHAR(36) NULL,
		method VARCHAR(16) NOT NULL,
		provider VARCHAR(64) NULL,
		amount_cents INT NOT NULL,
		currency CHAR(3) NOT NULL,
		status VARCHAR(32) NOT NULL,
		provider_txn_id VARCHAR(128) NULL,
		idempotency_key VARCHAR(64) NOT NULL,
		error_message VARCHAR(255) NULL,
		provider_response JSON NULL,
		created_at DATETIME(3) NOT NULL,
		updated_at DATETIME(3) NOT NULL,
		PRIMARY KEY (id),
		KEY ix_payment_transactions_order_id (order_id),
		KEY ix_payment_transactions_provider_txn (provider_txn_id),
		KEY ix_payment_transactions_idem_key (idempotency_key)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS refunds (
		id CHAR(36) NOT NULL,
		transaction_id CHAR(36) NOT NULL,
		provider VARCHAR(64) NOT NULL,
		provider_refund_id VARCHAR(128) NULL,
		status VARCHAR(32) NOT NULL,
		amount_cents INT NOT NULL,
		currency CHAR(3) NOT NULL,
		reason VARCHAR(255) NULL,
		error_message VARCHAR(255) NULL,
		provider_response JSON NULL,
		processed_at DATETIME(3) NULL,
		created_at DATETIME(3) NOT NULL,
		updated_at DATETIME(3) NOT NULL,
		PRIMARY KEY (id),
		KEY ix_refunds_transaction_id (transaction_id),
		KEY ix_refunds_provider_refund (provider_refund_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS provider_events (
		id CHAR(36) NOT NULL,
		provider VARCHAR(64) NOT NULL,
		event_id VARCHAR(128) NOT NULL,
		event_type VARCHAR(64) NOT NULL,
		payload_json JSON NOT NULL,
		received_at DATETIME(3) NOT NULL,
		processed_at DATETIME(3) NULL,
		process_error VARCHAR(255) NULL,
		PRIMARY KEY (id),
		UNIQUE KEY ux_provider_events_provider_event (provider, event_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS orders (
		id CHAR(36) NOT NULL,
		table_no VARCHAR(16) NULL,
		status VARCHAR(32) NOT NULL,
		payment_status VARCHAR(32) NOT NULL DEFAULT 'unpaid',
		total_cents INT NOT NULL,
		currency CHAR(3) NOT NULL,
		paid_at DATETIME(3) NULL,
		created_at DATETIME(3) NOT NULL,
		updated_at DATETIME(3) NOT NULL,
		PRIMARY KEY (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS cash_movements (
		id CHAR(36) NOT NULL,
		session_id CHAR(36) NOT NULL,
		amount_cents INT NOT NULL,
		ref_type VARCHAR(16) NOT NULL,
		ref_id CHAR(36) NOT NULL,
		created_at DATETIME(3) NOT NULL,
		PRIMARY KEY (id),
		KEY ix_cash_movements_session_id (session_id),
		KEY ix_cash_movements_ref (ref_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

func main() {
	_ = godotenv.Load()

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		slog.Error("DB_DSN is required")
		os.Exit(1)
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		slog.Error("database connection failed", "err", err)
		os.Exit(1)
	}

	for i, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			slog.Error("statement failed", "index", i, "err", err)
			os.Exit(1)
		}
	}
	fmt.Println("tables created")
}
