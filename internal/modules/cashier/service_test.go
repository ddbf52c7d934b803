package cashier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestRecordMovement(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&CashMovement{}))

	svc := NewService(db)
	require.NoError(t, svc.RecordMovement(context.Background(), "session-1", 2500, "txn-1"))

	var m CashMovement
	require.NoError(t, db.First(&m, "ref_id = ?", "txn-1").Error)
	assert.Equal(t, "session-1", m.SessionID)
	assert.Equal(t, 2500, m.AmountCents)
	assert.Equal(t, "payment", m.RefType)
}
