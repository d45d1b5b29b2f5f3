package persistence

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/backoffice/backend/internal/domain/identity"
)

// setupTestDB opens an in-memory SQLite database with all billing tables
// migrated. The pool is pinned to one connection so SQLite never sees
// overlapping writers.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&UsageEventModel{},
		&UsageSummaryModel{},
		&UsageLimitModel{},
		&InvoiceModel{},
		&UserModel{},
		&identity.Tenant{},
		&identity.Plan{},
		&identity.Subscription{},
	)
	require.NoError(t, err)

	return db
}
