// Package testutil provides shared helpers for the billing backend's test
// suites: a sqlmock-backed gorm handle for pinning generated SQL, and
// deterministic IDs so fixtures line up across packages.
package testutil

import (
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// MockDB is a gorm handle backed by sqlmock with the postgres dialector,
// so tests can assert the SQL the repositories emit without a database.
type MockDB struct {
	DB    *gorm.DB
	Mock  sqlmock.Sqlmock
	sqlDB *sql.DB
}

// NewMockDB opens a sqlmock-backed gorm connection. The handle is closed
// and its expectations verified when the test finishes.
func NewMockDB(t *testing.T) *MockDB {
	t.Helper()

	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       sqlDB,
		DriverName: "postgres",
	}), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	m := &MockDB{DB: db, Mock: mock, sqlDB: sqlDB}
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet(), "unmet sqlmock expectations")
		_ = sqlDB.Close()
	})
	return m
}

// DeterministicUUID derives a stable UUID from a seed so fixtures keep the
// same identity across runs and packages.
func DeterministicUUID(seed string) uuid.UUID {
	namespace := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	return uuid.NewSHA1(namespace, []byte(seed))
}

// TenantID is the standard fixture tenant.
func TenantID() uuid.UUID {
	return DeterministicUUID("fixture-tenant")
}

// UserID is the standard fixture user.
func UserID() uuid.UUID {
	return DeterministicUUID("fixture-user")
}
