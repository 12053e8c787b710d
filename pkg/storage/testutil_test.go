package storage

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jdziat/simple-block-jobs/pkg/core"
)

// openTestDB opens a database for tests.
// When TEST_DATABASE_URL is set it connects to PostgreSQL; otherwise it
// opens a fresh in-memory SQLite instance.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn != "" {
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		require.NoError(t, err, "open postgres test db")

		sqlDB, err := db.DB()
		require.NoError(t, err, "get underlying sql.DB")
		sqlDB.SetMaxOpenConns(2)
		sqlDB.SetMaxIdleConns(1)

		// Clean before and after for isolation.
		cleanupPostgresDB(t, db)
		t.Cleanup(func() {
			cleanupPostgresDB(t, db)
			_ = sqlDB.Close()
		})
		return db
	}
	// A single connection keeps every query on the same in-memory database.
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "open in-memory sqlite")
	require.NoError(t, ConfigurePool(db, WithPoolConfig(SQLitePoolConfig())))
	return db
}

// cleanupPostgresDB deletes all rows so tests are isolated without a fresh
// database per test.
func cleanupPostgresDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	for _, tbl := range []string{"transition_records", "job_records"} {
		db.Exec("DELETE FROM " + tbl)
	}
}

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	s := NewGormStore(openTestDB(t))
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func newTestRecord(jobID, typ string) *core.JobRecord {
	return &core.JobRecord{
		Handle: uuid.New().String(),
		JobID:  jobID,
		Type:   typ,
		Status: core.StatusCreated.String(),
	}
}
