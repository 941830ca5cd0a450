package repos

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// newTestDB opens an in-memory sqlite database pinned to one connection and
// creates the tables with explicit DDL; the model defaults lean on postgres
// functions that sqlite cannot evaluate.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	ddl := []string{
		`CREATE TABLE agent_training_state (
			agent_id TEXT PRIMARY KEY,
			owner_user_id TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'idle',
			progress INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			embedded_sources_count INTEGER NOT NULL DEFAULT 0,
			total_sources_count INTEGER NOT NULL DEFAULT 0,
			trained_on DATETIME,
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE TABLE training_job_run (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			owner_user_id TEXT NOT NULL,
			workflow_id TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'queued',
			attempts INTEGER NOT NULL DEFAULT 0,
			total_sources INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			payload TEXT,
			result TEXT,
			started_at DATETIME,
			finished_at DATETIME,
			created_at DATETIME,
			updated_at DATETIME,
			deleted_at DATETIME
		)`,
	}
	for _, stmt := range ddl {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create table: %v", err)
		}
	}

	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}
