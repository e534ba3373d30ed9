package shared

import (
	"database/sql"
	"testing"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := NewDatabase(DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunMigrations(t *testing.T) {
	db := openTestDB(t)

	if err := RunMigrations(db); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	t.Run("Creates Users Table", func(t *testing.T) {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='users'").Scan(&name)
		if err != nil {
			t.Fatalf("users table missing: %v", err)
		}
	})

	t.Run("Seeds Sequence", func(t *testing.T) {
		var value int
		err := db.QueryRow("SELECT value FROM users_sequence WHERE id = 1").Scan(&value)
		if err != nil {
			t.Fatalf("users_sequence row missing: %v", err)
		}
		if value != 0 {
			t.Errorf("expected sequence seeded at 0, got %d", value)
		}
	})

	t.Run("Idempotent", func(t *testing.T) {
		if err := RunMigrations(db); err != nil {
			t.Fatalf("second run failed: %v", err)
		}
	})
}

func TestRollbackMigration(t *testing.T) {
	db := openTestDB(t)

	t.Run("Nothing To Rollback", func(t *testing.T) {
		if err := RollbackMigration(db); err == nil {
			t.Error("expected error with no applied migrations")
		}
	})

	t.Run("Drops Users Table", func(t *testing.T) {
		if err := RunMigrations(db); err != nil {
			t.Fatalf("migration failed: %v", err)
		}
		if err := RollbackMigration(db); err != nil {
			t.Fatalf("rollback failed: %v", err)
		}

		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='users'").Scan(&name)
		if err != sql.ErrNoRows {
			t.Errorf("expected users table dropped, got err=%v name=%s", err, name)
		}
	})
}
