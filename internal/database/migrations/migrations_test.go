package migrations

import (
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestMigrateUp_FreshDatabase(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}

	tables := []string{
		"entries", "entry_tags", "entry_attachments", "entry_questions", "tombstones",
		"settings", "achievement_state", "achievement_unlocks", "sync_runs", "schema_migrations",
	}
	for _, table := range tables {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s was not created: %v", table, err)
		}
	}
}

func TestCheckDBMigrationStatus(t *testing.T) {
	t.Run("fresh database needs migration", func(t *testing.T) {
		db := openTestDB(t)

		err := CheckDBMigrationStatus(db)
		if !errors.Is(err, ErrNeedsMigration) {
			t.Errorf("CheckDBMigrationStatus() error = %v, want ErrNeedsMigration", err)
		}
	})

	t.Run("up to date after migration", func(t *testing.T) {
		db := openTestDB(t)
		if err := MigrateUp(db); err != nil {
			t.Fatalf("MigrateUp() error = %v", err)
		}

		if err := CheckDBMigrationStatus(db); err != nil {
			t.Errorf("CheckDBMigrationStatus() error = %v", err)
		}
	})
}

func TestMigrateUp_Idempotent(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("first MigrateUp() error = %v", err)
	}
	if err := MigrateUp(db); err != nil {
		t.Errorf("second MigrateUp() error = %v (should be idempotent)", err)
	}

	version, dirty, err := Version(db)
	if err != nil {
		t.Fatalf("Version() error = %v", err)
	}
	latest, err := LatestVersion()
	if err != nil {
		t.Fatalf("LatestVersion() error = %v", err)
	}
	if version != latest || dirty {
		t.Errorf("Version() = %d (dirty=%v), want %d", version, dirty, latest)
	}
}

func TestForeignKeyConstraints(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}

	_, err := db.Exec(`INSERT INTO entry_tags (entry_id, tag) VALUES ('missing', 'travel')`)
	if err == nil {
		t.Error("expected foreign key violation for tag of missing entry, insert succeeded")
	}
}

func TestSchema_CascadeDelete(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}

	stmts := []string{
		`INSERT INTO entries (id, title, created_at, updated_at) VALUES ('e1', 'Beach', datetime('now'), datetime('now'))`,
		`INSERT INTO entry_tags (entry_id, tag) VALUES ('e1', 'summer')`,
		`INSERT INTO entry_attachments (entry_id, attachment_id, name, checksum, size) VALUES ('e1', 'a1', 'photo.jpg', 'abc', 3)`,
		`DELETE FROM entries WHERE id = 'e1'`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("Exec(%q) error = %v", stmt, err)
		}
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM entry_attachments`).Scan(&n); err != nil {
		t.Fatalf("counting attachments: %v", err)
	}
	if n != 0 {
		t.Errorf("attachments after entry delete = %d, want 0", n)
	}
}

func TestSchema_SingleSettingsRow(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}

	if _, err := db.Exec(`INSERT INTO settings (id, decay_time_unit) VALUES (1, 'days')`); err != nil {
		t.Fatalf("inserting settings: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO settings (id, decay_time_unit) VALUES (2, 'hours')`); err == nil {
		t.Error("expected check constraint violation for second settings row, insert succeeded")
	}
}

// openTestDB opens an in-memory SQLite database with foreign keys enabled.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
