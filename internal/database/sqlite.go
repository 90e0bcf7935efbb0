package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fade-go/internal/database/migrations"
	"fade-go/internal/fade"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements fade.Database using SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

// NewSQLiteDatabase opens the database at path and applies pending migrations.
// path can be a file path or ":memory:" for an in-memory database.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return &SQLiteDatabase{db: db, path: path}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing connection. The caller is
// responsible for configuring it and applying migrations.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{db: db}
}

// OpenConnection opens and configures a SQLite connection with appropriate PRAGMAs.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serializes access and keeps ":memory:" databases
	// from being recreated per connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	return db, nil
}

// Entry operations

const entryColumns = `id, title, content, created_at, restored_at, updated_at, decay_level, synced_at`

func (s *SQLiteDatabase) FindEntry(id string) (*fade.Entry, error) {
	ctx := context.Background()
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM entries WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding entry: %w", err)
	}
	if err := s.loadChildren(ctx, s.db, []*fade.Entry{entry}); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *SQLiteDatabase) ListEntries() ([]*fade.Entry, error) {
	ctx := context.Background()
	rows, err := s.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM entries ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	defer rows.Close()

	var entries []*fade.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries: %w", err)
	}
	rows.Close()

	if err := s.loadChildren(ctx, s.db, entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *SQLiteDatabase) InsertEntry(entry *fade.Entry) error {
	return s.inTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO entries (`+entryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.ID, entry.Title, entry.Content, entry.CreatedAt, nullTime(entry.RestoredAt),
			entry.UpdatedAt, entry.DecayLevel, nullTime(entry.SyncedAt))
		if err != nil {
			return fmt.Errorf("inserting entry: %w", err)
		}
		return writeChildren(tx, entry)
	})
}

func (s *SQLiteDatabase) ReplaceEntry(entry *fade.Entry) error {
	return s.inTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE entries
			SET title = ?, content = ?, created_at = ?, restored_at = ?, updated_at = ?, decay_level = ?, synced_at = ?
			WHERE id = ?`,
			entry.Title, entry.Content, entry.CreatedAt, nullTime(entry.RestoredAt),
			entry.UpdatedAt, entry.DecayLevel, nullTime(entry.SyncedAt), entry.ID)
		if err != nil {
			return fmt.Errorf("updating entry: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("updating entry %s: %w", entry.ID, fade.ErrNotFound)
		}
		for _, table := range []string{"entry_tags", "entry_attachments", "entry_questions"} {
			if _, err := tx.Exec(`DELETE FROM `+table+` WHERE entry_id = ?`, entry.ID); err != nil {
				return fmt.Errorf("clearing %s: %w", table, err)
			}
		}
		return writeChildren(tx, entry)
	})
}

func (s *SQLiteDatabase) DeleteEntry(id string, tombstone *fade.Tombstone) (bool, error) {
	var deleted bool
	err := s.inTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM entries WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("deleting entry: %w", err)
		}
		n, _ := res.RowsAffected()
		deleted = n > 0

		if tombstone != nil {
			_, err := tx.Exec(`INSERT INTO tombstones (id, deleted_at) VALUES (?, ?)
				ON CONFLICT(id) DO UPDATE SET deleted_at = excluded.deleted_at`,
				tombstone.ID, tombstone.DeletedAt)
			if err != nil {
				return fmt.Errorf("recording tombstone: %w", err)
			}
		}
		return nil
	})
	return deleted, err
}

func (s *SQLiteDatabase) MarkEntrySynced(id string, version time.Time) error {
	if _, err := s.db.Exec(`UPDATE entries SET synced_at = ? WHERE id = ?`, version, id); err != nil {
		return fmt.Errorf("marking entry synced: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListTags() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT tag FROM entry_tags ORDER BY tag`)
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("scanning tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

func (s *SQLiteDatabase) CountChecksumReferences(checksum string) (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM entry_attachments WHERE checksum = ?`, checksum).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting checksum references: %w", err)
	}
	return n, nil
}

// Tombstone operations

func (s *SQLiteDatabase) ListTombstones() ([]*fade.Tombstone, error) {
	rows, err := s.db.Query(`SELECT id, deleted_at FROM tombstones ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing tombstones: %w", err)
	}
	defer rows.Close()

	var out []*fade.Tombstone
	for rows.Next() {
		t := &fade.Tombstone{}
		if err := rows.Scan(&t.ID, &t.DeletedAt); err != nil {
			return nil, fmt.Errorf("scanning tombstone: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteDatabase) PurgeTombstone(id string) error {
	if _, err := s.db.Exec(`DELETE FROM tombstones WHERE id = ?`, id); err != nil {
		return fmt.Errorf("purging tombstone: %w", err)
	}
	return nil
}

// Settings operations

func (s *SQLiteDatabase) LoadSettings() (*fade.SettingsRecord, error) {
	var (
		unit         string
		lastNotified sql.NullTime
	)
	err := s.db.QueryRow(`SELECT decay_time_unit, last_notified_at FROM settings WHERE id = 1`).Scan(&unit, &lastNotified)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	return &fade.SettingsRecord{
		DecayTimeUnit:  fade.DecayTimeUnit(unit),
		LastNotifiedAt: timePtr(lastNotified),
	}, nil
}

func (s *SQLiteDatabase) SaveSettings(rec *fade.SettingsRecord) error {
	_, err := s.db.Exec(`INSERT INTO settings (id, decay_time_unit, last_notified_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET decay_time_unit = excluded.decay_time_unit, last_notified_at = excluded.last_notified_at`,
		string(rec.DecayTimeUnit), nullTime(rec.LastNotifiedAt))
	if err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}

// Achievement operations

const dayLayout = "2006-01-02"

func (s *SQLiteDatabase) LoadAchievements() (*fade.AchievementState, error) {
	state := &fade.AchievementState{}
	var lastDay sql.NullString
	err := s.db.QueryRow(`SELECT total_restored, current_streak, longest_streak, last_streak_day
		FROM achievement_state WHERE id = 1`).Scan(&state.TotalRestored, &state.CurrentStreak, &state.LongestStreak, &lastDay)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading achievement state: %w", err)
	}
	if lastDay.Valid {
		day, err := time.Parse(dayLayout, lastDay.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last streak day: %w", err)
		}
		state.LastStreakDay = &day
	}

	rows, err := s.db.Query(`SELECT achievement_id, unlocked_at FROM achievement_unlocks`)
	if err != nil {
		return nil, fmt.Errorf("loading achievement unlocks: %w", err)
	}
	defer rows.Close()

	state.Unlocked = make(map[string]time.Time)
	for rows.Next() {
		var (
			id string
			at time.Time
		)
		if err := rows.Scan(&id, &at); err != nil {
			return nil, fmt.Errorf("scanning achievement unlock: %w", err)
		}
		state.Unlocked[id] = at
	}
	return state, rows.Err()
}

// SaveAchievements writes counters and inserts new unlocks. Existing unlocks are
// never removed or re-dated.
func (s *SQLiteDatabase) SaveAchievements(state *fade.AchievementState) error {
	var lastDay sql.NullString
	if state.LastStreakDay != nil {
		lastDay = sql.NullString{String: state.LastStreakDay.Format(dayLayout), Valid: true}
	}

	return s.inTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO achievement_state (id, total_restored, current_streak, longest_streak, last_streak_day)
			VALUES (1, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				total_restored = excluded.total_restored,
				current_streak = excluded.current_streak,
				longest_streak = excluded.longest_streak,
				last_streak_day = excluded.last_streak_day`,
			state.TotalRestored, state.CurrentStreak, state.LongestStreak, lastDay)
		if err != nil {
			return fmt.Errorf("saving achievement state: %w", err)
		}
		for id, at := range state.Unlocked {
			if _, err := tx.Exec(`INSERT OR IGNORE INTO achievement_unlocks (achievement_id, unlocked_at) VALUES (?, ?)`, id, at); err != nil {
				return fmt.Errorf("saving achievement unlock %s: %w", id, err)
			}
		}
		return nil
	})
}

// Sync run operations

func (s *SQLiteDatabase) CreateSyncRun(startedAt time.Time) (*fade.SyncRun, error) {
	res, err := s.db.Exec(`INSERT INTO sync_runs (started_at, status) VALUES (?, 'running')`, startedAt)
	if err != nil {
		return nil, fmt.Errorf("creating sync run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading sync run id: %w", err)
	}
	return &fade.SyncRun{ID: id, StartedAt: startedAt, Status: "running"}, nil
}

func (s *SQLiteDatabase) FinishSyncRun(run *fade.SyncRun) error {
	_, err := s.db.Exec(`UPDATE sync_runs
		SET finished_at = ?, status = ?, uploaded = ?, downloaded = ?, deleted_local = ?, deleted_remote = ?, error = ?
		WHERE id = ?`,
		nullTime(run.FinishedAt), run.Status, run.Uploaded, run.Downloaded, run.DeletedLocal, run.DeletedRemote, run.Error, run.ID)
	if err != nil {
		return fmt.Errorf("finishing sync run: %w", err)
	}
	return nil
}

// ListSyncRuns returns the most recent runs, newest first.
func (s *SQLiteDatabase) ListSyncRuns(limit int) ([]*fade.SyncRun, error) {
	rows, err := s.db.Query(`SELECT id, started_at, finished_at, status, uploaded, downloaded, deleted_local, deleted_remote, error
		FROM sync_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sync runs: %w", err)
	}
	defer rows.Close()

	var out []*fade.SyncRun
	for rows.Next() {
		run := &fade.SyncRun{}
		var finished sql.NullTime
		if err := rows.Scan(&run.ID, &run.StartedAt, &finished, &run.Status, &run.Uploaded,
			&run.Downloaded, &run.DeletedLocal, &run.DeletedRemote, &run.Error); err != nil {
			return nil, fmt.Errorf("scanning sync run: %w", err)
		}
		run.FinishedAt = timePtr(finished)
		out = append(out, run)
	}
	return out, rows.Err()
}

// Path returns the database file path.
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Ping reports whether the database connection is usable.
func (s *SQLiteDatabase) Ping() error {
	return s.db.Ping()
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteDatabase) inTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Compile-time check that SQLiteDatabase implements fade.Database interface
var _ fade.Database = (*SQLiteDatabase)(nil)
