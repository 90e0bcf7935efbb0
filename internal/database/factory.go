package database

import (
	"fmt"
	"path/filepath"

	"fade-go/internal/config"
)

// DatabaseFileName is the SQLite file under data_dir holding entries,
// tombstones, settings, unlocked achievements and the sync run history.
const DatabaseFileName = "fade.db"

// NewDatabaseFromConfig opens the local entry database. "memory" keeps
// everything in process and is meant for tests and dry runs.
func NewDatabaseFromConfig(cfg config.DatabaseConfig) (*SQLiteDatabase, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		return NewSQLiteDatabase(filepath.Join(cfg.DataDir, DatabaseFileName))
	case "memory":
		return NewSQLiteDatabase(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
