package store

import (
	"database/sql"

	"codeberg.org/mutker/hashtop/internal/errors"
	"codeberg.org/mutker/hashtop/internal/logger"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS users (
	       wallet_addr TEXT PRIMARY KEY CHECK (length(wallet_addr) = 42),
	       fname       TEXT NOT NULL DEFAULT '',
	       lname       TEXT NOT NULL DEFAULT '',
	       created_at  INTEGER NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS miners (
	       id          TEXT PRIMARY KEY,
	       wallet_addr TEXT NOT NULL REFERENCES users (wallet_addr) ON DELETE CASCADE,
	       name        TEXT NOT NULL DEFAULT '',
	       created_at  INTEGER NOT NULL
	   );
	   CREATE INDEX IF NOT EXISTS idx_miners_wallet ON miners (wallet_addr);
	   CREATE TABLE IF NOT EXISTS gpus (
	       miner_id    TEXT NOT NULL REFERENCES miners (id) ON DELETE CASCADE,
	       gpu_no      INTEGER NOT NULL CHECK (gpu_no >= 0),
	       PRIMARY KEY (miner_id, gpu_no)
	   );
	   CREATE TABLE IF NOT EXISTS health (
	       miner_id    TEXT NOT NULL,
	       gpu_no      INTEGER NOT NULL,
	       time        INTEGER NOT NULL,
	       temperature REAL NOT NULL,
	       power_draw  REAL NOT NULL,
	       power_limit REAL,
	       fan_speed   REAL,
	       hashrate    REAL NOT NULL,
	       PRIMARY KEY (miner_id, gpu_no, time),
	       FOREIGN KEY (miner_id, gpu_no) REFERENCES gpus (miner_id, gpu_no) ON DELETE CASCADE
	   );
	   CREATE INDEX IF NOT EXISTS idx_health_miner_time ON health (miner_id, time);
	   CREATE TABLE IF NOT EXISTS shares (
	       miner_id    TEXT NOT NULL,
	       gpu_no      INTEGER NOT NULL,
	       start       INTEGER NOT NULL,
	       valid       INTEGER NOT NULL CHECK (valid >= 0),
	       invalid     INTEGER NOT NULL CHECK (invalid >= 0),
	       duration_s  INTEGER NOT NULL CHECK (duration_s >= 0),
	       PRIMARY KEY (miner_id, gpu_no, start),
	       FOREIGN KEY (miner_id, gpu_no) REFERENCES gpus (miner_id, gpu_no) ON DELETE CASCADE
	   );
	   CREATE INDEX IF NOT EXISTS idx_shares_miner_start ON shares (miner_id, start);
	   CREATE TABLE IF NOT EXISTS user_stats (
	       wallet_addr         TEXT NOT NULL REFERENCES users (wallet_addr) ON DELETE CASCADE,
	       time                INTEGER NOT NULL,
	       balance             REAL NOT NULL,
	       est_revenue         REAL NOT NULL,
	       valid_shares        INTEGER NOT NULL,
	       stale_shares        INTEGER NOT NULL,
	       invalid_shares      INTEGER NOT NULL,
	       round_share_percent REAL,
	       effective_hashrate  REAL NOT NULL,
	       PRIMARY KEY (wallet_addr, time)
	   );`
)

// dataTables lists every table in drop order.
var dataTables = []string{"health", "shares", "gpus", "miners", "user_stats", "users", "schema_versions"}

// InitSchema creates a new database schema with the current version
func InitSchema(db *sql.DB, log logger.Logger) error {
	errFactory := errors.New()

	log.Debug().Msg("Creating database...")

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	// Track transaction state
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				// Only log if it's not the "already committed" error
				if !errors.Is(err, sql.ErrTxDone) {
					log.Debug().Err(err).Msg("Failed to rollback transaction")
				}
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Phase string
			Error string
		}{
			Phase: "create_tables",
			Error: err.Error(),
		})
	}

	if _, err := tx.Exec(`
        INSERT INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Phase string
			Error string
		}{
			Phase: "record_version",
			Error: err.Error(),
		})
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	log.Info().
		Int("version", SchemaVersion).
		Msg("Schema initialized successfully")

	return nil
}

// GetSchemaVersion returns the current schema version
func GetSchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(db, "schema_versions")
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}

	return version, nil
}

// TableExists checks if a table exists
func TableExists(db *sql.DB, tableName string) (bool, error) {
	errFactory := errors.New()
	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}
	return exists, nil
}
