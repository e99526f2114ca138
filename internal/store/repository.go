package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"codeberg.org/mutker/hashtop/internal/errors"
	"codeberg.org/mutker/hashtop/internal/logger"
	"codeberg.org/mutker/hashtop/internal/metrics"
	"github.com/mattn/go-sqlite3"
)

type sqliteStore struct {
	db     *sql.DB
	logger logger.Logger
	cfg    Config
}

// Open opens (creating if needed) the SQLite database at cfg.DBPath and
// brings its schema to the current version.
func Open(cfg Config, log logger.Logger) (Store, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Ensure the directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	db, err := sql.Open("sqlite3", cfg.dsn())
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	// SQLite allows a single writer; one connection keeps transactions
	// queued in the pool rather than contending on the file lock.
	db.SetMaxOpenConns(1)

	if err := ValidateAndUpdateSchema(db, cfg, log); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Msg("Entity store initialized")

	return &sqliteStore{
		db:     db,
		logger: log,
		cfg:    cfg,
	}, nil
}

func (s *sqliteStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	errFactory := errors.New()
	start := time.Now()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		metrics.StoreTransactions.WithLabelValues("begin_failed").Inc()
		return errFactory.WithData(ErrStorage, struct {
			Phase string
			Error string
		}{
			Phase: "begin",
			Error: err.Error(),
		})
	}

	committed := false
	defer func() {
		if !committed {
			if err := sqlTx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				s.logger.Debug().Err(err).Msg("Failed to roll back transaction")
			}
		}
	}()

	if err := fn(&tx{tx: sqlTx}); err != nil {
		metrics.StoreTransactions.WithLabelValues("rolled_back").Inc()
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		metrics.StoreTransactions.WithLabelValues("commit_failed").Inc()
		return errFactory.WithData(ErrStorage, struct {
			Phase string
			Error string
		}{
			Phase: "commit",
			Error: err.Error(),
		})
	}
	committed = true

	metrics.StoreTransactions.WithLabelValues("committed").Inc()
	metrics.StoreTransactionDuration.Observe(time.Since(start).Seconds())

	return nil
}

func (s *sqliteStore) Close() error {
	// Checkpoint WAL and cleanup on close
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "checkpoint_wal",
			Error: err.Error(),
		})
	}

	if err := s.db.Close(); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	s.logger.Info().Msg("Entity store closed")

	return nil
}

// storageError maps driver failures onto the domain taxonomy: uniqueness
// violations become conflicts, dangling references become not-found, and
// everything else is a storage failure.
func storageError(op string, err error) error {
	errFactory := errors.New()

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintPrimaryKey, sqlite3.ErrConstraintUnique:
			return errFactory.Wrap(ErrConflict, err).WithMessage(op + ": already exists")
		case sqlite3.ErrConstraintForeignKey:
			return errFactory.Wrap(ErrNotFound, err).WithMessage(op + ": referenced entity does not exist")
		}
	}

	return errFactory.WithData(ErrStorage, struct {
		Phase string
		Error string
	}{
		Phase: op,
		Error: err.Error(),
	})
}

func notFound(what, key string) error {
	return errors.New().WithMessage(ErrNotFound, what+" "+key+" not found")
}
