package store

import (
	"path/filepath"

	"codeberg.org/mutker/hashtop/internal/errors"
)

const (
	// File system permissions and paths
	defaultDirPerm = 0o755
	defaultDBPath  = "/var/lib/hashtop/hashtop.db"
)

type Config struct {
	DBPath          string
	BackupOnMigrate bool
	BackupDir       string
}

func DefaultConfig() Config {
	return Config{
		DBPath:          defaultDBPath,
		BackupOnMigrate: true,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	return nil
}

func (c Config) backupDir() string {
	if c.BackupDir != "" {
		return c.BackupDir
	}
	return filepath.Join(filepath.Dir(c.DBPath), "backups")
}

func (c Config) dsn() string {
	// Foreign keys are off by default in SQLite; immediate transactions take
	// the write lock at BEGIN so concurrent batches queue instead of failing.
	return c.DBPath + "?_journal=WAL&_fk=1&_timeout=5000&_txlock=immediate"
}
