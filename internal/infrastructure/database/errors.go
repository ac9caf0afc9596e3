package database

import "errors"

var (
	// ErrNoPath is returned by Open when database.path is empty.
	ErrNoPath = errors.New("database: path is required")

	// ErrMigrationMissing is returned when an applied migration has no file.
	ErrMigrationMissing = errors.New("database: applied migration not found")

	// ErrNoDownSQL is returned by MigrateDown for a migration without a
	// .down.sql file.
	ErrNoDownSQL = errors.New("database: migration has no down SQL")
)
