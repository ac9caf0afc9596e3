// Package database provides the SQLite connection for Rail Logic Core.
//
// This package manages:
//   - Opening the database file with WAL mode and a busy timeout
//   - Versioned schema migrations read from an fs.FS
//   - Health checks and transaction helpers
//
// The layout tables themselves live in the migrations directory at the
// repository root and are embedded by package migrations.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//	repo := layout.NewSQLiteRepository(db.DB)
//
// Migration Strategy:
//
// Migrations are additive: new columns are NULLABLE or carry a DEFAULT.
// Each version has an .up.sql file and, for development, a .down.sql file.
package database
