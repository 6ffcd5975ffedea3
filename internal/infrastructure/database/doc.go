// Package database provides SQLite connectivity for the gateway's alarm journal.
//
// This package manages:
//   - Opening the database with WAL mode and a busy timeout
//   - Applying embedded, forward-only schema migrations
//   - Connection lifecycle and health checks
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Journal.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql and are applied
// in version order, each in its own transaction.
package database
