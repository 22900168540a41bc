// Package database provides SQLite storage for Beamline Core.
//
// This package manages:
//   - Database connection lifecycle (open, close, health checks)
//   - Schema migrations (embedded SQL files, versioned)
//   - Connection configuration (WAL mode, busy timeout, single writer)
//
// Collection bookkeeping is the primary consumer: every grid scan deposits
// a collection group and one or two collection records which are never
// deleted, only appended to.
//
// # Concurrency Model
//
// SQLite supports one writer at a time. The connection pool is limited to
// a single connection, which serialises writes naturally. WAL mode allows
// readers to proceed during writes.
//
// # Migrations
//
// Migrations are embedded SQL files named:
//
//	YYYYMMDD_HHMMSS_description.up.sql
//	YYYYMMDD_HHMMSS_description.down.sql
//
// They are applied in version order at startup, each in its own
// transaction, and recorded in the schema_migrations table.
//
// # Usage
//
//	db, err := database.Open(database.Config{
//	    Path:        cfg.Database.Path,
//	    WALMode:     cfg.Database.WALMode,
//	    BusyTimeout: cfg.Database.BusyTimeout,
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
