// Package database provides SQLite connectivity for the zigbee-core service.
//
// It owns the connection (WAL mode, foreign keys, busy timeout, single
// pooled writer) and the embedded schema migration runner. The device
// directory's repository layer shares the handle via the embedded *sql.DB.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations live in the top-level migrations/ package as paired
// VERSION_name.up.sql / .down.sql files and are compiled into the
// binary, so the deployed service needs no SQL files on disk. Schema
// changes are additive: new columns are nullable or carry defaults,
// and every up file ships a matching down file.
package database
