// Package database provides SQLite connectivity for the device console.
//
// This package manages:
//   - Database connection with WAL mode and foreign keys enabled
//   - Versioned schema migrations read from an fs.FS
//   - Transaction scoping through WithTx
//
// All queries use parameterised statements. The database file is
// created with 0600 permissions.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    log.Fatal(err)
//	}
package database
