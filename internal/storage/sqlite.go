// Package storage picks the local SQLite driver for the running binary:
// the cgo-accelerated mattn/go-sqlite3 driver when the build has cgo
// available, and the pure-Go modernc.org/sqlite driver otherwise so a
// plain `go build` with CGO_ENABLED=0 still produces a working binary.
package storage

import (
	"database/sql"
	"fmt"
)

// Open opens path (or ":memory:") using DriverName's driver and enables
// foreign key enforcement, which SQLite leaves off by default.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", driverName, err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: enable foreign keys: %w", err)
	}
	return db, nil
}

// DriverName reports the database/sql driver name Open registers under for
// this build ("sqlite3" under cgo, "sqlite" otherwise).
func DriverName() string {
	return driverName
}
