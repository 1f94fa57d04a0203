//go:build cgo

package storage

import (
	_ "github.com/mattn/go-sqlite3"
)

// driverName is mattn/go-sqlite3's cgo-backed driver, faster than the
// pure-Go fallback for the write-heavy memory tree workload when cgo is
// available on the build host.
const driverName = "sqlite3"
