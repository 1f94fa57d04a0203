//go:build !cgo

package storage

import (
	_ "modernc.org/sqlite"
)

// driverName is modernc.org/sqlite's pure-Go driver, used whenever cgo is
// disabled (e.g. CGO_ENABLED=0 cross-compiles) so the binary still runs.
const driverName = "sqlite"
