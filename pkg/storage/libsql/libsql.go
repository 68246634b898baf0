//go:build libsql

// Package libsql provides a libSQL (Turso) backed conversation store.
//
// go-libsql links its own SQLite build, which clashes with mattn/go-sqlite3
// at link time, so this package is only compiled with the libsql build tag.
package libsql

import (
	"context"
	"database/sql"
	"fmt"

	"entgo.io/ent/dialect"
	_ "github.com/tursodatabase/go-libsql" // register the libSQL driver as "libsql"

	"github.com/papercomputeco/parley/pkg/storage/sqlstore"
)

// Driver implements storage.Driver on libSQL via the sqlstore driver.
type Driver struct {
	*sqlstore.Driver
}

// NewDriver opens url, which is either a local "file:" URL or a remote
// "libsql://" URL carrying an authToken query parameter.
func NewDriver(ctx context.Context, url string) (*Driver, error) {
	db, err := sql.Open("libsql", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	drv, err := sqlstore.New(ctx, db, dialect.SQLite)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Driver{Driver: drv}, nil
}
