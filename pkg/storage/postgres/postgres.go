// Package postgres stores conversations in PostgreSQL through pgx.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/papercomputeco/parley/pkg/storage/sqlstore"
)

const (
	maxOpenConns    = 10
	connMaxIdleTime = 5 * time.Minute
)

// Driver is a sqlstore.Driver over a pgx connection pool.
type Driver struct {
	*sqlstore.Driver
}

// NewDriver connects with dsn, either key=value form or a postgres:// URI,
// and creates the schema when missing. The server must be reachable.
func NewDriver(ctx context.Context, dsn string) (*Driver, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	drv, err := sqlstore.New(ctx, db, dialect.Postgres)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Driver{Driver: drv}, nil
}
