// Package storageutils builds a storage.Driver from configuration.
package storageutils

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/parley/pkg/storage"
	"github.com/papercomputeco/parley/pkg/storage/dynamodb"
	"github.com/papercomputeco/parley/pkg/storage/file"
	"github.com/papercomputeco/parley/pkg/storage/gcs"
	"github.com/papercomputeco/parley/pkg/storage/inmemory"
	"github.com/papercomputeco/parley/pkg/storage/postgres"
	"github.com/papercomputeco/parley/pkg/storage/sqlite"
)

type NewDriverOpts struct {
	Driver string

	Dir         string
	SQLitePath  string
	PostgresDSN string
	LibSQLURL   string

	GCSBucket string
	GCSPrefix string

	DynamoDBTable    string
	DynamoDBRegion   string
	DynamoDBEndpoint string

	Logger *slog.Logger
}

func NewDriver(ctx context.Context, o *NewDriverOpts) (storage.Driver, error) {
	switch o.Driver {
	case "", "file":
		return file.NewDriver(o.Dir, o.Logger)
	case "inmemory":
		return inmemory.NewDriver(), nil
	case "sqlite":
		if o.SQLitePath == "" {
			return nil, fmt.Errorf("storage driver sqlite requires storage.sqlite_path")
		}
		return sqlite.NewDriver(ctx, o.SQLitePath)
	case "postgres":
		if o.PostgresDSN == "" {
			return nil, fmt.Errorf("storage driver postgres requires storage.postgres_dsn")
		}
		return postgres.NewDriver(ctx, o.PostgresDSN)
	case "libsql":
		return newLibSQL(ctx, o.LibSQLURL)
	case "gcs":
		return gcs.NewDriver(ctx, o.GCSBucket, o.GCSPrefix, o.Logger)
	case "dynamodb":
		return dynamodb.NewDriver(ctx, dynamodb.Options{
			Table:    o.DynamoDBTable,
			Region:   o.DynamoDBRegion,
			Endpoint: o.DynamoDBEndpoint,
			Logger:   o.Logger,
		})
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", o.Driver)
	}
}
