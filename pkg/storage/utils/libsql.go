//go:build libsql

package storageutils

import (
	"context"
	"errors"

	"github.com/papercomputeco/parley/pkg/storage"
	"github.com/papercomputeco/parley/pkg/storage/libsql"
)

func newLibSQL(ctx context.Context, url string) (storage.Driver, error) {
	if url == "" {
		return nil, errors.New("storage driver libsql requires storage.libsql_url")
	}
	return libsql.NewDriver(ctx, url)
}
