//go:build !libsql

package storageutils

import (
	"context"
	"errors"

	"github.com/papercomputeco/parley/pkg/storage"
)

func newLibSQL(context.Context, string) (storage.Driver, error) {
	return nil, errors.New("storage driver libsql requires a build with -tags libsql")
}
