package storageutils_test

import (
	"context"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parley/pkg/logger"
	"github.com/papercomputeco/parley/pkg/storage/file"
	"github.com/papercomputeco/parley/pkg/storage/inmemory"
	"github.com/papercomputeco/parley/pkg/storage/sqlite"
	storageutils "github.com/papercomputeco/parley/pkg/storage/utils"
)

var _ = Describe("NewDriver", func() {
	ctx := context.Background()

	It("defaults to the file store", func() {
		dir := GinkgoT().TempDir()
		d, err := storageutils.NewDriver(ctx, &storageutils.NewDriverOpts{Dir: dir, Logger: logger.Nop()})
		Expect(err).NotTo(HaveOccurred())
		Expect(d).To(BeAssignableToTypeOf(&file.Driver{}))
	})

	It("builds the in-memory store", func() {
		d, err := storageutils.NewDriver(ctx, &storageutils.NewDriverOpts{Driver: "inmemory"})
		Expect(err).NotTo(HaveOccurred())
		Expect(d).To(BeAssignableToTypeOf(&inmemory.Driver{}))
	})

	It("builds the sqlite store", func() {
		d, err := storageutils.NewDriver(ctx, &storageutils.NewDriverOpts{
			Driver:     "sqlite",
			SQLitePath: filepath.Join(GinkgoT().TempDir(), "p.db"),
		})
		Expect(err).NotTo(HaveOccurred())
		defer d.Close()
		Expect(d).To(BeAssignableToTypeOf(&sqlite.Driver{}))
	})

	It("requires driver specific settings", func() {
		_, err := storageutils.NewDriver(ctx, &storageutils.NewDriverOpts{Driver: "sqlite"})
		Expect(err).To(MatchError(ContainSubstring("storage.sqlite_path")))

		_, err = storageutils.NewDriver(ctx, &storageutils.NewDriverOpts{Driver: "postgres"})
		Expect(err).To(MatchError(ContainSubstring("storage.postgres_dsn")))
	})

	It("rejects unknown drivers", func() {
		_, err := storageutils.NewDriver(ctx, &storageutils.NewDriverOpts{Driver: "floppy"})
		Expect(err).To(MatchError("unsupported storage driver: floppy"))
	})
})
