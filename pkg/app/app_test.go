package app_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parley/pkg/app"
	"github.com/papercomputeco/parley/pkg/config"
	"github.com/papercomputeco/parley/pkg/llm/gateway"
	"github.com/papercomputeco/parley/pkg/llm/provider"
	testutils "github.com/papercomputeco/parley/pkg/utils/test"
)

var _ = Describe("Build", func() {
	var (
		ctx       context.Context
		configDir string
		cfg       *config.Config
		mock      *testutils.MockProvider
		seen      []provider.Config
	)

	build := func(opts app.Options) (*app.App, error) {
		opts.ConfigDir = configDir
		if opts.Factory == nil {
			opts.Factory = testutils.MockFactory(mock, &seen)
		}
		return app.Build(ctx, cfg, opts)
	}

	BeforeEach(func() {
		ctx = context.Background()
		configDir = GinkgoT().TempDir()
		mock = testutils.NewMockProvider()
		seen = nil

		cfg = config.NewDefaultConfig()
		cfg.Model.Provider = "ollama"
		cfg.Model.Model = "qwen2"
		cfg.Retrieval.Enabled = false
		cfg.Indexer.Enabled = false
	})

	It("wires a file store under the config directory", func() {
		a, err := build(app.Options{})
		Expect(err).NotTo(HaveOccurred())

		res, err := a.Orchestrator.Generate(ctx, "Hello", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Response).To(Equal("ok"))
		Expect(a.Close()).To(Succeed())

		_, err = os.Stat(filepath.Join(configDir, "conversations"))
		Expect(err).NotTo(HaveOccurred())

		reopened, err := build(app.Options{})
		Expect(err).NotTo(HaveOccurred())
		defer reopened.Close()
		rec, err := reopened.Orchestrator.History(ctx, res.ConversationID)
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.Turns).To(HaveLen(1))
	})

	It("passes model settings and extras to the provider", func() {
		cfg.Model.Timeout = "5s"
		cfg.Model.Extra = map[string]any{"temperature": 0.3}
		a, err := build(app.Options{})
		Expect(err).NotTo(HaveOccurred())
		defer a.Close()

		_, err = a.Orchestrator.Generate(ctx, "hi", "c1")
		Expect(err).NotTo(HaveOccurred())
		Expect(seen).To(HaveLen(1))
		Expect(seen[0].Provider).To(Equal("ollama"))
		Expect(seen[0].Model).To(Equal("qwen2"))
		Expect(seen[0].Timeout.Seconds()).To(BeNumerically("==", 5))
	})

	It("rejects an invalid model timeout", func() {
		cfg.Model.Timeout = "soon"
		_, err := build(app.Options{})
		var cfgErr *gateway.ConfigurationError
		Expect(errors.As(err, &cfgErr)).To(BeTrue())
	})

	It("degrades when retrieval cannot be set up", func() {
		cfg.Retrieval.Enabled = true
		cfg.VectorStore.Provider = "bogus"
		a, err := build(app.Options{})
		Expect(err).NotTo(HaveOccurred())
		defer a.Close()

		Expect(a.Searcher.Enabled()).To(BeFalse())
		_, err = a.Orchestrator.Generate(ctx, "hi", "")
		Expect(err).NotTo(HaveOccurred())
	})

	It("fails when retrieval is required but unavailable", func() {
		cfg.Retrieval.Enabled = true
		cfg.VectorStore.Provider = "bogus"
		_, err := build(app.Options{RequireRetrieval: true})
		Expect(err).To(MatchError(ContainSubstring("unsupported vector store provider")))
	})

	It("runs the indexer with the nop publisher", func() {
		cfg.Indexer.Enabled = true
		a, err := build(app.Options{})
		Expect(err).NotTo(HaveOccurred())

		_, err = a.Orchestrator.Generate(ctx, "hi", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Close()).To(Succeed())
	})
})
