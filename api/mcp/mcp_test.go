package mcp_test

import (
	"context"
	"errors"
	"net/http/httptest"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parley/api/mcp"
	"github.com/papercomputeco/parley/api/search"
	"github.com/papercomputeco/parley/pkg/logger"
	"github.com/papercomputeco/parley/pkg/orchestrator"
	"github.com/papercomputeco/parley/pkg/retrieval"
	testutils "github.com/papercomputeco/parley/pkg/utils/test"
	"github.com/papercomputeco/parley/pkg/vector"
)

type fakeGenerator struct {
	err error
}

func (f *fakeGenerator) Generate(_ context.Context, prompt, id string, _ ...orchestrator.GenerateOption) (*orchestrator.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	if id == "" {
		id = "new-conv"
	}
	return &orchestrator.Result{Response: "echo: " + prompt, ConversationID: id}, nil
}

var _ = Describe("MCP Server", func() {
	var (
		ctx       context.Context
		generator *fakeGenerator
		driver    *testutils.MockVectorDriver
		searcher  *search.Searcher
	)

	connect := func(server *mcp.Server) *gomcp.ClientSession {
		ts := httptest.NewServer(server.Handler())
		DeferCleanup(ts.Close)

		client := gomcp.NewClient(&gomcp.Implementation{Name: "test", Version: "0.0.1"}, nil)
		session, err := client.Connect(ctx, &gomcp.StreamableClientTransport{Endpoint: ts.URL}, nil)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(session.Close)
		return session
	}

	text := func(res *gomcp.CallToolResult) string {
		Expect(res.Content).NotTo(BeEmpty())
		tc, ok := res.Content[0].(*gomcp.TextContent)
		Expect(ok).To(BeTrue())
		return tc.Text
	}

	BeforeEach(func() {
		ctx = context.Background()
		generator = &fakeGenerator{}
		driver = testutils.NewMockVectorDriver()
		gw := retrieval.New(retrieval.Config{Embedder: testutils.NewMockEmbedder(), Driver: driver})
		searcher = search.NewSearcher(gw, nil, nil)
	})

	Describe("NewServer", func() {
		It("requires a generator", func() {
			_, err := mcp.NewServer(mcp.Config{Logger: logger.Nop()})
			Expect(err).To(MatchError(ContainSubstring("generator is required")))
		})

		It("requires a logger", func() {
			_, err := mcp.NewServer(mcp.Config{Generator: generator})
			Expect(err).To(MatchError(ContainSubstring("logger is required")))
		})

		It("returns an HTTP handler", func() {
			server, err := mcp.NewServer(mcp.Config{Generator: generator, Logger: logger.Nop()})
			Expect(err).NotTo(HaveOccurred())
			Expect(server.Handler()).NotTo(BeNil())
		})
	})

	Describe("tools", func() {
		It("only lists search_memory when search is enabled", func() {
			server, err := mcp.NewServer(mcp.Config{Generator: generator, Logger: logger.Nop()})
			Expect(err).NotTo(HaveOccurred())
			tools, err := connect(server).ListTools(ctx, nil)
			Expect(err).NotTo(HaveOccurred())

			var names []string
			for _, t := range tools.Tools {
				names = append(names, t.Name)
			}
			Expect(names).To(ConsistOf("generate"))
		})

		It("generates a reply", func() {
			server, err := mcp.NewServer(mcp.Config{Generator: generator, Logger: logger.Nop()})
			Expect(err).NotTo(HaveOccurred())

			res, err := connect(server).CallTool(ctx, &gomcp.CallToolParams{
				Name:      "generate",
				Arguments: map[string]any{"prompt": "hello"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeFalse())
			Expect(text(res)).To(ContainSubstring(`"response":"echo: hello"`))
			Expect(text(res)).To(ContainSubstring(`"conversation_id":"new-conv"`))
		})

		It("forwards an empty prompt", func() {
			server, err := mcp.NewServer(mcp.Config{Generator: generator, Logger: logger.Nop()})
			Expect(err).NotTo(HaveOccurred())

			res, err := connect(server).CallTool(ctx, &gomcp.CallToolParams{
				Name:      "generate",
				Arguments: map[string]any{"prompt": "", "conversation_id": "c1"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeFalse())
			Expect(text(res)).To(ContainSubstring(`"response":"echo: "`))
			Expect(text(res)).To(ContainSubstring(`"conversation_id":"c1"`))
		})

		It("reports generation failures as tool errors", func() {
			generator.err = errors.New("model down")
			server, err := mcp.NewServer(mcp.Config{Generator: generator, Logger: logger.Nop()})
			Expect(err).NotTo(HaveOccurred())

			res, err := connect(server).CallTool(ctx, &gomcp.CallToolParams{
				Name:      "generate",
				Arguments: map[string]any{"prompt": "hello"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeTrue())
			Expect(text(res)).To(ContainSubstring("model down"))
		})

		It("searches memory", func() {
			Expect(driver.Add(ctx, []vector.Document{{
				ID:        "notes#0",
				Content:   "The stream starts at eight.",
				Metadata:  map[string]string{retrieval.MetaSource: "notes"},
				Embedding: []float32{0.1, 0.2, 0.3},
			}})).To(Succeed())

			server, err := mcp.NewServer(mcp.Config{Generator: generator, Searcher: searcher, Logger: logger.Nop()})
			Expect(err).NotTo(HaveOccurred())

			res, err := connect(server).CallTool(ctx, &gomcp.CallToolParams{
				Name:      "search_memory",
				Arguments: map[string]any{"query": "when"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeFalse())
			Expect(text(res)).To(ContainSubstring("The stream starts at eight."))
		})
	})
})
