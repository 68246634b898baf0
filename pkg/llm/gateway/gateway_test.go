package gateway_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parley/pkg/llm"
	"github.com/papercomputeco/parley/pkg/llm/gateway"
	"github.com/papercomputeco/parley/pkg/llm/provider"
	testutils "github.com/papercomputeco/parley/pkg/utils/test"
)

var _ = Describe("Gateway", func() {
	var (
		ctx  context.Context
		mock *testutils.MockProvider
		seen []provider.Config
	)

	BeforeEach(func() {
		ctx = context.Background()
		mock = testutils.NewMockProvider()
		seen = nil
		GinkgoT().Setenv("ZHIPU_API_KEY", "")
		GinkgoT().Setenv("OPENAI_API_KEY", "")
	})

	newGateway := func(cfg gateway.Config) *gateway.Gateway {
		if cfg.Factory == nil {
			cfg.Factory = testutils.MockFactory(mock, &seen)
		}
		return gateway.New(cfg)
	}

	Describe("Ensure", func() {
		It("is idempotent", func() {
			gw := newGateway(gateway.Config{Primary: provider.Config{Provider: "ollama"}})

			Expect(gw.Ensure(ctx)).To(Succeed())
			Expect(gw.Ensure(ctx)).To(Succeed())
			Expect(seen).To(HaveLen(1))
			Expect(gw.Ready()).To(BeTrue())
			Expect(gw.Provider()).To(Equal("ollama"))
		})

		It("fails fast on unsupported providers without changing state", func() {
			gw := newGateway(gateway.Config{
				Primary:  provider.Config{Provider: "bogus"},
				Fallback: &provider.Config{Provider: "ollama"},
			})

			err := gw.Ensure(ctx)
			var cfgErr *gateway.ConfigurationError
			Expect(errors.As(err, &cfgErr)).To(BeTrue())
			Expect(cfgErr.Provider).To(Equal("bogus"))
			Expect(seen).To(BeEmpty())
			Expect(gw.Ready()).To(BeFalse())
		})

		It("reports a missing key as a configuration error", func() {
			gw := newGateway(gateway.Config{Primary: provider.Config{Provider: "zhipu"}})

			err := gw.Ensure(ctx)
			var cfgErr *gateway.ConfigurationError
			Expect(errors.As(err, &cfgErr)).To(BeTrue())
			Expect(err).To(MatchError(ContainSubstring("ZHIPU_API_KEY")))
			Expect(gw.Ready()).To(BeFalse())
		})

		It("resolves keys from the environment and fills the default model", func() {
			GinkgoT().Setenv("ZHIPU_API_KEY", "env-key")
			gw := newGateway(gateway.Config{Primary: provider.Config{Provider: "zhipu"}})

			Expect(gw.Ensure(ctx)).To(Succeed())
			Expect(seen).To(HaveLen(1))
			Expect(seen[0].APIKey).To(Equal("env-key"))
			Expect(seen[0].Model).To(Equal("glm-4"))
		})

		It("uses the fallback only when the primary cannot be built", func() {
			gw := newGateway(gateway.Config{
				Primary:  provider.Config{Provider: "zhipu"},
				Fallback: &provider.Config{Provider: "ollama", Model: "qwen2"},
			})

			Expect(gw.Ensure(ctx)).To(Succeed())
			Expect(gw.Provider()).To(Equal("ollama"))
			Expect(seen).To(HaveLen(1))
			Expect(seen[0].Model).To(Equal("qwen2"))
		})

		It("retries construction after a failure", func() {
			attempts := 0
			gw := gateway.New(gateway.Config{
				Primary: provider.Config{Provider: "ollama"},
				Factory: func(_ context.Context, _ provider.Config) (provider.Provider, error) {
					attempts++
					if attempts == 1 {
						return nil, errors.New("dial refused")
					}
					return mock, nil
				},
			})

			Expect(gw.Ensure(ctx)).NotTo(Succeed())
			Expect(gw.Ready()).To(BeFalse())
			Expect(gw.Ensure(ctx)).To(Succeed())
			Expect(gw.Ready()).To(BeTrue())
		})
	})

	Describe("Invoke", func() {
		It("returns the model reply", func() {
			mock.Reply = func(p string) string { return "echo: " + p }
			gw := newGateway(gateway.Config{Primary: provider.Config{Provider: "ollama"}})

			reply, err := gw.Invoke(ctx, "hello")
			Expect(err).NotTo(HaveOccurred())
			Expect(reply).To(Equal("echo: hello"))
			Expect(mock.Prompts()).To(Equal([]string{"hello"}))
		})

		It("replaces empty replies with the placeholder", func() {
			mock.Reply = func(string) string { return "  \n" }
			gw := newGateway(gateway.Config{Primary: provider.Config{Provider: "ollama"}})

			reply, err := gw.Invoke(ctx, "hello")
			Expect(err).NotTo(HaveOccurred())
			Expect(reply).To(Equal(gateway.Placeholder))
		})

		It("wraps provider failures in ModelError", func() {
			mock.Fail = true
			gw := newGateway(gateway.Config{Primary: provider.Config{Provider: "ollama"}})

			_, err := gw.Invoke(ctx, "hello")
			var modelErr *gateway.ModelError
			Expect(errors.As(err, &modelErr)).To(BeTrue())
			Expect(modelErr.Reason).To(ContainSubstring("mock model failure"))
			Expect(errors.Is(err, testutils.ErrMockModel)).To(BeTrue())
		})

		It("applies extra generation parameters", func() {
			var got *llm.ChatRequest
			gw := gateway.New(gateway.Config{
				Primary: provider.Config{Provider: "ollama"},
				Extra: map[string]any{
					"temperature": 0.3,
					"max_tokens":  int64(256),
					"system":      "be brief",
					"num_ctx":     int64(4096),
				},
				Factory: func(_ context.Context, _ provider.Config) (provider.Provider, error) {
					return &recordingProvider{req: &got}, nil
				},
			})

			_, err := gw.Invoke(ctx, "hi")
			Expect(err).NotTo(HaveOccurred())
			Expect(*got.Temperature).To(Equal(0.3))
			Expect(*got.MaxTokens).To(Equal(256))
			Expect(got.System).To(Equal("be brief"))
			Expect(got.Extra).To(HaveKeyWithValue("num_ctx", int64(4096)))
		})
	})

	It("closes the client and becomes unready", func() {
		gw := newGateway(gateway.Config{Primary: provider.Config{Provider: "ollama"}})
		Expect(gw.Ensure(ctx)).To(Succeed())

		Expect(gw.Close()).To(Succeed())
		Expect(mock.Closed()).To(BeTrue())
		Expect(gw.Ready()).To(BeFalse())
	})
})

type recordingProvider struct {
	req **llm.ChatRequest
}

func (r *recordingProvider) Name() string { return "recording" }

func (r *recordingProvider) Chat(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	*r.req = req
	return &llm.ChatResponse{Message: llm.NewTextMessage("assistant", "done")}, nil
}

func (r *recordingProvider) Close() error { return nil }
