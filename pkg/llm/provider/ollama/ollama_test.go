package ollama_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parley/pkg/llm"
	"github.com/papercomputeco/parley/pkg/llm/provider/ollama"
)

var _ = Describe("Client", func() {
	var (
		server   *httptest.Server
		received map[string]any
		status   int
		body     string
	)

	BeforeEach(func() {
		status = http.StatusOK
		body = `{
			"model": "llama3.2",
			"created_at": "2024-01-01T00:00:00Z",
			"message": {"role": "assistant", "content": "hello there"},
			"done": true,
			"prompt_eval_count": 10,
			"eval_count": 3,
			"total_duration": 1000
		}`

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.Method).To(Equal(http.MethodPost))
			Expect(r.URL.Path).To(Equal("/api/chat"))
			Expect(json.NewDecoder(r.Body).Decode(&received)).To(Succeed())

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(body))
		}))
		DeferCleanup(server.Close)
	})

	newClient := func() *ollama.Client {
		c, err := ollama.New(ollama.Config{BaseURL: server.URL + "/", Model: "llama3.2"})
		Expect(err).NotTo(HaveOccurred())
		return c
	}

	It("requires a base URL", func() {
		_, err := ollama.New(ollama.Config{})
		Expect(err).To(HaveOccurred())
	})

	It("sends a non-streaming chat request and maps usage", func() {
		maxTokens := 64
		req := llm.NewPromptRequest("", "Human: hi\nAI: ")
		req.MaxTokens = &maxTokens

		resp, err := newClient().Chat(context.Background(), req)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Message.GetText()).To(Equal("hello there"))
		Expect(resp.StopReason).To(Equal("stop"))
		Expect(resp.Usage.PromptTokens).To(Equal(10))
		Expect(resp.Usage.TotalTokens).To(Equal(13))

		Expect(received["model"]).To(Equal("llama3.2"))
		Expect(received["stream"]).To(BeFalse())
		Expect(received["options"].(map[string]any)["num_predict"]).To(BeNumerically("==", 64))
	})

	It("surfaces server errors", func() {
		status = http.StatusNotFound
		body = `{"error": "model 'nope' not found"}`

		_, err := newClient().Chat(context.Background(), llm.NewPromptRequest("nope", "hi"))
		Expect(err).To(MatchError(ContainSubstring("model 'nope' not found")))
	})
})
