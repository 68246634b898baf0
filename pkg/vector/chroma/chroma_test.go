package chroma_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parley/pkg/logger"
	"github.com/papercomputeco/parley/pkg/vector"
	"github.com/papercomputeco/parley/pkg/vector/chroma"
)

var _ = Describe("Driver", func() {
	var log *slog.Logger

	BeforeEach(func() {
		log = logger.Nop()
	})

	Describe("NewDriver", func() {
		It("should return an error when URL is empty", func() {
			_, err := chroma.NewDriver(chroma.Config{URL: ""}, log)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("chroma URL is required"))
		})

		It("creates the collection with cosine distance when missing", func() {
			var created map[string]any
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				defer GinkgoRecover()
				w.Header().Set("Content-Type", "application/json")
				if r.Method == http.MethodGet {
					http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
					return
				}
				Expect(json.NewDecoder(r.Body).Decode(&created)).To(Succeed())
				_, _ = w.Write([]byte(`{"id": "col-1", "name": "chat_history"}`))
			}))
			defer server.Close()

			_, err := chroma.NewDriver(chroma.Config{URL: server.URL}, log)
			Expect(err).NotTo(HaveOccurred())
			Expect(created).To(HaveKeyWithValue("name", "chat_history"))
			Expect(created["metadata"]).To(HaveKeyWithValue("hnsw:space", "cosine"))
		})

		It("should succeed after retrying when Chroma becomes available", func() {
			var attempts atomic.Int32

			// Each attempt issues a GET and then a POST; fail the first two
			// attempts entirely.
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if attempts.Add(1) <= 4 {
					http.Error(w, "service unavailable", http.StatusServiceUnavailable)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(map[string]string{"id": "test-collection-id", "name": "chat_history"})
			}))
			defer server.Close()

			driver, err := chroma.NewDriver(chroma.Config{
				URL:           server.URL,
				MaxRetries:    5,
				RetryDelay:    10 * time.Millisecond,
				MaxRetryDelay: 50 * time.Millisecond,
			}, log)
			Expect(err).NotTo(HaveOccurred())
			Expect(driver).NotTo(BeNil())
			Expect(attempts.Load()).To(BeNumerically(">=", int32(5)))
		})

		It("should return an error after exhausting all retries", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			}))
			defer server.Close()

			_, err := chroma.NewDriver(chroma.Config{
				URL:           server.URL,
				MaxRetries:    3,
				RetryDelay:    10 * time.Millisecond,
				MaxRetryDelay: 50 * time.Millisecond,
			}, log)
			Expect(err).To(MatchError(vector.ErrConnection))
			Expect(err.Error()).To(ContainSubstring("after 3 attempts"))
		})
	})

	Describe("Query", func() {
		var (
			mu    sync.Mutex
			query map[string]any
		)

		newServer := func() *httptest.Server {
			return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				defer GinkgoRecover()
				w.Header().Set("Content-Type", "application/json")
				switch {
				case r.Method == http.MethodGet:
					_, _ = w.Write([]byte(`{"id": "col-1", "name": "chat_history"}`))
				case strings.HasSuffix(r.URL.Path, "/col-1/query"):
					mu.Lock()
					Expect(json.NewDecoder(r.Body).Decode(&query)).To(Succeed())
					mu.Unlock()
					_, _ = w.Write([]byte(`{
						"ids": [["a", "b"]],
						"distances": [[0.1, 0.4]],
						"documents": [["first", "second"]],
						"metadatas": [[{"role": "human"}, {"role": "ai"}]]
					}`))
				default:
					w.WriteHeader(http.StatusNotFound)
				}
			}))
		}

		It("converts cosine distance to similarity", func() {
			server := newServer()
			defer server.Close()

			d, err := chroma.NewDriver(chroma.Config{URL: server.URL}, log)
			Expect(err).NotTo(HaveOccurred())

			results, err := d.Query(context.Background(), []float32{1, 0}, 2, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			Expect(results[0].ID).To(Equal("a"))
			Expect(results[0].Content).To(Equal("first"))
			Expect(results[0].Metadata).To(HaveKeyWithValue("role", "human"))
			Expect(results[0].Score).To(BeNumerically("~", 0.9, 1e-6))
			Expect(results[1].Score).To(BeNumerically("~", 0.6, 1e-6))

			mu.Lock()
			defer mu.Unlock()
			Expect(query).NotTo(HaveKey("where"))
		})

		It("sends exact-match filters as a where clause", func() {
			server := newServer()
			defer server.Close()

			d, err := chroma.NewDriver(chroma.Config{URL: server.URL}, log)
			Expect(err).NotTo(HaveOccurred())

			_, err = d.Query(context.Background(), []float32{1, 0}, 2, map[string]string{"user_id": "u1"})
			Expect(err).NotTo(HaveOccurred())

			mu.Lock()
			defer mu.Unlock()
			Expect(query["where"]).To(Equal(map[string]any{"user_id": map[string]any{"$eq": "u1"}}))
		})
	})

	Describe("Interface compliance", func() {
		It("should implement vector.Driver interface", func() {
			var _ vector.Driver = (*chroma.Driver)(nil)
		})
	})
})
