package orchestrator_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parley/pkg/llm/gateway"
	"github.com/papercomputeco/parley/pkg/llm/provider"
	"github.com/papercomputeco/parley/pkg/orchestrator"
	"github.com/papercomputeco/parley/pkg/prompt"
	"github.com/papercomputeco/parley/pkg/retrieval"
	"github.com/papercomputeco/parley/pkg/storage"
	"github.com/papercomputeco/parley/pkg/storage/file"
	testutils "github.com/papercomputeco/parley/pkg/utils/test"
	"github.com/papercomputeco/parley/pkg/vector"
)

type recordingObserver struct {
	mu    sync.Mutex
	turns []orchestrator.PersistedTurn
}

func (r *recordingObserver) TurnPersisted(t orchestrator.PersistedTurn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns, t)
}

func (r *recordingObserver) Turns() []orchestrator.PersistedTurn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]orchestrator.PersistedTurn(nil), r.turns...)
}

var _ = Describe("Orchestrator", func() {
	var (
		ctx      context.Context
		dir      string
		store    *storage.Store
		mock     *testutils.MockProvider
		observer *recordingObserver
		orch     *orchestrator.Orchestrator
	)

	openStore := func() *storage.Store {
		driver, err := file.NewDriver(dir, nil)
		Expect(err).NotTo(HaveOccurred())
		return storage.NewStore(driver, nil)
	}

	newOrchestrator := func(cfg orchestrator.Config) *orchestrator.Orchestrator {
		if cfg.Store == nil {
			cfg.Store = store
		}
		if cfg.Model == nil {
			cfg.Model = gateway.New(gateway.Config{
				Primary: provider.Config{Provider: "ollama"},
				Factory: testutils.MockFactory(mock, nil),
			})
		}
		if cfg.Observer == nil {
			cfg.Observer = observer
		}
		o, err := orchestrator.New(cfg)
		Expect(err).NotTo(HaveOccurred())
		return o
	}

	BeforeEach(func() {
		ctx = context.Background()
		dir = GinkgoT().TempDir()
		store = openStore()
		mock = testutils.NewMockProvider()
		observer = &recordingObserver{}
		orch = newOrchestrator(orchestrator.Config{})
	})

	AfterEach(func() {
		Expect(orch.Close()).To(Succeed())
		Expect(store.Close()).To(Succeed())
	})

	Describe("New", func() {
		It("requires a store and a model", func() {
			_, err := orchestrator.New(orchestrator.Config{})
			Expect(err).To(HaveOccurred())

			_, err = orchestrator.New(orchestrator.Config{Store: store})
			Expect(err).To(HaveOccurred())
		})

		It("starts uninitialized and becomes ready on Init", func() {
			Expect(orch.State()).To(Equal(orchestrator.StateUninitialized))
			Expect(orch.Init(ctx)).To(Succeed())
			Expect(orch.State()).To(Equal(orchestrator.StateReady))
		})
	})

	Describe("Generate", func() {
		It("mints a new conversation id for an empty id", func() {
			res, err := orch.Generate(ctx, "Hello", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Response).To(Equal("ok"))

			_, parseErr := uuid.Parse(res.ConversationID)
			Expect(parseErr).NotTo(HaveOccurred())

			rec, err := store.Load(ctx, res.ConversationID)
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Turns).To(HaveLen(1))
			Expect(rec.Turns[0].Human).To(Equal("Hello"))
			Expect(rec.Turns[0].AI).To(Equal("ok"))
		})

		It("carries earlier turns into the next prompt", func() {
			first, err := orch.Generate(ctx, "My name is Zhang San", "")
			Expect(err).NotTo(HaveOccurred())

			_, err = orch.Generate(ctx, "What is my name?", first.ConversationID)
			Expect(err).NotTo(HaveOccurred())

			prompts := mock.Prompts()
			Expect(prompts).To(HaveLen(2))
			Expect(prompts[1]).To(ContainSubstring("My name is Zhang San"))
			Expect(prompts[1]).To(HaveSuffix("Human: What is my name?\nAI: "))
		})

		It("treats an unknown id as a new conversation", func() {
			res, err := orch.Generate(ctx, "hi", "nonexistent-id-123")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.ConversationID).To(Equal("nonexistent-id-123"))

			rec, err := store.Load(ctx, "nonexistent-id-123")
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Turns).To(HaveLen(1))
		})

		It("persists turns that survive a restart", func() {
			res, err := orch.Generate(ctx, "remember this", "durable")
			Expect(err).NotTo(HaveOccurred())

			fresh := openStore()
			defer fresh.Close()
			rec, err := fresh.Load(ctx, res.ConversationID)
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Turns).To(HaveLen(1))
			Expect(rec.Turns[0].Human).To(Equal("remember this"))
			Expect(rec.Turns[0].AI).To(Equal("ok"))
		})

		It("persists the placeholder for an empty reply", func() {
			mock.Reply = func(string) string { return "   " }

			res, err := orch.Generate(ctx, "say nothing", "quiet")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Response).To(Equal(gateway.Placeholder))

			rec, err := store.Load(ctx, "quiet")
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Turns[0].AI).To(Equal(gateway.Placeholder))
		})

		It("records nothing when the model fails", func() {
			_, err := orch.Generate(ctx, "first", "conv")
			Expect(err).NotTo(HaveOccurred())

			mock.SetFail(true)
			res, err := orch.Generate(ctx, "second", "conv")
			Expect(res).To(BeNil())

			var genErr *orchestrator.GenerationError
			Expect(errors.As(err, &genErr)).To(BeTrue())
			Expect(genErr.Stage).To(Equal(orchestrator.StageInvokingModel))
			Expect(genErr.ConversationID).To(Equal("conv"))

			var modelErr *gateway.ModelError
			Expect(errors.As(err, &modelErr)).To(BeTrue())
			Expect(errors.Is(err, testutils.ErrMockModel)).To(BeTrue())

			fresh := openStore()
			defer fresh.Close()
			rec, err := fresh.Load(ctx, "conv")
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Turns).To(HaveLen(1))
			Expect(observer.Turns()).To(HaveLen(1))
		})

		It("keeps the empty record of a minted id when the model fails", func() {
			mock.SetFail(true)

			_, err := orch.Generate(ctx, "hello", "")
			var genErr *orchestrator.GenerationError
			Expect(errors.As(err, &genErr)).To(BeTrue())
			Expect(genErr.ConversationID).NotTo(BeEmpty())

			ids, err := store.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(ConsistOf(genErr.ConversationID))

			rec, err := store.Load(ctx, genErr.ConversationID)
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Turns).To(BeEmpty())
		})

		It("fails at initialization when the model cannot be built", func() {
			GinkgoT().Setenv("ZHIPU_API_KEY", "")
			broken := newOrchestrator(orchestrator.Config{
				Model: gateway.New(gateway.Config{Primary: provider.Config{Provider: "zhipu"}}),
			})
			defer broken.Close()

			_, err := broken.Generate(ctx, "hello", "")
			var genErr *orchestrator.GenerationError
			Expect(errors.As(err, &genErr)).To(BeTrue())
			Expect(genErr.Stage).To(Equal(orchestrator.StageInitializing))

			var cfgErr *gateway.ConfigurationError
			Expect(errors.As(err, &cfgErr)).To(BeTrue())
			Expect(broken.State()).To(Equal(orchestrator.StateUninitialized))

			ids, err := store.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(BeEmpty())
		})

		It("abandons the call when the context is cancelled during invocation", func() {
			mock.Block = make(chan struct{})
			cctx, cancel := context.WithCancel(ctx)

			done := make(chan error, 1)
			go func() {
				_, err := orch.Generate(cctx, "slow", "cancelled")
				done <- err
			}()

			Eventually(mock.Prompts).Should(HaveLen(1))
			cancel()

			var err error
			Eventually(done).Should(Receive(&err))
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())

			rec, err := store.Load(ctx, "cancelled")
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Turns).To(BeEmpty())
			Expect(orch.HeldLocks()).To(Equal(0))
		})

		It("fails after Close", func() {
			Expect(orch.Close()).To(Succeed())
			_, err := orch.Generate(ctx, "hello", "")
			Expect(errors.Is(err, orchestrator.ErrClosed)).To(BeTrue())
			Expect(orch.State()).To(Equal(orchestrator.StateClosed))
		})

		It("notifies the observer with the turn sequence", func() {
			_, err := orch.Generate(ctx, "one", "seq", orchestrator.WithUserID("viewer-1"))
			Expect(err).NotTo(HaveOccurred())
			_, err = orch.Generate(ctx, "two", "seq", orchestrator.WithUserID("viewer-1"))
			Expect(err).NotTo(HaveOccurred())

			turns := observer.Turns()
			Expect(turns).To(HaveLen(2))
			Expect(turns[0].Seq).To(Equal(0))
			Expect(turns[1].Seq).To(Equal(1))
			Expect(turns[1].UserID).To(Equal("viewer-1"))
			Expect(turns[1].Human).To(Equal("two"))
			Expect(turns[1].AI).To(Equal("ok"))
		})
	})

	Describe("concurrency", func() {
		It("contributes exactly one turn per concurrent call on the same id", func() {
			const n = 20
			var wg sync.WaitGroup
			errs := make(chan error, n)
			for i := range n {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					defer GinkgoRecover()
					_, err := orch.Generate(ctx, fmt.Sprintf("msg %d", i), "shared")
					errs <- err
				}(i)
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				Expect(err).NotTo(HaveOccurred())
			}

			fresh := openStore()
			defer fresh.Close()
			rec, err := fresh.Load(ctx, "shared")
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Turns).To(HaveLen(n))
			Expect(orch.HeldLocks()).To(Equal(0))
		})

		It("never mixes turns across conversations", func() {
			mock.Reply = func(p string) string {
				lines := strings.Split(strings.TrimSpace(p), "\n")
				for i := len(lines) - 1; i >= 0; i-- {
					if after, ok := strings.CutPrefix(lines[i], "Human: "); ok {
						return "re: " + after
					}
				}
				return "?"
			}

			const perConv = 10
			var wg sync.WaitGroup
			for _, id := range []string{"alpha", "beta"} {
				for i := range perConv {
					wg.Add(1)
					go func(id string, i int) {
						defer wg.Done()
						defer GinkgoRecover()
						_, err := orch.Generate(ctx, fmt.Sprintf("%s-%d", id, i), id)
						Expect(err).NotTo(HaveOccurred())
					}(id, i)
				}
			}
			wg.Wait()

			for _, id := range []string{"alpha", "beta"} {
				rec, err := store.Load(ctx, id)
				Expect(err).NotTo(HaveOccurred())
				Expect(rec.Turns).To(HaveLen(perConv))
				for _, t := range rec.Turns {
					Expect(t.Human).To(HavePrefix(id + "-"))
					Expect(t.AI).To(Equal("re: " + t.Human))
				}
			}
		})
	})

	Describe("retrieval", func() {
		var (
			embedder *testutils.MockEmbedder
			driver   *testutils.MockVectorDriver
		)

		BeforeEach(func() {
			embedder = testutils.NewMockEmbedder()
			driver = testutils.NewMockVectorDriver()
			orch = newOrchestrator(orchestrator.Config{
				Retriever: retrieval.New(retrieval.Config{Embedder: embedder, Driver: driver}),
				TopK:      3,
			})
		})

		It("adds retrieved passages to the prompt", func() {
			Expect(driver.Add(ctx, []vector.Document{
				{ID: "fact", Content: "The stream starts at eight.", Embedding: []float32{0.1, 0.2, 0.3}},
			})).To(Succeed())

			_, err := orch.Generate(ctx, "When does the stream start?", "")
			Expect(err).NotTo(HaveOccurred())

			prompts := mock.Prompts()
			Expect(prompts).To(HaveLen(1))
			Expect(prompts[0]).To(HavePrefix(prompt.ContextHeader))
			Expect(prompts[0]).To(ContainSubstring("The stream starts at eight."))
		})

		It("searches with the explicit query and skips retrieval when asked", func() {
			_, err := orch.Generate(ctx, "long persona prompt", "", orchestrator.WithQuery("short"))
			Expect(err).NotTo(HaveOccurred())
			Expect(embedder.Calls()).To(Equal(1))

			_, err = orch.Generate(ctx, "hello", "", orchestrator.WithoutRetrieval())
			Expect(err).NotTo(HaveOccurred())
			Expect(embedder.Calls()).To(Equal(1))
		})

		It("still replies when retrieval fails", func() {
			embedder.FailAll = true
			driver.FailQuery = true

			res, err := orch.Generate(ctx, "hello", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Response).To(Equal("ok"))
			Expect(mock.Prompts()[0]).NotTo(ContainSubstring(prompt.ContextHeader))
		})
	})
})
