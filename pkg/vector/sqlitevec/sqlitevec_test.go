package sqlitevec_test

import (
	"context"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parley/pkg/logger"
	"github.com/papercomputeco/parley/pkg/vector"
	"github.com/papercomputeco/parley/pkg/vector/sqlitevec"
)

var _ = Describe("Driver", func() {
	var log *slog.Logger

	BeforeEach(func() {
		log = logger.Nop()
	})

	newDriver := func() *sqlitevec.Driver {
		driver, err := sqlitevec.NewDriver(sqlitevec.Config{
			DBPath:     ":memory:",
			Dimensions: 4,
		}, log)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(driver.Close)
		return driver
	}

	Describe("NewDriver", func() {
		It("should return an error when DBPath is empty", func() {
			_, err := sqlitevec.NewDriver(sqlitevec.Config{DBPath: ""}, log)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("database path is required"))
		})

		It("should create a driver with an in-memory database", func() {
			driver, err := sqlitevec.NewDriver(sqlitevec.Config{
				DBPath:     ":memory:",
				Dimensions: 4,
			}, log)
			Expect(err).NotTo(HaveOccurred())
			Expect(driver).NotTo(BeNil())
			Expect(driver.Close()).To(Succeed())
		})

		It("should error when dimension not specified", func() {
			_, err := sqlitevec.NewDriver(sqlitevec.Config{
				DBPath: ":memory:",
			}, log)
			Expect(err).To(MatchError(vector.ErrDimensions))
		})
	})

	Describe("Interface compliance", func() {
		It("should implement vector.Driver interface", func() {
			var _ vector.Driver = (*sqlitevec.Driver)(nil)
		})
	})

	Describe("Add", func() {
		var driver *sqlitevec.Driver

		BeforeEach(func() {
			driver = newDriver()
		})

		It("should do nothing when given empty docs", func() {
			Expect(driver.Add(context.Background(), []vector.Document{})).To(Succeed())
		})

		It("should store content and metadata", func() {
			err := driver.Add(context.Background(), []vector.Document{{
				ID:        "doc-1",
				Content:   "My name is Zhang San",
				Metadata:  map[string]string{"conversation_id": "c1", "role": "human"},
				Embedding: []float32{0.1, 0.2, 0.3, 0.4},
			}})
			Expect(err).NotTo(HaveOccurred())

			retrieved, err := driver.Get(context.Background(), []string{"doc-1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(retrieved).To(HaveLen(1))
			Expect(retrieved[0].Content).To(Equal("My name is Zhang San"))
			Expect(retrieved[0].Metadata).To(Equal(map[string]string{"conversation_id": "c1", "role": "human"}))
		})

		It("should update an existing document", func() {
			Expect(driver.Add(context.Background(), []vector.Document{
				{ID: "doc-1", Content: "old", Embedding: []float32{0.1, 0.1, 0.1, 0.1}},
			})).To(Succeed())
			Expect(driver.Add(context.Background(), []vector.Document{
				{ID: "doc-1", Content: "new", Embedding: []float32{0.9, 0.1, 0.1, 0.1}},
			})).To(Succeed())

			retrieved, err := driver.Get(context.Background(), []string{"doc-1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(retrieved).To(HaveLen(1))
			Expect(retrieved[0].Content).To(Equal("new"))
			Expect(retrieved[0].Embedding[0]).To(BeNumerically("~", 0.9, 0.001))
		})
	})

	Describe("Query", func() {
		var driver *sqlitevec.Driver

		BeforeEach(func() {
			driver = newDriver()
			Expect(driver.Add(context.Background(), []vector.Document{
				{ID: "x", Content: "x axis", Metadata: map[string]string{"user_id": "u1"}, Embedding: []float32{1, 0, 0, 0}},
				{ID: "xy", Content: "diagonal", Metadata: map[string]string{"user_id": "u2"}, Embedding: []float32{1, 1, 0, 0}},
				{ID: "y", Content: "y axis", Metadata: map[string]string{"user_id": "u1"}, Embedding: []float32{0, 1, 0, 0}},
				{ID: "neg", Content: "opposite", Embedding: []float32{-1, 0, 0, 0}},
			})).To(Succeed())
		})

		It("ranks by cosine similarity with score = 1 - distance", func() {
			results, err := driver.Query(context.Background(), []float32{2, 0, 0, 0}, 4, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(4))

			Expect(results[0].ID).To(Equal("x"))
			Expect(results[0].Content).To(Equal("x axis"))
			Expect(results[0].Score).To(BeNumerically("~", 1.0, 1e-4))
			Expect(results[1].ID).To(Equal("xy"))
			Expect(results[1].Score).To(BeNumerically("~", 0.7071, 1e-3))
			Expect(results[3].ID).To(Equal("neg"))
			Expect(results[3].Score).To(BeNumerically("~", -1.0, 1e-4))
		})

		It("should respect topK limit", func() {
			results, err := driver.Query(context.Background(), []float32{1, 0, 0, 0}, 2, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
		})

		It("should default topK to 10 when zero or negative", func() {
			results, err := driver.Query(context.Background(), []float32{1, 0, 0, 0}, 0, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(4))
		})

		It("applies exact-match metadata filters", func() {
			results, err := driver.Query(context.Background(), []float32{1, 1, 0, 0}, 10, map[string]string{"user_id": "u1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			for _, r := range results {
				Expect(r.Metadata).To(HaveKeyWithValue("user_id", "u1"))
			}
			Expect(results[0].Score).To(BeNumerically(">=", results[1].Score))
		})

		It("returns nothing when the filter matches no document", func() {
			results, err := driver.Query(context.Background(), []float32{1, 0, 0, 0}, 10, map[string]string{"user_id": "nobody"})
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(BeEmpty())
		})
	})

	Describe("Get", func() {
		var driver *sqlitevec.Driver

		BeforeEach(func() {
			driver = newDriver()
			Expect(driver.Add(context.Background(), []vector.Document{
				{ID: "doc-1", Embedding: []float32{0.1, 0.2, 0.3, 0.4}},
				{ID: "doc-2", Embedding: []float32{0.5, 0.6, 0.7, 0.8}},
			})).To(Succeed())
		})

		It("should return nil for empty IDs", func() {
			docs, err := driver.Get(context.Background(), []string{})
			Expect(err).NotTo(HaveOccurred())
			Expect(docs).To(BeNil())
		})

		It("should return embeddings with retrieved documents", func() {
			docs, err := driver.Get(context.Background(), []string{"doc-1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(docs).To(HaveLen(1))
			Expect(docs[0].Embedding).To(HaveLen(4))
			Expect(docs[0].Embedding[3]).To(BeNumerically("~", 0.4, 0.001))
		})

		It("should skip non-existent IDs", func() {
			docs, err := driver.Get(context.Background(), []string{"doc-1", "nonexistent"})
			Expect(err).NotTo(HaveOccurred())
			Expect(docs).To(HaveLen(1))
			Expect(docs[0].ID).To(Equal("doc-1"))
		})
	})

	Describe("Delete", func() {
		var driver *sqlitevec.Driver

		BeforeEach(func() {
			driver = newDriver()
			Expect(driver.Add(context.Background(), []vector.Document{
				{ID: "doc-1", Embedding: []float32{1, 0, 0, 0}},
				{ID: "doc-2", Embedding: []float32{0, 1, 0, 0}},
				{ID: "doc-3", Embedding: []float32{0, 0, 1, 0}},
			})).To(Succeed())
		})

		It("should not error when deleting non-existent IDs", func() {
			Expect(driver.Delete(context.Background(), []string{"nonexistent"})).To(Succeed())
		})

		It("should remove documents from query results after deletion", func() {
			Expect(driver.Delete(context.Background(), []string{"doc-3"})).To(Succeed())

			results, err := driver.Query(context.Background(), []float32{0, 0, 1, 0}, 10, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			for _, result := range results {
				Expect(result.ID).NotTo(Equal("doc-3"))
			}

			docs, err := driver.Get(context.Background(), []string{"doc-1", "doc-2", "doc-3"})
			Expect(err).NotTo(HaveOccurred())
			Expect(docs).To(HaveLen(2))
		})
	})
})
