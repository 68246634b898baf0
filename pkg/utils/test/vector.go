package testutils

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	"github.com/papercomputeco/parley/pkg/vector"
)

// ErrMockVector is returned by MockVectorDriver when FailQuery or FailAdd is set.
var ErrMockVector = errors.New("mock vector store failure")

// MockVectorDriver is an in-memory vector driver scoring by cosine similarity.
type MockVectorDriver struct {
	FailQuery bool
	FailAdd   bool

	mu        sync.Mutex
	documents map[string]vector.Document
}

func NewMockVectorDriver() *MockVectorDriver {
	return &MockVectorDriver{
		documents: make(map[string]vector.Document),
	}
}

func (m *MockVectorDriver) Add(_ context.Context, docs []vector.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAdd {
		return ErrMockVector
	}
	for _, d := range docs {
		m.documents[d.ID] = d
	}
	return nil
}

func (m *MockVectorDriver) Query(_ context.Context, embedding []float32, topK int, filter map[string]string) ([]vector.QueryResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailQuery {
		return nil, ErrMockVector
	}

	results := make([]vector.QueryResult, 0, len(m.documents))
	for _, d := range m.documents {
		if !vector.Matches(d.Metadata, filter) {
			continue
		}
		results = append(results, vector.QueryResult{Document: d, Score: cosine(embedding, d.Embedding)})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (m *MockVectorDriver) Get(_ context.Context, ids []string) ([]vector.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []vector.Document
	for _, id := range ids {
		if d, ok := m.documents[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *MockVectorDriver) Delete(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.documents, id)
	}
	return nil
}

func (m *MockVectorDriver) Close() error {
	return nil
}

// Documents returns a snapshot of every stored document.
func (m *MockVectorDriver) Documents() []vector.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]vector.Document, 0, len(m.documents))
	for _, d := range m.documents {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range min(len(a), len(b)) {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
