// Package retrieval looks up passages relevant to a query and feeds the
// vector store with conversation turns and ingested documents.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/papercomputeco/parley/pkg/embeddings"
	"github.com/papercomputeco/parley/pkg/logger"
	"github.com/papercomputeco/parley/pkg/vector"
)

// Metadata keys written alongside indexed documents.
const (
	MetaConversationID = "conversation_id"
	MetaRole           = "role"
	MetaUserID         = "user_id"
	MetaSource         = "source"
	MetaChunk          = "chunk"

	RoleHuman = "human"
	RoleAI    = "ai"
)

// Passage is one retrieved piece of context.
type Passage struct {
	Content string

	// Score is cosine similarity; higher is more relevant.
	Score float32

	SourceID string
	Metadata map[string]string
}

// Error records a recovered retrieval failure. Search never returns it; it
// is logged and the search degrades to no passages.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("retrieval %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Config wires a Gateway to its embedder and vector store.
type Config struct {
	Embedder embeddings.Embedder
	Driver   vector.Driver

	// ChunkSize and ChunkOverlap are in runes; see Chunk.
	ChunkSize    int
	ChunkOverlap int

	Logger *slog.Logger
}

// Gateway is safe for concurrent use if its embedder and driver are.
type Gateway struct {
	embedder     embeddings.Embedder
	driver       vector.Driver
	chunkSize    int
	chunkOverlap int
	logger       *slog.Logger
}

func New(cfg Config) *Gateway {
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	return &Gateway{
		embedder:     cfg.Embedder,
		driver:       cfg.Driver,
		chunkSize:    cfg.ChunkSize,
		chunkOverlap: cfg.ChunkOverlap,
		logger:       cfg.Logger,
	}
}

// Enabled reports whether the gateway has a backend to search.
func (g *Gateway) Enabled() bool {
	return g != nil && g.embedder != nil && g.driver != nil
}

// Search returns up to topK passages ordered by descending score. Backend
// failures are logged and yield no passages; a nil or disabled gateway
// always returns none.
func (g *Gateway) Search(ctx context.Context, query string, topK int, filter map[string]string) []Passage {
	if !g.Enabled() || topK <= 0 {
		return nil
	}

	emb, err := g.embedder.Embed(ctx, query)
	if err != nil {
		g.logger.Warn("retrieval degraded", "error", &Error{Op: "embed", Err: err})
		return nil
	}

	results, err := g.driver.Query(ctx, emb, topK, filter)
	if err != nil {
		g.logger.Warn("retrieval degraded", "error", &Error{Op: "query", Err: err})
		return nil
	}

	passages := make([]Passage, 0, len(results))
	for _, r := range results {
		passages = append(passages, Passage{
			Content:  r.Content,
			Score:    r.Score,
			SourceID: r.ID,
			Metadata: r.Metadata,
		})
	}
	sort.SliceStable(passages, func(i, j int) bool {
		return passages[i].Score > passages[j].Score
	})
	if len(passages) > topK {
		passages = passages[:topK]
	}

	g.logger.Debug("retrieved passages", "count", len(passages))
	return passages
}

// Turn is one persisted exchange to index.
type Turn struct {
	ConversationID string
	UserID         string

	// Seq is the zero-based position of the turn in its conversation.
	Seq   int
	Human string
	AI    string
}

// TurnDocumentID returns the vector document ID for one side of a turn.
func TurnDocumentID(conversationID string, seq int, role string) string {
	return conversationID + ":" + strconv.Itoa(seq) + ":" + role
}

// IndexTurn embeds both sides of t and stores them with conversation
// metadata. Empty sides are skipped.
func (g *Gateway) IndexTurn(ctx context.Context, t Turn) error {
	if !g.Enabled() {
		return nil
	}

	docs := make([]vector.Document, 0, 2)
	for _, side := range []struct{ role, text string }{
		{RoleHuman, t.Human},
		{RoleAI, t.AI},
	} {
		if side.text == "" {
			continue
		}

		emb, err := g.embedder.Embed(ctx, side.text)
		if err != nil {
			return &Error{Op: "embed", Err: err}
		}

		meta := map[string]string{
			MetaConversationID: t.ConversationID,
			MetaRole:           side.role,
		}
		if t.UserID != "" {
			meta[MetaUserID] = t.UserID
		}

		docs = append(docs, vector.Document{
			ID:        TurnDocumentID(t.ConversationID, t.Seq, side.role),
			Content:   side.text,
			Metadata:  meta,
			Embedding: emb,
		})
	}

	if err := g.driver.Add(ctx, docs); err != nil {
		return &Error{Op: "add", Err: err}
	}
	return nil
}

// Ingest splits text into overlapping chunks, embeds each and stores them
// under source. It returns the number of chunks stored.
func (g *Gateway) Ingest(ctx context.Context, source, text string) (int, error) {
	if !g.Enabled() {
		return 0, &Error{Op: "ingest", Err: fmt.Errorf("retrieval is not configured")}
	}

	chunks := Chunk(text, g.chunkSize, g.chunkOverlap)
	docs := make([]vector.Document, 0, len(chunks))
	for i, c := range chunks {
		emb, err := g.embedder.Embed(ctx, c)
		if err != nil {
			return 0, &Error{Op: "embed", Err: fmt.Errorf("chunk %d of %s: %w", i, source, err)}
		}
		docs = append(docs, vector.Document{
			ID:      source + "#" + strconv.Itoa(i),
			Content: c,
			Metadata: map[string]string{
				MetaSource: source,
				MetaChunk:  strconv.Itoa(i),
			},
			Embedding: emb,
		})
	}

	if err := g.driver.Add(ctx, docs); err != nil {
		return 0, &Error{Op: "add", Err: err}
	}

	g.logger.Info("ingested document", "source", source, "chunks", len(docs))
	return len(docs), nil
}
