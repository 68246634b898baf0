// Package search provides shared search types and logic for semantic search
// over indexed conversations and ingested documents. It is used by both the
// REST API endpoint and the MCP server tool.
package search

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/papercomputeco/parley/pkg/conversation"
	"github.com/papercomputeco/parley/pkg/logger"
	"github.com/papercomputeco/parley/pkg/retrieval"
)

const DefaultTopK = 5

var (
	// ErrNotConfigured is returned when no vector store and embedder are set up.
	ErrNotConfigured = errors.New("search is not configured: vector store and embedder are required")

	// ErrEmptyQuery is returned for a blank query.
	ErrEmptyQuery = errors.New("query is required")
)

// Retriever is implemented by *retrieval.Gateway.
type Retriever interface {
	Enabled() bool
	Search(ctx context.Context, query string, topK int, filter map[string]string) []retrieval.Passage
}

// HistoryLoader loads a conversation record. *orchestrator.Orchestrator
// implements it.
type HistoryLoader interface {
	History(ctx context.Context, id string) (*conversation.Record, error)
}

// SearchInput represents the input arguments for a search request.
type SearchInput struct {
	Query          string `json:"query"`
	TopK           int    `json:"top_k,omitempty"`
	UserID         string `json:"user_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Source         string `json:"source,omitempty"`
}

// SearchResult represents a single search result.
type SearchResult struct {
	ID             string  `json:"id"`
	Score          float32 `json:"score"`
	Role           string  `json:"role,omitempty"`
	Source         string  `json:"source,omitempty"`
	ConversationID string  `json:"conversation_id,omitempty"`
	UserID         string  `json:"user_id,omitempty"`
	Preview        string  `json:"preview"`

	// Conversation is the full record the matched turn belongs to.
	Conversation []conversation.Turn `json:"conversation,omitempty"`
}

// SearchOutput represents the output of a search operation.
type SearchOutput struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
	Count   int            `json:"count"`
}

// Searcher runs searches against a retriever and expands conversation hits.
type Searcher struct {
	retriever Retriever
	history   HistoryLoader
	logger    *slog.Logger
}

// NewSearcher builds a Searcher. history may be nil, in which case results
// carry no conversation context.
func NewSearcher(retriever Retriever, history HistoryLoader, log *slog.Logger) *Searcher {
	if log == nil {
		log = logger.Nop()
	}
	return &Searcher{retriever: retriever, history: history, logger: log}
}

// Enabled reports whether searches can return anything.
func (s *Searcher) Enabled() bool {
	return s != nil && s.retriever != nil && s.retriever.Enabled()
}

// Search embeds the query, finds the closest passages and loads the
// conversation behind each chat-history hit.
func (s *Searcher) Search(ctx context.Context, in SearchInput) (*SearchOutput, error) {
	if !s.Enabled() {
		return nil, ErrNotConfigured
	}

	query := strings.TrimSpace(in.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	topK := in.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	s.logger.Debug("search request", "query", query, "top_k", topK)

	passages := s.retriever.Search(ctx, query, topK, filterFor(in))

	results := make([]SearchResult, 0, len(passages))
	histories := make(map[string][]conversation.Turn)
	for _, p := range passages {
		result := SearchResult{
			ID:             p.SourceID,
			Score:          p.Score,
			Role:           p.Metadata[retrieval.MetaRole],
			Source:         p.Metadata[retrieval.MetaSource],
			ConversationID: p.Metadata[retrieval.MetaConversationID],
			UserID:         p.Metadata[retrieval.MetaUserID],
			Preview:        p.Content,
		}

		if result.ConversationID != "" && s.history != nil {
			turns, ok := histories[result.ConversationID]
			if !ok {
				rec, err := s.history.History(ctx, result.ConversationID)
				if err != nil {
					s.logger.Warn("failed to load conversation for result",
						"conversation_id", result.ConversationID,
						"error", err,
					)
				} else {
					turns = rec.Turns
				}
				histories[result.ConversationID] = turns
			}
			result.Conversation = turns
		}

		results = append(results, result)
	}

	return &SearchOutput{
		Query:   query,
		Results: results,
		Count:   len(results),
	}, nil
}

func filterFor(in SearchInput) map[string]string {
	filter := map[string]string{}
	if in.UserID != "" {
		filter[retrieval.MetaUserID] = in.UserID
	}
	if in.ConversationID != "" {
		filter[retrieval.MetaConversationID] = in.ConversationID
	}
	if in.Source != "" {
		filter[retrieval.MetaSource] = in.Source
	}
	if len(filter) == 0 {
		return nil
	}
	return filter
}
