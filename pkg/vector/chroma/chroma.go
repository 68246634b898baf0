// Package chroma provides a Chroma vector database driver implementation.
package chroma

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/papercomputeco/parley/pkg/vector"
)

const (
	// DefaultCollectionName is the default collection name for chat history.
	DefaultCollectionName = "chat_history"

	collectionsPath = "/api/v2/tenants/default_tenant/databases/default_database/collections"
)

// Driver implements vector.Driver using Chroma's REST API.
type Driver struct {
	collectionName string
	collectionID   string
	http           *resty.Client
	logger         *slog.Logger
}

// Config holds configuration for the Chroma driver.
type Config struct {
	// URL is the Chroma server URL (e.g., "http://localhost:8000").
	URL string

	// CollectionName is the name of the collection to use.
	// Defaults to DefaultCollectionName if empty.
	CollectionName string

	// MaxRetries bounds connection attempts while Chroma starts up.
	// Defaults to 1.
	MaxRetries int

	// RetryDelay is the initial delay between attempts, doubled each time
	// up to MaxRetryDelay.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

// NewDriver creates a new Chroma vector driver, getting or creating its
// collection with cosine distance.
func NewDriver(c Config, logger *slog.Logger) (*Driver, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("chroma URL is required")
	}

	collectionName := c.CollectionName
	if collectionName == "" {
		collectionName = DefaultCollectionName
	}

	d := &Driver{
		collectionName: collectionName,
		http: resty.New().
			SetBaseURL(strings.TrimRight(c.URL, "/")).
			SetTimeout(60*time.Second).
			SetHeader("Content-Type", "application/json"),
		logger: logger,
	}

	attempts := max(c.MaxRetries, 1)
	delay := c.RetryDelay
	if delay <= 0 {
		delay = time.Second
	}
	maxDelay := c.MaxRetryDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		collectionID, err := d.getOrCreateCollection(context.Background())
		if err == nil {
			d.collectionID = collectionID
			logger.Info("connected to Chroma",
				"url", c.URL,
				"collection", collectionName,
				"collection_id", collectionID,
			)
			return d, nil
		}

		lastErr = err
		if attempt < attempts {
			logger.Warn("chroma not ready, retrying", "attempt", attempt, "delay", delay, "error", err)
			time.Sleep(delay)
			delay = min(delay*2, maxDelay)
		}
	}

	return nil, fmt.Errorf("%w: collection %q after %d attempts: %v", vector.ErrConnection, collectionName, attempts, lastErr)
}

// getOrCreateCollection gets an existing collection or creates a new one.
func (d *Driver) getOrCreateCollection(ctx context.Context) (string, error) {
	var collection chromaCollection

	resp, err := d.http.R().
		SetContext(ctx).
		SetResult(&collection).
		Get(collectionsPath + "/" + d.collectionName)
	if err != nil {
		return "", fmt.Errorf("sending get request: %w", err)
	}
	if resp.StatusCode() == http.StatusOK {
		return collection.ID, nil
	}

	resp, err = d.http.R().
		SetContext(ctx).
		SetBody(chromaCreateCollectionRequest{
			Name:     d.collectionName,
			Metadata: map[string]any{"hnsw:space": "cosine"},
		}).
		SetResult(&collection).
		Post(collectionsPath)
	if err != nil {
		return "", fmt.Errorf("sending create request: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("failed to create collection: status %d: %s", resp.StatusCode(), resp.String())
	}

	return collection.ID, nil
}

func (d *Driver) collectionPath(op string) string {
	return collectionsPath + "/" + d.collectionID + "/" + op
}

// Add stores documents with their embeddings.
func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	req := chromaAddRequest{
		IDs:        make([]string, len(docs)),
		Embeddings: make([][]float32, len(docs)),
		Metadatas:  make([]map[string]string, len(docs)),
		Documents:  make([]string, len(docs)),
	}
	for i, doc := range docs {
		req.IDs[i] = doc.ID
		req.Embeddings[i] = doc.Embedding
		req.Metadatas[i] = doc.Metadata
		req.Documents[i] = doc.Content
	}

	resp, err := d.http.R().SetContext(ctx).SetBody(req).Post(d.collectionPath("upsert"))
	if err != nil {
		return fmt.Errorf("%w: sending upsert request: %v", vector.ErrConnection, err)
	}
	if resp.IsError() {
		return fmt.Errorf("failed to add documents: status %d: %s", resp.StatusCode(), resp.String())
	}

	d.logger.Debug("added documents to chroma", "count", len(docs))
	return nil
}

// whereClause converts an exact-match filter into Chroma's where syntax.
func whereClause(filter map[string]string) map[string]any {
	switch len(filter) {
	case 0:
		return nil
	case 1:
		for k, v := range filter {
			return map[string]any{k: map[string]any{"$eq": v}}
		}
	}

	clauses := make([]map[string]any, 0, len(filter))
	for k, v := range filter {
		clauses = append(clauses, map[string]any{k: map[string]any{"$eq": v}})
	}
	return map[string]any{"$and": clauses}
}

// Query finds the topK most similar documents to the given embedding.
func (d *Driver) Query(ctx context.Context, embedding []float32, topK int, filter map[string]string) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = 10
	}

	var out chromaQueryResponse
	resp, err := d.http.R().
		SetContext(ctx).
		SetBody(chromaQueryRequest{
			QueryEmbeddings: [][]float32{embedding},
			NResults:        topK,
			Include:         []string{"metadatas", "documents", "distances"},
			Where:           whereClause(filter),
		}).
		SetResult(&out).
		Post(d.collectionPath("query"))
	if err != nil {
		return nil, fmt.Errorf("%w: sending query request: %v", vector.ErrConnection, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("failed to query: status %d: %s", resp.StatusCode(), resp.String())
	}

	// Only one query embedding is sent, so only the first group matters.
	if len(out.IDs) == 0 || len(out.IDs[0]) == 0 {
		return nil, nil
	}

	results := make([]vector.QueryResult, 0, len(out.IDs[0]))
	for i, id := range out.IDs[0] {
		result := vector.QueryResult{Document: vector.Document{ID: id}}
		if len(out.Metadatas) > 0 && i < len(out.Metadatas[0]) {
			result.Metadata = out.Metadatas[0][i]
		}
		if len(out.Documents) > 0 && i < len(out.Documents[0]) {
			result.Content = out.Documents[0][i]
		}
		if len(out.Distances) > 0 && i < len(out.Distances[0]) {
			// Collection uses hnsw:space=cosine.
			result.Score = 1 - out.Distances[0][i]
		}
		results = append(results, result)
	}

	d.logger.Debug("queried chroma", "results", len(results))
	return results, nil
}

// Get retrieves documents by their IDs.
func (d *Driver) Get(ctx context.Context, ids []string) ([]vector.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var out chromaGetResponse
	resp, err := d.http.R().
		SetContext(ctx).
		SetBody(chromaGetRequest{IDs: ids, Include: []string{"metadatas", "documents", "embeddings"}}).
		SetResult(&out).
		Post(d.collectionPath("get"))
	if err != nil {
		return nil, fmt.Errorf("%w: sending get request: %v", vector.ErrConnection, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("failed to get documents: status %d: %s", resp.StatusCode(), resp.String())
	}

	docs := make([]vector.Document, len(out.IDs))
	for i, id := range out.IDs {
		docs[i].ID = id
		if i < len(out.Metadatas) {
			docs[i].Metadata = out.Metadatas[i]
		}
		if i < len(out.Documents) {
			docs[i].Content = out.Documents[i]
		}
		if i < len(out.Embeddings) {
			docs[i].Embedding = out.Embeddings[i]
		}
	}

	return docs, nil
}

// Delete removes documents by their IDs.
func (d *Driver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	resp, err := d.http.R().SetContext(ctx).SetBody(chromaDeleteRequest{IDs: ids}).Post(d.collectionPath("delete"))
	if err != nil {
		return fmt.Errorf("%w: sending delete request: %v", vector.ErrConnection, err)
	}
	if resp.IsError() {
		return fmt.Errorf("failed to delete documents: status %d: %s", resp.StatusCode(), resp.String())
	}

	d.logger.Debug("deleted documents from chroma", "count", len(ids))
	return nil
}

// Close releases resources held by the driver.
func (d *Driver) Close() error {
	return nil
}

var _ vector.Driver = (*Driver)(nil)
