// Package sqlitevec stores embeddings in a local SQLite database through the
// sqlite-vec extension.
package sqlitevec

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/parley/pkg/vector"
)

const defaultTopK = 10

// Config holds configuration for the sqlite-vec driver.
type Config struct {
	// DBPath is the database file; ":memory:" keeps everything in process.
	DBPath string

	// Dimensions fixes the vec0 column width when the table is created.
	Dimensions uint
}

// Driver implements vector.Driver. Document text and metadata live in
// vec_documents; vec_embeddings is a vec0 table keyed by the same rowid.
type Driver struct {
	db     *sql.DB
	logger *slog.Logger
}

const documentsDDL = `
CREATE TABLE IF NOT EXISTS vec_documents (
	rowid    INTEGER PRIMARY KEY AUTOINCREMENT,
	doc_id   TEXT NOT NULL UNIQUE,
	content  TEXT NOT NULL DEFAULT '',
	metadata TEXT NOT NULL DEFAULT '{}'
)`

func NewDriver(c Config, logger *slog.Logger) (*Driver, error) {
	sqlite_vec.Auto()

	if c.DBPath == "" {
		return nil, errors.New("database path is required")
	}
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("sqlite-vec: %w", vector.ErrDimensions)
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection keeps ":memory:" coherent and serializes writers.
	db.SetMaxOpenConns(1)

	version, err := migrate(db, c.Dimensions)
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("sqlite-vec vector driver initialized",
		"db_path", c.DBPath,
		"dimensions", c.Dimensions,
		"vec_version", version,
	)
	return &Driver{db: db, logger: logger}, nil
}

func migrate(db *sql.DB, dims uint) (string, error) {
	var version string
	if err := db.QueryRow("SELECT vec_version()").Scan(&version); err != nil {
		return "", fmt.Errorf("sqlite-vec not available: %w", err)
	}
	if _, err := db.Exec(documentsDDL); err != nil {
		return "", fmt.Errorf("creating documents table: %w", err)
	}
	vecDDL := fmt.Sprintf(
		"CREATE VIRTUAL TABLE IF NOT EXISTS vec_embeddings USING vec0(embedding float[%d] distance_metric=cosine)",
		dims,
	)
	if _, err := db.Exec(vecDDL); err != nil {
		return "", fmt.Errorf("creating vec0 table: %w", err)
	}
	return version, nil
}

// Add upserts docs in one transaction. vec0 rows cannot be updated in place,
// so a replaced document has its embedding row deleted and reinserted.
func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, doc := range docs {
		if err := upsert(ctx, tx, doc); err != nil {
			return fmt.Errorf("storing document %s: %w", doc.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	d.logger.Debug("added documents to sqlite-vec", "count", len(docs))
	return nil
}

func upsert(ctx context.Context, tx *sql.Tx, doc vector.Document) error {
	meta, err := encodeMetadata(doc.Metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	var rowID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO vec_documents(doc_id, content, metadata) VALUES (?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET content = excluded.content, metadata = excluded.metadata
		RETURNING rowid
	`, doc.ID, doc.Content, meta).Scan(&rowID)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM vec_embeddings WHERE rowid = ?`, rowID); err != nil {
		return fmt.Errorf("clearing embedding: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO vec_embeddings(rowid, embedding) VALUES (?, ?)`,
		rowID, encodeVector(doc.Embedding),
	); err != nil {
		return fmt.Errorf("inserting embedding: %w", err)
	}
	return nil
}

// Query returns the topK nearest documents. An unfiltered query uses the
// vec0 KNN index; a filtered one scores every matching document with
// vec_distance_cosine so the filter never shrinks the result below topK.
func (d *Driver) Query(ctx context.Context, embedding []float32, topK int, filter map[string]string) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = defaultTopK
	}

	query, args := knnQuery(encodeVector(embedding), topK)
	if len(filter) > 0 {
		query, args = scanQuery(encodeVector(embedding), topK, filter)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var results []vector.QueryResult
	for rows.Next() {
		var (
			r        vector.QueryResult
			meta     string
			distance float64
		)
		if err := rows.Scan(&r.ID, &r.Content, &meta, &distance); err != nil {
			return nil, fmt.Errorf("scanning query result: %w", err)
		}
		r.Metadata = decodeMetadata(meta)
		r.Score = float32(1 - distance)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating query results: %w", err)
	}

	d.logger.Debug("queried sqlite-vec", "results", len(results), "filtered", len(filter) > 0)
	return results, nil
}

func knnQuery(blob []byte, topK int) (string, []any) {
	return `
		SELECT d.doc_id, d.content, d.metadata, ve.distance
		FROM vec_embeddings ve
		JOIN vec_documents d ON d.rowid = ve.rowid
		WHERE ve.embedding MATCH ? AND ve.k = ?
		ORDER BY ve.distance
	`, []any{blob, topK}
}

func scanQuery(blob []byte, topK int, filter map[string]string) (string, []any) {
	args := []any{blob}
	conds := make([]string, 0, len(filter))
	for _, k := range slices.Sorted(maps.Keys(filter)) {
		conds = append(conds, "json_extract(d.metadata, ?) = ?")
		args = append(args, fmt.Sprintf("$.%q", k), filter[k])
	}
	args = append(args, topK)

	return `
		SELECT d.doc_id, d.content, d.metadata, vec_distance_cosine(ve.embedding, ?) AS distance
		FROM vec_embeddings ve
		JOIN vec_documents d ON d.rowid = ve.rowid
		WHERE ` + strings.Join(conds, " AND ") + `
		ORDER BY distance
		LIMIT ?
	`, args
}

// Get returns the stored documents among ids, embeddings included.
// Unknown ids are skipped.
func (d *Driver) Get(ctx context.Context, ids []string) ([]vector.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	in, args := inList(ids)
	rows, err := d.db.QueryContext(ctx, `
		SELECT d.doc_id, d.content, d.metadata, ve.embedding
		FROM vec_documents d
		JOIN vec_embeddings ve ON ve.rowid = d.rowid
		WHERE d.doc_id IN (`+in+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []vector.Document
	for rows.Next() {
		var (
			doc  vector.Document
			meta string
			blob []byte
		)
		if err := rows.Scan(&doc.ID, &doc.Content, &meta, &blob); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		doc.Metadata = decodeMetadata(meta)
		if doc.Embedding, err = decodeVector(blob); err != nil {
			return nil, fmt.Errorf("document %s: %w", doc.ID, err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

// Delete removes ids from both tables. Unknown ids are ignored.
func (d *Driver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	in, args := inList(ids)
	rowIDs, err := collectRowIDs(ctx, tx, `SELECT rowid FROM vec_documents WHERE doc_id IN (`+in+`)`, args)
	if err != nil {
		return err
	}
	for _, id := range rowIDs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM vec_embeddings WHERE rowid = ?`, id); err != nil {
			return fmt.Errorf("deleting embedding %d: %w", id, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM vec_documents WHERE doc_id IN (`+in+`)`, args...); err != nil {
		return fmt.Errorf("deleting documents: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	d.logger.Debug("deleted documents from sqlite-vec", "count", len(rowIDs))
	return nil
}

func collectRowIDs(ctx context.Context, tx *sql.Tx, query string, args []any) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("looking up rowids: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning rowid: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (d *Driver) Close() error {
	return d.db.Close()
}

var _ vector.Driver = (*Driver)(nil)
