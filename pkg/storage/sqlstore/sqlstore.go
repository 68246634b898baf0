// Package sqlstore implements storage.Driver over any database/sql backend
// using ent's SQL builder. The sqlite, libsql and postgres packages embed it.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/papercomputeco/parley/pkg/conversation"
	"github.com/papercomputeco/parley/pkg/storage"
)

const (
	conversationsTable = "conversations"
	turnsTable         = "turns"

	// insertBatchSize keeps each turn insert at 800 bind variables, under
	// SQLite's historic limit of 999.
	insertBatchSize = 200
)

// schema is portable across SQLite and PostgreSQL.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		updated_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS turns (
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		human TEXT NOT NULL,
		ai TEXT NOT NULL,
		PRIMARY KEY (conversation_id, seq)
	)`,
}

// Driver stores one row per conversation and one row per turn.
type Driver struct {
	drv     *entsql.Driver
	dialect string
}

// New wraps an open database handle and creates the schema if needed.
func New(ctx context.Context, db *sql.DB, dialectName string) (*Driver, error) {
	switch dialectName {
	case dialect.SQLite, dialect.Postgres:
	default:
		return nil, fmt.Errorf("unsupported sql dialect: %q", dialectName)
	}

	d := &Driver{
		drv:     entsql.OpenDB(dialectName, db),
		dialect: dialectName,
	}

	for _, stmt := range schema {
		if err := d.drv.Exec(ctx, stmt, []any{}, nil); err != nil {
			d.drv.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return d, nil
}

// Load returns the stored turns for id in order, or an empty record.
func (d *Driver) Load(ctx context.Context, id string) (*conversation.Record, error) {
	if id == "" {
		return nil, storage.NewError("load", id, storage.ErrEmptyID)
	}

	query, args := entsql.Dialect(d.dialect).
		Select("human", "ai").
		From(entsql.Table(turnsTable)).
		Where(entsql.EQ("conversation_id", id)).
		OrderBy("seq").
		Query()

	rows := &entsql.Rows{}
	if err := d.drv.Query(ctx, query, args, rows); err != nil {
		return nil, storage.NewError("load", id, err)
	}
	defer rows.Close()

	rec := conversation.New(id)
	for rows.Next() {
		var t conversation.Turn
		if err := rows.Scan(&t.Human, &t.AI); err != nil {
			return nil, storage.NewError("load", id, err)
		}
		rec.Turns = append(rec.Turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.NewError("load", id, err)
	}

	return rec, nil
}

// Save replaces every turn of rec inside one transaction.
func (d *Driver) Save(ctx context.Context, rec *conversation.Record) error {
	if rec == nil {
		return errors.New("cannot store nil record")
	}
	if rec.ID == "" {
		return storage.NewError("save", "", storage.ErrEmptyID)
	}

	tx, err := d.drv.Tx(ctx)
	if err != nil {
		return storage.NewError("save", rec.ID, err)
	}

	if err := d.save(ctx, tx, rec); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			err = errors.Join(err, rbErr)
		}
		return storage.NewError("save", rec.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return storage.NewError("save", rec.ID, err)
	}
	return nil
}

func (d *Driver) save(ctx context.Context, tx dialect.Tx, rec *conversation.Record) error {
	b := entsql.Dialect(d.dialect)

	query, args := b.Insert(conversationsTable).
		Columns("id", "updated_at").
		Values(rec.ID, time.Now().UnixMilli()).
		OnConflict(
			entsql.ConflictColumns("id"),
			entsql.ResolveWithNewValues(),
		).
		Query()
	if err := tx.Exec(ctx, query, args, nil); err != nil {
		return fmt.Errorf("upserting conversation: %w", err)
	}

	query, args = b.Delete(turnsTable).
		Where(entsql.EQ("conversation_id", rec.ID)).
		Query()
	if err := tx.Exec(ctx, query, args, nil); err != nil {
		return fmt.Errorf("clearing turns: %w", err)
	}

	for start := 0; start < len(rec.Turns); start += insertBatchSize {
		end := min(start+insertBatchSize, len(rec.Turns))

		insert := b.Insert(turnsTable).Columns("conversation_id", "seq", "human", "ai")
		for i := start; i < end; i++ {
			insert.Values(rec.ID, i, rec.Turns[i].Human, rec.Turns[i].AI)
		}
		query, args = insert.Query()
		if err := tx.Exec(ctx, query, args, nil); err != nil {
			return fmt.Errorf("inserting turns %d-%d: %w", start, end-1, err)
		}
	}

	return nil
}

// List returns every conversation id in lexical order.
func (d *Driver) List(ctx context.Context) ([]string, error) {
	query, args := entsql.Dialect(d.dialect).
		Select("id").
		From(entsql.Table(conversationsTable)).
		OrderBy("id").
		Query()

	rows := &entsql.Rows{}
	if err := d.drv.Query(ctx, query, args, rows); err != nil {
		return nil, storage.NewError("list", "", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storage.NewError("list", "", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.NewError("list", "", err)
	}
	return ids, nil
}

// Close closes the underlying database handle.
func (d *Driver) Close() error {
	return d.drv.Close()
}
