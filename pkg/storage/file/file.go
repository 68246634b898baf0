// Package file provides the default conversation store: one JSON document
// per conversation in a directory, replaced atomically on every write.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/papercomputeco/parley/pkg/conversation"
	"github.com/papercomputeco/parley/pkg/logger"
	"github.com/papercomputeco/parley/pkg/storage"
)

const (
	recordExt     = ".json"
	transcriptExt = ".txt"
	tmpSuffix     = ".tmp"
)

// Driver implements storage.Driver on the local filesystem.
//
// Writes go to a temp file in the same directory, are fsynced, then renamed
// over <id>.json. A crash or error at any point leaves either the old or the
// new record on disk, never a mix.
type Driver struct {
	dir    string
	logger *slog.Logger

	// beforeRename runs between the temp file sync and the rename.
	beforeRename func(tmpPath string) error
}

// NewDriver creates a file store rooted at dir, creating it if needed. A nil
// logger discards output.
func NewDriver(dir string, log *slog.Logger) (*Driver, error) {
	if dir == "" {
		return nil, errors.New("file store directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory %s: %w", dir, err)
	}

	if log == nil {
		log = logger.Nop()
	}

	return &Driver{dir: dir, logger: log}, nil
}

// Dir returns the directory records are stored in.
func (d *Driver) Dir() string {
	return d.dir
}

// Load reads <id>.json. A missing file yields an empty record; when only a
// legacy <id>.txt transcript exists its turns are recovered. A file that
// cannot be decoded is logged and treated as empty.
func (d *Driver) Load(_ context.Context, id string) (*conversation.Record, error) {
	if id == "" {
		return nil, storage.NewError("load", id, storage.ErrEmptyID)
	}

	data, err := os.ReadFile(d.recordPath(id))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return d.loadTranscript(id)
	case err != nil:
		return nil, storage.NewError("load", id, err)
	}

	return storage.DecodeRecord(d.logger, id, data, "path", d.recordPath(id)), nil
}

func (d *Driver) loadTranscript(id string) (*conversation.Record, error) {
	data, err := os.ReadFile(d.path(id, transcriptExt))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return conversation.New(id), nil
	case err != nil:
		return nil, storage.NewError("load", id, err)
	}

	rec := &conversation.Record{ID: id, Turns: conversation.ParseTranscript(string(data))}
	d.logger.Warn("recovered conversation from legacy transcript file",
		"conversation_id", id,
		"turns", rec.Len(),
	)
	return rec, nil
}

// Save writes rec to a temp file, fsyncs it and renames it over <id>.json.
// The temp file is removed on any failure.
func (d *Driver) Save(_ context.Context, rec *conversation.Record) error {
	if rec == nil {
		return errors.New("cannot store nil record")
	}
	if rec.ID == "" {
		return storage.NewError("save", "", storage.ErrEmptyID)
	}

	data, err := rec.Marshal()
	if err != nil {
		return storage.NewError("save", rec.ID, err)
	}

	if err := d.writeAtomic(d.recordPath(rec.ID), data); err != nil {
		return storage.NewError("save", rec.ID, err)
	}
	return nil
}

func (d *Driver) writeAtomic(target string, data []byte) (err error) {
	tmp, err := os.CreateTemp(d.dir, filepath.Base(target)+".*"+tmpSuffix)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	defer func() {
		if err != nil {
			_ = tmp.Close()
			if rmErr := os.Remove(tmpPath); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				d.logger.Warn("failed to remove temp file", "path", tmpPath, "error", rmErr)
			}
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if d.beforeRename != nil {
		if err = d.beforeRename(tmpPath); err != nil {
			return err
		}
	}

	if err = os.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	d.syncDir()
	return nil
}

// syncDir makes the rename itself durable. Not every platform supports
// fsync on a directory, so failures are only logged.
func (d *Driver) syncDir() {
	dir, err := os.Open(d.dir)
	if err != nil {
		return
	}
	defer dir.Close()

	if err := dir.Sync(); err != nil {
		d.logger.Debug("directory sync unsupported", "dir", d.dir, "error", err)
	}
}

// List returns the ids of every stored record, including legacy transcripts.
func (d *Driver) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, storage.NewError("list", "", err)
	}

	seen := make(map[string]bool, len(entries))
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		name := e.Name()
		var escaped string
		switch {
		case strings.HasSuffix(name, tmpSuffix):
			continue
		case strings.HasSuffix(name, recordExt):
			escaped = strings.TrimSuffix(name, recordExt)
		case strings.HasSuffix(name, transcriptExt):
			escaped = strings.TrimSuffix(name, transcriptExt)
		default:
			continue
		}

		id, err := url.PathUnescape(escaped)
		if err != nil || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}

	sort.Strings(ids)
	return ids, nil
}

// Close is a no-op for the file store.
func (d *Driver) Close() error {
	return nil
}

func (d *Driver) recordPath(id string) string {
	return d.path(id, recordExt)
}

// path escapes id so arbitrary caller supplied ids stay inside d.dir.
func (d *Driver) path(id, ext string) string {
	return filepath.Join(d.dir, url.PathEscape(id)+ext)
}
