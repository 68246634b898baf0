// Package gcs stores conversation records as objects in a Google Cloud
// Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"sort"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/papercomputeco/parley/pkg/conversation"
	"github.com/papercomputeco/parley/pkg/logger"
	"github.com/papercomputeco/parley/pkg/storage"
)

const objectExt = ".json"

// Driver implements storage.Driver on a GCS bucket. One object holds one
// conversation; GCS only makes an object visible once its writer closes
// successfully, so a failed write never replaces the previous record.
type Driver struct {
	client *gcs.Client
	bucket string
	prefix string
	logger *slog.Logger
}

// NewDriver creates a GCS client using application default credentials.
// A nil logger discards output.
func NewDriver(ctx context.Context, bucket, prefix string, log *slog.Logger) (*Driver, error) {
	if bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}

	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	if log == nil {
		log = logger.Nop()
	}

	return &Driver{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: log,
	}, nil
}

// Load reads the object for id, returning an empty record when absent or
// undecodable.
func (d *Driver) Load(ctx context.Context, id string) (*conversation.Record, error) {
	if id == "" {
		return nil, storage.NewError("load", id, storage.ErrEmptyID)
	}

	r, err := d.object(id).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return conversation.New(id), nil
	}
	if err != nil {
		return nil, storage.NewError("load", id, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, storage.NewError("load", id, err)
	}

	return storage.DecodeRecord(d.logger, id, data, "bucket", d.bucket, "object", d.object(id).ObjectName()), nil
}

// Save uploads the whole record in one object write.
func (d *Driver) Save(ctx context.Context, rec *conversation.Record) error {
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

	// Cancelling the context aborts the upload without publishing it.
	writeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := d.object(rec.ID).NewWriter(writeCtx)
	w.ContentType = "application/json"

	if _, err := w.Write(data); err != nil {
		cancel()
		_ = w.Close()
		return storage.NewError("save", rec.ID, err)
	}
	if err := w.Close(); err != nil {
		return storage.NewError("save", rec.ID, err)
	}
	return nil
}

// List returns the ids of every object under the prefix.
func (d *Driver) List(ctx context.Context) ([]string, error) {
	query := &gcs.Query{Prefix: d.objectPrefix()}
	if err := query.SetAttrSelection([]string{"Name"}); err != nil {
		return nil, storage.NewError("list", "", err)
	}

	ids := []string{}
	it := d.client.Bucket(d.bucket).Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, storage.NewError("list", "", err)
		}

		name := strings.TrimPrefix(attrs.Name, d.objectPrefix())
		if !strings.HasSuffix(name, objectExt) || strings.Contains(name, "/") {
			continue
		}
		id, err := url.PathUnescape(strings.TrimSuffix(name, objectExt))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}

	sort.Strings(ids)
	return ids, nil
}

// Close closes the GCS client.
func (d *Driver) Close() error {
	return d.client.Close()
}

func (d *Driver) objectPrefix() string {
	if d.prefix == "" {
		return ""
	}
	return d.prefix + "/"
}

func (d *Driver) object(id string) *gcs.ObjectHandle {
	name := url.PathEscape(id) + objectExt
	if d.prefix != "" {
		name = path.Join(d.prefix, name)
	}
	return d.client.Bucket(d.bucket).Object(name)
}
