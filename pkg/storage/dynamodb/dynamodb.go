// Package dynamodb stores conversation records as DynamoDB items.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/papercomputeco/parley/pkg/conversation"
	"github.com/papercomputeco/parley/pkg/logger"
	"github.com/papercomputeco/parley/pkg/storage"
)

const (
	keyAttr   = "ConversationID"
	turnsAttr = "Turns"
)

// API is the subset of the DynamoDB client the driver uses.
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, opts ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Options configures NewDriver.
type Options struct {
	Table  string
	Region string

	// Endpoint overrides the service URL, e.g. for DynamoDB Local.
	Endpoint string

	Logger *slog.Logger
}

// Driver implements storage.Driver with one item per conversation. PutItem
// replaces an item atomically, so a record is never half written.
type Driver struct {
	api    API
	table  string
	logger *slog.Logger
}

// NewDriver builds a DynamoDB client from the default AWS config chain.
func NewDriver(ctx context.Context, opts Options) (*Driver, error) {
	if opts.Table == "" {
		return nil, errors.New("dynamodb table is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if opts.Endpoint != "" {
			o.EndpointResolver = dynamodb.EndpointResolverFromURL(opts.Endpoint)
		}
	})

	return NewDriverWithAPI(client, opts.Table, opts.Logger), nil
}

// NewDriverWithAPI wraps an existing client. A nil logger discards output.
func NewDriverWithAPI(api API, table string, log *slog.Logger) *Driver {
	if log == nil {
		log = logger.Nop()
	}
	return &Driver{api: api, table: table, logger: log}
}

// Load fetches the item for id with a strongly consistent read.
func (d *Driver) Load(ctx context.Context, id string) (*conversation.Record, error) {
	if id == "" {
		return nil, storage.NewError("load", id, storage.ErrEmptyID)
	}

	out, err := d.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.table),
		Key:            map[string]types.AttributeValue{keyAttr: &types.AttributeValueMemberS{Value: id}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, storage.NewError("load", id, err)
	}
	if len(out.Item) == 0 {
		return conversation.New(id), nil
	}

	attr, ok := out.Item[turnsAttr].(*types.AttributeValueMemberS)
	if !ok {
		d.logger.Warn("conversation item has no turns string, starting empty",
			"conversation_id", id,
			"table", d.table,
			"attribute", turnsAttr,
		)
		return conversation.New(id), nil
	}

	return storage.DecodeRecord(d.logger, id, []byte(attr.Value), "table", d.table), nil
}

// Save writes the full record as a single item.
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

	_, err = d.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item: map[string]types.AttributeValue{
			keyAttr:   &types.AttributeValueMemberS{Value: rec.ID},
			turnsAttr: &types.AttributeValueMemberS{Value: string(data)},
		},
	})
	if err != nil {
		return storage.NewError("save", rec.ID, err)
	}
	return nil
}

// List scans the table for conversation ids.
func (d *Driver) List(ctx context.Context) ([]string, error) {
	ids := []string{}

	p := dynamodb.NewScanPaginator(d.api, &dynamodb.ScanInput{
		TableName:            aws.String(d.table),
		ProjectionExpression: aws.String(keyAttr),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, storage.NewError("list", "", err)
		}
		for _, item := range page.Items {
			if v, ok := item[keyAttr].(*types.AttributeValueMemberS); ok {
				ids = append(ids, v.Value)
			}
		}
	}

	sort.Strings(ids)
	return ids, nil
}

// Close is a no-op; the AWS client holds no resources that need releasing.
func (d *Driver) Close() error {
	return nil
}
