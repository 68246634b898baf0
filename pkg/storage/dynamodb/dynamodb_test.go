package dynamodb_test

import (
	"bytes"
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/parley/pkg/conversation"
	"github.com/papercomputeco/parley/pkg/logger"
	"github.com/papercomputeco/parley/pkg/storage"
	ddb "github.com/papercomputeco/parley/pkg/storage/dynamodb"
)

// fakeTable is a single-table stand-in for the DynamoDB API.
type fakeTable struct {
	items   map[string]map[string]types.AttributeValue
	putErr  error
	lastGet *dynamodb.GetItemInput
}

func (f *fakeTable) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.lastGet = in
	key := in.Key["ConversationID"].(*types.AttributeValueMemberS).Value
	return &dynamodb.GetItemOutput{Item: f.items[key]}, nil
}

func (f *fakeTable) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	key := in.Item["ConversationID"].(*types.AttributeValueMemberS).Value
	f.items[key] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeTable) Scan(_ context.Context, _ *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	out := &dynamodb.ScanOutput{}
	for _, item := range f.items {
		out.Items = append(out.Items, map[string]types.AttributeValue{"ConversationID": item["ConversationID"]})
	}
	return out, nil
}

var _ = Describe("Driver", func() {
	var (
		ctx    context.Context
		table  *fakeTable
		logs   *bytes.Buffer
		driver *ddb.Driver
	)

	BeforeEach(func() {
		ctx = context.Background()
		table = &fakeTable{items: map[string]map[string]types.AttributeValue{}}
		logs = &bytes.Buffer{}
		driver = ddb.NewDriverWithAPI(table, "conversations", logger.New(logger.WithWriter(logs)))
	})

	It("returns an empty record when the item is missing", func() {
		rec, err := driver.Load(ctx, "c1")
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.Turns).To(BeEmpty())
		Expect(*table.lastGet.ConsistentRead).To(BeTrue())
	})

	It("round trips a record", func() {
		rec := conversation.New("c1")
		rec.Append("hi", "hello")
		Expect(driver.Save(ctx, rec)).To(Succeed())

		loaded, err := driver.Load(ctx, "c1")
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.Turns).To(Equal(rec.Turns))
	})

	It("starts empty and warns when the stored turns are corrupt", func() {
		table.items["c1"] = map[string]types.AttributeValue{
			"ConversationID": &types.AttributeValueMemberS{Value: "c1"},
			"Turns":          &types.AttributeValueMemberS{Value: "{not json"},
		}

		rec, err := driver.Load(ctx, "c1")
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.ID).To(Equal("c1"))
		Expect(rec.Turns).To(BeEmpty())
		Expect(logs.String()).To(ContainSubstring("conversation record is corrupt"))
	})

	It("starts empty and warns when the turns attribute has the wrong type", func() {
		table.items["c1"] = map[string]types.AttributeValue{
			"ConversationID": &types.AttributeValueMemberS{Value: "c1"},
			"Turns":          &types.AttributeValueMemberN{Value: "42"},
		}

		rec, err := driver.Load(ctx, "c1")
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.Turns).To(BeEmpty())
		Expect(logs.String()).To(ContainSubstring("conversation item has no turns string"))
	})

	It("accepts new turns after a corrupt item", func() {
		table.items["c1"] = map[string]types.AttributeValue{
			"ConversationID": &types.AttributeValueMemberS{Value: "c1"},
			"Turns":          &types.AttributeValueMemberS{Value: "{not json"},
		}
		store := storage.NewStore(driver, nil)

		_, err := store.AppendAndPersist(ctx, "c1", "hi", "hello")
		Expect(err).NotTo(HaveOccurred())

		rec, err := driver.Load(ctx, "c1")
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.Turns).To(Equal([]conversation.Turn{{Human: "hi", AI: "hello"}}))
	})

	It("wraps put failures in a StorageError", func() {
		table.putErr = errors.New("throttled")
		err := driver.Save(ctx, conversation.New("c1"))

		var serr *storage.StorageError
		Expect(errors.As(err, &serr)).To(BeTrue())
		Expect(serr.Op).To(Equal("save"))
	})

	It("lists ids sorted", func() {
		Expect(driver.Save(ctx, conversation.New("b"))).To(Succeed())
		Expect(driver.Save(ctx, conversation.New("a"))).To(Succeed())

		Expect(driver.List(ctx)).To(Equal([]string{"a", "b"}))
	})
})
