package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Attribute names used by the DynamoDB table
const (
	dynamoAttrPK        = "pk"
	dynamoAttrSK        = "sk"
	dynamoAttrData      = "data"
	dynamoAttrUpdatedAt = "updatedAt"
)

// DynamoDBAPI is the subset of the DynamoDB client used by DynamoStore
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// DynamoOptions configures NewDynamoStoreFromConfig
type DynamoOptions struct {
	Region          string
	Table           string
	Endpoint        string // optional, e.g. http://localhost:8000 for DynamoDB Local
	AccessKeyID     string
	SecretAccessKey string
}

// DynamoStore implements Store on one DynamoDB table with string hash key
// "pk" and range key "sk"
type DynamoStore struct {
	client DynamoDBAPI
	table  string
}

// NewDynamoStore wraps an existing client
func NewDynamoStore(client DynamoDBAPI, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table}
}

// NewDynamoStoreFromConfig builds a DynamoDB client from the given options.
// Static credentials are used when both keys are set, otherwise the default
// AWS credential chain applies.
func NewDynamoStoreFromConfig(ctx context.Context, opts DynamoOptions) (*DynamoStore, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKeyID,
			opts.SecretAccessKey,
			"",
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})

	return NewDynamoStore(client, opts.Table), nil
}

// Migrate creates the table with on-demand billing if it does not exist
func (s *DynamoStore) Migrate(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)})
	if err == nil {
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return fmt.Errorf("failed to describe table %s: %w", s.table, err)
	}

	_, err = s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(s.table),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(dynamoAttrPK), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(dynamoAttrSK), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(dynamoAttrPK), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(dynamoAttrSK), KeyType: types.KeyTypeRange},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}
	return nil
}

// Get loads one item with a strongly consistent read
func (s *DynamoStore) Get(ctx context.Context, pk, sk string) (*Item, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            dynamoKey(pk, sk),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", pk, sk, err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	return itemFromAttributes(out.Item)
}

// Put writes one item. Conditions become attribute_exists /
// attribute_not_exists expressions on the hash key.
func (s *DynamoStore) Put(ctx context.Context, item Item, opts ...PutOption) error {
	input := buildPutItemInput(s.table, item, applyPutOptions(opts), time.Now().UTC())

	_, err := s.client.PutItem(ctx, input)
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrConditionFailed
		}
		return fmt.Errorf("failed to put %s/%s: %w", item.PK, item.SK, err)
	}
	return nil
}

// Delete removes one item
func (s *DynamoStore) Delete(ctx context.Context, pk, sk string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       dynamoKey(pk, sk),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", pk, sk, err)
	}
	return nil
}

// Query scans one partition in sort key order
func (s *DynamoStore) Query(ctx context.Context, q Query) (*Page, error) {
	input, ok, err := buildQueryInput(s.table, q)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Page{Items: []Item{}}, nil
	}

	out, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to query partition %s: %w", q.PK, err)
	}

	page := &Page{Items: make([]Item, 0, len(out.Items))}
	for _, attrs := range out.Items {
		item, err := itemFromAttributes(attrs)
		if err != nil {
			return nil, err
		}
		page.Items = append(page.Items, *item)
	}
	if sk, ok := out.LastEvaluatedKey[dynamoAttrSK].(*types.AttributeValueMemberS); ok {
		page.LastKey = sk.Value
	}
	return page, nil
}

// Ping describes the table
func (s *DynamoStore) Ping(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.table)})
	if err != nil {
		return fmt.Errorf("failed to describe table %s: %w", s.table, err)
	}
	return nil
}

// Close is a no-op; the SDK client holds no long-lived connections
func (s *DynamoStore) Close() error {
	return nil
}

func dynamoKey(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		dynamoAttrPK: &types.AttributeValueMemberS{Value: pk},
		dynamoAttrSK: &types.AttributeValueMemberS{Value: sk},
	}
}

func buildPutItemInput(table string, item Item, o putOptions, now time.Time) *dynamodb.PutItemInput {
	attrs := dynamoKey(item.PK, item.SK)
	attrs[dynamoAttrData] = &types.AttributeValueMemberS{Value: string(item.Data)}
	attrs[dynamoAttrUpdatedAt] = &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      attrs,
	}
	switch o.condition {
	case conditionNotExists:
		input.ConditionExpression = aws.String("attribute_not_exists(#pk)")
		input.ExpressionAttributeNames = map[string]string{"#pk": dynamoAttrPK}
	case conditionExists:
		input.ConditionExpression = aws.String("attribute_exists(#pk)")
		input.ExpressionAttributeNames = map[string]string{"#pk": dynamoAttrPK}
	}
	return input
}

// buildQueryInput translates q into a DynamoDB query. DynamoDB rejects an
// ExclusiveStartKey outside the key condition, so After is only sent when it
// lies inside the range; a cursor before the range start is dropped and one
// past the range end yields ok=false, meaning nothing can match.
func buildQueryInput(table string, q Query) (input *dynamodb.QueryInput, ok bool, err error) {
	if err := q.Validate(); err != nil {
		return nil, false, err
	}

	names := map[string]string{"#pk": dynamoAttrPK}
	values := map[string]types.AttributeValue{
		":pk": &types.AttributeValueMemberS{Value: q.PK},
	}
	keyCond := "#pk = :pk"

	switch {
	case q.Prefix != "":
		names["#sk"] = dynamoAttrSK
		values[":prefix"] = &types.AttributeValueMemberS{Value: q.Prefix}
		keyCond += " AND begins_with(#sk, :prefix)"
	case q.From != "":
		names["#sk"] = dynamoAttrSK
		values[":from"] = &types.AttributeValueMemberS{Value: q.From}
		if q.Descending {
			keyCond += " AND #sk <= :from"
		} else {
			keyCond += " AND #sk >= :from"
		}
	}

	input = &dynamodb.QueryInput{
		TableName:                 aws.String(table),
		KeyConditionExpression:    aws.String(keyCond),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ScanIndexForward:          aws.Bool(!q.Descending),
		ConsistentRead:            aws.Bool(true),
		Limit:                     aws.Int32(int32(q.limit())),
	}
	if q.After != "" {
		switch startKeyPosition(q) {
		case startKeyInside:
			input.ExclusiveStartKey = dynamoKey(q.PK, q.After)
		case startKeyPastEnd:
			return nil, false, nil
		}
	}
	return input, true, nil
}

type startKey int

const (
	startKeyInside startKey = iota
	startKeyBeforeStart
	startKeyPastEnd
)

// startKeyPosition places q.After relative to the sort key range selected by
// q.Prefix or q.From, in scan direction
func startKeyPosition(q Query) startKey {
	// lo is inclusive; hi is inclusive when hiInclusive, "" means unbounded
	var lo, hi string
	hiInclusive := false
	switch {
	case q.Prefix != "":
		lo, hi = q.Prefix, prefixUpperBound(q.Prefix)
	case q.From != "" && q.Descending:
		hi, hiInclusive = q.From, true
	case q.From != "":
		lo = q.From
	}

	pastHi := hi != "" && (q.After > hi || (!hiInclusive && q.After == hi))
	if q.Descending {
		if pastHi {
			return startKeyBeforeStart
		}
		if lo != "" && q.After <= lo {
			return startKeyPastEnd
		}
		return startKeyInside
	}
	if lo != "" && q.After < lo {
		return startKeyBeforeStart
	}
	if pastHi {
		return startKeyPastEnd
	}
	return startKeyInside
}

func itemFromAttributes(attrs map[string]types.AttributeValue) (*Item, error) {
	item := &Item{}
	pk, ok := attrs[dynamoAttrPK].(*types.AttributeValueMemberS)
	if !ok {
		return nil, fmt.Errorf("kvstore: item is missing string attribute %q", dynamoAttrPK)
	}
	sk, ok := attrs[dynamoAttrSK].(*types.AttributeValueMemberS)
	if !ok {
		return nil, fmt.Errorf("kvstore: item %s is missing string attribute %q", pk.Value, dynamoAttrSK)
	}
	item.PK, item.SK = pk.Value, sk.Value

	if data, ok := attrs[dynamoAttrData].(*types.AttributeValueMemberS); ok {
		item.Data = []byte(data.Value)
	}
	if ts, ok := attrs[dynamoAttrUpdatedAt].(*types.AttributeValueMemberS); ok {
		if parsed, err := time.Parse(time.RFC3339Nano, ts.Value); err == nil {
			item.UpdatedAt = parsed
		}
	}
	return item, nil
}
