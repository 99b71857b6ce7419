package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const DefaultTableName = "GhostlinkRooms"

// DynamoAPI is the subset of the DynamoDB client used here.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// dynamoItem is the stored shape. expires_at is the table's TTL attribute.
type dynamoItem struct {
	Room
	ExpiresAt int64 `dynamodbav:"expires_at"`
}

// DynamoDB keeps rooms in a table keyed by code.
type DynamoDB struct {
	svc   DynamoAPI
	table string
}

// NewDynamoDB loads the default AWS config. An empty region uses the SDK's resolution chain.
func NewDynamoDB(ctx context.Context, table, region string) (*DynamoDB, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return NewDynamoDBWithClient(dynamodb.NewFromConfig(cfg), table), nil
}

func NewDynamoDBWithClient(svc DynamoAPI, table string) *DynamoDB {
	if table == "" {
		table = DefaultTableName
	}
	return &DynamoDB{svc: svc, table: table}
}

func codeKey(code string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"code": &types.AttributeValueMemberS{Value: NormalizeCode(code)},
	}
}

func (d *DynamoDB) Get(ctx context.Context, code string) (*Room, error) {
	out, err := d.svc.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.table),
		Key:       codeKey(code),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb get: %w", err)
	}
	if out.Item == nil {
		return nil, ErrRoomNotFound
	}

	var item dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("decode room %s: %w", code, err)
	}
	return &item.Room, nil
}

func (d *DynamoDB) Create(ctx context.Context, room *Room) error {
	if err := room.Validate(); err != nil {
		return err
	}
	av, err := attributevalue.MarshalMap(dynamoItem{Room: *room, ExpiresAt: room.ExpiresAt().Unix()})
	if err != nil {
		return fmt.Errorf("encode room: %w", err)
	}

	_, err = d.svc.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.table),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(code)"),
	})
	var conflict *types.ConditionalCheckFailedException
	if errors.As(err, &conflict) {
		return ErrRoomExists
	}
	if err != nil {
		return fmt.Errorf("dynamodb put: %w", err)
	}
	return nil
}

func (d *DynamoDB) Delete(ctx context.Context, code string) error {
	_, err := d.svc.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.table),
		Key:       codeKey(code),
	})
	if err != nil {
		return fmt.Errorf("dynamodb delete: %w", err)
	}
	return nil
}

func (d *DynamoDB) Close() error { return nil }
