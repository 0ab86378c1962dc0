package dynamodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var (
	// ErrLockHeld is returned when a lock item already exists.
	ErrLockHeld = errors.New("dynamodb: lock already held")
	// ErrLockNotOwned is returned when releasing a lock owned by another run.
	ErrLockNotOwned = errors.New("dynamodb: lock held by another owner")
)

// LockItem is the lock table row. LockID is the table's partition key.
type LockItem struct {
	LockID string `dynamodbav:"LockID"`
	Info   string `dynamodbav:"Info"`
	Owner  string `dynamodbav:"Owner"`
}

// Client wraps the DynamoDB client for the lock table.
type Client struct {
	ddb *dynamodb.Client
}

// NewClient creates a client from a loaded AWS config. A non-empty endpoint
// overrides the service endpoint.
func NewClient(cfg aws.Config, endpoint string) *Client {
	return &Client{ddb: dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})}
}

// PutLock writes the lock item unless one already exists.
func (c *Client) PutLock(ctx context.Context, table string, item LockItem) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal lock item: %w", err)
	}

	_, err = c.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(table),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(LockID)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("%s: %w", item.LockID, ErrLockHeld)
		}
		return fmt.Errorf("failed to put lock %s: %w", item.LockID, err)
	}
	return nil
}

// GetLock reads the lock item with a consistent read. It returns nil when
// the lock is free.
func (c *Client) GetLock(ctx context.Context, table, lockID string) (*LockItem, error) {
	out, err := c.ddb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(table),
		Key:            lockKey(lockID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get lock %s: %w", lockID, err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}

	var item LockItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lock %s: %w", lockID, err)
	}
	return &item, nil
}

// DeleteLock removes the lock item. A non-empty owner makes the delete
// conditional on that owner still holding it.
func (c *Client) DeleteLock(ctx context.Context, table, lockID, owner string) error {
	input := &dynamodb.DeleteItemInput{
		TableName: aws.String(table),
		Key:       lockKey(lockID),
	}
	if owner != "" {
		input.ConditionExpression = aws.String("#owner = :owner")
		input.ExpressionAttributeNames = map[string]string{"#owner": "Owner"}
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":owner": &types.AttributeValueMemberS{Value: owner},
		}
	}

	if _, err := c.ddb.DeleteItem(ctx, input); err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("%s: %w", lockID, ErrLockNotOwned)
		}
		return fmt.Errorf("failed to delete lock %s: %w", lockID, err)
	}
	return nil
}

func lockKey(lockID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"LockID": &types.AttributeValueMemberS{Value: lockID},
	}
}

func isConditionFailed(err error) bool {
	var condErr *types.ConditionalCheckFailedException
	return errors.As(err, &condErr)
}
