package kvstore

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/jun/brickmap/internal/model"
)

// DynamoAPI is the subset of *dynamodb.Client used by DynamoStore.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// DynamoStore keeps one item per (profile_id, key) in a DynamoDB table.
// If client is nil it falls back to an in-memory map.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
	profileID string

	fallback *MemoryStore
}

// NewDynamoStore returns a Store scoped to profileID.
func NewDynamoStore(client DynamoAPI, tableName, profileID string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		profileID: profileID,
		fallback:  NewMemoryStore(),
	}
}

func (s *DynamoStore) itemKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"profile_id": &types.AttributeValueMemberS{Value: s.profileID},
		"key":        &types.AttributeValueMemberS{Value: key},
	}
}

func (s *DynamoStore) Get(ctx context.Context, key string) (string, error) {
	if s.client == nil {
		return s.fallback.Get(ctx, key)
	}

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.itemKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get %q from DynamoDB: %w", key, err)
	}
	if out.Item == nil {
		return "", ErrNotFound
	}

	var entry model.ProfileEntry
	if err := attributevalue.UnmarshalMap(out.Item, &entry); err != nil {
		return "", fmt.Errorf("failed to unmarshal profile entry: %w", err)
	}
	return entry.Value, nil
}

func (s *DynamoStore) Set(ctx context.Context, key, value string) error {
	if s.client == nil {
		return s.fallback.Set(ctx, key, value)
	}

	item, err := attributevalue.MarshalMap(model.ProfileEntry{
		ProfileID: s.profileID,
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal profile entry: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to save %q to DynamoDB: %w", key, err)
	}
	return nil
}

// Clear deletes keys in a single batch.
func (s *DynamoStore) Clear(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if s.client == nil {
		return s.fallback.Clear(ctx, keys...)
	}

	requests := make([]types.WriteRequest, 0, len(keys))
	for _, k := range keys {
		requests = append(requests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{Key: s.itemKey(k)},
		})
	}

	out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
		RequestItems: map[string][]types.WriteRequest{s.tableName: requests},
	})
	if err != nil {
		return fmt.Errorf("failed to clear profile keys: %w", err)
	}
	if n := len(out.UnprocessedItems[s.tableName]); n > 0 {
		return fmt.Errorf("failed to clear profile keys: %d unprocessed", n)
	}
	return nil
}
