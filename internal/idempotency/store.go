// Package idempotency records Idempotency-Key requests so that a retried
// checkout replays the first response instead of opening a second order.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/imrishuroy/canteen-orderflow/internal/aws"
)

const beginCondition = "attribute_not_exists(idempotency_key) OR #s = :failed OR expires_at < :now"

// Store encapsulates idempotency operations against DynamoDB.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	ttlWindow time.Duration // how long a key is remembered
	nowFunc   func() time.Time
}

// NewStore returns a configured Store.
// ttlWindow: how long a key is remembered (e.g., 24*time.Hour)
func NewStore(client aws.DynamoDBAPI, tableName string, ttlWindow time.Duration) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
	}
}

// ScopedKey namespaces a client key by caller so two users cannot collide.
func ScopedKey(ownerID, key string) string {
	return ownerID + "#" + key
}

// RequestHash fingerprints a request payload.
func RequestHash(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("hash request: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Begin claims key for a new request. It returns (nil, true, nil) when the
// caller owns the key and should process the request. When the key is
// already held it returns the existing record and false. Keys whose
// previous attempt failed or expired can be claimed again.
func (s *Store) Begin(ctx context.Context, key, requestHash string) (*IdempotencyRecord, bool, error) {
	now := s.nowFunc().UTC()
	rec := IdempotencyRecord{
		IdempotencyKey: key,
		Status:         StatusInProgress,
		RequestHash:    requestHash,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(s.ttlWindow).Unix(),
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, false, fmt.Errorf("marshal record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString(beginCondition),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":failed": &types.AttributeValueMemberS{Value: StatusFailed},
			":now":    &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		},
	})
	if err == nil {
		return nil, true, nil
	}

	var sc smithy.APIError
	if !errors.As(err, &sc) || sc.ErrorCode() != "ConditionalCheckFailedException" {
		return nil, false, fmt.Errorf("put item: %w", err)
	}
	existing, err := s.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		// expired and removed between the two calls
		return s.Begin(ctx, key, requestHash)
	}
	return existing, false, nil
}

// Get retrieves an idempotency record by key. If not found, returns (nil, nil).
func (s *Store) Get(ctx context.Context, key string) (*IdempotencyRecord, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            recordKey(key),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec IdempotencyRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return &rec, nil
}

// MarkDone sets status to DONE and stores the order id and the response
// to replay for duplicates.
func (s *Store) MarkDone(ctx context.Context, key, orderID, responseBody string, responseStatus int) error {
	err := s.finish(ctx, key, "SET #s = :done, order_id = :oid, response_body = :rb, response_status = :rs, updated_at = :ua",
		map[string]types.AttributeValue{
			":done": &types.AttributeValueMemberS{Value: StatusDone},
			":oid":  &types.AttributeValueMemberS{Value: orderID},
			":rb":   &types.AttributeValueMemberS{Value: responseBody},
			":rs":   &types.AttributeValueMemberN{Value: strconv.Itoa(responseStatus)},
		})
	if err != nil {
		return fmt.Errorf("mark done: %w", err)
	}
	return nil
}

// MarkFailed marks the record FAILED so the key can be claimed again.
func (s *Store) MarkFailed(ctx context.Context, key, note string) error {
	err := s.finish(ctx, key, "SET #s = :failed, note = :n, updated_at = :ua",
		map[string]types.AttributeValue{
			":failed": &types.AttributeValueMemberS{Value: StatusFailed},
			":n":      &types.AttributeValueMemberS{Value: note},
		})
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// finish applies a terminal update to a claimed key; values must not use :ua.
func (s *Store) finish(ctx context.Context, key, expr string, values map[string]types.AttributeValue) error {
	values[":ua"] = &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339)}
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       recordKey(key),
		UpdateExpression:          &expr,
		ConditionExpression:       awsString("attribute_exists(idempotency_key)"),
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: values,
	})
	return err
}

func recordKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"idempotency_key": &types.AttributeValueMemberS{Value: key},
	}
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
