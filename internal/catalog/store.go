package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/canteen-orderflow/internal/aws"
)

const (
	stockUpdateExpr = "SET stock_count = stock_count + :d, updated_at = :ua"
	stockCondition  = "attribute_exists(item_id) AND stock_count >= :floor"
)

// Store encapsulates operations on the catalog table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new catalog Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName, nowFunc: time.Now}
}

// Get fetches an item by id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, itemID string) (*Item, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            itemKey(itemID),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var it Item
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("unmarshal catalog item: %w", err)
	}
	return &it, nil
}

// List returns the menu sorted by name, optionally filtered by category.
func (s *Store) List(ctx context.Context, category string) ([]Item, error) {
	input := &dyn.ScanInput{TableName: &s.tableName}
	if category != "" {
		input.FilterExpression = awsString("category = :c")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":c": &types.AttributeValueMemberS{Value: category},
		}
	}

	var items []Item
	for {
		page, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("scan catalog: %w", err)
		}
		var batch []Item
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal catalog items: %w", err)
		}
		items = append(items, batch...)
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}
	sort.Slice(items, func(a, b int) bool { return items[a].Name < items[b].Name })
	return items, nil
}

// Put creates or replaces a menu item. CreatedAt is kept when already set.
func (s *Store) Put(ctx context.Context, it Item) (Item, error) {
	if it.StockCount < 0 {
		return it, ErrInsufficientStock
	}
	now := s.nowFunc().UTC()
	if it.CreatedAt.IsZero() {
		it.CreatedAt = now
	}
	it.UpdatedAt = now

	m, err := attributevalue.MarshalMap(it)
	if err != nil {
		return it, fmt.Errorf("marshal catalog item: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dyn.PutItemInput{TableName: &s.tableName, Item: m}); err != nil {
		return it, fmt.Errorf("put item: %w", err)
	}
	return it, nil
}

// AdjustStock atomically adds delta to the item's stock count. A change that
// would leave the count below zero fails with ErrInsufficientStock.
func (s *Store) AdjustStock(ctx context.Context, itemID string, delta int64) (*Item, error) {
	u := s.stockUpdate(itemID, delta)
	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                           u.TableName,
		Key:                                 u.Key,
		UpdateExpression:                    u.UpdateExpression,
		ConditionExpression:                 u.ConditionExpression,
		ExpressionAttributeValues:           u.ExpressionAttributeValues,
		ReturnValues:                        types.ReturnValueAllNew,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if len(ccf.Item) == 0 {
				return nil, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
			}
			return nil, fmt.Errorf("%w: %s", ErrInsufficientStock, itemID)
		}
		return nil, fmt.Errorf("update stock: %w", err)
	}
	var it Item
	if err := attributevalue.UnmarshalMap(out.Attributes, &it); err != nil {
		return nil, fmt.Errorf("unmarshal catalog item: %w", err)
	}
	return &it, nil
}

// StockUpdate builds the conditional stock change for use inside a
// TransactWriteItems call.
func (s *Store) StockUpdate(itemID string, delta int64) types.TransactWriteItem {
	return types.TransactWriteItem{Update: s.stockUpdate(itemID, delta)}
}

func (s *Store) stockUpdate(itemID string, delta int64) *types.Update {
	floor := int64(0)
	if delta < 0 {
		floor = -delta
	}
	return &types.Update{
		TableName:           &s.tableName,
		Key:                 itemKey(itemID),
		UpdateExpression:    awsString(stockUpdateExpr),
		ConditionExpression: awsString(stockCondition),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":d":     &types.AttributeValueMemberN{Value: strconv.FormatInt(delta, 10)},
			":floor": &types.AttributeValueMemberN{Value: strconv.FormatInt(floor, 10)},
			":ua":    &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339Nano)},
		},
	}
}

func itemKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"item_id": &types.AttributeValueMemberS{Value: id}}
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
