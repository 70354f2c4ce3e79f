package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// mockDynamo is a small in-memory table set that understands the exact
// condition and update expressions issued by the stores.
type mockDynamo struct {
	mu     sync.Mutex
	tables map[string]map[string]map[string]types.AttributeValue

	transactCalls int
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{tables: map[string]map[string]map[string]types.AttributeValue{}}
}

func (m *mockDynamo) table(name string) map[string]map[string]types.AttributeValue {
	if _, ok := m.tables[name]; !ok {
		m.tables[name] = map[string]map[string]types.AttributeValue{}
	}
	return m.tables[name]
}

var pkNames = []string{"lookup_key", "item_id", "order_id"}

func pkOf(item map[string]types.AttributeValue) (string, error) {
	for _, n := range pkNames {
		if v, ok := item[n].(*types.AttributeValueMemberS); ok {
			return v.Value, nil
		}
	}
	return "", errors.New("no primary key")
}

func str(av types.AttributeValue) string {
	if v, ok := av.(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func num(av types.AttributeValue) int64 {
	if v, ok := av.(*types.AttributeValueMemberN); ok {
		n, _ := strconv.ParseInt(v.Value, 10, 64)
		return n
	}
	return 0
}

func checkCondition(existing map[string]types.AttributeValue, cond *string, values map[string]types.AttributeValue) (bool, error) {
	if cond == nil {
		return true, nil
	}
	switch *cond {
	case "attribute_not_exists(order_id)", "attribute_not_exists(lookup_key)":
		return existing == nil, nil
	case casCondition:
		return existing != nil &&
			str(existing["lifecycle_state"]) == str(values[":from"]) &&
			num(existing["version"]) == num(values[":version"]), nil
	case "attribute_exists(item_id) AND stock_count >= :floor":
		return existing != nil && num(existing["stock_count"]) >= num(values[":floor"]), nil
	case "order_id = :oid":
		return existing != nil && str(existing["order_id"]) == str(values[":oid"]), nil
	}
	return false, fmt.Errorf("mock: unsupported condition %q", *cond)
}

func applyStockUpdate(existing map[string]types.AttributeValue, expr *string, values map[string]types.AttributeValue) error {
	if expr == nil || *expr != "SET stock_count = stock_count + :d, updated_at = :ua" {
		return fmt.Errorf("mock: unsupported update %v", expr)
	}
	existing["stock_count"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(num(existing["stock_count"])+num(values[":d"]), 10)}
	existing["updated_at"] = values[":ua"]
	return nil
}

func (m *mockDynamo) PutItem(ctx context.Context, in *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pk, err := pkOf(in.Item)
	if err != nil {
		return nil, err
	}
	t := m.table(*in.TableName)
	ok, err := checkCondition(t[pk], in.ConditionExpression, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{}
	}
	t[pk] = in.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(ctx context.Context, in *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pk, err := pkOf(in.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.table(*in.TableName)[pk]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *mockDynamo) UpdateItem(ctx context.Context, in *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pk, err := pkOf(in.Key)
	if err != nil {
		return nil, err
	}
	t := m.table(*in.TableName)
	ok, err := checkCondition(t[pk], in.ConditionExpression, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &types.ConditionalCheckFailedException{}
	}
	if err := applyStockUpdate(t[pk], in.UpdateExpression, in.ExpressionAttributeValues); err != nil {
		return nil, err
	}
	return &dyn.UpdateItemOutput{Attributes: t[pk]}, nil
}

func (m *mockDynamo) Query(ctx context.Context, in *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if in.IndexName == nil || *in.IndexName != ownerIndex {
		return nil, errors.New("mock: only owner index queries supported")
	}
	owner := str(in.ExpressionAttributeValues[":o"])
	var items []map[string]types.AttributeValue
	for _, it := range m.table(*in.TableName) {
		if str(it["owner_id"]) == owner {
			items = append(items, it)
		}
	}
	return &dyn.QueryOutput{Items: items}, nil
}

func (m *mockDynamo) Scan(ctx context.Context, in *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	return nil, errors.New("mock: scan not supported")
}

func (m *mockDynamo) TransactWriteItems(ctx context.Context, in *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactCalls++

	// first pass: evaluate every condition
	reasons := make([]types.CancellationReason, len(in.TransactItems))
	failed := false
	for i, it := range in.TransactItems {
		var (
			table  string
			key    map[string]types.AttributeValue
			cond   *string
			values map[string]types.AttributeValue
		)
		switch {
		case it.Put != nil:
			table, key, cond, values = *it.Put.TableName, it.Put.Item, it.Put.ConditionExpression, it.Put.ExpressionAttributeValues
		case it.Update != nil:
			table, key, cond, values = *it.Update.TableName, it.Update.Key, it.Update.ConditionExpression, it.Update.ExpressionAttributeValues
		case it.Delete != nil:
			table, key, cond, values = *it.Delete.TableName, it.Delete.Key, it.Delete.ConditionExpression, it.Delete.ExpressionAttributeValues
		default:
			return nil, errors.New("mock: unsupported transact item")
		}
		pk, err := pkOf(key)
		if err != nil {
			return nil, err
		}
		ok, err := checkCondition(m.table(table)[pk], cond, values)
		if err != nil {
			return nil, err
		}
		code := "None"
		if !ok {
			code = "ConditionalCheckFailed"
			failed = true
		}
		reasons[i] = types.CancellationReason{Code: &code}
	}
	if failed {
		return nil, &types.TransactionCanceledException{CancellationReasons: reasons}
	}

	// second pass: apply
	for _, it := range in.TransactItems {
		switch {
		case it.Put != nil:
			pk, _ := pkOf(it.Put.Item)
			m.table(*it.Put.TableName)[pk] = it.Put.Item
		case it.Update != nil:
			pk, _ := pkOf(it.Update.Key)
			if err := applyStockUpdate(m.table(*it.Update.TableName)[pk], it.Update.UpdateExpression, it.Update.ExpressionAttributeValues); err != nil {
				return nil, err
			}
		case it.Delete != nil:
			pk, _ := pkOf(it.Delete.Key)
			delete(m.table(*it.Delete.TableName), pk)
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
}
