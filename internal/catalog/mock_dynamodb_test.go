package catalog

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type mockDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
	scans int
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func keyOf(m map[string]types.AttributeValue) string {
	return m["item_id"].(*types.AttributeValueMemberS).Value
}

func numAttr(av types.AttributeValue) int64 {
	n, _ := strconv.ParseInt(av.(*types.AttributeValueMemberN).Value, 10, 64)
	return n
}

func (m *mockDynamo) PutItem(ctx context.Context, in *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[keyOf(in.Item)] = in.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(ctx context.Context, in *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &dyn.GetItemOutput{Item: m.items[keyOf(in.Key)]}, nil
}

func (m *mockDynamo) UpdateItem(ctx context.Context, in *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if *in.UpdateExpression != stockUpdateExpr || *in.ConditionExpression != stockCondition {
		return nil, errors.New("mock: unexpected update")
	}
	existing, ok := m.items[keyOf(in.Key)]
	if !ok {
		return nil, &types.ConditionalCheckFailedException{}
	}
	if numAttr(existing["stock_count"]) < numAttr(in.ExpressionAttributeValues[":floor"]) {
		ccf := &types.ConditionalCheckFailedException{}
		if in.ReturnValuesOnConditionCheckFailure == types.ReturnValuesOnConditionCheckFailureAllOld {
			ccf.Item = existing
		}
		return nil, ccf
	}
	next := numAttr(existing["stock_count"]) + numAttr(in.ExpressionAttributeValues[":d"])
	existing["stock_count"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(next, 10)}
	existing["updated_at"] = in.ExpressionAttributeValues[":ua"]
	return &dyn.UpdateItemOutput{Attributes: existing}, nil
}

func (m *mockDynamo) Query(ctx context.Context, in *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	return nil, errors.New("mock: query not supported")
}

// Scan returns one item per page so pagination is exercised.
func (m *mockDynamo) Scan(ctx context.Context, in *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scans++

	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	start := 0
	if in.ExclusiveStartKey != nil {
		last := keyOf(in.ExclusiveStartKey)
		for i, k := range keys {
			if k == last {
				start = i + 1
			}
		}
	}
	out := &dyn.ScanOutput{}
	if start >= len(keys) {
		return out, nil
	}
	it := m.items[keys[start]]
	if in.FilterExpression == nil ||
		it["category"].(*types.AttributeValueMemberS).Value == in.ExpressionAttributeValues[":c"].(*types.AttributeValueMemberS).Value {
		out.Items = append(out.Items, it)
	}
	if start+1 < len(keys) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{"item_id": it["item_id"]}
	}
	return out, nil
}

func (m *mockDynamo) TransactWriteItems(ctx context.Context, in *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	return nil, errors.New("mock: transactions not supported")
}
