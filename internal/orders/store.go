package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/canteen-orderflow/internal/aws"
)

var (
	// ErrStatusMismatch means the order changed since it was read.
	ErrStatusMismatch = errors.New("status mismatch/conditional failed")
	// ErrStockUnavailable means a stock adjustment in the transition was rejected.
	ErrStockUnavailable = errors.New("stock condition failed")
	// ErrTokenTaken means another order already owns the redemption token.
	ErrTokenTaken = errors.New("redemption token already issued")
	// ErrReferenceTaken means another order already owns the payment reference.
	ErrReferenceTaken = errors.New("payment reference already in use")
)

const (
	ownerIndex    = "owner_id-index"
	paymentPrefix = "payment#"
	tokenPrefix   = "token#"

	casCondition = "#ls = :from AND #v = :version"
)

// StockWriter builds the conditional stock updates committed with a transition.
type StockWriter interface {
	StockUpdate(itemID string, delta int64) types.TransactWriteItem
}

// lookupRecord maps a payment reference or redemption token to its order.
// Lookup rows are written in the same transaction as the order, so reads
// through them are strongly consistent and double as uniqueness guards.
type lookupRecord struct {
	LookupKey string    `dynamodbav:"lookup_key"` // PK
	OrderID   string    `dynamodbav:"order_id"`
	CreatedAt time.Time `dynamodbav:"created_at"`
}

// Store encapsulates operations on the orders and lookups tables.
type Store struct {
	client      aws.DynamoDBAPI
	tableName   string
	lookupTable string
	stock       StockWriter
	nowFunc     func() time.Time
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tableName, lookupTable string, stock StockWriter) *Store {
	return &Store{
		client:      client,
		tableName:   tableName,
		lookupTable: lookupTable,
		stock:       stock,
		nowFunc:     time.Now,
	}
}

// Create atomically writes the order and its payment-reference lookup row.
func (s *Store) Create(ctx context.Context, o Order) error {
	orderMap, err := attributevalue.MarshalMap(o)
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}
	lookupPut, err := s.lookupPut(paymentPrefix+o.PaymentReference, o.OrderID)
	if err != nil {
		return err
	}

	items := []types.TransactWriteItem{
		{
			Put: &types.Put{
				TableName:           &s.tableName,
				Item:                orderMap,
				ConditionExpression: awsString("attribute_not_exists(order_id)"),
			},
		},
		lookupPut,
	}
	kinds := []error{ErrStatusMismatch, ErrReferenceTaken}

	if _, err := s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: items}); err != nil {
		return transactError(err, kinds)
	}
	return nil
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            map[string]types.AttributeValue{"order_id": &types.AttributeValueMemberS{Value: orderID}},
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// GetByPaymentReference resolves the order created for a gateway handle.
func (s *Store) GetByPaymentReference(ctx context.Context, ref string) (*Order, error) {
	return s.getByLookup(ctx, paymentPrefix+ref)
}

// GetByRedemptionToken resolves the order a redemption token was issued to.
func (s *Store) GetByRedemptionToken(ctx context.Context, token string) (*Order, error) {
	return s.getByLookup(ctx, tokenPrefix+token)
}

func (s *Store) getByLookup(ctx context.Context, key string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.lookupTable,
		Key:            map[string]types.AttributeValue{"lookup_key": &types.AttributeValueMemberS{Value: key}},
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get lookup: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec lookupRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal lookup: %w", err)
	}
	return s.Get(ctx, rec.OrderID)
}

// ListByOwner returns every order placed by the account, newest first when
// the index sorts on created_at.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]Order, error) {
	input := &dyn.QueryInput{
		TableName:              &s.tableName,
		IndexName:              awsString(ownerIndex),
		KeyConditionExpression: awsString("owner_id = :o"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":o": &types.AttributeValueMemberS{Value: ownerID},
		},
		ScanIndexForward: awsBool(false),
	}

	var out []Order
	for {
		page, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("query orders: %w", err)
		}
		var batch []Order
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal orders: %w", err)
		}
		out = append(out, batch...)
		if len(page.LastEvaluatedKey) == 0 {
			return out, nil
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}
}

// Commit persists the transition from -> to in one transaction together with
// the stock deltas and any new lookup rows. The write only succeeds if the
// stored order still has from's lifecycle state and version. It returns the
// committed order with its version bumped.
func (s *Store) Commit(ctx context.Context, from, to Order, deltas []StockDelta) (Order, error) {
	items := make([]types.TransactWriteItem, 0, len(deltas)+3)
	kinds := make([]error, 0, len(deltas)+3)
	for _, d := range deltas {
		items = append(items, s.stock.StockUpdate(d.ItemID, d.Delta))
		kinds = append(kinds, ErrStockUnavailable)
	}

	to.Version = from.Version + 1
	orderMap, err := attributevalue.MarshalMap(to)
	if err != nil {
		return from, fmt.Errorf("marshal order item: %w", err)
	}
	items = append(items, types.TransactWriteItem{
		Put: &types.Put{
			TableName:           &s.tableName,
			Item:                orderMap,
			ConditionExpression: awsString(casCondition),
			ExpressionAttributeNames: map[string]string{
				"#ls": "lifecycle_state",
				"#v":  "version",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":from":    &types.AttributeValueMemberS{Value: string(from.LifecycleState)},
				":version": &types.AttributeValueMemberN{Value: strconv.FormatInt(from.Version, 10)},
			},
		},
	})
	kinds = append(kinds, ErrStatusMismatch)

	if to.RedemptionToken != "" && to.RedemptionToken != from.RedemptionToken {
		put, err := s.lookupPut(tokenPrefix+to.RedemptionToken, to.OrderID)
		if err != nil {
			return from, err
		}
		items = append(items, put)
		kinds = append(kinds, ErrTokenTaken)
	}

	if to.PaymentReference != from.PaymentReference {
		put, err := s.lookupPut(paymentPrefix+to.PaymentReference, to.OrderID)
		if err != nil {
			return from, err
		}
		items = append(items, put, types.TransactWriteItem{
			Delete: &types.Delete{
				TableName:           &s.lookupTable,
				Key:                 map[string]types.AttributeValue{"lookup_key": &types.AttributeValueMemberS{Value: paymentPrefix + from.PaymentReference}},
				ConditionExpression: awsString("order_id = :oid"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":oid": &types.AttributeValueMemberS{Value: from.OrderID},
				},
			},
		})
		kinds = append(kinds, ErrReferenceTaken, ErrStatusMismatch)
	}

	if _, err := s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: items}); err != nil {
		return from, transactError(err, kinds)
	}
	return to, nil
}

func (s *Store) lookupPut(key, orderID string) (types.TransactWriteItem, error) {
	m, err := attributevalue.MarshalMap(lookupRecord{LookupKey: key, OrderID: orderID, CreatedAt: s.nowFunc().UTC()})
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("marshal lookup item: %w", err)
	}
	return types.TransactWriteItem{
		Put: &types.Put{
			TableName:           &s.lookupTable,
			Item:                m,
			ConditionExpression: awsString("attribute_not_exists(lookup_key)"),
		},
	}, nil
}

// transactError maps the first failed cancellation reason onto the sentinel
// registered for that transaction item.
func transactError(err error, kinds []error) error {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return fmt.Errorf("transact write: %w", err)
	}
	for i, r := range tce.CancellationReasons {
		if r.Code == nil || i >= len(kinds) {
			continue
		}
		switch *r.Code {
		case "ConditionalCheckFailed":
			return fmt.Errorf("%w: %w", kinds[i], err)
		case "TransactionConflict":
			return fmt.Errorf("%w: concurrent transaction: %w", ErrStatusMismatch, err)
		}
	}
	return fmt.Errorf("transaction canceled: %w", err)
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
