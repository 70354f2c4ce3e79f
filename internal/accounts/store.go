// Package accounts reads canteen users and their roles.
package accounts

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/canteen-orderflow/internal/aws"
)

type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

type Account struct {
	AccountID string    `dynamodbav:"account_id" json:"account_id"` // PK
	Name      string    `dynamodbav:"name" json:"name"`
	Email     string    `dynamodbav:"email" json:"email"`
	Role      Role      `dynamodbav:"role" json:"role"`
	CreatedAt time.Time `dynamodbav:"created_at" json:"created_at"`
}

func (a Account) IsAdmin() bool { return a.Role == RoleAdmin }

// Store encapsulates operations on the accounts table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
}

func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

// Get fetches an account by id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, accountID string) (*Account, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key:       map[string]types.AttributeValue{"account_id": &types.AttributeValueMemberS{Value: accountID}},
	})
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var a Account
	if err := attributevalue.UnmarshalMap(out.Item, &a); err != nil {
		return nil, fmt.Errorf("unmarshal account: %w", err)
	}
	return &a, nil
}

// Put seeds or replaces an account.
func (s *Store) Put(ctx context.Context, a Account) error {
	if a.Role != RoleStudent && a.Role != RoleAdmin {
		return fmt.Errorf("unknown role %q", a.Role)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	m, err := attributevalue.MarshalMap(a)
	if err != nil {
		return fmt.Errorf("marshal account: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dyn.PutItemInput{TableName: &s.tableName, Item: m}); err != nil {
		return fmt.Errorf("put account: %w", err)
	}
	return nil
}
