package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	skPrefixKey = "KEY#"
	ttlDuration = 180 * 24 * time.Hour // client state outlives idle sessions
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Client stores per-client scalar state in a DynamoDB table.
// Items are keyed PK=CLIENT#<clientID>, SK=KEY#<key>.
type Client struct {
	api       dynamodbAPI
	tableName string
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

// ForClient returns a KV view scoped to one client identity.
func (c *Client) ForClient(clientID string) (*ClientState, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return nil, errors.New("repository: client id must not be empty")
	}
	return &ClientState{client: c, clientID: clientID}, nil
}

func clientPK(clientID string) string {
	return "CLIENT#" + clientID
}

func keySK(key string) string {
	return skPrefixKey + key
}

func ttlValue() int64 {
	return time.Now().Add(ttlDuration).Unix()
}

func (c *Client) itemKey(clientID, key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: clientPK(clientID)},
		"SK": &types.AttributeValueMemberS{Value: keySK(key)},
	}
}

// GetValue reads one state value. A missing item yields ok=false.
func (c *Client) GetValue(ctx context.Context, clientID, key string) (string, bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            c.itemKey(clientID, key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", false, fmt.Errorf("repository: GetValue get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return "", false, nil
	}
	v, err := strAttr(out.Item, "value")
	if err != nil {
		return "", false, fmt.Errorf("repository: GetValue decode value: %w", err)
	}
	return v, true, nil
}

// PutValue writes or replaces one state value.
func (c *Client) PutValue(ctx context.Context, clientID, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("repository: PutValue: key is required")
	}
	item := c.itemKey(clientID, key)
	item["clientId"] = &types.AttributeValueMemberS{Value: clientID}
	item["value"] = &types.AttributeValueMemberS{Value: value}
	item["updatedAt"] = &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)}
	item["ttl"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", ttlValue())}

	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("repository: PutValue: %w", err)
	}
	return nil
}

// DeleteValue removes one state value; deleting a missing key is not an error.
func (c *Client) DeleteValue(ctx context.Context, clientID, key string) error {
	_, err := c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tableName),
		Key:       c.itemKey(clientID, key),
	})
	if err != nil {
		return fmt.Errorf("repository: DeleteValue: %w", err)
	}
	return nil
}

// ClientState adapts Client to the KV interface for a single client.
type ClientState struct {
	client   *Client
	clientID string
}

func (s *ClientState) Get(ctx context.Context, key string) (string, bool, error) {
	return s.client.GetValue(ctx, s.clientID, key)
}

func (s *ClientState) Set(ctx context.Context, key, value string) error {
	return s.client.PutValue(ctx, s.clientID, key, value)
}

func (s *ClientState) Delete(ctx context.Context, key string) error {
	return s.client.DeleteValue(ctx, s.clientID, key)
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}
