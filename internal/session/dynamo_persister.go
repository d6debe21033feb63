package session

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// sessionRecord is the DynamoDB item layout; sender is the partition key.
type sessionRecord struct {
	Sender    string  `dynamodbav:"sender"`
	Turns     History `dynamodbav:"turns"`
	UpdatedAt string  `dynamodbav:"updatedAt"`
}

// DynamoPersister stores one item per sender. PutItem replaces the whole item, so a
// save is atomic per sender.
type DynamoPersister struct {
	client    dynamoAPI
	tableName string
}

func NewDynamoPersister(client dynamoAPI, tableName string) *DynamoPersister {
	if client == nil {
		panic("session: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("session: table name cannot be empty")
	}
	return &DynamoPersister{client: client, tableName: tableName}
}

var _ Persister = (*DynamoPersister)(nil)

func senderKey(sender string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"sender": &types.AttributeValueMemberS{Value: sender},
	}
}

func (p *DynamoPersister) Load(ctx context.Context, sender string) (History, bool, error) {
	out, err := p.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(p.tableName),
		Key:            senderKey(sender),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, false, fmt.Errorf("session: failed to get history: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, false, nil
	}
	var rec sessionRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, false, fmt.Errorf("session: failed to unmarshal history: %w", err)
	}
	return rec.Turns, true, nil
}

func (p *DynamoPersister) Save(ctx context.Context, sender string, history History) error {
	item, err := attributevalue.MarshalMap(sessionRecord{
		Sender:    sender,
		Turns:     history,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("session: failed to marshal history: %w", err)
	}
	if _, err := p.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(p.tableName),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("session: failed to persist history: %w", err)
	}
	return nil
}

func (p *DynamoPersister) Delete(ctx context.Context, sender string) error {
	if _, err := p.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(p.tableName),
		Key:       senderKey(sender),
	}); err != nil {
		return fmt.Errorf("session: failed to delete history: %w", err)
	}
	return nil
}

func (p *DynamoPersister) DeleteAll(ctx context.Context) error {
	var startKey map[string]types.AttributeValue
	for {
		out, err := p.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:            aws.String(p.tableName),
			ProjectionExpression: aws.String("sender"),
			ExclusiveStartKey:    startKey,
		})
		if err != nil {
			return fmt.Errorf("session: failed to scan histories: %w", err)
		}
		for _, item := range out.Items {
			key, ok := item["sender"]
			if !ok {
				continue
			}
			if _, err := p.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName: aws.String(p.tableName),
				Key:       map[string]types.AttributeValue{"sender": key},
			}); err != nil {
				return fmt.Errorf("session: failed to delete history: %w", err)
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			return nil
		}
		startKey = out.LastEvaluatedKey
	}
}
