package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/campuslink/notifier/internal/domain"
	"github.com/campuslink/notifier/internal/suppression"
)

// Single-table key layout:
//
//	SUPPRESSION            / <email>                    one per address
//	DELIVERY#<recipient>   / <sentAt>#<messageID>       append-only ledger
//	FEEDBACK#<messageID>   / <recipient>                bounce/complaint audit
const (
	suppressionPK    = "SUPPRESSION"
	deliveryPKPrefix = "DELIVERY#"
	feedbackPKPrefix = "FEEDBACK#"
)

// DynamoStore persists pipeline state in a single DynamoDB table with a
// PK/SK composite key and a TTL attribute named "TTL".
type DynamoStore struct {
	client    *dynamodb.Client
	tableName string
}

// NewDynamoStore loads AWS config (optionally from a named shared profile)
// and returns a store bound to the given table.
func NewDynamoStore(ctx context.Context, tableName, region, profile string) (*DynamoStore, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &DynamoStore{
		client:    dynamodb.NewFromConfig(cfg),
		tableName: tableName,
	}, nil
}

func (d *DynamoStore) GetSuppression(ctx context.Context, email string) (*domain.SuppressionRecord, error) {
	result, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: suppressionPK},
			"SK": &types.AttributeValueMemberS{Value: email},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("getting suppression from DynamoDB: %w", err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var rec domain.SuppressionRecord
	if err := attributevalue.UnmarshalMap(result.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshaling suppression: %w", err)
	}
	return &rec, nil
}

// PutSuppression upserts via UpdateItem so that FirstSeenAt sticks at the
// value of the first write. A zero ExpiresAt removes the TTL attribute
// rather than writing 0, which DynamoDB would treat as already expired.
func (d *DynamoStore) PutSuppression(ctx context.Context, rec domain.SuppressionRecord) error {
	update := "SET Email = :email, Reason = :reason, Subtype = :subtype, DiagnosticCode = :diag, SourceMessageID = :src, FirstSeenAt = if_not_exists(FirstSeenAt, :seen)"
	values := map[string]types.AttributeValue{
		":email":   &types.AttributeValueMemberS{Value: rec.Email},
		":reason":  &types.AttributeValueMemberS{Value: string(rec.Reason)},
		":subtype": &types.AttributeValueMemberS{Value: string(rec.Subtype)},
		":diag":    &types.AttributeValueMemberS{Value: rec.DiagnosticCode},
		":src":     &types.AttributeValueMemberS{Value: rec.SourceMessageID},
		":seen":    &types.AttributeValueMemberS{Value: rec.FirstSeenAt.UTC().Format(time.RFC3339)},
	}
	names := map[string]string{"#ttl": "TTL"}
	if rec.ExpiresAt > 0 {
		update += ", #ttl = :ttl"
		values[":ttl"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", rec.ExpiresAt)}
	} else {
		update += " REMOVE #ttl"
	}

	_, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: suppressionPK},
			"SK": &types.AttributeValueMemberS{Value: rec.Email},
		},
		UpdateExpression:          aws.String(update),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return fmt.Errorf("upserting suppression in DynamoDB: %w", err)
	}
	return nil
}

func (d *DynamoStore) DeleteSuppression(ctx context.Context, email string) error {
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: suppressionPK},
			"SK": &types.AttributeValueMemberS{Value: email},
		},
		ConditionExpression: aws.String("attribute_exists(PK)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return suppression.ErrNotFound
		}
		return fmt.Errorf("deleting suppression from DynamoDB: %w", err)
	}
	return nil
}

func (d *DynamoStore) ListSuppressions(ctx context.Context) ([]domain.SuppressionRecord, error) {
	var records []domain.SuppressionRecord

	paginator := dynamodb.NewQueryPaginator(d.client, &dynamodb.QueryInput{
		TableName:              aws.String(d.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: suppressionPK},
		},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("querying suppressions from DynamoDB: %w", err)
		}
		for _, item := range page.Items {
			var rec domain.SuppressionRecord
			if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
				continue
			}
			records = append(records, rec)
		}
	}
	return records, nil
}

func (d *DynamoStore) PutDelivery(ctx context.Context, rec domain.DeliveryRecord) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshaling delivery record: %w", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: deliveryPK(rec.Recipient)}
	item["SK"] = &types.AttributeValueMemberS{Value: deliverySK(rec.SentAt, rec.MessageID)}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("putting delivery record to DynamoDB: %w", err)
	}
	return nil
}

func (d *DynamoStore) ListDeliveries(ctx context.Context, recipient string, limit int) ([]domain.DeliveryRecord, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(d.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: deliveryPK(recipient)},
		},
		ScanIndexForward: aws.Bool(false), // newest first
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	result, err := d.client.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("querying deliveries from DynamoDB: %w", err)
	}

	var records []domain.DeliveryRecord
	for _, item := range result.Items {
		var rec domain.DeliveryRecord
		if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// PutFeedback overwrites by (message ID, recipient) key, making replayed
// callbacks a no-op at the storage level.
func (d *DynamoStore) PutFeedback(ctx context.Context, rec domain.FeedbackRecord) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshaling feedback record: %w", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: feedbackPKPrefix + rec.MessageID}
	item["SK"] = &types.AttributeValueMemberS{Value: rec.Recipient}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("putting feedback record to DynamoDB: %w", err)
	}
	return nil
}

func deliveryPK(recipient string) string {
	return deliveryPKPrefix + recipient
}

// deliverySK sorts ledger entries chronologically within a recipient
// partition; the message ID suffix keeps same-instant sends distinct.
func deliverySK(sentAt time.Time, messageID string) string {
	return sentAt.UTC().Format(time.RFC3339Nano) + "#" + messageID
}
