package gate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LeaseAPI is the subset of the DynamoDB client the lease lock uses.
type LeaseAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

const leaseKey = "LOCK#write-gate"

// DynamoLease is a lock record written with a conditional put. A holder that
// dies without releasing blocks others only until its lease expires.
type DynamoLease struct {
	client       LeaseAPI
	tableName    string
	owner        string
	lease        time.Duration
	pollInterval time.Duration
	now          func() time.Time
	log          *zap.Logger
}

// NewDynamoLease creates a lease lock. lease must exceed the longest
// critical section.
func NewDynamoLease(client LeaseAPI, tableName string, lease time.Duration, log *zap.Logger) *DynamoLease {
	return &DynamoLease{
		client:       client,
		tableName:    tableName,
		owner:        uuid.NewString(),
		lease:        lease,
		pollInterval: 100 * time.Millisecond,
		now:          time.Now,
		log:          log,
	}
}

func (d *DynamoLease) Acquire(ctx context.Context) (func(), error) {
	interval := d.pollInterval
	for {
		lockID, err := d.tryAcquire(ctx)
		if err == nil {
			return func() { d.release(lockID) }, nil
		}
		if !errors.Is(err, errLeaseHeld) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
			if interval < time.Second {
				interval = interval * 3 / 2
			}
		}
	}
}

var errLeaseHeld = errors.New("write lease held by another owner")

func (d *DynamoLease) tryAcquire(ctx context.Context) (string, error) {
	now := d.now().UTC()
	lockID := uuid.NewString()
	expiresAt := now.Add(d.lease)

	_, err := d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item: map[string]types.AttributeValue{
			"PK":        &types.AttributeValueMemberS{Value: leaseKey},
			"LockID":    &types.AttributeValueMemberS{Value: lockID},
			"Owner":     &types.AttributeValueMemberS{Value: d.owner},
			"ExpiresAt": &types.AttributeValueMemberN{Value: strconv.FormatInt(expiresAt.UnixMilli(), 10)},
			"TTL":       &types.AttributeValueMemberN{Value: strconv.FormatInt(expiresAt.Unix(), 10)},
		},
		ConditionExpression: aws.String("attribute_not_exists(PK) OR ExpiresAt < :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.UnixMilli(), 10)},
		},
	})
	if err != nil {
		var conditionalCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionalCheckFailed) {
			return "", errLeaseHeld
		}
		return "", fmt.Errorf("failed to put lease: %w", err)
	}

	d.log.Debug("Write lease acquired", zap.String("lock_id", lockID), zap.Duration("lease", d.lease))
	return lockID, nil
}

func (d *DynamoLease) release(lockID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: leaseKey},
		},
		ConditionExpression: aws.String("LockID = :lockId"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":lockId": &types.AttributeValueMemberS{Value: lockID},
		},
	})
	if err != nil {
		var conditionalCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionalCheckFailed) {
			d.log.Warn("Write lease expired before release", zap.String("lock_id", lockID))
			return
		}
		d.log.Error("Failed to release write lease", zap.String("lock_id", lockID), zap.Error(err))
	}
}
