package gate

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/omutucat/reading-counter-dc/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// leaseTable evaluates the two conditions the lease lock relies on.
type leaseTable struct {
	mu        sync.Mutex
	lockID    string
	expiresAt int64
	deletes   int
}

func (l *leaseTable) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now, _ := strconv.ParseInt(in.ExpressionAttributeValues[":now"].(*types.AttributeValueMemberN).Value, 10, 64)
	if l.lockID != "" && l.expiresAt >= now {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("held")}
	}
	l.lockID = in.Item["LockID"].(*types.AttributeValueMemberS).Value
	l.expiresAt, _ = strconv.ParseInt(in.Item["ExpiresAt"].(*types.AttributeValueMemberN).Value, 10, 64)
	return &dynamodb.PutItemOutput{}, nil
}

func (l *leaseTable) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.deletes++
	if in.ExpressionAttributeValues[":lockId"].(*types.AttributeValueMemberS).Value != l.lockID {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("not owner")}
	}
	l.lockID = ""
	return &dynamodb.DeleteItemOutput{}, nil
}

func TestDynamoLeaseExcludesAndReleases(t *testing.T) {
	table := &leaseTable{}
	lease := NewDynamoLease(table, "locks", time.Minute, zaptest.NewLogger(t))
	lease.pollInterval = 5 * time.Millisecond
	g := New(lease, nil, zaptest.NewLogger(t))
	ctx := context.Background()

	err := g.WithWriteLock(ctx, time.Second, func(ctx context.Context) error {
		inner := g.WithWriteLock(ctx, 30*time.Millisecond, func(ctx context.Context) error { return nil })
		assert.ErrorIs(t, inner, errs.ErrLockTimeout)
		return nil
	})
	require.NoError(t, err)
	assert.Empty(t, table.lockID)
	assert.Equal(t, 1, table.deletes)

	require.NoError(t, g.WithWriteLock(ctx, time.Second, func(ctx context.Context) error { return nil }))
}

func TestDynamoLeaseTakesOverExpiredHolder(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	table := &leaseTable{lockID: "crashed", expiresAt: now.Add(-time.Second).UnixMilli()}
	lease := NewDynamoLease(table, "locks", time.Minute, zaptest.NewLogger(t))
	lease.now = func() time.Time { return now }

	release, err := lease.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, "crashed", table.lockID)
	release()
	assert.Empty(t, table.lockID)
}
