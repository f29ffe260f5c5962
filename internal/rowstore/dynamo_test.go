package rowstore

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// stubDynamo answers Query from a queue of canned pages and records writes.
type stubDynamo struct {
	pages   []*dynamodb.QueryOutput
	queries []*dynamodb.QueryInput
	puts    []*dynamodb.PutItemInput
	updates []*dynamodb.UpdateItemInput
	putErr  error
	updErr  error
}

func (s *stubDynamo) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	s.queries = append(s.queries, in)
	if len(s.pages) == 0 {
		return &dynamodb.QueryOutput{}, nil
	}
	out := s.pages[0]
	s.pages = s.pages[1:]
	return out, nil
}

func (s *stubDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	s.puts = append(s.puts, in)
	return &dynamodb.PutItemOutput{}, s.putErr
}

func (s *stubDynamo) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	s.updates = append(s.updates, in)
	return &dynamodb.UpdateItemOutput{}, s.updErr
}

func (s *stubDynamo) DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	return &dynamodb.DescribeTableOutput{}, nil
}

func items(t *testing.T, rows ...dynamoItem) []map[string]types.AttributeValue {
	out := make([]map[string]types.AttributeValue, 0, len(rows))
	for _, r := range rows {
		av, err := attributevalue.MarshalMap(r)
		require.NoError(t, err)
		out = append(out, av)
	}
	return out
}

func TestDynamoReadRangeFollowsPages(t *testing.T) {
	stub := &stubDynamo{pages: []*dynamodb.QueryOutput{
		{
			Items:            items(t, dynamoItem{Sheet: "Books", Row: 2, Cells: []string{"b2"}}),
			LastEvaluatedKey: map[string]types.AttributeValue{"Sheet": &types.AttributeValueMemberS{Value: "Books"}},
		},
		{Items: items(t, dynamoItem{Sheet: "Books", Row: 3, Cells: []string{"b3", ""}})},
	}}
	store := NewDynamo(stub, "rows", []string{"Books"}, zaptest.NewLogger(t))

	table, err := store.Table("Books")
	require.NoError(t, err)

	rows, err := table.ReadRange(context.Background(), 2, 5)
	require.NoError(t, err)
	assert.Equal(t, []Row{{"b2"}, {"b3", ""}}, rows)

	require.Len(t, stub.queries, 2)
	assert.Contains(t, aws.ToString(stub.queries[0].KeyConditionExpression), "BETWEEN")
	assert.Equal(t, "rows", aws.ToString(stub.queries[0].TableName))
}

func TestDynamoAppendUsesNextRowNumber(t *testing.T) {
	stub := &stubDynamo{pages: []*dynamodb.QueryOutput{
		{Items: items(t, dynamoItem{Sheet: "ReadingLogs", Row: 4, Cells: []string{"l4"}})},
	}}
	store := NewDynamo(stub, "rows", []string{"ReadingLogs"}, zaptest.NewLogger(t))
	table, err := store.Table("ReadingLogs")
	require.NoError(t, err)

	idx, err := table.Append(context.Background(), Row{"l5", "book", "user"})
	require.NoError(t, err)
	assert.Equal(t, 5, idx)

	require.Len(t, stub.puts, 1)
	var written dynamoItem
	require.NoError(t, attributevalue.UnmarshalMap(stub.puts[0].Item, &written))
	assert.Equal(t, dynamoItem{Sheet: "ReadingLogs", Row: 5, Cells: []string{"l5", "book", "user"}}, written)
	assert.True(t, strings.HasPrefix(aws.ToString(stub.puts[0].ConditionExpression), "attribute_not_exists"))

	assert.False(t, aws.ToBool(stub.queries[0].ScanIndexForward))
}

func TestDynamoAppendToEmptySheet(t *testing.T) {
	stub := &stubDynamo{}
	store := NewDynamo(stub, "rows", []string{"Books"}, zaptest.NewLogger(t))
	table, err := store.Table("Books")
	require.NoError(t, err)

	n, err := table.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	idx, err := table.Append(context.Background(), Row{"first"})
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
}

func TestDynamoSetCellMissingRow(t *testing.T) {
	stub := &stubDynamo{updErr: &types.ConditionalCheckFailedException{Message: aws.String("nope")}}
	store := NewDynamo(stub, "rows", []string{"ReadingStatus"}, zaptest.NewLogger(t))
	table, err := store.Table("ReadingStatus")
	require.NoError(t, err)

	err = table.SetCell(context.Background(), 7, 3, "42")
	assert.True(t, errors.Is(err, ErrRowOutOfRange))

	require.Len(t, stub.updates, 1)
	key := stub.updates[0].Key
	assert.Equal(t, &types.AttributeValueMemberN{Value: "7"}, key["Row"])
	assert.Contains(t, aws.ToString(stub.updates[0].UpdateExpression), "[3]")
}

func TestDynamoUnknownSheet(t *testing.T) {
	store := NewDynamo(&stubDynamo{}, "rows", []string{"Books"}, zaptest.NewLogger(t))
	_, err := store.Table("Other")
	assert.ErrorIs(t, err, ErrUnknownTable)
}
