package rowstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// DynamoAPI is the subset of the DynamoDB client the row store uses.
type DynamoAPI interface {
	dynamodb.QueryAPIClient
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// dynamoItem is one row. Sheet is the partition key and Row the numeric sort key.
type dynamoItem struct {
	Sheet string   `dynamodbav:"Sheet"`
	Row   int      `dynamodbav:"Row"`
	Cells []string `dynamodbav:"Cells"`
}

// Dynamo stores every sheet in one DynamoDB table.
type Dynamo struct {
	client    DynamoAPI
	tableName string
	sheets    map[string]struct{}
	log       *zap.Logger
}

// NewDynamo creates a row store serving the given sheet names from tableName.
func NewDynamo(client DynamoAPI, tableName string, sheets []string, log *zap.Logger) *Dynamo {
	known := make(map[string]struct{}, len(sheets))
	for _, s := range sheets {
		known[s] = struct{}{}
	}
	return &Dynamo{client: client, tableName: tableName, sheets: known, log: log}
}

func (d *Dynamo) Table(name string) (Table, error) {
	if _, ok := d.sheets[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, name)
	}
	return &dynamoTable{store: d, name: name}, nil
}

// Ping checks that the backing table is reachable
func (d *Dynamo) Ping(ctx context.Context) error {
	_, err := d.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(d.tableName)})
	return err
}

type dynamoTable struct {
	store *Dynamo
	name  string
}

func (t *dynamoTable) Name() string { return t.name }

// Len relies on row numbers being dense: the highest row number plus one.
func (t *dynamoTable) Len(ctx context.Context) (int, error) {
	last, err := t.lastRow(ctx)
	if err != nil {
		return 0, err
	}
	return last + 1, nil
}

func (t *dynamoTable) lastRow(ctx context.Context) (int, error) {
	keyCond := expression.Key("Sheet").Equal(expression.Value(t.name))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return 0, err
	}

	out, err := t.store.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(t.store.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(false),
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		t.store.log.Error("Failed to query last row", zap.String("sheet", t.name), zap.Error(err))
		return 0, fmt.Errorf("failed to query last row: %w", err)
	}
	if len(out.Items) == 0 {
		return -1, nil
	}

	var item dynamoItem
	if err := attributevalue.UnmarshalMap(out.Items[0], &item); err != nil {
		return 0, fmt.Errorf("corrupt row in %s: %w", t.name, err)
	}
	return item.Row, nil
}

func (t *dynamoTable) ReadRange(ctx context.Context, start, count int) ([]Row, error) {
	if count == 0 {
		return []Row{}, nil
	}
	if start < 0 {
		start = 0
	}

	keyCond := expression.Key("Sheet").Equal(expression.Value(t.name))
	if count > 0 {
		keyCond = keyCond.And(expression.Key("Row").Between(expression.Value(start), expression.Value(start+count-1)))
	} else {
		keyCond = keyCond.And(expression.Key("Row").GreaterThanEqual(expression.Value(start)))
	}
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, err
	}

	paginator := dynamodb.NewQueryPaginator(t.store.client, &dynamodb.QueryInput{
		TableName:                 aws.String(t.store.tableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ConsistentRead:            aws.Bool(true),
	})

	rows := []Row{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			t.store.log.Error("Failed to read rows", zap.String("sheet", t.name), zap.Error(err))
			return nil, fmt.Errorf("failed to read rows: %w", err)
		}

		var items []dynamoItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, fmt.Errorf("corrupt rows in %s: %w", t.name, err)
		}
		for _, item := range items {
			rows = append(rows, Row(item.Cells))
		}
	}
	return rows, nil
}

func (t *dynamoTable) ReadAll(ctx context.Context) ([]Row, error) {
	return t.ReadRange(ctx, 0, -1)
}

func (t *dynamoTable) Append(ctx context.Context, row Row) (int, error) {
	last, err := t.lastRow(ctx)
	if err != nil {
		return 0, err
	}
	index := last + 1

	cells := []string(row)
	if cells == nil {
		cells = []string{}
	}
	item, err := attributevalue.MarshalMap(dynamoItem{Sheet: t.name, Row: index, Cells: cells})
	if err != nil {
		return 0, err
	}

	cond := expression.AttributeNotExists(expression.Name("Sheet"))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return 0, err
	}

	_, err = t.store.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(t.store.tableName),
		Item:                     item,
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
	})
	if err != nil {
		t.store.log.Error("Failed to append row",
			zap.String("sheet", t.name),
			zap.Int("row", index),
			zap.Error(err),
		)
		return 0, fmt.Errorf("failed to append row: %w", err)
	}
	return index, nil
}

// SetCell rewrites one list element in place. Rows are written full width,
// so col always addresses an existing element.
func (t *dynamoTable) SetCell(ctx context.Context, row, col int, value string) error {
	if col < 0 {
		return fmt.Errorf("negative column %d", col)
	}

	update := expression.Set(expression.Name(fmt.Sprintf("Cells[%d]", col)), expression.Value(value))
	cond := expression.AttributeExists(expression.Name("Sheet"))
	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(cond).Build()
	if err != nil {
		return err
	}

	_, err = t.store.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(t.store.tableName),
		Key: map[string]types.AttributeValue{
			"Sheet": &types.AttributeValueMemberS{Value: t.name},
			"Row":   &types.AttributeValueMemberN{Value: strconv.Itoa(row)},
		},
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var conditionalCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionalCheckFailed) {
			return fmt.Errorf("%w: %s[%d]", ErrRowOutOfRange, t.name, row)
		}
		t.store.log.Error("Failed to set cell",
			zap.String("sheet", t.name),
			zap.Int("row", row),
			zap.Int("col", col),
			zap.Error(err),
		)
		return fmt.Errorf("failed to set cell: %w", err)
	}
	return nil
}
