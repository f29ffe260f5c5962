package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	database, err := ConnectSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	require.NoError(t, RunMigrations(database))
	return database
}

func TestProvisionSheetsIsIdempotent(t *testing.T) {
	database := setupTestDB(t)

	sheets := map[string][]string{
		"ReadingLogs": {"LogID", "BookID", "UserID", "PageCount", "LoggedAt"},
	}

	created, err := ProvisionSheets(database, sheets)
	require.NoError(t, err)
	assert.Equal(t, []string{"ReadingLogs"}, created)

	created, err = ProvisionSheets(database, sheets)
	require.NoError(t, err)
	assert.Empty(t, created)

	var sheet Sheet
	require.NoError(t, database.First(&sheet, "name = ?", "ReadingLogs").Error)
	headers, err := sheet.HeaderList()
	require.NoError(t, err)
	assert.Equal(t, sheets["ReadingLogs"], headers)
}

func TestPing(t *testing.T) {
	database := setupTestDB(t)
	assert.NoError(t, database.Ping(context.Background()))
}

func TestCellsCodec(t *testing.T) {
	raw, err := EncodeCells(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", raw)

	cells, err := DecodeCells(`["a","","c"]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "", "c"}, cells)

	_, err = DecodeCells("not json")
	assert.Error(t, err)
}
