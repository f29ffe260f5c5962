package rowstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/omutucat/reading-counter-dc/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newSQLStore(t *testing.T, sheets ...string) Store {
	database, err := db.ConnectSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	require.NoError(t, db.RunMigrations(database))
	provision := make(map[string][]string, len(sheets))
	for _, s := range sheets {
		provision[s] = []string{"A", "B", "C"}
	}
	_, err = db.ProvisionSheets(database, provision)
	require.NoError(t, err)

	return NewSQL(database, zaptest.NewLogger(t))
}

// backends runs the same contract against every store that needs no network.
func backends(t *testing.T) map[string]func(t *testing.T, sheets ...string) Store {
	return map[string]func(t *testing.T, sheets ...string) Store{
		"memory": func(t *testing.T, sheets ...string) Store { return NewMemory(sheets...) },
		"sqlite": newSQLStore,
		"breaker": func(t *testing.T, sheets ...string) Store {
			return WithBreaker(NewMemory(sheets...), DefaultBreakerSettings("test"), zaptest.NewLogger(t))
		},
	}
}

func TestTableContract(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := open(t, "Sheet")

			_, err := store.Table("Missing")
			assert.True(t, errors.Is(err, ErrUnknownTable))

			table, err := store.Table("Sheet")
			require.NoError(t, err)
			assert.Equal(t, "Sheet", table.Name())

			n, err := table.Len(ctx)
			require.NoError(t, err)
			assert.Equal(t, 0, n)

			rows, err := table.ReadAll(ctx)
			require.NoError(t, err)
			assert.Empty(t, rows)

			for i := 0; i < 4; i++ {
				idx, err := table.Append(ctx, Row{fmt.Sprintf("r%d", i), "x", ""})
				require.NoError(t, err)
				assert.Equal(t, i, idx)
			}

			n, err = table.Len(ctx)
			require.NoError(t, err)
			assert.Equal(t, 4, n)

			rows, err = table.ReadRange(ctx, 1, 2)
			require.NoError(t, err)
			require.Len(t, rows, 2)
			assert.Equal(t, "r1", rows[0].Cell(0))
			assert.Equal(t, "r2", rows[1].Cell(0))

			rows, err = table.ReadRange(ctx, 3, 10)
			require.NoError(t, err)
			require.Len(t, rows, 1)

			require.NoError(t, table.SetCell(ctx, 2, 2, "updated"))
			rows, err = table.ReadAll(ctx)
			require.NoError(t, err)
			require.Len(t, rows, 4)
			assert.Equal(t, Row{"r2", "x", "updated"}, rows[2])
			assert.Equal(t, Row{"r1", "x", ""}, rows[1])

			err = table.SetCell(ctx, 4, 0, "nope")
			assert.True(t, errors.Is(err, ErrRowOutOfRange))
		})
	}
}

func TestReadRowsAreCopies(t *testing.T) {
	ctx := context.Background()
	table, err := NewMemory("Sheet").Table("Sheet")
	require.NoError(t, err)

	_, err = table.Append(ctx, Row{"a", "b"})
	require.NoError(t, err)

	rows, err := table.ReadAll(ctx)
	require.NoError(t, err)
	rows[0][0] = "mutated"

	rows, err = table.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", rows[0].Cell(0))
}

func TestMemoryConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	table, err := NewMemory("Sheet").Table("Sheet")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := table.Append(ctx, Row{fmt.Sprint(i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	n, err := table.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 50, n)
}

func TestRowCell(t *testing.T) {
	r := Row{"a"}
	assert.Equal(t, "a", r.Cell(0))
	assert.Equal(t, "", r.Cell(5))
	assert.Equal(t, "", r.Cell(-1))
}
