package repo

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/omutucat/reading-counter-dc/internal/cache"
	"github.com/omutucat/reading-counter-dc/internal/db"
	"github.com/omutucat/reading-counter-dc/internal/gate"
	"github.com/omutucat/reading-counter-dc/internal/rowstore"
	"github.com/omutucat/reading-counter-dc/pkg/logger"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testNow = time.Date(2024, 5, 14, 9, 30, 0, 0, time.UTC)

type fixture struct {
	store    rowstore.Store
	cache    *cache.Memory
	books    *BookRepository
	progress *ProgressRepository
	clock    *clock
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func sequentialIDs(prefix string) func() string {
	var n int64
	return func() string {
		return fmt.Sprintf("%s-%d", prefix, atomic.AddInt64(&n, 1))
	}
}

func newFixture(t *testing.T, store rowstore.Store, mutate ...func(*Options)) *fixture {
	log := zap.NewNop()
	clk := &clock{now: testNow}
	mem := cache.NewMemoryWithClock(clk.Now)
	g := gate.New(gate.NewLocal(), nil, log)

	opts := Options{Now: clk.Now, NewID: sequentialIDs("id")}
	for _, m := range mutate {
		m(&opts)
	}

	return &fixture{
		store:    store,
		cache:    mem,
		books:    NewBookRepository(store, g, mem, opts, log),
		progress: NewProgressRepository(store, g, opts, log),
		clock:    clk,
	}
}

func newMemoryFixture(t *testing.T, mutate ...func(*Options)) *fixture {
	return newFixture(t, rowstore.NewMemory(SheetNames()...), mutate...)
}

// setupTestDB provisions the three sheets in an in-memory SQLite database.
func setupTestDB(t *testing.T) *db.DB {
	database, err := db.ConnectSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	require.NoError(t, db.RunMigrations(database))
	_, err = db.ProvisionSheets(database, Sheets())
	require.NoError(t, err)
	return database
}

func newSQLFixture(t *testing.T) *fixture {
	log := logger.NewLogger("test", "error")
	return newFixture(t, rowstore.NewSQL(setupTestDB(t), log))
}

func rows(t *testing.T, store rowstore.Store, sheet string) []rowstore.Row {
	table, err := store.Table(sheet)
	require.NoError(t, err)
	out, err := table.ReadAll(context.Background())
	require.NoError(t, err)
	return out
}

func intPtr(i int) *int { return &i }
