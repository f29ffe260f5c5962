package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/omutucat/reading-counter-dc/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type book struct {
	ID    string `json:"bookId"`
	Title string `json:"title"`
}

func TestGetOrComputeHitsWithinTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	c := NewMemoryWithClock(clock.Now)
	ctx := context.Background()

	calls := 0
	titles := []string{"Dune"}
	compute := func(ctx context.Context) ([]book, error) {
		calls++
		out := make([]book, 0, len(titles))
		for i, title := range titles {
			out = append(out, book{ID: string(rune('a' + i)), Title: title})
		}
		return out, nil
	}

	first, err := GetOrCompute(ctx, c, KeyBooksForSearch, 300*time.Second, compute)
	require.NoError(t, err)
	assert.Len(t, first, 1)

	titles = append(titles, "Emma")
	clock.Advance(299 * time.Second)

	second, err := GetOrCompute(ctx, c, KeyBooksForSearch, 300*time.Second, compute)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)

	clock.Advance(time.Second)

	third, err := GetOrCompute(ctx, c, KeyBooksForSearch, 300*time.Second, compute)
	require.NoError(t, err)
	assert.Len(t, third, 2)
	assert.Equal(t, 2, calls)
}

func TestGetOrComputeDoesNotCacheErrors(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()
	boom := errors.New("sheet unavailable")

	_, err := GetOrCompute(ctx, c, "k", time.Minute, func(ctx context.Context) (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetOrComputeRecomputesUndecodableEntry(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", []byte("{not json"), time.Minute))

	v, err := GetOrCompute(ctx, c, "k", time.Minute, func(ctx context.Context) (map[string]int, error) {
		return map[string]int{"a": 1}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 1}, v)

	raw, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"a":1}`, string(raw))
}

type brokenCache struct{}

func (brokenCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, errors.New("unreachable")
}
func (brokenCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return errors.New("unreachable")
}
func (brokenCache) Delete(ctx context.Context, key string) error { return errors.New("unreachable") }

func TestGetOrComputeSurvivesBrokenBackend(t *testing.T) {
	m := metrics.New("test")
	c := WithMetrics(brokenCache{}, m, zaptest.NewLogger(t))

	v, err := GetOrCompute(context.Background(), c, KeyBooksAsDict, time.Minute, func(ctx context.Context) (string, error) {
		return "fresh", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)

	assert.Error(t, Invalidate(context.Background(), c, KeyBooksAsDict, KeyBooksForSearch))
}

func TestInstrumentedCountsHitsAndMisses(t *testing.T) {
	m := metrics.New("test")
	c := WithMetrics(NewMemory(), m, zaptest.NewLogger(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := GetOrCompute(ctx, c, KeyBooksAsDict, time.Minute, func(ctx context.Context) (int, error) { return 7, nil })
		require.NoError(t, err)
	}

	expected := `
# HELP test_cache_hits_total Read-through cache hits
# TYPE test_cache_hits_total counter
test_cache_hits_total{key="all_books_as_dict"} 2
# HELP test_cache_misses_total Read-through cache misses
# TYPE test_cache_misses_total counter
test_cache_misses_total{key="all_books_as_dict"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"test_cache_hits_total", "test_cache_misses_total"))
}

func TestMemoryDelete(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, KeyBooksForSearch, []byte("[]"), time.Minute))
	require.NoError(t, c.Set(ctx, KeyBooksAsDict, []byte("{}"), time.Minute))
	require.NoError(t, Invalidate(ctx, c, KeyBooksForSearch, KeyBooksAsDict))

	_, ok, _ := c.Get(ctx, KeyBooksForSearch)
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, KeyBooksAsDict)
	assert.False(t, ok)
}

func TestBadgerRoundTripAndDelete(t *testing.T) {
	c, err := OpenBadger("")
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	v, err := GetOrCompute(ctx, c, KeyBooksForSearch, time.Minute, func(ctx context.Context) ([]book, error) {
		return []book{{ID: "b1", Title: "Dune"}}, nil
	})
	require.NoError(t, err)

	cached, err := GetOrCompute(ctx, c, KeyBooksForSearch, time.Minute, func(ctx context.Context) ([]book, error) {
		return nil, errors.New("should be cached")
	})
	require.NoError(t, err)
	assert.Equal(t, v, cached)

	require.NoError(t, c.Delete(ctx, KeyBooksForSearch))
	_, ok, err = c.Get(ctx, KeyBooksForSearch)
	require.NoError(t, err)
	assert.False(t, ok)
}
