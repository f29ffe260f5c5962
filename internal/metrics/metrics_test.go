package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	c := New("reading")

	c.CacheHit("all_books_as_dict")
	c.CacheHit("all_books_as_dict")
	c.CacheMiss("all_books_as_dict")
	c.ObserveLockWait(10*time.Millisecond, true)
	c.ObserveLockWait(30*time.Second, false)
	c.EventPublished("reading.book_registered", nil)
	c.EventPublished("reading.book_registered", errors.New("down"))
	c.ObserveAction("registerBook", "success", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.cacheHits.WithLabelValues("all_books_as_dict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.cacheMisses.WithLabelValues("all_books_as_dict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.lockTimeouts))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.events.WithLabelValues("reading.book_registered", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.actions.WithLabelValues("registerBook", "success")))
}

func TestHandlerServesRegistry(t *testing.T) {
	c := New("reading")
	c.CacheMiss("all_books_for_search")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `reading_cache_misses_total{key="all_books_for_search"} 1`)
}

func TestCollectorsAreIndependent(t *testing.T) {
	// Two collectors must not collide on registration.
	assert.NotPanics(t, func() {
		New("reading")
		New("reading")
	})
}
