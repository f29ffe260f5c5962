// Package query answers the read-side actions: title search, the status
// list joined with book details, and per-user reading statistics.
package query

import (
	"context"
	"time"

	"github.com/omutucat/reading-counter-dc/internal/model"
	"go.uber.org/zap"
)

// MaxSearchResults caps searchBooks output (the autocomplete choice limit).
const MaxSearchResults = 25

// BookReader serves the cached book projections.
type BookReader interface {
	FindAllForSearch(ctx context.Context) ([]model.SearchEntry, error)
	FindAllAsLookup(ctx context.Context) (model.BookLookup, error)
}

// ProgressReader scans the progress tables.
type ProgressReader interface {
	ListStatuses(ctx context.Context) ([]model.ReadingStatus, error)
	ListLogs(ctx context.Context) ([]model.ReadingLog, error)
}

// Engine runs read-only queries. It takes no locks.
type Engine struct {
	books          BookReader
	progress       ProgressReader
	finishedStatus string
	now            func() time.Time
	log            *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock used for period boundaries.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithFinishedStatus sets the status value counted as a finished book.
func WithFinishedStatus(status string) Option {
	return func(e *Engine) { e.finishedStatus = status }
}

// NewEngine creates a query engine.
func NewEngine(books BookReader, progress ProgressReader, log *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		books:          books,
		progress:       progress,
		finishedStatus: "finished",
		now:            time.Now,
		log:            log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}
