package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/omutucat/reading-counter-dc/internal/cache"
	"github.com/omutucat/reading-counter-dc/internal/errs"
	"github.com/omutucat/reading-counter-dc/internal/model"
	"github.com/omutucat/reading-counter-dc/internal/rowstore"
	"go.uber.org/zap"
)

// BookRepository registers books and serves the cached book projections
type BookRepository struct {
	store rowstore.Store
	gate  WriteGate
	cache cache.Cache
	opts  Options
	log   *zap.Logger
}

// NewBookRepository creates a new book repository
func NewBookRepository(store rowstore.Store, writes WriteGate, c cache.Cache, opts Options, logger *zap.Logger) *BookRepository {
	return &BookRepository{
		store: store,
		gate:  writes,
		cache: c,
		opts:  opts.withDefaults(),
		log:   logger,
	}
}

// Register appends a new book and returns its generated id. A non-empty ISBN
// that is already registered fails with errs.ErrDuplicateISBN and writes nothing.
func (r *BookRepository) Register(ctx context.Context, data *model.BookData, registeredBy string) (string, error) {
	if data == nil {
		return "", errs.InvalidArgument("missing required fields for registerBook: bookData")
	}
	if strings.TrimSpace(registeredBy) == "" {
		return "", errs.InvalidArgument("missing required fields for registerBook: registeredBy")
	}

	books, err := r.store.Table(SheetBooks)
	if err != nil {
		return "", err
	}

	var book model.Book
	err = r.gate.WithWriteLock(ctx, r.opts.LockTimeout, func(ctx context.Context) error {
		rows, err := books.ReadAll(ctx)
		if err != nil {
			return fmt.Errorf("failed to read books: %w", err)
		}
		if data.ISBN != "" {
			for _, row := range rows {
				if row.Cell(BookColISBN) == data.ISBN {
					return errs.DuplicateISBN(data.ISBN)
				}
			}
		}

		book = newBook(r.opts.NewID(), *data, registeredBy, model.FormatTimestamp(r.opts.Now()))
		if _, err := books.Append(ctx, encodeBook(book)); err != nil {
			return fmt.Errorf("failed to append book: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errs.ErrDuplicateISBN) {
			r.log.Info("Book already registered", zap.String("isbn", data.ISBN))
		} else {
			r.log.Error("Failed to register book", zap.String("isbn", data.ISBN), zap.Error(err))
		}
		return "", err
	}

	r.log.Info("Book registered",
		zap.String("book_id", book.BookID),
		zap.String("title", book.Title),
		zap.String("registered_by", registeredBy),
	)

	if r.opts.InvalidateOnWrite {
		r.InvalidateCache(ctx)
	}
	return book.BookID, nil
}

// InvalidateCache drops both book projections so the next read rescans.
func (r *BookRepository) InvalidateCache(ctx context.Context) {
	if err := cache.Invalidate(ctx, r.cache, cache.KeyBooksForSearch, cache.KeyBooksAsDict); err != nil {
		r.log.Warn("Failed to invalidate book cache", zap.Error(err))
	}
}

// FindAllForSearch returns every book as a search entry, in table order.
// The result may be up to CacheTTL stale.
func (r *BookRepository) FindAllForSearch(ctx context.Context) ([]model.SearchEntry, error) {
	return cache.GetOrCompute(ctx, r.cache, cache.KeyBooksForSearch, r.opts.CacheTTL, r.scanSearchEntries)
}

// FindAllAsLookup returns every book keyed by id. The result may be up to
// CacheTTL stale.
func (r *BookRepository) FindAllAsLookup(ctx context.Context) (model.BookLookup, error) {
	return cache.GetOrCompute(ctx, r.cache, cache.KeyBooksAsDict, r.opts.CacheTTL, r.scanLookup)
}

// Count returns the number of registered books, bypassing the cache.
func (r *BookRepository) Count(ctx context.Context) (int, error) {
	books, err := r.store.Table(SheetBooks)
	if err != nil {
		return 0, err
	}
	return books.Len(ctx)
}

func (r *BookRepository) scanSearchEntries(ctx context.Context) ([]model.SearchEntry, error) {
	rows, err := r.readBooks(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]model.SearchEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, model.SearchEntry{
			BookID: row.Cell(BookColID),
			Title:  row.Cell(BookColTitle),
			Author: row.Cell(BookColAuthor),
		})
	}
	return entries, nil
}

func (r *BookRepository) scanLookup(ctx context.Context) (model.BookLookup, error) {
	rows, err := r.readBooks(ctx)
	if err != nil {
		return nil, err
	}

	lookup := make(model.BookLookup, len(rows))
	for _, row := range rows {
		pages, err := parseInt(row.Cell(BookColTotalPages))
		if err != nil {
			r.log.Warn("Book has unreadable page count",
				zap.String("book_id", row.Cell(BookColID)),
				zap.Error(err),
			)
		}
		lookup[row.Cell(BookColID)] = model.BookSummary{
			Title:         row.Cell(BookColTitle),
			Author:        row.Cell(BookColAuthor),
			TotalPages:    pages,
			CoverImageURL: row.Cell(BookColCoverImageURL),
		}
	}
	return lookup, nil
}

func (r *BookRepository) readBooks(ctx context.Context) ([]rowstore.Row, error) {
	books, err := r.store.Table(SheetBooks)
	if err != nil {
		return nil, err
	}
	rows, err := books.ReadAll(ctx)
	if err != nil {
		r.log.Error("Failed to scan books", zap.Error(err))
		return nil, fmt.Errorf("failed to scan books: %w", err)
	}
	return rows, nil
}
