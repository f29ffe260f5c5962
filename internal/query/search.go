package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/omutucat/reading-counter-dc/internal/errs"
	"github.com/omutucat/reading-counter-dc/internal/model"
)

// SearchBooks matches query as a case-insensitive substring of each title,
// keeps table order and returns at most MaxSearchResults. A nil query is
// rejected; an empty one matches every book.
func (e *Engine) SearchBooks(ctx context.Context, query *string) ([]model.SearchResult, error) {
	if query == nil {
		return nil, errs.InvalidArgument("missing query for searchBooks")
	}

	books, err := e.books.FindAllForSearch(ctx)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(*query)
	results := make([]model.SearchResult, 0, min(len(books), MaxSearchResults))
	for _, b := range books {
		if !strings.Contains(strings.ToLower(b.Title), needle) {
			continue
		}
		results = append(results, model.SearchResult{
			Label: fmt.Sprintf("%s (%s)", b.Title, b.Author),
			Value: b.BookID,
		})
		if len(results) == MaxSearchResults {
			break
		}
	}
	return results, nil
}
