package query

import (
	"context"

	"github.com/omutucat/reading-counter-dc/internal/model"
)

// GetReadingStatus lists status rows, filtered to userID when it is
// non-empty, each joined with its book. A status whose book is missing from
// the lookup is returned without book fields. No match yields an empty list.
func (e *Engine) GetReadingStatus(ctx context.Context, userID string) ([]model.StatusView, error) {
	statuses, err := e.progress.ListStatuses(ctx)
	if err != nil {
		return nil, err
	}

	var matched []model.ReadingStatus
	for _, s := range statuses {
		if userID == "" || s.UserID == userID {
			matched = append(matched, s)
		}
	}
	if len(matched) == 0 {
		return []model.StatusView{}, nil
	}

	books, err := e.books.FindAllAsLookup(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]model.StatusView, 0, len(matched))
	for _, s := range matched {
		view := model.StatusView{
			UserID:        s.UserID,
			BookID:        s.BookID,
			CurrentPage:   s.CurrentPage,
			Status:        s.Status,
			LastUpdatedAt: s.LastUpdatedAt,
		}
		if b, ok := books[s.BookID]; ok {
			title, author, pages, cover := b.Title, b.Author, b.TotalPages, b.CoverImageURL
			view.Title = &title
			view.Author = &author
			view.TotalPages = &pages
			view.CoverImageURL = &cover
		}
		views = append(views, view)
	}
	return views, nil
}
