package model

import "time"

// TimestampLayout is ISO-8601 in UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTimestamp renders t the way every timestamp cell is stored.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp reads a stored timestamp cell.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// BookData is the caller-supplied description of a book to register.
// Every field is optional; missing values default to empty or zero.
type BookData struct {
	ISBN          string   `json:"isbn"`
	Title         string   `json:"title"`
	Authors       []string `json:"authors"`
	TotalPages    int      `json:"totalPages"`
	CoverImageURL string   `json:"coverImageUrl"`
	Description   string   `json:"description"`
}

// Book is a registered book. Books are never updated or deleted.
type Book struct {
	BookID        string
	ISBN          string
	Title         string
	Author        string // authors joined with ", "
	TotalPages    int
	CoverImageURL string
	Description   string
	RegisteredBy  string
	RegisteredAt  string
}

// ReadingLog is one append-only progress event.
type ReadingLog struct {
	LogID     string
	BookID    string
	UserID    string
	PageCount int
	LoggedAt  string
}

// ReadingStatus is the latest progress of one user on one book.
type ReadingStatus struct {
	StatusID      string
	UserID        string
	BookID        string
	CurrentPage   int
	Status        string
	LastUpdatedAt string
}

// StatusID builds the composite key of a ReadingStatus row.
func StatusID(userID, bookID string) string {
	return userID + ":" + bookID
}

// ProgressUpdate is a recordProgress request. Numeric fields are pointers so
// that an explicit zero is distinguishable from an absent value.
type ProgressUpdate struct {
	UserID         string `json:"userId" validate:"required"`
	BookID         string `json:"bookId" validate:"required"`
	PagesRead      *int   `json:"pagesRead" validate:"required"`
	NewCurrentPage *int   `json:"newCurrentPage" validate:"required"`
	NewStatus      string `json:"newStatus" validate:"required"`
}

// SearchEntry is one element of the cached search projection.
type SearchEntry struct {
	BookID string `json:"bookId"`
	Title  string `json:"title"`
	Author string `json:"author"`
}

// BookSummary is one value of the cached id-keyed lookup.
type BookSummary struct {
	Title         string `json:"title"`
	Author        string `json:"author"`
	TotalPages    int    `json:"totalPages"`
	CoverImageURL string `json:"coverImageUrl"`
}

// BookLookup maps bookId to its summary.
type BookLookup map[string]BookSummary

// SearchResult is an autocomplete choice: a display label and the bookId.
type SearchResult struct {
	Label string `json:"name"`
	Value string `json:"value"`
}

// StatusView is a ReadingStatus joined with its book. Book fields are nil
// when the book is not in the lookup.
type StatusView struct {
	UserID        string  `json:"userId"`
	BookID        string  `json:"bookId"`
	CurrentPage   int     `json:"currentPage"`
	Status        string  `json:"status"`
	LastUpdatedAt string  `json:"lastUpdatedAt"`
	Title         *string `json:"title,omitempty"`
	Author        *string `json:"author,omitempty"`
	TotalPages    *int    `json:"totalPages,omitempty"`
	CoverImageURL *string `json:"coverImageUrl,omitempty"`
}

// UserStats aggregates one user's reading in a period.
type UserStats struct {
	UserID         string `json:"userId"`
	TotalPagesRead int    `json:"totalPagesRead"`
	BooksFinished  int    `json:"booksFinished"`
}
