package repo

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/omutucat/reading-counter-dc/internal/model"
	"github.com/omutucat/reading-counter-dc/internal/rowstore"
)

// Sheet names.
const (
	SheetBooks         = "Books"
	SheetReadingLogs   = "ReadingLogs"
	SheetReadingStatus = "ReadingStatus"
)

// Books columns. The order is part of the storage format.
const (
	BookColID = iota
	BookColISBN
	BookColTitle
	BookColAuthor
	BookColTotalPages
	BookColCoverImageURL
	BookColDescription
	BookColRegisteredBy
	BookColRegisteredAt
)

// ReadingLogs columns.
const (
	LogColID = iota
	LogColBookID
	LogColUserID
	LogColPageCount
	LogColLoggedAt
)

// ReadingStatus columns.
const (
	StatusColID = iota
	StatusColUserID
	StatusColBookID
	StatusColCurrentPage
	StatusColStatus
	StatusColLastUpdatedAt
)

// Sheets returns every sheet with its header row, for provisioning.
func Sheets() map[string][]string {
	return map[string][]string{
		SheetBooks: {
			"BookID", "ISBN", "Title", "Author", "TotalPages",
			"CoverImageURL", "Description", "RegisteredBy", "RegisteredAt",
		},
		SheetReadingLogs:   {"LogID", "BookID", "UserID", "PageCount", "LoggedAt"},
		SheetReadingStatus: {"StatusID", "UserID", "BookID", "CurrentPage", "Status", "LastUpdatedAt"},
	}
}

// SheetNames lists the sheets in a stable order.
func SheetNames() []string {
	return []string{SheetBooks, SheetReadingLogs, SheetReadingStatus}
}

// AuthorSeparator joins a book's authors into one cell.
const AuthorSeparator = ", "

func encodeBook(b model.Book) rowstore.Row {
	return rowstore.Row{
		b.BookID,
		b.ISBN,
		b.Title,
		b.Author,
		strconv.Itoa(b.TotalPages),
		b.CoverImageURL,
		b.Description,
		b.RegisteredBy,
		b.RegisteredAt,
	}
}

// newBook fills defaults for absent fields.
func newBook(id string, data model.BookData, registeredBy, registeredAt string) model.Book {
	return model.Book{
		BookID:        id,
		ISBN:          data.ISBN,
		Title:         data.Title,
		Author:        strings.Join(data.Authors, AuthorSeparator),
		TotalPages:    data.TotalPages,
		CoverImageURL: data.CoverImageURL,
		Description:   data.Description,
		RegisteredBy:  registeredBy,
		RegisteredAt:  registeredAt,
	}
}

func encodeLog(l model.ReadingLog) rowstore.Row {
	return rowstore.Row{l.LogID, l.BookID, l.UserID, strconv.Itoa(l.PageCount), l.LoggedAt}
}

func decodeLog(r rowstore.Row) (model.ReadingLog, error) {
	log := model.ReadingLog{
		LogID:    r.Cell(LogColID),
		BookID:   r.Cell(LogColBookID),
		UserID:   r.Cell(LogColUserID),
		LoggedAt: r.Cell(LogColLoggedAt),
	}
	n, err := parseInt(r.Cell(LogColPageCount))
	if err != nil {
		return log, fmt.Errorf("log %s: page count: %w", log.LogID, err)
	}
	log.PageCount = n
	return log, nil
}

func encodeStatus(s model.ReadingStatus) rowstore.Row {
	return rowstore.Row{
		s.StatusID,
		s.UserID,
		s.BookID,
		strconv.Itoa(s.CurrentPage),
		s.Status,
		s.LastUpdatedAt,
	}
}

func decodeStatus(r rowstore.Row) (model.ReadingStatus, error) {
	s := model.ReadingStatus{
		StatusID:      r.Cell(StatusColID),
		UserID:        r.Cell(StatusColUserID),
		BookID:        r.Cell(StatusColBookID),
		Status:        r.Cell(StatusColStatus),
		LastUpdatedAt: r.Cell(StatusColLastUpdatedAt),
	}
	n, err := parseInt(r.Cell(StatusColCurrentPage))
	if err != nil {
		return s, fmt.Errorf("status %s: current page: %w", s.StatusID, err)
	}
	s.CurrentPage = n
	return s, nil
}

// parseInt accepts blank cells as zero and tolerates a trailing ".0", which
// spreadsheet exports produce for whole numbers.
func parseInt(cell string) (int, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(cell); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(cell, 64)
	if err != nil || f != float64(int(f)) {
		return 0, fmt.Errorf("not an integer: %q", cell)
	}
	return int(f), nil
}
