// Package rowstore is the tabular persistence layer: named sheets of string rows
// addressed by 0-based data-row index. Header rows are not part of the data range.
package rowstore

import (
	"context"
	"errors"
)

var (
	// ErrUnknownTable is returned when a sheet name has not been provisioned
	ErrUnknownTable = errors.New("unknown table")

	// ErrRowOutOfRange is returned when a cell write targets a row that does not exist
	ErrRowOutOfRange = errors.New("row index out of range")
)

// Row is one record; cells are positional and stored as strings.
type Row []string

// Cell returns the value at col, or "" when the row is shorter.
func (r Row) Cell(col int) string {
	if col < 0 || col >= len(r) {
		return ""
	}
	return r[col]
}

// Clone returns a copy that does not share the backing array.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	copy(out, r)
	return out
}

// Table is one sheet. Each method is atomic on its own; callers serialize
// read-modify-write sequences through the write gate.
type Table interface {
	Name() string
	Len(ctx context.Context) (int, error)
	ReadRange(ctx context.Context, start, count int) ([]Row, error)
	ReadAll(ctx context.Context) ([]Row, error)
	Append(ctx context.Context, row Row) (int, error)
	SetCell(ctx context.Context, row, col int, value string) error
}

// Store hands out tables by name.
type Store interface {
	Table(name string) (Table, error)
}

// Pinger is implemented by stores that can report backend reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks s when it supports it and succeeds otherwise.
func Ping(ctx context.Context, s Store) error {
	if p, ok := s.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// clip bounds [start, start+count) to a table of length n.
func clip(start, count, n int) (int, int) {
	if start < 0 {
		start = 0
	}
	if start > n {
		start = n
	}
	end := start + count
	if count < 0 || end > n {
		end = n
	}
	return start, end
}
