package rowstore

import (
	"context"
	"fmt"
	"sync"
)

// Memory keeps sheets in process memory. It is the backend for tests and
// for running the service without external storage.
type Memory struct {
	mu     sync.RWMutex
	sheets map[string][]Row
}

// NewMemory provisions the named sheets empty.
func NewMemory(names ...string) *Memory {
	m := &Memory{sheets: make(map[string][]Row, len(names))}
	for _, name := range names {
		m.sheets[name] = nil
	}
	return m
}

func (m *Memory) Table(name string) (Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.sheets[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, name)
	}
	return &memoryTable{store: m, name: name}, nil
}

type memoryTable struct {
	store *Memory
	name  string
}

func (t *memoryTable) Name() string { return t.name }

func (t *memoryTable) Len(ctx context.Context) (int, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return len(t.store.sheets[t.name]), nil
}

func (t *memoryTable) ReadRange(ctx context.Context, start, count int) ([]Row, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	rows := t.store.sheets[t.name]
	from, to := clip(start, count, len(rows))
	out := make([]Row, 0, to-from)
	for _, r := range rows[from:to] {
		out = append(out, r.Clone())
	}
	return out, nil
}

func (t *memoryTable) ReadAll(ctx context.Context) ([]Row, error) {
	return t.ReadRange(ctx, 0, -1)
}

func (t *memoryTable) Append(ctx context.Context, row Row) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	t.store.sheets[t.name] = append(t.store.sheets[t.name], row.Clone())
	return len(t.store.sheets[t.name]) - 1, nil
}

func (t *memoryTable) SetCell(ctx context.Context, row, col int, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if col < 0 {
		return fmt.Errorf("negative column %d", col)
	}

	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	rows := t.store.sheets[t.name]
	if row < 0 || row >= len(rows) {
		return fmt.Errorf("%w: %s[%d]", ErrRowOutOfRange, t.name, row)
	}
	for len(rows[row]) <= col {
		rows[row] = append(rows[row], "")
	}
	rows[row][col] = value
	return nil
}
