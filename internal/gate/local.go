package gate

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Local serializes writers inside one process.
type Local struct {
	sem *semaphore.Weighted
}

// NewLocal creates an in-process lock.
func NewLocal() *Local {
	return &Local{sem: semaphore.NewWeighted(1)}
}

func (l *Local) Acquire(ctx context.Context) (func(), error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { l.sem.Release(1) }, nil
}
