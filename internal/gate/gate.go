// Package gate provides the single process-wide write lock every mutation runs
// under. The lock is not per entity: all writes serialize.
package gate

import (
	"context"
	"errors"
	"time"

	"github.com/omutucat/reading-counter-dc/internal/errs"
	"github.com/omutucat/reading-counter-dc/internal/metrics"
	"go.uber.org/zap"
)

// Locker is a backend able to take and drop the global lock. Acquire blocks
// until the lock is held or ctx is done; the returned release func drops it.
type Locker interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// Gate runs critical sections under a Locker.
type Gate struct {
	locker  Locker
	metrics *metrics.Collector
	log     *zap.Logger
}

// New creates a gate over locker. metrics may be nil.
func New(locker Locker, m *metrics.Collector, log *zap.Logger) *Gate {
	return &Gate{locker: locker, metrics: m, log: log}
}

// WithWriteLock acquires the lock within timeout, runs fn and releases the
// lock on every exit path, panics included. A timeout fails with
// errs.ErrLockTimeout and fn is not run.
func (g *Gate) WithWriteLock(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	start := time.Now()

	acquireCtx, cancel := context.WithTimeout(ctx, timeout)
	release, err := g.locker.Acquire(acquireCtx)
	cancel()

	if g.metrics != nil {
		g.metrics.ObserveLockWait(time.Since(start), err == nil)
	}
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			g.log.Warn("Write lock not acquired in time",
				zap.Duration("timeout", timeout),
				zap.Duration("waited", time.Since(start)),
			)
			return errs.LockTimeout(err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		g.log.Error("Failed to acquire write lock", zap.Error(err))
		return errs.Internal("failed to acquire write lock", err)
	}
	defer release()

	return fn(ctx)
}
