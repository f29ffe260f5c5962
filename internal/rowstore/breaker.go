package rowstore

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BreakerSettings tunes the circuit breaker in front of a store.
type BreakerSettings struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// DefaultBreakerSettings trips after five consecutive backend failures and
// probes again after thirty seconds.
func DefaultBreakerSettings(name string) BreakerSettings {
	return BreakerSettings{
		Name:             name,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// Breaker fails fast while the wrapped store keeps erroring. It never retries.
type Breaker struct {
	next Store
	cb   *gobreaker.CircuitBreaker
}

// WithBreaker wraps next so every table operation runs through one breaker.
func WithBreaker(next Store, settings BreakerSettings, log *zap.Logger) *Breaker {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			// Caller mistakes say nothing about backend health.
			return err == nil ||
				errors.Is(err, ErrRowOutOfRange) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Row store circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &Breaker{next: next, cb: cb}
}

// State reports the breaker state for health checks.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

func (b *Breaker) Table(name string) (Table, error) {
	t, err := b.next.Table(name)
	if err != nil {
		return nil, err
	}
	return &breakerTable{next: t, cb: b.cb}, nil
}

// Ping reports an open breaker as unhealthy before asking the backend.
func (b *Breaker) Ping(ctx context.Context) error {
	if b.cb.State() == gobreaker.StateOpen {
		return gobreaker.ErrOpenState
	}
	return Ping(ctx, b.next)
}

type breakerTable struct {
	next Table
	cb   *gobreaker.CircuitBreaker
}

func (t *breakerTable) Name() string { return t.next.Name() }

func (t *breakerTable) Len(ctx context.Context) (int, error) {
	v, err := t.cb.Execute(func() (interface{}, error) {
		return t.next.Len(ctx)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (t *breakerTable) ReadRange(ctx context.Context, start, count int) ([]Row, error) {
	v, err := t.cb.Execute(func() (interface{}, error) {
		return t.next.ReadRange(ctx, start, count)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Row), nil
}

func (t *breakerTable) ReadAll(ctx context.Context) ([]Row, error) {
	v, err := t.cb.Execute(func() (interface{}, error) {
		return t.next.ReadAll(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Row), nil
}

func (t *breakerTable) Append(ctx context.Context, row Row) (int, error) {
	v, err := t.cb.Execute(func() (interface{}, error) {
		return t.next.Append(ctx, row)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (t *breakerTable) SetCell(ctx context.Context, row, col int, value string) error {
	_, err := t.cb.Execute(func() (interface{}, error) {
		return nil, t.next.SetCell(ctx, row, col, value)
	})
	return err
}
