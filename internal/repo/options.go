package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// WriteGate serializes mutations. *gate.Gate satisfies it.
type WriteGate interface {
	WithWriteLock(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error
}

// Options tunes the repositories. Zero values take the defaults below.
type Options struct {
	LockTimeout       time.Duration
	CacheTTL          time.Duration
	InvalidateOnWrite bool
	Now               func() time.Time
	NewID             func() string
}

const (
	DefaultLockTimeout = 30 * time.Second
	DefaultCacheTTL    = 300 * time.Second
)

func (o Options) withDefaults() Options {
	if o.LockTimeout <= 0 {
		o.LockTimeout = DefaultLockTimeout
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = DefaultCacheTTL
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	return o
}
