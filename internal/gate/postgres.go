package gate

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// DefaultAdvisoryKey identifies the write lock among other advisory locks.
const DefaultAdvisoryKey int64 = 0x7265616469 // "readi"

// Postgres takes a session-level advisory lock so writers in separate
// processes sharing one database serialize. The lock lives on a dedicated
// connection held for the whole critical section.
type Postgres struct {
	db           *sql.DB
	key          int64
	pollInterval time.Duration
	log          *zap.Logger
}

// OpenPostgres connects with lib/pq and returns a lock keyed by DefaultAdvisoryKey.
func OpenPostgres(dsn string, log *zap.Logger) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock database: %w", err)
	}
	db.SetMaxOpenConns(4)
	return NewPostgres(db, DefaultAdvisoryKey, log), nil
}

// NewPostgres creates a lock over an existing pool.
func NewPostgres(db *sql.DB, key int64, log *zap.Logger) *Postgres {
	return &Postgres{db: db, key: key, pollInterval: 50 * time.Millisecond, log: log}
}

func (p *Postgres) Acquire(ctx context.Context) (func(), error) {
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, err
	}

	interval := p.pollInterval
	for {
		var locked bool
		if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", p.key).Scan(&locked); err != nil {
			// The server may have granted the lock before the query failed.
			discard(conn)
			return nil, err
		}
		if locked {
			break
		}

		select {
		case <-ctx.Done():
			conn.Close()
			return nil, ctx.Err()
		case <-time.After(interval):
			if interval < time.Second {
				interval = interval * 3 / 2
			}
		}
	}

	release := func() {
		// The caller's context may already be done; unlock on a fresh one.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", p.key); err != nil {
			p.log.Warn("Failed to unlock advisory lock, dropping session",
				zap.Int64("key", p.key),
				zap.Error(err),
			)
			discard(conn)
			return
		}
		conn.Close()
	}
	return release, nil
}

// discard ends the session behind conn instead of returning it to the pool.
// Advisory locks outlive (*sql.Conn).Close but not the session.
func discard(conn *sql.Conn) {
	conn.Raw(func(any) error { return driver.ErrBadConn })
	conn.Close()
}

// Close closes the lock pool
func (p *Postgres) Close() error {
	return p.db.Close()
}
