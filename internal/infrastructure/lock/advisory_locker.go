package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/domain"
)

const (
	tryLockSQL    = `select pg_try_advisory_lock(hashtextextended($1, 0))`
	unlockSQL     = `select pg_advisory_unlock(hashtextextended($1, 0))`
	unlockTimeout = 2 * time.Second
)

// advisoryConn is the slice of *pgxpool.Conn the locker needs.
type advisoryConn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Release()
}

// AdvisoryLocker serializes work per key across service instances with
// Postgres session advisory locks. The session is pinned to a pooled
// connection for the life of the lease; a timer unlocks it when the
// lease runs out.
type AdvisoryLocker struct {
	acquire func(context.Context) (advisoryConn, error)
	logger  *zap.Logger
}

var _ domain.LotLocker = (*AdvisoryLocker)(nil)

func NewAdvisoryLocker(pool *pgxpool.Pool, logger *zap.Logger) *AdvisoryLocker {
	return newAdvisoryLockerWithAcquire(func(ctx context.Context) (advisoryConn, error) {
		conn, err := pool.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}, logger)
}

func newAdvisoryLockerWithAcquire(
	acquire func(context.Context) (advisoryConn, error),
	logger *zap.Logger,
) *AdvisoryLocker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdvisoryLocker{acquire: acquire, logger: logger}
}

func (l *AdvisoryLocker) TryLock(
	ctx context.Context,
	key string,
	wait, lease time.Duration,
) (domain.LockLease, bool, error) {
	var held advisoryConn
	ok, err := poll(ctx, wait, func(ctx context.Context) (bool, error) {
		conn, err := l.acquire(ctx)
		if err != nil {
			return false, fmt.Errorf("acquire lock connection: %w", err)
		}
		var locked bool
		if err := conn.QueryRow(ctx, tryLockSQL, key).Scan(&locked); err != nil {
			conn.Release()
			return false, fmt.Errorf("try advisory lock %s: %w", key, err)
		}
		if !locked {
			conn.Release()
			return false, nil
		}
		held = conn
		return true, nil
	})
	if err != nil || !ok {
		return nil, false, err
	}

	le := &advisoryLease{conn: held, key: key, logger: l.logger}
	le.mu.Lock()
	le.deadline = time.Now().Add(lease)
	le.timer = time.AfterFunc(lease, le.expire)
	le.mu.Unlock()
	return le, true, nil
}

type advisoryLease struct {
	mu       sync.Mutex
	conn     advisoryConn
	key      string
	deadline time.Time
	timer    *time.Timer
	expired  bool
	logger   *zap.Logger
}

func (le *advisoryLease) Deadline() time.Time {
	le.mu.Lock()
	defer le.mu.Unlock()
	return le.deadline
}

func (le *advisoryLease) Unlock(ctx context.Context) error {
	le.mu.Lock()
	defer le.mu.Unlock()

	if le.conn == nil {
		if le.expired {
			return ErrLeaseLost
		}
		return nil
	}
	le.timer.Stop()
	return le.release(ctx)
}

func (le *advisoryLease) expire() {
	le.mu.Lock()
	defer le.mu.Unlock()

	if le.conn == nil {
		return
	}
	le.expired = true
	le.logger.Warn("lot lock lease expired before unlock", zap.String("key", le.key))

	ctx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
	defer cancel()
	if err := le.release(ctx); err != nil {
		le.logger.Error("failed to unlock expired lease", zap.String("key", le.key), zap.Error(err))
	}
}

// release must be called with mu held.
func (le *advisoryLease) release(ctx context.Context) error {
	conn := le.conn
	le.conn = nil
	defer conn.Release()

	var unlocked bool
	if err := conn.QueryRow(ctx, unlockSQL, le.key).Scan(&unlocked); err != nil {
		return fmt.Errorf("advisory unlock %s: %w", le.key, err)
	}
	if !unlocked {
		return ErrLeaseLost
	}
	return nil
}
