package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/domain"
	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/observability"
)

var errLockUnavailable = errors.New("lot lock unavailable")

type LedgerOptions struct {
	LockWait  time.Duration
	LockLease time.Duration
}

// InventoryLedger owns the remaining count of every lot. Each mutation
// runs under the lot's lock: the durable store is written first and the
// cache is then set to the value the store reports, so a failed write
// leaves both untouched.
type InventoryLedger struct {
	lots    domain.LotRepository
	cache   domain.StockCache
	locker  domain.LotLocker
	wait    time.Duration
	lease   time.Duration
	logger  *zap.Logger
	metrics *observability.Metrics
}

func NewInventoryLedger(
	lots domain.LotRepository,
	cache domain.StockCache,
	locker domain.LotLocker,
	opts LedgerOptions,
	logger *zap.Logger,
	metrics *observability.Metrics,
) *InventoryLedger {
	return &InventoryLedger{
		lots:    lots,
		cache:   cache,
		locker:  locker,
		wait:    opts.LockWait,
		lease:   opts.LockLease,
		logger:  logger,
		metrics: metrics,
	}
}

func lotLockKey(lotID uuid.UUID) string {
	return "randombox:inventory:" + lotID.String()
}

// Initialize seeds the cache from the durable store if it holds no entry.
func (l *InventoryLedger) Initialize(ctx context.Context, lotID uuid.UUID) error {
	if _, ok := l.cache.Get(lotID); ok {
		return nil
	}
	lot, err := l.lots.GetByID(ctx, lotID)
	if err != nil {
		return err
	}
	l.cache.SeedIfAbsent(lotID, lot.Remaining)
	return nil
}

func (l *InventoryLedger) Get(ctx context.Context, lotID uuid.UUID) (int, error) {
	if n, ok := l.cache.Get(lotID); ok {
		return n, nil
	}
	lot, err := l.lots.GetByID(ctx, lotID)
	if err != nil {
		return 0, err
	}
	l.cache.SeedIfAbsent(lotID, lot.Remaining)
	return lot.Remaining, nil
}

type reserveResult int

const (
	reserved reserveResult = iota
	reserveShort
	reserveLockTimeout
)

// Reserve takes quantity units. It returns false without error when stock
// is short or the lock could not be had in time.
func (l *InventoryLedger) Reserve(ctx context.Context, lotID uuid.UUID, quantity int) (bool, error) {
	res, err := l.reserve(ctx, lotID, quantity)
	return res == reserved, err
}

func (l *InventoryLedger) reserve(ctx context.Context, lotID uuid.UUID, quantity int) (reserveResult, error) {
	if quantity <= 0 {
		return reserveShort, domain.Invalid(domain.ReasonInvalidQuantity, "quantity must be positive, got %d", quantity)
	}
	lease, ok, err := l.lock(ctx, lotID, "reserve")
	if err != nil {
		return reserveLockTimeout, err
	}
	if !ok {
		return reserveLockTimeout, nil
	}
	defer l.unlock(lease, lotID)

	opCtx, cancel := leaseContext(ctx, lease)
	defer cancel()

	current, err := l.currentLocked(opCtx, lotID)
	if err != nil {
		l.metrics.InventoryOp("reserve", "error")
		return reserveShort, err
	}
	if current < quantity {
		// another instance may have released stock this cache never saw
		current, err = l.refreshLocked(opCtx, lotID)
		if err != nil {
			l.metrics.InventoryOp("reserve", "error")
			return reserveShort, err
		}
		if current < quantity {
			l.metrics.InventoryOp("reserve", "insufficient")
			return reserveShort, nil
		}
	}

	remaining, err := l.lots.AdjustRemaining(opCtx, lotID, -quantity)
	if err != nil {
		if domain.HasReason(err, domain.ReasonStockUnavailable) {
			l.logger.Warn("stock cache ahead of store, resyncing",
				zap.String("lotId", lotID.String()),
				zap.Int("cached", current),
				zap.Int("stored", remaining))
			l.cache.Set(lotID, remaining)
			l.metrics.InventoryOp("reserve", "insufficient")
			return reserveShort, nil
		}
		l.metrics.InventoryOp("reserve", "error")
		return reserveShort, fmt.Errorf("reserve %d on lot %s: %w", quantity, lotID, err)
	}

	l.cache.Set(lotID, remaining)
	l.metrics.InventoryOp("reserve", "ok")
	return reserved, nil
}

// Release returns quantity units. It returns false without error when the
// lock could not be had in time.
func (l *InventoryLedger) Release(ctx context.Context, lotID uuid.UUID, quantity int) (bool, error) {
	if quantity <= 0 {
		return false, domain.Invalid(domain.ReasonInvalidQuantity, "quantity must be positive, got %d", quantity)
	}
	lease, ok, err := l.lock(ctx, lotID, "release")
	if err != nil || !ok {
		return false, err
	}
	defer l.unlock(lease, lotID)

	opCtx, cancel := leaseContext(ctx, lease)
	defer cancel()

	remaining, err := l.lots.AdjustRemaining(opCtx, lotID, quantity)
	if err != nil {
		l.metrics.InventoryOp("release", "error")
		return false, fmt.Errorf("release %d on lot %s: %w", quantity, lotID, err)
	}
	l.cache.Set(lotID, remaining)
	l.metrics.InventoryOp("release", "ok")
	return true, nil
}

// ReleaseWithRetry keeps trying Release through lock timeouts and
// transient store errors for a bounded number of attempts.
func (l *InventoryLedger) ReleaseWithRetry(ctx context.Context, lotID uuid.UUID, quantity int) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	policy := backoff.WithContext(backoff.WithMaxRetries(b, 3), ctx)

	return backoff.Retry(func() error {
		ok, err := l.Release(ctx, lotID, quantity)
		switch {
		case err != nil && (domain.IsKind(err, domain.KindNotFound) || domain.IsKind(err, domain.KindValidation)):
			return backoff.Permanent(err)
		case err != nil:
			return err
		case !ok:
			return errLockUnavailable
		}
		return nil
	}, policy)
}

// Reconcile overwrites the cached count with the durable one. It returns
// false when the lock could not be had in time.
func (l *InventoryLedger) Reconcile(ctx context.Context, lotID uuid.UUID) (bool, error) {
	lease, ok, err := l.lock(ctx, lotID, "reconcile")
	if err != nil || !ok {
		return false, err
	}
	defer l.unlock(lease, lotID)

	opCtx, cancel := leaseContext(ctx, lease)
	defer cancel()

	lot, err := l.lots.GetByID(opCtx, lotID)
	if err != nil {
		if domain.IsKind(err, domain.KindNotFound) {
			l.cache.Invalidate(lotID)
		}
		l.metrics.InventoryOp("reconcile", "error")
		return false, err
	}
	if cached, ok := l.cache.Get(lotID); ok && cached != lot.Remaining {
		l.logger.Info("stock cache reconciled",
			zap.String("lotId", lotID.String()),
			zap.Int("cached", cached),
			zap.Int("stored", lot.Remaining))
	}
	l.cache.Set(lotID, lot.Remaining)
	l.metrics.InventoryOp("reconcile", "ok")
	return true, nil
}

// currentLocked must be called with the lot lock held.
func (l *InventoryLedger) currentLocked(ctx context.Context, lotID uuid.UUID) (int, error) {
	if n, ok := l.cache.Get(lotID); ok {
		return n, nil
	}
	lot, err := l.lots.GetByID(ctx, lotID)
	if err != nil {
		return 0, err
	}
	l.cache.Set(lotID, lot.Remaining)
	return lot.Remaining, nil
}

// refreshLocked reads the durable count and overwrites the cache with it.
// It must be called with the lot lock held.
func (l *InventoryLedger) refreshLocked(ctx context.Context, lotID uuid.UUID) (int, error) {
	lot, err := l.lots.GetByID(ctx, lotID)
	if err != nil {
		return 0, err
	}
	l.cache.Set(lotID, lot.Remaining)
	return lot.Remaining, nil
}

// leaseContext bounds store work by the lease's own expiry so nothing is
// still writing once another holder can take the lock.
func leaseContext(ctx context.Context, lease domain.LockLease) (context.Context, context.CancelFunc) {
	return context.WithDeadline(ctx, lease.Deadline())
}

func (l *InventoryLedger) lock(ctx context.Context, lotID uuid.UUID, op string) (domain.LockLease, bool, error) {
	started := time.Now()
	lease, ok, err := l.locker.TryLock(ctx, lotLockKey(lotID), l.wait, l.lease)
	l.metrics.LockWait(time.Since(started))
	if err != nil {
		l.metrics.InventoryOp(op, "error")
		return nil, false, fmt.Errorf("lock lot %s: %w", lotID, err)
	}
	if !ok {
		l.metrics.InventoryOp(op, "lock_timeout")
		l.logger.Warn("lot lock wait exhausted",
			zap.String("lotId", lotID.String()),
			zap.String("op", op),
			zap.Duration("wait", l.wait))
	}
	return lease, ok, nil
}

func (l *InventoryLedger) unlock(lease domain.LockLease, lotID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := lease.Unlock(ctx); err != nil {
		l.logger.Warn("lot unlock failed", zap.String("lotId", lotID.String()), zap.Error(err))
	}
}
