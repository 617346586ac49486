package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repositories translate "absent" into NotFound errors and guarded
// updates that lose a race into StateConflict errors.

type LotRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Lot, error)
	// List returns every lot ordered by sales start.
	List(ctx context.Context) ([]Lot, error)
	Save(ctx context.Context, lot *Lot) error
	// AdjustRemaining applies delta only if remaining+delta >= 0 and
	// returns the stored value after the write.
	AdjustRemaining(ctx context.Context, id uuid.UUID, delta int) (int, error)
	GetRewardItems(ctx context.Context, lotID uuid.UUID) ([]RewardItem, error)
	SaveRewardItem(ctx context.Context, item *RewardItem) error
}

type CouponRepository interface {
	SaveCoupon(ctx context.Context, c *Coupon) error
	GetCoupon(ctx context.Context, id uuid.UUID) (*Coupon, error)
	SaveGrant(ctx context.Context, g *CouponGrant) error
	GetGrant(ctx context.Context, id uuid.UUID) (*CouponGrant, error)
	MarkGrantUsed(ctx context.Context, id uuid.UUID, usedAt time.Time) error
	UnmarkGrantUsed(ctx context.Context, id uuid.UUID) error
}

type PurchaseRepository interface {
	// Insert stores the purchase and its results atomically.
	Insert(ctx context.Context, p *Purchase) error
	GetByID(ctx context.Context, id uuid.UUID) (*Purchase, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Purchase, error)
	// MarkCancelled only succeeds for a COMPLETED purchase.
	MarkCancelled(ctx context.Context, p *Purchase) error
}

type OutboxRepository interface {
	Insert(ctx context.Context, msg OutboxMessage) error
	GetPendingBatch(ctx context.Context, maxRetry, batchSize int) ([]OutboxMessage, error)
	Save(ctx context.Context, msg OutboxMessage) error
}

type OutboxMessage struct {
	ID             uuid.UUID
	Type           string
	PayloadJSON    string
	OccurredAtUtc  int64 // unix seconds
	RetryCount     int
	ProcessedAtUtc *int64
}

// StockCache is the fast remaining-count view per lot.
type StockCache interface {
	Get(lotID uuid.UUID) (int, bool)
	Set(lotID uuid.UUID, remaining int)
	SeedIfAbsent(lotID uuid.UUID, remaining int) bool
	Invalidate(lotID uuid.UUID)
}

// LotLocker grants mutual exclusion per key with a bounded wait and a
// bounded lease. Running out of wait is not an error: ok is false.
type LotLocker interface {
	TryLock(ctx context.Context, key string, wait, lease time.Duration) (LockLease, bool, error)
}

// LockLease is a held lock. Deadline is when the lease runs out; work
// done under the lock must finish before it.
type LockLease interface {
	Deadline() time.Time
	Unlock(ctx context.Context) error
}

type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, kind NotificationKind, data map[string]string) error
}
