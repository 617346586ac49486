package application

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rodolfodevapp/eventshop-messaging-go/core/primitives"

	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/domain"
)

type memLotRepo struct {
	mu          sync.Mutex
	lots        map[uuid.UUID]domain.Lot
	items       map[uuid.UUID][]domain.RewardItem
	adjustErr   error
	itemsErr    error
	adjustCalls int

	// deadline seen by the last AdjustRemaining call
	adjustDeadline time.Time
}

func newMemLotRepo() *memLotRepo {
	return &memLotRepo{lots: map[uuid.UUID]domain.Lot{}, items: map[uuid.UUID][]domain.RewardItem{}}
}

func (r *memLotRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Lot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lot, ok := r.lots[id]
	if !ok {
		return nil, domain.NotFound(domain.ReasonLotNotFound, "lot %s not found", id)
	}
	return &lot, nil
}

func (r *memLotRepo) List(context.Context) ([]domain.Lot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lots := make([]domain.Lot, 0, len(r.lots))
	for _, lot := range r.lots {
		lots = append(lots, lot)
	}
	sort.Slice(lots, func(i, j int) bool { return lots[i].SalesStartUtc.Before(lots[j].SalesStartUtc) })
	return lots, nil
}

func (r *memLotRepo) delete(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.lots, id)
}

func (r *memLotRepo) Save(_ context.Context, lot *domain.Lot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lots[lot.ID] = *lot
	return nil
}

func (r *memLotRepo) AdjustRemaining(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adjustCalls++
	r.adjustDeadline, _ = ctx.Deadline()
	if r.adjustErr != nil {
		return 0, r.adjustErr
	}
	lot, ok := r.lots[id]
	if !ok {
		return 0, domain.NotFound(domain.ReasonLotNotFound, "lot %s not found", id)
	}
	if lot.Remaining+delta < 0 {
		return lot.Remaining, domain.Conflict(domain.ReasonStockUnavailable, "short")
	}
	lot.Remaining += delta
	r.lots[id] = lot
	return lot.Remaining, nil
}

func (r *memLotRepo) GetRewardItems(_ context.Context, lotID uuid.UUID) ([]domain.RewardItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.itemsErr != nil {
		return nil, r.itemsErr
	}
	return append([]domain.RewardItem(nil), r.items[lotID]...), nil
}

func (r *memLotRepo) SaveRewardItem(_ context.Context, item *domain.RewardItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.items[item.LotID]
	for i := range list {
		if list[i].ID == item.ID {
			list[i] = *item
			return nil
		}
	}
	r.items[item.LotID] = append(list, *item)
	return nil
}

func (r *memLotRepo) remaining(id uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lots[id].Remaining
}

func (r *memLotRepo) setRemaining(id uuid.UUID, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lot := r.lots[id]
	lot.Remaining = n
	r.lots[id] = lot
}

type memCouponRepo struct {
	mu      sync.Mutex
	coupons map[uuid.UUID]domain.Coupon
	grants  map[uuid.UUID]domain.CouponGrant
}

func newMemCouponRepo() *memCouponRepo {
	return &memCouponRepo{coupons: map[uuid.UUID]domain.Coupon{}, grants: map[uuid.UUID]domain.CouponGrant{}}
}

func (r *memCouponRepo) SaveCoupon(_ context.Context, c *domain.Coupon) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.coupons[c.ID] = *c
	return nil
}

func (r *memCouponRepo) GetCoupon(_ context.Context, id uuid.UUID) (*domain.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coupons[id]
	if !ok {
		return nil, domain.NotFound(domain.ReasonCouponNotFound, "coupon %s", id)
	}
	return &c, nil
}

func (r *memCouponRepo) SaveGrant(_ context.Context, g *domain.CouponGrant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grants[g.ID] = *g
	return nil
}

func (r *memCouponRepo) GetGrant(_ context.Context, id uuid.UUID) (*domain.CouponGrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.grants[id]
	if !ok {
		return nil, domain.NotFound(domain.ReasonGrantNotFound, "grant %s", id)
	}
	return &g, nil
}

func (r *memCouponRepo) MarkGrantUsed(_ context.Context, id uuid.UUID, usedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.grants[id]
	if !ok {
		return domain.NotFound(domain.ReasonGrantNotFound, "grant %s", id)
	}
	if err := g.MarkUsed(usedAt); err != nil {
		return err
	}
	r.grants[id] = g
	return nil
}

func (r *memCouponRepo) UnmarkGrantUsed(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g := r.grants[id]
	g.Unmark()
	r.grants[id] = g
	return nil
}

func (r *memCouponRepo) used(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.grants[id].Used
}

type memPurchaseRepo struct {
	mu        sync.Mutex
	purchases map[uuid.UUID]domain.Purchase
	insertErr error
}

func newMemPurchaseRepo() *memPurchaseRepo {
	return &memPurchaseRepo{purchases: map[uuid.UUID]domain.Purchase{}}
}

func (r *memPurchaseRepo) Insert(_ context.Context, p *domain.Purchase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	r.purchases[p.ID] = *p
	return nil
}

func (r *memPurchaseRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.purchases[id]
	if !ok {
		return nil, domain.NotFound(domain.ReasonPurchaseNotFound, "purchase %s", id)
	}
	return &p, nil
}

func (r *memPurchaseRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]*domain.Purchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Purchase
	for _, p := range r.purchases {
		if p.UserID == userID {
			p := p
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PurchasedAtUtc.After(out[j].PurchasedAtUtc) })
	return out, nil
}

func (r *memPurchaseRepo) MarkCancelled(_ context.Context, p *domain.Purchase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.purchases[p.ID]
	if !ok {
		return domain.NotFound(domain.ReasonPurchaseNotFound, "purchase %s", p.ID)
	}
	if stored.Status != domain.PurchaseCompleted {
		return domain.Conflict(domain.ReasonAlreadyCancelled, "purchase %s", p.ID)
	}
	stored.Status = domain.PurchaseCancelled
	stored.CancelledAtUtc = p.CancelledAtUtc
	r.purchases[p.ID] = stored
	return nil
}

type memOutboxRepo struct {
	mu   sync.Mutex
	msgs []domain.OutboxMessage
	err  error
}

func (r *memOutboxRepo) Insert(_ context.Context, msg domain.OutboxMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *memOutboxRepo) GetPendingBatch(context.Context, int, int) ([]domain.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.OutboxMessage(nil), r.msgs...), nil
}

func (r *memOutboxRepo) Save(context.Context, domain.OutboxMessage) error { return nil }

type sentNotification struct {
	UserID uuid.UUID
	Kind   domain.NotificationKind
	Data   map[string]string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, userID uuid.UUID, kind domain.NotificationKind, data map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentNotification{UserID: userID, Kind: kind, Data: data})
	return nil
}

func (n *recordingNotifier) kinds(userID uuid.UUID) []domain.NotificationKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []domain.NotificationKind
	for _, s := range n.sent {
		if s.UserID == userID {
			out = append(out, s.Kind)
		}
	}
	return out
}

type recordingOutbox struct {
	mu     sync.Mutex
	events []primitives.Event
}

func (o *recordingOutbox) Enqueue(_ context.Context, ev primitives.Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, ev)
	return nil
}

// refusingLocker never grants the lock.
type refusingLocker struct{}

func (refusingLocker) TryLock(context.Context, string, time.Duration, time.Duration) (domain.LockLease, bool, error) {
	return nil, false, nil
}

// fixedLeaseLocker always grants a lease that runs out at deadline.
type fixedLeaseLocker struct {
	deadline time.Time
}

func (l fixedLeaseLocker) TryLock(context.Context, string, time.Duration, time.Duration) (domain.LockLease, bool, error) {
	return fixedLease{deadline: l.deadline}, true, nil
}

type fixedLease struct {
	deadline time.Time
}

func (le fixedLease) Deadline() time.Time { return le.deadline }
func (fixedLease) Unlock(context.Context) error { return nil }
