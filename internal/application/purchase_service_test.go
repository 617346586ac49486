package application

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/domain"
	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/infrastructure/cache"
)

type purchaseFixture struct {
	lots      *memLotRepo
	coupons   *memCouponRepo
	purchases *memPurchaseRepo
	queue     *AdmissionQueue
	ledger    *InventoryLedger
	cache     *cache.LRUStockCache
	notifier  *recordingNotifier
	outbox    *recordingOutbox
	lot       *domain.Lot
	svc       *PurchaseService
}

func newPurchaseFixture(t *testing.T, remaining int) *purchaseFixture {
	t.Helper()
	f := &purchaseFixture{
		lots:      newMemLotRepo(),
		coupons:   newMemCouponRepo(),
		purchases: newMemPurchaseRepo(),
		queue:     NewAdmissionQueue(30*time.Second, nil),
		notifier:  &recordingNotifier{},
		outbox:    &recordingOutbox{},
	}
	f.lot = newTestLot(f.lots, remaining)
	for _, it := range []*domain.RewardItem{
		domain.NewRewardItem(f.lot.ID, "sticker", "", domain.RarityCommon, decimal.NewFromInt(70)),
		domain.NewRewardItem(f.lot.ID, "figure", "", domain.RarityLegendary, decimal.NewFromInt(30)),
	} {
		require.NoError(t, f.lots.SaveRewardItem(context.Background(), it))
	}

	f.ledger, f.cache = newTestLedger(t, f.lots, nil)
	require.NoError(t, f.ledger.Initialize(context.Background(), f.lot.ID))

	f.svc = NewPurchaseService(PurchaseDeps{
		Lots:      f.lots,
		Coupons:   f.coupons,
		Purchases: f.purchases,
		Queue:     f.queue,
		Ledger:    f.ledger,
		Drawer:    NewRewardDrawer(rand.NewPCG(7, 11)),
		Notifier:  f.notifier,
		Outbox:    f.outbox,
		Logger:    zap.NewNop(),
	})
	return f
}

func (f *purchaseFixture) cached(t *testing.T) int {
	t.Helper()
	n, ok := f.cache.Get(f.lot.ID)
	require.True(t, ok)
	return n
}

func (f *purchaseFixture) grant(t *testing.T, owner uuid.UUID, mutate func(*domain.Coupon)) uuid.UUID {
	t.Helper()
	now := time.Now().UTC()
	c := &domain.Coupon{
		ID:            uuid.New(),
		Code:          "WELCOME10",
		Name:          "welcome",
		DiscountType:  domain.DiscountPercentage,
		DiscountValue: decimal.NewFromInt(10),
		StartsAtUtc:   now.Add(-time.Hour),
		EndsAtUtc:     now.Add(time.Hour),
	}
	if mutate != nil {
		mutate(c)
	}
	require.NoError(t, f.coupons.SaveCoupon(context.Background(), c))
	g := domain.NewCouponGrant(c.ID, owner)
	require.NoError(t, f.coupons.SaveGrant(context.Background(), g))
	return g.ID
}

func TestPurchaseAdmittedHeadCommits(t *testing.T) {
	ctx := context.Background()
	f := newPurchaseFixture(t, 10)
	user := uuid.New()

	out, err := f.svc.Purchase(ctx, PurchaseRequest{UserID: user, LotID: f.lot.ID, Quantity: 2})
	require.NoError(t, err)
	require.True(t, out.Admitted)
	require.NotNil(t, out.Purchase)

	p := out.Purchase
	assert.Equal(t, domain.PurchaseCompleted, p.Status)
	assert.Len(t, p.Results, 2)
	assert.True(t, p.FinalTotal.Equal(decimal.NewFromInt(20000)))
	for i, r := range p.Results {
		assert.Equal(t, i, r.UnitIndex)
		assert.Contains(t, []string{"sticker", "figure"}, r.RewardName)
	}

	assert.Equal(t, 8, f.lots.remaining(f.lot.ID))
	assert.Equal(t, 8, f.cached(t))

	stored, err := f.purchases.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Results, 2)

	assert.Equal(t, []domain.NotificationKind{domain.NotifyPurchaseSuccess, domain.NotifyPurchaseSuccess}, f.notifier.kinds(user))
	require.Len(t, f.outbox.events, 1)
	adjusted, ok := f.outbox.events[0].(*domain.LotStockAdjustedEvent)
	require.True(t, ok)
	assert.Equal(t, -2, adjusted.Delta)

	assert.Equal(t, NotQueued, f.queue.Position(f.lot.ID, user))
}

func TestPurchaseBehindHeadWaits(t *testing.T) {
	f := newPurchaseFixture(t, 10)
	first, second := uuid.New(), uuid.New()
	f.queue.Enqueue(f.lot.ID, first)

	out, err := f.svc.Purchase(context.Background(), PurchaseRequest{UserID: second, LotID: f.lot.ID, Quantity: 1})
	require.NoError(t, err)
	assert.False(t, out.Admitted)
	assert.Nil(t, out.Purchase)
	assert.Equal(t, 1, out.Queue.Position)
	assert.Equal(t, 2, out.Queue.WaitingCount)
	assert.Equal(t, 30*time.Second, out.Queue.EstimatedWait)

	assert.Equal(t, 10, f.lots.remaining(f.lot.ID))
	assert.Empty(t, f.notifier.sent)
}

func TestPurchaseAdvancesQueueAndNotifiesNextHead(t *testing.T) {
	ctx := context.Background()
	f := newPurchaseFixture(t, 10)
	first, second := uuid.New(), uuid.New()

	f.queue.Enqueue(f.lot.ID, first)
	f.queue.Enqueue(f.lot.ID, second)
	out, err := f.svc.Purchase(ctx, PurchaseRequest{UserID: first, LotID: f.lot.ID, Quantity: 1})
	require.NoError(t, err)
	require.True(t, out.Admitted)

	assert.Equal(t, 0, f.queue.Position(f.lot.ID, second))
	assert.Contains(t, f.notifier.kinds(second), domain.NotifyQueueReady)
}

func TestPurchaseRejectsBeforeTouchingStock(t *testing.T) {
	ctx := context.Background()

	t.Run("non-positive quantity", func(t *testing.T) {
		f := newPurchaseFixture(t, 10)
		_, err := f.svc.Purchase(ctx, PurchaseRequest{UserID: uuid.New(), LotID: f.lot.ID, Quantity: 0})
		assert.True(t, domain.HasReason(err, domain.ReasonInvalidQuantity))
	})

	t.Run("unknown lot", func(t *testing.T) {
		f := newPurchaseFixture(t, 10)
		_, err := f.svc.Purchase(ctx, PurchaseRequest{UserID: uuid.New(), LotID: uuid.New(), Quantity: 1})
		assert.True(t, domain.IsKind(err, domain.KindNotFound))
	})

	t.Run("outside sale window", func(t *testing.T) {
		f := newPurchaseFixture(t, 10)
		user := uuid.New()
		f.svc.now = func() time.Time { return f.lot.SalesEndUtc }
		_, err := f.svc.Purchase(ctx, PurchaseRequest{UserID: user, LotID: f.lot.ID, Quantity: 1})
		assert.True(t, domain.HasReason(err, domain.ReasonLotNotOnSale))
		assert.Equal(t, NotQueued, f.queue.Position(f.lot.ID, user))
	})

	t.Run("insufficient stock", func(t *testing.T) {
		f := newPurchaseFixture(t, 10)
		_, err := f.svc.Purchase(ctx, PurchaseRequest{UserID: uuid.New(), LotID: f.lot.ID, Quantity: 11})
		assert.True(t, domain.HasReason(err, domain.ReasonStockUnavailable))
		assert.Equal(t, 10, f.lots.remaining(f.lot.ID))
		assert.Equal(t, 10, f.cached(t))
	})
}

func TestPurchaseAppliesCouponDiscount(t *testing.T) {
	f := newPurchaseFixture(t, 10)
	user := uuid.New()
	grantID := f.grant(t, user, nil)

	out, err := f.svc.Purchase(context.Background(), PurchaseRequest{
		UserID:        user,
		LotID:         f.lot.ID,
		Quantity:      2,
		CouponGrantID: uuid.NullUUID{UUID: grantID, Valid: true},
	})
	require.NoError(t, err)
	require.True(t, out.Admitted)

	assert.True(t, out.Purchase.Discount.Equal(decimal.NewFromInt(2000)))
	assert.True(t, out.Purchase.FinalTotal.Equal(decimal.NewFromInt(18000)))
	assert.True(t, f.coupons.used(grantID))
}

func TestPurchaseCouponFailuresRestoreStock(t *testing.T) {
	owner := uuid.New()

	cases := []struct {
		name   string
		buyer  uuid.UUID
		setup  func(t *testing.T, f *purchaseFixture) uuid.UUID
		reason domain.Reason
	}{
		{
			name:  "already used",
			buyer: owner,
			setup: func(t *testing.T, f *purchaseFixture) uuid.UUID {
				id := f.grant(t, owner, nil)
				require.NoError(t, f.coupons.MarkGrantUsed(context.Background(), id, time.Now()))
				return id
			},
			reason: domain.ReasonCouponAlreadyUsed,
		},
		{
			name:  "not owned",
			buyer: uuid.New(),
			setup: func(t *testing.T, f *purchaseFixture) uuid.UUID {
				return f.grant(t, owner, nil)
			},
			reason: domain.ReasonCouponNotOwned,
		},
		{
			name:  "outside validity window",
			buyer: owner,
			setup: func(t *testing.T, f *purchaseFixture) uuid.UUID {
				return f.grant(t, owner, func(c *domain.Coupon) {
					c.StartsAtUtc = time.Now().Add(-48 * time.Hour)
					c.EndsAtUtc = time.Now().Add(-24 * time.Hour)
				})
			},
			reason: domain.ReasonCouponNotValid,
		},
		{
			name:  "below minimum purchase",
			buyer: owner,
			setup: func(t *testing.T, f *purchaseFixture) uuid.UUID {
				return f.grant(t, owner, func(c *domain.Coupon) {
					c.MinPurchase = decimal.NewNullDecimal(decimal.NewFromInt(1_000_000))
				})
			},
			reason: domain.ReasonBelowMinPurchase,
		},
		{
			name:  "unknown grant",
			buyer: owner,
			setup: func(*testing.T, *purchaseFixture) uuid.UUID {
				return uuid.New()
			},
			reason: domain.ReasonGrantNotFound,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newPurchaseFixture(t, 10)
			grantID := tc.setup(t, f)
			usedBefore := f.coupons.used(grantID)

			_, err := f.svc.Purchase(context.Background(), PurchaseRequest{
				UserID:        tc.buyer,
				LotID:         f.lot.ID,
				Quantity:      3,
				CouponGrantID: uuid.NullUUID{UUID: grantID, Valid: true},
			})
			require.Error(t, err)
			assert.True(t, domain.HasReason(err, tc.reason), "got %v", err)

			assert.Equal(t, 10, f.lots.remaining(f.lot.ID))
			assert.Equal(t, 10, f.cached(t))
			assert.Equal(t, usedBefore, f.coupons.used(grantID))
			assert.Empty(t, f.purchases.purchases)
		})
	}
}

func TestPurchaseInsertFailureUndoesEverything(t *testing.T) {
	f := newPurchaseFixture(t, 10)
	user := uuid.New()
	grantID := f.grant(t, user, nil)
	f.purchases.insertErr = errors.New("connection reset")

	_, err := f.svc.Purchase(context.Background(), PurchaseRequest{
		UserID:        user,
		LotID:         f.lot.ID,
		Quantity:      2,
		CouponGrantID: uuid.NullUUID{UUID: grantID, Valid: true},
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))
	assert.True(t, domain.HasReason(err, domain.ReasonStoreFailure))

	assert.Equal(t, 10, f.lots.remaining(f.lot.ID))
	assert.Equal(t, 10, f.cached(t))
	assert.False(t, f.coupons.used(grantID))
	assert.Empty(t, f.notifier.sent)
	assert.Empty(t, f.outbox.events)

	// sigue siendo cabeza y puede reintentar
	assert.Equal(t, 0, f.queue.Position(f.lot.ID, user))
}

func TestPurchaseWithoutRewardTableIsConfigurationError(t *testing.T) {
	f := newPurchaseFixture(t, 10)
	f.lots.items[f.lot.ID] = nil

	_, err := f.svc.Purchase(context.Background(), PurchaseRequest{UserID: uuid.New(), LotID: f.lot.ID, Quantity: 1})
	assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))
	assert.True(t, domain.HasReason(err, domain.ReasonNoRewardItems))
	assert.Equal(t, 10, f.lots.remaining(f.lot.ID))
}

func TestPurchaseOverweightTableIsConfigurationError(t *testing.T) {
	f := newPurchaseFixture(t, 10)
	extra := domain.NewRewardItem(f.lot.ID, "poster", "", domain.RarityRare, decimal.NewFromInt(5))
	f.lots.items[f.lot.ID] = append(f.lots.items[f.lot.ID], *extra)

	_, err := f.svc.Purchase(context.Background(), PurchaseRequest{UserID: uuid.New(), LotID: f.lot.ID, Quantity: 1})
	assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))
	assert.True(t, domain.HasReason(err, domain.ReasonProbabilityOverflow))
	assert.Equal(t, 10, f.lots.remaining(f.lot.ID))
}

// breakingPurchaseRepo fails the insert and breaks the lot store with it,
// so the stock cannot be given back.
type breakingPurchaseRepo struct {
	*memPurchaseRepo
	lots *memLotRepo
}

func (r *breakingPurchaseRepo) Insert(context.Context, *domain.Purchase) error {
	r.lots.mu.Lock()
	r.lots.adjustErr = errors.New("store offline")
	r.lots.mu.Unlock()
	return errors.New("store offline")
}

func TestPurchaseReportsFailedCompensation(t *testing.T) {
	f := newPurchaseFixture(t, 10)
	f.svc.purchases = &breakingPurchaseRepo{memPurchaseRepo: f.purchases, lots: f.lots}

	_, err := f.svc.Purchase(context.Background(), PurchaseRequest{UserID: uuid.New(), LotID: f.lot.ID, Quantity: 2})
	require.Error(t, err)
	assert.True(t, domain.HasReason(err, domain.ReasonCompensationFailed))
	assert.Equal(t, 8, f.lots.remaining(f.lot.ID))
}

func TestPurchaseSurvivesNotifierFailure(t *testing.T) {
	f := newPurchaseFixture(t, 10)
	f.notifier.err = errors.New("broker down")

	out, err := f.svc.Purchase(context.Background(), PurchaseRequest{UserID: uuid.New(), LotID: f.lot.ID, Quantity: 1})
	require.NoError(t, err)
	assert.True(t, out.Admitted)
	assert.Equal(t, 9, f.lots.remaining(f.lot.ID))
}

func TestListByUserNewestFirst(t *testing.T) {
	ctx := context.Background()
	f := newPurchaseFixture(t, 10)
	user := uuid.New()
	base := time.Now().UTC()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		f.svc.now = func() time.Time { return at }
		out, err := f.svc.Purchase(ctx, PurchaseRequest{UserID: user, LotID: f.lot.ID, Quantity: 1})
		require.NoError(t, err)
		ids = append(ids, out.Purchase.ID)
	}

	list, err := f.svc.ListByUser(ctx, user)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, ids[2], list[0].ID)
	assert.Equal(t, ids[0], list[2].ID)

	got, err := f.svc.Get(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, user, got.UserID)
}

func TestPurchaseLockBusyIsDistinctFromSoldOut(t *testing.T) {
	f := newPurchaseFixture(t, 10)
	f.svc.ledger, _ = newTestLedger(t, f.lots, refusingLocker{})

	_, err := f.svc.Purchase(context.Background(), PurchaseRequest{UserID: uuid.New(), LotID: f.lot.ID, Quantity: 1})
	assert.Equal(t, domain.KindStateConflict, domain.KindOf(err))
	assert.True(t, domain.HasReason(err, domain.ReasonLockBusy))
	assert.Equal(t, 10, f.lots.remaining(f.lot.ID))
}

func TestPurchaseDrawsOneResultPerUnit(t *testing.T) {
	f := newPurchaseFixture(t, 10)
	half := []domain.RewardItem{
		*domain.NewRewardItem(f.lot.ID, "left", "", domain.RarityCommon, decimal.NewFromInt(50)),
		*domain.NewRewardItem(f.lot.ID, "right", "", domain.RarityRare, decimal.NewFromInt(50)),
	}
	f.lots.items[f.lot.ID] = half

	out, err := f.svc.Purchase(context.Background(), PurchaseRequest{UserID: uuid.New(), LotID: f.lot.ID, Quantity: 3})
	require.NoError(t, err)
	require.Len(t, out.Purchase.Results, 3)
	for _, r := range out.Purchase.Results {
		assert.Contains(t, []uuid.UUID{half[0].ID, half[1].ID}, r.RewardItemID)
	}
}
