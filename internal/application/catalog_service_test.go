package application

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/domain"
	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/infrastructure/lock"
)

func newCatalogFixture(t *testing.T, locker domain.LotLocker) (*CatalogService, *memLotRepo, *domain.Lot) {
	t.Helper()
	repo := newMemLotRepo()
	lot := newTestLot(repo, 10)
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	ledger, _ := newTestLedger(t, repo, locker)
	return NewCatalogService(repo, ledger, locker, testLedgerOptions, zap.NewNop()), repo, lot
}

func TestRegisterLotSeedsStock(t *testing.T) {
	ctx := context.Background()
	repo := newMemLotRepo()
	ledger, c := newTestLedger(t, repo, nil)
	svc := NewCatalogService(repo, ledger, lock.NewLocalLocker(), testLedgerOptions, zap.NewNop())

	now := time.Now()
	lot := domain.NewLot("summer box", "", decimal.NewFromInt(5000), 25, now, now.Add(time.Hour))
	require.NoError(t, svc.RegisterLot(ctx, lot))

	n, ok := c.Get(lot.ID)
	require.True(t, ok)
	assert.Equal(t, 25, n)

	bad := domain.NewLot("broken", "", decimal.NewFromInt(5000), 5, now, now.Add(-time.Hour))
	err := svc.RegisterLot(ctx, bad)
	assert.True(t, domain.HasReason(err, domain.ReasonInvalidLot))
}

func TestAddRewardItemEnforcesWeightBudget(t *testing.T) {
	ctx := context.Background()
	svc, repo, lot := newCatalogFixture(t, nil)

	require.NoError(t, svc.AddRewardItem(ctx, domain.NewRewardItem(lot.ID, "a", "", domain.RarityCommon, decimal.NewFromInt(60))))
	require.NoError(t, svc.AddRewardItem(ctx, domain.NewRewardItem(lot.ID, "b", "", domain.RarityRare, decimal.NewFromInt(40))))

	err := svc.AddRewardItem(ctx, domain.NewRewardItem(lot.ID, "c", "", domain.RarityEpic, decimal.RequireFromString("0.01")))
	assert.True(t, domain.HasReason(err, domain.ReasonProbabilityOverflow))

	items, err := svc.RewardItems(ctx, lot.ID)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Len(t, repo.items[lot.ID], 2)
}

func TestAddRewardItemValidatesInput(t *testing.T) {
	ctx := context.Background()
	svc, _, lot := newCatalogFixture(t, nil)

	cases := []struct {
		name   string
		item   *domain.RewardItem
		reason domain.Reason
	}{
		{"zero weight", domain.NewRewardItem(lot.ID, "a", "", domain.RarityCommon, decimal.Zero), domain.ReasonInvalidProbability},
		{"weight above 100", domain.NewRewardItem(lot.ID, "a", "", domain.RarityCommon, decimal.NewFromInt(101)), domain.ReasonInvalidProbability},
		{"unknown rarity", domain.NewRewardItem(lot.ID, "a", "", domain.Rarity("MYTHIC"), decimal.NewFromInt(10)), domain.ReasonInvalidRarity},
		{"unknown lot", domain.NewRewardItem(uuid.New(), "a", "", domain.RarityCommon, decimal.NewFromInt(10)), domain.ReasonLotNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.AddRewardItem(ctx, tc.item)
			assert.True(t, domain.HasReason(err, tc.reason), "got %v", err)
		})
	}
}

func TestUpdateRewardItemReplacesWeight(t *testing.T) {
	ctx := context.Background()
	svc, _, lot := newCatalogFixture(t, nil)

	a := domain.NewRewardItem(lot.ID, "a", "", domain.RarityCommon, decimal.NewFromInt(70))
	b := domain.NewRewardItem(lot.ID, "b", "", domain.RarityRare, decimal.NewFromInt(30))
	require.NoError(t, svc.AddRewardItem(ctx, a))
	require.NoError(t, svc.AddRewardItem(ctx, b))

	// 70 -> 60 queda en 90, sin contar el peso viejo
	a.Weight = decimal.NewFromInt(60)
	require.NoError(t, svc.UpdateRewardItem(ctx, a))

	a.Weight = decimal.NewFromInt(71)
	err := svc.UpdateRewardItem(ctx, a)
	assert.True(t, domain.HasReason(err, domain.ReasonProbabilityOverflow))

	missing := domain.NewRewardItem(lot.ID, "ghost", "", domain.RarityEpic, decimal.NewFromInt(1))
	err = svc.UpdateRewardItem(ctx, missing)
	assert.True(t, domain.HasReason(err, domain.ReasonRewardNotFound))

	items, err := svc.RewardItems(ctx, lot.ID)
	require.NoError(t, err)
	for _, it := range items {
		if it.ID == a.ID {
			assert.True(t, it.Weight.Equal(decimal.NewFromInt(60)))
		}
	}
}

func TestRewardTableEditBusyLock(t *testing.T) {
	svc, _, lot := newCatalogFixture(t, refusingLocker{})
	err := svc.AddRewardItem(context.Background(), domain.NewRewardItem(lot.ID, "a", "", domain.RarityCommon, decimal.NewFromInt(10)))
	assert.True(t, domain.HasReason(err, domain.ReasonLockBusy))
}

func TestLotsFiltersToOnSale(t *testing.T) {
	ctx := context.Background()
	svc, repo, open := newCatalogFixture(t, nil)
	now := time.Now().UTC()
	svc.now = func() time.Time { return now }

	soldOut := newTestLot(repo, 0)
	upcoming := domain.NewLot("later", "", decimal.NewFromInt(10000), 5, now.Add(time.Hour), now.Add(2*time.Hour))
	require.NoError(t, repo.Save(ctx, upcoming))

	all, err := svc.Lots(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	onSale, err := svc.Lots(ctx, true)
	require.NoError(t, err)
	require.Len(t, onSale, 1)
	assert.Equal(t, open.ID, onSale[0].ID)
	assert.NotEqual(t, soldOut.ID, onSale[0].ID)
}
