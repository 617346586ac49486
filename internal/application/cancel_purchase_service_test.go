package application

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/domain"
)

func newCancelFixture(t *testing.T) (*purchaseFixture, *CancelPurchaseService, *domain.Purchase) {
	t.Helper()
	f := newPurchaseFixture(t, 10)
	user := uuid.New()
	out, err := f.svc.Purchase(context.Background(), PurchaseRequest{UserID: user, LotID: f.lot.ID, Quantity: 3})
	require.NoError(t, err)
	require.Equal(t, 7, f.lots.remaining(f.lot.ID))

	svc := NewCancelPurchaseService(f.purchases, f.ledger, f.notifier, f.outbox, 24*time.Hour, zap.NewNop(), nil)
	return f, svc, out.Purchase
}

func TestCancelReturnsStock(t *testing.T) {
	f, svc, p := newCancelFixture(t)

	got, err := svc.Cancel(context.Background(), p.UserID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PurchaseCancelled, got.Status)
	require.NotNil(t, got.CancelledAtUtc)

	assert.Equal(t, 10, f.lots.remaining(f.lot.ID))
	assert.Equal(t, 10, f.cached(t))

	stored, err := f.purchases.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PurchaseCancelled, stored.Status)

	assert.Contains(t, f.notifier.kinds(p.UserID), domain.NotifyPurchaseCancelled)
	last := f.outbox.events[len(f.outbox.events)-1].(*domain.LotStockAdjustedEvent)
	assert.Equal(t, 3, last.Delta)
}

func TestCancelRejections(t *testing.T) {
	t.Run("window exceeded", func(t *testing.T) {
		f, svc, p := newCancelFixture(t)
		svc.now = func() time.Time { return p.PurchasedAtUtc.Add(25 * time.Hour) }

		_, err := svc.Cancel(context.Background(), p.UserID, p.ID)
		assert.True(t, domain.HasReason(err, domain.ReasonWindowExceeded))
		assert.Equal(t, 7, f.lots.remaining(f.lot.ID))
	})

	t.Run("exactly at the window edge", func(t *testing.T) {
		f, svc, p := newCancelFixture(t)
		svc.now = func() time.Time { return p.PurchasedAtUtc.Add(24 * time.Hour) }

		_, err := svc.Cancel(context.Background(), p.UserID, p.ID)
		require.NoError(t, err)
		assert.Equal(t, 10, f.lots.remaining(f.lot.ID))
	})

	t.Run("not owner", func(t *testing.T) {
		f, svc, p := newCancelFixture(t)
		_, err := svc.Cancel(context.Background(), uuid.New(), p.ID)
		assert.True(t, domain.HasReason(err, domain.ReasonNotOwner))
		assert.Equal(t, 7, f.lots.remaining(f.lot.ID))
	})

	t.Run("already cancelled", func(t *testing.T) {
		f, svc, p := newCancelFixture(t)
		_, err := svc.Cancel(context.Background(), p.UserID, p.ID)
		require.NoError(t, err)

		_, err = svc.Cancel(context.Background(), p.UserID, p.ID)
		assert.True(t, domain.HasReason(err, domain.ReasonAlreadyCancelled))
		assert.Equal(t, 10, f.lots.remaining(f.lot.ID))
	})

	t.Run("unknown purchase", func(t *testing.T) {
		_, svc, p := newCancelFixture(t)
		_, err := svc.Cancel(context.Background(), p.UserID, uuid.New())
		assert.True(t, domain.IsKind(err, domain.KindNotFound))
	})
}

func TestCancelReportsStockThatCouldNotBeReturned(t *testing.T) {
	f, svc, p := newCancelFixture(t)
	delete(f.lots.lots, f.lot.ID)

	got, err := svc.Cancel(context.Background(), p.UserID, p.ID)
	require.Error(t, err)
	assert.True(t, domain.HasReason(err, domain.ReasonCompensationFailed))
	require.NotNil(t, got)
	assert.Equal(t, domain.PurchaseCancelled, got.Status)
}
