package application

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/domain"
	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/observability"
)

type CancelPurchaseService struct {
	purchases domain.PurchaseRepository
	ledger    *InventoryLedger
	notifier  domain.Notifier
	outbox    OutboxWriter
	window    time.Duration
	now       func() time.Time
	logger    *zap.Logger
	metrics   *observability.Metrics
}

func NewCancelPurchaseService(
	purchases domain.PurchaseRepository,
	ledger *InventoryLedger,
	notifier domain.Notifier,
	outbox OutboxWriter,
	window time.Duration,
	logger *zap.Logger,
	metrics *observability.Metrics,
) *CancelPurchaseService {
	return &CancelPurchaseService{
		purchases: purchases,
		ledger:    ledger,
		notifier:  notifier,
		outbox:    outbox,
		window:    window,
		now:       time.Now,
		logger:    logger,
		metrics:   metrics,
	}
}

// Cancel marks the purchase cancelled and then returns its units to the
// lot. The conditional status update happens first so a purchase can only
// ever give its stock back once.
func (s *CancelPurchaseService) Cancel(ctx context.Context, userID, purchaseID uuid.UUID) (*domain.Purchase, error) {
	p, err := s.purchases.GetByID(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if err := p.CheckCancellable(userID, now, s.window); err != nil {
		return nil, err
	}
	if err := p.Cancel(now); err != nil {
		return nil, err
	}
	if err := s.purchases.MarkCancelled(ctx, p); err != nil {
		return nil, err
	}

	if err := s.ledger.ReleaseWithRetry(context.WithoutCancel(ctx), p.LotID, p.Quantity); err != nil {
		s.metrics.Compensation("failed")
		s.logger.Error("cancelled purchase could not return stock",
			zap.String("purchaseId", p.ID.String()),
			zap.String("lotId", p.LotID.String()),
			zap.Int("quantity", p.Quantity),
			zap.Error(err))
		return p, domain.Wrap(domain.KindInternal, domain.ReasonCompensationFailed,
			"return stock for cancelled purchase "+p.ID.String(), err)
	}

	s.logger.Info("purchase cancelled",
		zap.String("purchaseId", p.ID.String()),
		zap.String("userId", userID.String()))

	if err := s.notifier.Notify(ctx, userID, domain.NotifyPurchaseCancelled, map[string]string{
		"purchaseId": p.ID.String(),
		"lotId":      p.LotID.String(),
		"quantity":   strconv.Itoa(p.Quantity),
	}); err != nil {
		s.metrics.NotificationFailed()
		s.logger.Warn("notification dropped", zap.String("purchaseId", p.ID.String()), zap.Error(err))
	}
	if err := s.outbox.Enqueue(ctx, domain.NewLotStockAdjustedEvent(p.LotID, p.Quantity, "PURCHASE_CANCELLED")); err != nil {
		s.logger.Warn("failed to enqueue stock adjusted event", zap.String("lotId", p.LotID.String()), zap.Error(err))
	}
	return p, nil
}
