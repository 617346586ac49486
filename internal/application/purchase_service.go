package application

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/domain"
	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/observability"
)

type PurchaseRequest struct {
	UserID        uuid.UUID
	LotID         uuid.UUID
	Quantity      int
	CouponGrantID uuid.NullUUID
}

// PurchaseOutcome is either admitted with a committed purchase, or
// waiting with the caller's place in line.
type PurchaseOutcome struct {
	Admitted bool
	Queue    QueueStatus
	Purchase *domain.Purchase
}

type PurchaseDeps struct {
	Lots      domain.LotRepository
	Coupons   domain.CouponRepository
	Purchases domain.PurchaseRepository
	Queue     *AdmissionQueue
	Ledger    *InventoryLedger
	Drawer    *RewardDrawer
	Notifier  domain.Notifier
	Outbox    OutboxWriter
	Logger    *zap.Logger
	Metrics   *observability.Metrics
}

type PurchaseService struct {
	lots      domain.LotRepository
	coupons   domain.CouponRepository
	purchases domain.PurchaseRepository
	queue     *AdmissionQueue
	ledger    *InventoryLedger
	drawer    *RewardDrawer
	notifier  domain.Notifier
	outbox    OutboxWriter
	now       func() time.Time
	logger    *zap.Logger
	metrics   *observability.Metrics
}

func NewPurchaseService(d PurchaseDeps) *PurchaseService {
	return &PurchaseService{
		lots:      d.Lots,
		coupons:   d.Coupons,
		purchases: d.Purchases,
		queue:     d.Queue,
		ledger:    d.Ledger,
		drawer:    d.Drawer,
		notifier:  d.Notifier,
		outbox:    d.Outbox,
		now:       time.Now,
		logger:    d.Logger,
		metrics:   d.Metrics,
	}
}

type compensation struct {
	name string
	run  func(context.Context) error
}

func (s *PurchaseService) Purchase(ctx context.Context, req PurchaseRequest) (*PurchaseOutcome, error) {
	out, err := s.purchase(ctx, req)
	switch {
	case err != nil:
		s.metrics.PurchaseOutcome(strings.ToLower(string(domain.KindOf(err))))
	case !out.Admitted:
		s.metrics.PurchaseOutcome("waiting")
	default:
		s.metrics.PurchaseOutcome("completed")
	}
	return out, err
}

func (s *PurchaseService) purchase(ctx context.Context, req PurchaseRequest) (*PurchaseOutcome, error) {
	if req.Quantity <= 0 {
		return nil, domain.Invalid(domain.ReasonInvalidQuantity, "quantity must be positive, got %d", req.Quantity)
	}
	lot, err := s.lots.GetByID(ctx, req.LotID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if !lot.InSaleWindow(now) {
		return nil, domain.Conflict(domain.ReasonLotNotOnSale, "lot %s is outside its sale window", lot.ID)
	}

	// 1. Admisión: sólo la cabeza de la fila compra
	s.queue.Enqueue(lot.ID, req.UserID)
	status, _ := s.queue.Status(lot.ID, req.UserID)
	if status.Position > 0 {
		return &PurchaseOutcome{Admitted: false, Queue: status}, nil
	}

	var undo []compensation
	fail := func(err error) (*PurchaseOutcome, error) {
		return nil, s.compensate(ctx, undo, err)
	}

	// 2. Reserva de inventario
	res, err := s.ledger.reserve(ctx, lot.ID, req.Quantity)
	switch {
	case err != nil:
		return nil, err
	case res == reserveLockTimeout:
		return nil, domain.Conflict(domain.ReasonLockBusy, "lot %s is busy, try again", lot.ID)
	case res == reserveShort:
		return nil, domain.Conflict(domain.ReasonStockUnavailable,
			"lot %s cannot supply %d units", lot.ID, req.Quantity)
	}
	undo = append(undo, compensation{name: "release inventory", run: func(ctx context.Context) error {
		return s.ledger.ReleaseWithRetry(ctx, lot.ID, req.Quantity)
	}})

	// 3. Cupón
	subtotal := lot.Price.Mul(decimal.NewFromInt(int64(req.Quantity)))
	discount := decimal.Zero
	if req.CouponGrantID.Valid {
		grantID := req.CouponGrantID.UUID
		discount, err = s.redeemGrant(ctx, req.UserID, grantID, subtotal, now)
		if err != nil {
			return fail(err)
		}
		undo = append(undo, compensation{name: "restore coupon grant", run: func(ctx context.Context) error {
			return s.coupons.UnmarkGrantUsed(ctx, grantID)
		}})
	}

	// 4. Sorteo, una tirada por unidad
	items, err := s.lots.GetRewardItems(ctx, lot.ID)
	if err != nil {
		return fail(fmt.Errorf("load reward table for lot %s: %w", lot.ID, err))
	}
	if len(items) == 0 {
		return fail(domain.Misconfigured(domain.ReasonNoRewardItems, "lot %s has no reward items", lot.ID))
	}
	if err := domain.ValidateRewardTable(items); err != nil {
		return fail(domain.Wrap(domain.KindConfiguration, domain.ReasonOf(err), "reward table for lot "+lot.ID.String(), err))
	}

	purchase := domain.NewPurchase(req.UserID, lot.ID, req.Quantity, lot.Price, discount, req.CouponGrantID, now)
	for i := 0; i < req.Quantity; i++ {
		item, err := s.drawer.Draw(items)
		if err != nil {
			return fail(domain.Wrap(domain.KindConfiguration, domain.ReasonNoRewardItems, "draw reward", err))
		}
		purchase.AddResult(item)
	}

	// 5. Commit
	if err := s.purchases.Insert(ctx, purchase); err != nil {
		return fail(domain.Wrap(domain.KindInternal, domain.ReasonStoreFailure, "save purchase", err))
	}

	s.logger.Info("purchase completed",
		zap.String("purchaseId", purchase.ID.String()),
		zap.String("userId", req.UserID.String()),
		zap.String("lotId", lot.ID.String()),
		zap.Int("quantity", req.Quantity),
		zap.String("finalTotal", purchase.FinalTotal.String()))

	// 6. Notificaciones y avance de la fila; fallas aquí no deshacen la compra
	s.afterCommit(ctx, lot, purchase)

	return &PurchaseOutcome{Admitted: true, Queue: status, Purchase: purchase}, nil
}

func (s *PurchaseService) redeemGrant(
	ctx context.Context,
	userID, grantID uuid.UUID,
	subtotal decimal.Decimal,
	now time.Time,
) (decimal.Decimal, error) {
	grant, err := s.coupons.GetGrant(ctx, grantID)
	if err != nil {
		return decimal.Zero, err
	}
	if grant.UserID != userID {
		return decimal.Zero, domain.Conflict(domain.ReasonCouponNotOwned, "grant %s belongs to another user", grantID)
	}
	if grant.Used {
		return decimal.Zero, domain.Conflict(domain.ReasonCouponAlreadyUsed, "grant %s already used", grantID)
	}
	coupon, err := s.coupons.GetCoupon(ctx, grant.CouponID)
	if err != nil {
		return decimal.Zero, err
	}
	if !coupon.IsValidAt(now) {
		return decimal.Zero, domain.Invalid(domain.ReasonCouponNotValid, "coupon %s is outside its validity window", coupon.Code)
	}
	if !coupon.MeetsMinimum(subtotal) {
		return decimal.Zero, domain.Invalid(domain.ReasonBelowMinPurchase,
			"subtotal %s below minimum %s", subtotal.String(), coupon.MinPurchase.Decimal.String())
	}
	if err := s.coupons.MarkGrantUsed(ctx, grantID, now); err != nil {
		return decimal.Zero, err
	}
	return coupon.CalculateDiscount(subtotal), nil
}

// compensate runs the recorded steps newest first. Steps run even if the
// request context is already gone.
func (s *PurchaseService) compensate(ctx context.Context, steps []compensation, cause error) error {
	ctx = context.WithoutCancel(ctx)
	var failed []string
	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]
		if err := step.run(ctx); err != nil {
			s.metrics.Compensation("failed")
			s.logger.Error("compensation failed",
				zap.String("step", step.name),
				zap.NamedError("cause", cause),
				zap.Error(err))
			failed = append(failed, step.name)
			continue
		}
		s.metrics.Compensation("ok")
	}
	if len(failed) > 0 {
		return domain.Wrap(domain.KindInternal, domain.ReasonCompensationFailed,
			"could not "+strings.Join(failed, ", "), cause)
	}
	return cause
}

func (s *PurchaseService) afterCommit(ctx context.Context, lot *domain.Lot, p *domain.Purchase) {
	for _, r := range p.Results {
		s.notify(ctx, p.UserID, domain.NotifyPurchaseSuccess, map[string]string{
			"purchaseId":   p.ID.String(),
			"lotId":        lot.ID.String(),
			"lotName":      lot.Name,
			"unit":         strconv.Itoa(r.UnitIndex),
			"rewardItemId": r.RewardItemID.String(),
			"rewardName":   r.RewardName,
			"rarity":       string(r.Rarity),
		})
	}

	if err := s.outbox.Enqueue(ctx, domain.NewLotStockAdjustedEvent(lot.ID, -p.Quantity, "PURCHASE_COMPLETED")); err != nil {
		s.logger.Warn("failed to enqueue stock adjusted event", zap.String("lotId", lot.ID.String()), zap.Error(err))
	}

	if next, ok := s.queue.Advance(lot.ID, p.UserID); ok {
		s.notify(ctx, next, domain.NotifyQueueReady, map[string]string{
			"lotId":   lot.ID.String(),
			"lotName": lot.Name,
		})
	}
}

func (s *PurchaseService) notify(ctx context.Context, userID uuid.UUID, kind domain.NotificationKind, data map[string]string) {
	if err := s.notifier.Notify(ctx, userID, kind, data); err != nil {
		s.metrics.NotificationFailed()
		s.logger.Warn("notification dropped",
			zap.String("userId", userID.String()),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
}

func (s *PurchaseService) Get(ctx context.Context, id uuid.UUID) (*domain.Purchase, error) {
	return s.purchases.GetByID(ctx, id)
}

// ListByUser returns the user's purchases, newest first.
func (s *PurchaseService) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Purchase, error) {
	return s.purchases.ListByUser(ctx, userID)
}
