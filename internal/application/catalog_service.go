package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/domain"
)

// CatalogService registers lots and maintains their reward tables.
// Table edits for one lot are serialized through the locker so two
// concurrent additions cannot push the weights past 100.
type CatalogService struct {
	lots   domain.LotRepository
	ledger *InventoryLedger
	locker domain.LotLocker
	wait   time.Duration
	lease  time.Duration
	logger *zap.Logger
	now    func() time.Time
}

func NewCatalogService(
	lots domain.LotRepository,
	ledger *InventoryLedger,
	locker domain.LotLocker,
	opts LedgerOptions,
	logger *zap.Logger,
) *CatalogService {
	return &CatalogService{
		lots:   lots,
		ledger: ledger,
		locker: locker,
		wait:   opts.LockWait,
		lease:  opts.LockLease,
		logger: logger,
		now:    time.Now,
	}
}

func (s *CatalogService) RegisterLot(ctx context.Context, lot *domain.Lot) error {
	if err := lot.Validate(); err != nil {
		return err
	}
	if err := s.lots.Save(ctx, lot); err != nil {
		return err
	}
	s.logger.Info("lot registered",
		zap.String("lotId", lot.ID.String()),
		zap.Int("quantity", lot.TotalQuantity))
	return s.ledger.Initialize(ctx, lot.ID)
}

// Lots lists every registered lot. With onSaleOnly it keeps just the lots
// inside their sales window that still have stock.
func (s *CatalogService) Lots(ctx context.Context, onSaleOnly bool) ([]domain.Lot, error) {
	lots, err := s.lots.List(ctx)
	if err != nil {
		return nil, err
	}
	if !onSaleOnly {
		return lots, nil
	}
	now := s.now().UTC()
	onSale := lots[:0]
	for i := range lots {
		if lots[i].IsOnSale(now) {
			onSale = append(onSale, lots[i])
		}
	}
	return onSale, nil
}

func (s *CatalogService) AddRewardItem(ctx context.Context, item *domain.RewardItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	return s.editTable(ctx, item, false)
}

func (s *CatalogService) UpdateRewardItem(ctx context.Context, item *domain.RewardItem) error {
	return s.editTable(ctx, item, true)
}

func (s *CatalogService) RewardItems(ctx context.Context, lotID uuid.UUID) ([]domain.RewardItem, error) {
	if _, err := s.lots.GetByID(ctx, lotID); err != nil {
		return nil, err
	}
	return s.lots.GetRewardItems(ctx, lotID)
}

func (s *CatalogService) editTable(ctx context.Context, item *domain.RewardItem, mustExist bool) error {
	if _, ok := domain.ParseRarity(string(item.Rarity)); !ok {
		return domain.Invalid(domain.ReasonInvalidRarity, "unknown rarity %q", item.Rarity)
	}
	if err := domain.ValidateWeight(item.Weight); err != nil {
		return err
	}
	if _, err := s.lots.GetByID(ctx, item.LotID); err != nil {
		return err
	}

	lease, ok, err := s.locker.TryLock(ctx, "randombox:rewards:"+item.LotID.String(), s.wait, s.lease)
	if err != nil {
		return err
	}
	if !ok {
		return domain.Conflict(domain.ReasonLockBusy, "reward table for lot %s is busy", item.LotID)
	}
	defer func() {
		if err := lease.Unlock(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("reward table unlock failed", zap.String("lotId", item.LotID.String()), zap.Error(err))
		}
	}()

	opCtx, cancel := leaseContext(ctx, lease)
	defer cancel()

	existing, err := s.lots.GetRewardItems(opCtx, item.LotID)
	if err != nil {
		return err
	}
	if mustExist && !containsItem(existing, item.ID) {
		return domain.NotFound(domain.ReasonRewardNotFound, "reward item %s not found in lot %s", item.ID, item.LotID)
	}
	if err := domain.CheckWeightChange(existing, *item); err != nil {
		return err
	}
	if item.CreatedAtUtc.IsZero() {
		item.CreatedAtUtc = time.Now().UTC()
	}
	return s.lots.SaveRewardItem(opCtx, item)
}

func containsItem(items []domain.RewardItem, id uuid.UUID) bool {
	for _, it := range items {
		if it.ID == id {
			return true
		}
	}
	return false
}
