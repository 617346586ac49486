package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PurchaseStatus string

const (
	PurchaseCompleted PurchaseStatus = "COMPLETED"
	PurchaseCancelled PurchaseStatus = "CANCELLED"
)

// PurchaseResult es el premio obtenido por una unidad de la compra.
type PurchaseResult struct {
	ID           uuid.UUID
	PurchaseID   uuid.UUID
	UnitIndex    int
	RewardItemID uuid.UUID
	RewardName   string
	Rarity       Rarity
}

type Purchase struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	LotID          uuid.UUID
	Quantity       int
	UnitPrice      decimal.Decimal
	Discount       decimal.Decimal
	FinalTotal     decimal.Decimal
	CouponGrantID  uuid.NullUUID
	Status         PurchaseStatus
	PurchasedAtUtc time.Time
	CancelledAtUtc *time.Time
	Results        []PurchaseResult
}

func NewPurchase(
	userID, lotID uuid.UUID,
	quantity int,
	unitPrice, discount decimal.Decimal,
	grantID uuid.NullUUID,
	now time.Time,
) *Purchase {
	p := &Purchase{
		ID:             uuid.New(),
		UserID:         userID,
		LotID:          lotID,
		Quantity:       quantity,
		UnitPrice:      unitPrice,
		Discount:       discount,
		CouponGrantID:  grantID,
		Status:         PurchaseCompleted,
		PurchasedAtUtc: now.UTC(),
		Results:        make([]PurchaseResult, 0, quantity),
	}
	p.FinalTotal = p.Subtotal().Sub(discount)
	return p
}

func (p *Purchase) Subtotal() decimal.Decimal {
	return p.UnitPrice.Mul(decimal.NewFromInt(int64(p.Quantity)))
}

func (p *Purchase) AddResult(item RewardItem) {
	p.Results = append(p.Results, PurchaseResult{
		ID:           uuid.New(),
		PurchaseID:   p.ID,
		UnitIndex:    len(p.Results),
		RewardItemID: item.ID,
		RewardName:   item.Name,
		Rarity:       item.Rarity,
	})
}

// CheckCancellable applies the ownership, status and window rules in that order.
func (p *Purchase) CheckCancellable(userID uuid.UUID, now time.Time, window time.Duration) error {
	if p.UserID != userID {
		return Conflict(ReasonNotOwner, "purchase %s belongs to another user", p.ID)
	}
	if p.Status == PurchaseCancelled {
		return Conflict(ReasonAlreadyCancelled, "purchase %s already cancelled", p.ID)
	}
	if now.Sub(p.PurchasedAtUtc) > window {
		return Conflict(ReasonWindowExceeded, "purchase %s is older than %s", p.ID, window)
	}
	return nil
}

func (p *Purchase) Cancel(now time.Time) error {
	if p.Status == PurchaseCancelled {
		return Conflict(ReasonAlreadyCancelled, "purchase %s already cancelled", p.ID)
	}
	t := now.UTC()
	p.Status = PurchaseCancelled
	p.CancelledAtUtc = &t
	return nil
}
