package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "PERCENTAGE"
	DiscountFixed      DiscountType = "FIXED"
)

type Coupon struct {
	ID            uuid.UUID
	Code          string
	Name          string
	DiscountType  DiscountType
	DiscountValue decimal.Decimal
	MinPurchase   decimal.NullDecimal
	MaxDiscount   decimal.NullDecimal
	StartsAtUtc   time.Time
	EndsAtUtc     time.Time
}

func (c *Coupon) Validate() error {
	switch {
	case c.DiscountType != DiscountPercentage && c.DiscountType != DiscountFixed:
		return Invalid(ReasonInvalidCoupon, "unknown discount type %q", c.DiscountType)
	case !c.DiscountValue.IsPositive():
		return Invalid(ReasonInvalidCoupon, "discount value must be positive")
	case c.DiscountType == DiscountPercentage && c.DiscountValue.GreaterThan(maxWeight):
		return Invalid(ReasonInvalidCoupon, "percentage discount above 100")
	case c.MaxDiscount.Valid && !c.MaxDiscount.Decimal.IsPositive():
		return Invalid(ReasonInvalidCoupon, "max discount must be positive")
	case !c.EndsAtUtc.After(c.StartsAtUtc):
		return Invalid(ReasonInvalidCoupon, "coupon end must be after start")
	}
	return nil
}

func (c *Coupon) IsValidAt(now time.Time) bool {
	return !now.Before(c.StartsAtUtc) && now.Before(c.EndsAtUtc)
}

func (c *Coupon) MeetsMinimum(subtotal decimal.Decimal) bool {
	return !c.MinPurchase.Valid || !subtotal.LessThan(c.MinPurchase.Decimal)
}

// CalculateDiscount returns min(raw, cap, subtotal). Percentage discounts
// are truncated to cents.
func (c *Coupon) CalculateDiscount(subtotal decimal.Decimal) decimal.Decimal {
	var raw decimal.Decimal
	switch c.DiscountType {
	case DiscountPercentage:
		raw = subtotal.Mul(c.DiscountValue).Div(maxWeight).Truncate(2)
	default:
		raw = c.DiscountValue
	}
	if c.MaxDiscount.Valid {
		raw = decimal.Min(raw, c.MaxDiscount.Decimal)
	}
	return decimal.Max(decimal.Min(raw, subtotal), decimal.Zero)
}

// CouponGrant es un cupón emitido a un usuario; se consume una sola vez.
type CouponGrant struct {
	ID        uuid.UUID
	CouponID  uuid.UUID
	UserID    uuid.UUID
	Used      bool
	UsedAtUtc *time.Time
}

func NewCouponGrant(couponID, userID uuid.UUID) *CouponGrant {
	return &CouponGrant{ID: uuid.New(), CouponID: couponID, UserID: userID}
}

func (g *CouponGrant) MarkUsed(now time.Time) error {
	if g.Used {
		return Conflict(ReasonCouponAlreadyUsed, "grant %s already used", g.ID)
	}
	t := now.UTC()
	g.Used = true
	g.UsedAtUtc = &t
	return nil
}

// Unmark revierte MarkUsed; lo usa la compensación.
func (g *CouponGrant) Unmark() {
	g.Used = false
	g.UsedAtUtc = nil
}
