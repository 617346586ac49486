package application

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/domain"
)

type CouponService struct {
	coupons domain.CouponRepository
	logger  *zap.Logger
}

func NewCouponService(coupons domain.CouponRepository, logger *zap.Logger) *CouponService {
	return &CouponService{coupons: coupons, logger: logger}
}

func (s *CouponService) CreateCoupon(ctx context.Context, c *domain.Coupon) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return s.coupons.SaveCoupon(ctx, c)
}

// IssueGrant hands one use of the coupon to the user.
func (s *CouponService) IssueGrant(ctx context.Context, couponID, userID uuid.UUID) (*domain.CouponGrant, error) {
	if _, err := s.coupons.GetCoupon(ctx, couponID); err != nil {
		return nil, err
	}
	g := domain.NewCouponGrant(couponID, userID)
	if err := s.coupons.SaveGrant(ctx, g); err != nil {
		return nil, err
	}
	s.logger.Info("coupon granted",
		zap.String("couponId", couponID.String()),
		zap.String("userId", userID.String()),
		zap.String("grantId", g.ID.String()))
	return g, nil
}
