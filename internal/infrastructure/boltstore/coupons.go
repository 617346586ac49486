package boltstore

import (
	"context"
	"time"

	bolt "github.com/boltdb/bolt"
	"github.com/google/uuid"

	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/domain"
)

type CouponRepository struct {
	db *bolt.DB
}

var _ domain.CouponRepository = (*CouponRepository)(nil)

func NewCouponRepository(s *Store) *CouponRepository {
	return &CouponRepository{db: s.db}
}

func (r *CouponRepository) SaveCoupon(_ context.Context, c *domain.Coupon) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketCoupons), idKey(c.ID), c)
	})
}

func (r *CouponRepository) GetCoupon(_ context.Context, id uuid.UUID) (*domain.Coupon, error) {
	var c domain.Coupon
	err := r.db.View(func(tx *bolt.Tx) error {
		found, err := getJSON(tx.Bucket(bucketCoupons), idKey(id), &c)
		if err == nil && !found {
			err = domain.NotFound(domain.ReasonCouponNotFound, "coupon %s not found", id)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CouponRepository) SaveGrant(_ context.Context, g *domain.CouponGrant) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketGrants), idKey(g.ID), g)
	})
}

func (r *CouponRepository) GetGrant(_ context.Context, id uuid.UUID) (*domain.CouponGrant, error) {
	var g domain.CouponGrant
	err := r.db.View(func(tx *bolt.Tx) error {
		return loadGrant(tx, id, &g)
	})
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *CouponRepository) MarkGrantUsed(_ context.Context, id uuid.UUID, usedAt time.Time) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		var g domain.CouponGrant
		if err := loadGrant(tx, id, &g); err != nil {
			return err
		}
		if err := g.MarkUsed(usedAt); err != nil {
			return err
		}
		return putJSON(tx.Bucket(bucketGrants), idKey(id), &g)
	})
}

func (r *CouponRepository) UnmarkGrantUsed(_ context.Context, id uuid.UUID) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		var g domain.CouponGrant
		if err := loadGrant(tx, id, &g); err != nil {
			return err
		}
		g.Unmark()
		return putJSON(tx.Bucket(bucketGrants), idKey(id), &g)
	})
}

func loadGrant(tx *bolt.Tx, id uuid.UUID, g *domain.CouponGrant) error {
	found, err := getJSON(tx.Bucket(bucketGrants), idKey(id), g)
	if err == nil && !found {
		err = domain.NotFound(domain.ReasonGrantNotFound, "coupon grant %s not found", id)
	}
	return err
}
