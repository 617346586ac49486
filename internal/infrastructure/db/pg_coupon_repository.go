package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/domain"
)

type PgCouponRepository struct {
	db *sql.DB
}

var _ domain.CouponRepository = (*PgCouponRepository)(nil)

func NewPgCouponRepository(db *sql.DB) *PgCouponRepository {
	return &PgCouponRepository{db: db}
}

func (r *PgCouponRepository) SaveCoupon(ctx context.Context, c *domain.Coupon) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	query := `
        insert into coupons
        (id, code, name, discount_type, discount_value, min_purchase, max_discount, starts_at_utc, ends_at_utc)
        values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        on conflict (id) do update
        set name = excluded.name,
            discount_type = excluded.discount_type,
            discount_value = excluded.discount_value,
            min_purchase = excluded.min_purchase,
            max_discount = excluded.max_discount,
            starts_at_utc = excluded.starts_at_utc,
            ends_at_utc = excluded.ends_at_utc
    `
	_, err := r.db.ExecContext(
		ctx, query,
		c.ID,
		c.Code,
		c.Name,
		string(c.DiscountType),
		c.DiscountValue,
		c.MinPurchase,
		c.MaxDiscount,
		c.StartsAtUtc,
		c.EndsAtUtc,
	)
	return err
}

func (r *PgCouponRepository) GetCoupon(ctx context.Context, id uuid.UUID) (*domain.Coupon, error) {
	query := `
        select id, code, name, discount_type, discount_value, min_purchase, max_discount,
               starts_at_utc, ends_at_utc
        from coupons
        where id = $1
    `
	var c domain.Coupon
	var discountType string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID,
		&c.Code,
		&c.Name,
		&discountType,
		&c.DiscountValue,
		&c.MinPurchase,
		&c.MaxDiscount,
		&c.StartsAtUtc,
		&c.EndsAtUtc,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound(domain.ReasonCouponNotFound, "coupon %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	c.DiscountType = domain.DiscountType(discountType)
	return &c, nil
}

func (r *PgCouponRepository) SaveGrant(ctx context.Context, g *domain.CouponGrant) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	query := `
        insert into coupon_grants (id, coupon_id, user_id, used, used_at_utc)
        values ($1,$2,$3,$4,$5)
        on conflict (id) do update
        set used = excluded.used,
            used_at_utc = excluded.used_at_utc
    `
	_, err := r.db.ExecContext(ctx, query, g.ID, g.CouponID, g.UserID, g.Used, g.UsedAtUtc)
	return err
}

func (r *PgCouponRepository) GetGrant(ctx context.Context, id uuid.UUID) (*domain.CouponGrant, error) {
	query := `
        select id, coupon_id, user_id, used, used_at_utc
        from coupon_grants
        where id = $1
    `
	var g domain.CouponGrant
	var usedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, id).Scan(&g.ID, &g.CouponID, &g.UserID, &g.Used, &usedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound(domain.ReasonGrantNotFound, "coupon grant %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	if usedAt.Valid {
		t := usedAt.Time
		g.UsedAtUtc = &t
	}
	return &g, nil
}

// MarkGrantUsed only flips an unused grant, so two concurrent purchases
// cannot both spend it.
func (r *PgCouponRepository) MarkGrantUsed(ctx context.Context, id uuid.UUID, usedAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`update coupon_grants set used = true, used_at_utc = $2 where id = $1 and not used`,
		id, usedAt.UTC(),
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 1 {
		return nil
	}

	if _, err := r.GetGrant(ctx, id); err != nil {
		return err
	}
	return domain.Conflict(domain.ReasonCouponAlreadyUsed, "grant %s already used", id)
}

func (r *PgCouponRepository) UnmarkGrantUsed(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`update coupon_grants set used = false, used_at_utc = null where id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return domain.NotFound(domain.ReasonGrantNotFound, "coupon grant %s not found", id)
	}
	return nil
}
