package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/domain"
)

type PgPurchaseRepository struct {
	db *sql.DB
}

var _ domain.PurchaseRepository = (*PgPurchaseRepository)(nil)

func NewPgPurchaseRepository(db *sql.DB) *PgPurchaseRepository {
	return &PgPurchaseRepository{db: db}
}

const purchaseColumns = `
    id, user_id, random_box_id, quantity, unit_price, discount, final_total,
    coupon_grant_id, status, purchased_at_utc, cancelled_at_utc
`

func (r *PgPurchaseRepository) Insert(ctx context.Context, p *domain.Purchase) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	q := `insert into purchases (` + purchaseColumns + `) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	if _, err := tx.ExecContext(
		ctx, q,
		p.ID,
		p.UserID,
		p.LotID,
		p.Quantity,
		p.UnitPrice,
		p.Discount,
		p.FinalTotal,
		p.CouponGrantID,
		string(p.Status),
		p.PurchasedAtUtc,
		p.CancelledAtUtc,
	); err != nil {
		return err
	}

	rq := `
        insert into purchase_results
        (id, purchase_id, unit_index, reward_item_id, reward_name, rarity)
        values ($1,$2,$3,$4,$5,$6)
    `
	for _, res := range p.Results {
		id := res.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		if _, err := tx.ExecContext(
			ctx, rq,
			id, p.ID, res.UnitIndex, res.RewardItemID, res.RewardName, string(res.Rarity),
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *PgPurchaseRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Purchase, error) {
	row := r.db.QueryRowContext(ctx, `select `+purchaseColumns+` from purchases where id = $1`, id)
	p, err := scanPurchase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound(domain.ReasonPurchaseNotFound, "purchase %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	if p.Results, err = r.loadResults(ctx, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PgPurchaseRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Purchase, error) {
	rows, err := r.db.QueryContext(ctx,
		`select `+purchaseColumns+` from purchases where user_id = $1 order by purchased_at_utc desc`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []*domain.Purchase{}
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, p := range result {
		if p.Results, err = r.loadResults(ctx, p.ID); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (r *PgPurchaseRepository) MarkCancelled(ctx context.Context, p *domain.Purchase) error {
	cancelledAt := time.Now().UTC()
	if p.CancelledAtUtc != nil {
		cancelledAt = *p.CancelledAtUtc
	}
	res, err := r.db.ExecContext(ctx, `
        update purchases
        set status = $2, cancelled_at_utc = $3
        where id = $1 and status = $4
    `, p.ID, string(domain.PurchaseCancelled), cancelledAt, string(domain.PurchaseCompleted))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 1 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`select exists(select 1 from purchases where id = $1)`, p.ID,
	).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return domain.NotFound(domain.ReasonPurchaseNotFound, "purchase %s not found", p.ID)
	}
	return domain.Conflict(domain.ReasonAlreadyCancelled, "purchase %s already cancelled", p.ID)
}

func (r *PgPurchaseRepository) loadResults(ctx context.Context, purchaseID uuid.UUID) ([]domain.PurchaseResult, error) {
	rows, err := r.db.QueryContext(ctx, `
        select id, unit_index, reward_item_id, reward_name, rarity
        from purchase_results
        where purchase_id = $1
        order by unit_index
    `, purchaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []domain.PurchaseResult{}
	for rows.Next() {
		res := domain.PurchaseResult{PurchaseID: purchaseID}
		var rarity string
		if err := rows.Scan(&res.ID, &res.UnitIndex, &res.RewardItemID, &res.RewardName, &rarity); err != nil {
			return nil, err
		}
		res.Rarity = domain.Rarity(rarity)
		results = append(results, res)
	}
	return results, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPurchase(row rowScanner) (*domain.Purchase, error) {
	var p domain.Purchase
	var status string
	var cancelledAt sql.NullTime
	if err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.LotID,
		&p.Quantity,
		&p.UnitPrice,
		&p.Discount,
		&p.FinalTotal,
		&p.CouponGrantID,
		&status,
		&p.PurchasedAtUtc,
		&cancelledAt,
	); err != nil {
		return nil, err
	}
	p.Status = domain.PurchaseStatus(status)
	if cancelledAt.Valid {
		t := cancelledAt.Time
		p.CancelledAtUtc = &t
	}
	return &p, nil
}
