package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/domain"
)

type PgLotRepository struct {
	db *sql.DB
}

var _ domain.LotRepository = (*PgLotRepository)(nil)

func NewPgLotRepository(db *sql.DB) *PgLotRepository {
	return &PgLotRepository{db: db}
}

func (r *PgLotRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Lot, error) {
	query := `
        select id, name, description, price, total_quantity, remaining_quantity,
               sales_start_utc, sales_end_utc, updated_at_utc
        from random_boxes
        where id = $1
    `
	var lot domain.Lot
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&lot.ID,
		&lot.Name,
		&lot.Description,
		&lot.Price,
		&lot.TotalQuantity,
		&lot.Remaining,
		&lot.SalesStartUtc,
		&lot.SalesEndUtc,
		&lot.UpdatedAtUtc,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound(domain.ReasonLotNotFound, "lot %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &lot, nil
}

func (r *PgLotRepository) List(ctx context.Context) ([]domain.Lot, error) {
	query := `
        select id, name, description, price, total_quantity, remaining_quantity,
               sales_start_utc, sales_end_utc, updated_at_utc
        from random_boxes
        order by sales_start_utc, id
    `
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lots := []domain.Lot{}
	for rows.Next() {
		var lot domain.Lot
		if err := rows.Scan(
			&lot.ID,
			&lot.Name,
			&lot.Description,
			&lot.Price,
			&lot.TotalQuantity,
			&lot.Remaining,
			&lot.SalesStartUtc,
			&lot.SalesEndUtc,
			&lot.UpdatedAtUtc,
		); err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

func (r *PgLotRepository) Save(ctx context.Context, lot *domain.Lot) error {
	if lot.ID == uuid.Nil {
		lot.ID = uuid.New()
	}
	lot.UpdatedAtUtc = time.Now().UTC()

	query := `
        insert into random_boxes
        (id, name, description, price, total_quantity, remaining_quantity,
         sales_start_utc, sales_end_utc, updated_at_utc)
        values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        on conflict (id) do update
        set name = excluded.name,
            description = excluded.description,
            price = excluded.price,
            total_quantity = excluded.total_quantity,
            remaining_quantity = excluded.remaining_quantity,
            sales_start_utc = excluded.sales_start_utc,
            sales_end_utc = excluded.sales_end_utc,
            updated_at_utc = excluded.updated_at_utc
    `
	_, err := r.db.ExecContext(
		ctx, query,
		lot.ID,
		lot.Name,
		lot.Description,
		lot.Price,
		lot.TotalQuantity,
		lot.Remaining,
		lot.SalesStartUtc,
		lot.SalesEndUtc,
		lot.UpdatedAtUtc,
	)
	return err
}

// AdjustRemaining relies on the guarded update; the follow-up select only
// tells a missing lot apart from an insufficient one.
func (r *PgLotRepository) AdjustRemaining(ctx context.Context, id uuid.UUID, delta int) (int, error) {
	query := `
        update random_boxes
        set remaining_quantity = remaining_quantity + $2,
            updated_at_utc = now()
        where id = $1 and remaining_quantity + $2 >= 0
        returning remaining_quantity
    `
	var remaining int
	err := r.db.QueryRowContext(ctx, query, id, delta).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	err = r.db.QueryRowContext(ctx,
		`select remaining_quantity from random_boxes where id = $1`, id,
	).Scan(&remaining)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.NotFound(domain.ReasonLotNotFound, "lot %s not found", id)
	}
	if err != nil {
		return 0, err
	}
	return remaining, domain.Conflict(domain.ReasonStockUnavailable,
		"lot %s has %d remaining, cannot apply %d", id, remaining, delta)
}

func (r *PgLotRepository) GetRewardItems(ctx context.Context, lotID uuid.UUID) ([]domain.RewardItem, error) {
	query := `
        select id, random_box_id, name, description, rarity, probability, created_at_utc
        from random_box_items
        where random_box_id = $1
        order by created_at_utc, id
    `
	rows, err := r.db.QueryContext(ctx, query, lotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []domain.RewardItem{}
	for rows.Next() {
		var it domain.RewardItem
		var rarity string
		if err := rows.Scan(
			&it.ID,
			&it.LotID,
			&it.Name,
			&it.Description,
			&rarity,
			&it.Weight,
			&it.CreatedAtUtc,
		); err != nil {
			return nil, err
		}
		it.Rarity = domain.Rarity(rarity)
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *PgLotRepository) SaveRewardItem(ctx context.Context, item *domain.RewardItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.CreatedAtUtc.IsZero() {
		item.CreatedAtUtc = time.Now().UTC()
	}

	query := `
        insert into random_box_items
        (id, random_box_id, name, description, rarity, probability, created_at_utc)
        values ($1,$2,$3,$4,$5,$6,$7)
        on conflict (id) do update
        set name = excluded.name,
            description = excluded.description,
            rarity = excluded.rarity,
            probability = excluded.probability
    `
	_, err := r.db.ExecContext(
		ctx, query,
		item.ID,
		item.LotID,
		item.Name,
		item.Description,
		string(item.Rarity),
		item.Weight,
		item.CreatedAtUtc,
	)
	return err
}
