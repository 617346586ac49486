package boltstore

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	bolt "github.com/boltdb/bolt"
	"github.com/google/uuid"

	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/domain"
)

type LotRepository struct {
	db *bolt.DB
}

var _ domain.LotRepository = (*LotRepository)(nil)

func NewLotRepository(s *Store) *LotRepository {
	return &LotRepository{db: s.db}
}

func (r *LotRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Lot, error) {
	var lot domain.Lot
	err := r.db.View(func(tx *bolt.Tx) error {
		found, err := getJSON(tx.Bucket(bucketLots), idKey(id), &lot)
		if err != nil {
			return err
		}
		if !found {
			return domain.NotFound(domain.ReasonLotNotFound, "lot %s not found", id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &lot, nil
}

func (r *LotRepository) List(_ context.Context) ([]domain.Lot, error) {
	lots := []domain.Lot{}
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLots).ForEach(func(_, v []byte) error {
			var lot domain.Lot
			if err := json.Unmarshal(v, &lot); err != nil {
				return err
			}
			lots = append(lots, lot)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(lots, func(i, j int) bool {
		return lots[i].SalesStartUtc.Before(lots[j].SalesStartUtc)
	})
	return lots, nil
}

func (r *LotRepository) Save(_ context.Context, lot *domain.Lot) error {
	if lot.ID == uuid.Nil {
		lot.ID = uuid.New()
	}
	lot.UpdatedAtUtc = time.Now().UTC()
	return r.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketLots), idKey(lot.ID), lot)
	})
}

func (r *LotRepository) AdjustRemaining(_ context.Context, id uuid.UUID, delta int) (int, error) {
	var remaining int
	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLots)
		var lot domain.Lot
		found, err := getJSON(b, idKey(id), &lot)
		if err != nil {
			return err
		}
		if !found {
			return domain.NotFound(domain.ReasonLotNotFound, "lot %s not found", id)
		}
		if lot.Remaining+delta < 0 {
			remaining = lot.Remaining
			return domain.Conflict(domain.ReasonStockUnavailable,
				"lot %s has %d remaining, cannot apply %d", id, lot.Remaining, delta)
		}
		lot.Remaining += delta
		lot.UpdatedAtUtc = time.Now().UTC()
		remaining = lot.Remaining
		return putJSON(b, idKey(id), &lot)
	})
	return remaining, err
}

func (r *LotRepository) GetRewardItems(_ context.Context, lotID uuid.UUID) ([]domain.RewardItem, error) {
	items := []domain.RewardItem{}
	err := r.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRewardItems).Bucket(idKey(lotID))
		if b == nil {
			return nil
		}
		// sequence keys keep insertion order
		return b.ForEach(func(_, v []byte) error {
			var it domain.RewardItem
			if err := json.Unmarshal(v, &it); err != nil {
				return err
			}
			items = append(items, it)
			return nil
		})
	})
	return items, err
}

func (r *LotRepository) SaveRewardItem(_ context.Context, item *domain.RewardItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(bucketRewardItems).CreateBucketIfNotExists(idKey(item.LotID))
		if err != nil {
			return err
		}

		// edit in place when the item already exists
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var existing domain.RewardItem
			if err := json.Unmarshal(v, &existing); err != nil {
				return err
			}
			if existing.ID == item.ID {
				return putJSON(b, k, item)
			}
		}

		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return putJSON(b, seqKey(seq), item)
	})
}
