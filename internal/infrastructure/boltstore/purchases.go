package boltstore

import (
	"context"
	"encoding/json"
	"sort"

	bolt "github.com/boltdb/bolt"
	"github.com/google/uuid"

	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/domain"
)

type PurchaseRepository struct {
	db *bolt.DB
}

var _ domain.PurchaseRepository = (*PurchaseRepository)(nil)

func NewPurchaseRepository(s *Store) *PurchaseRepository {
	return &PurchaseRepository{db: s.db}
}

// Insert stores the purchase with its results as one document, so both
// land in the same write.
func (r *PurchaseRepository) Insert(_ context.Context, p *domain.Purchase) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPurchases)
		if b.Get(idKey(p.ID)) != nil {
			return domain.Conflict(domain.ReasonStoreFailure, "purchase %s already exists", p.ID)
		}
		return putJSON(b, idKey(p.ID), p)
	})
}

func (r *PurchaseRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Purchase, error) {
	var p domain.Purchase
	err := r.db.View(func(tx *bolt.Tx) error {
		return loadPurchase(tx, id, &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PurchaseRepository) ListByUser(_ context.Context, userID uuid.UUID) ([]*domain.Purchase, error) {
	result := []*domain.Purchase{}
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPurchases).ForEach(func(_, v []byte) error {
			var p domain.Purchase
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			if p.UserID == userID {
				result = append(result, &p)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].PurchasedAtUtc.After(result[j].PurchasedAtUtc)
	})
	return result, nil
}

func (r *PurchaseRepository) MarkCancelled(_ context.Context, p *domain.Purchase) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		var stored domain.Purchase
		if err := loadPurchase(tx, p.ID, &stored); err != nil {
			return err
		}
		if stored.Status != domain.PurchaseCompleted {
			return domain.Conflict(domain.ReasonAlreadyCancelled, "purchase %s already cancelled", p.ID)
		}
		stored.Status = domain.PurchaseCancelled
		stored.CancelledAtUtc = p.CancelledAtUtc
		return putJSON(tx.Bucket(bucketPurchases), idKey(p.ID), &stored)
	})
}

func loadPurchase(tx *bolt.Tx, id uuid.UUID, p *domain.Purchase) error {
	found, err := getJSON(tx.Bucket(bucketPurchases), idKey(id), p)
	if err == nil && !found {
		err = domain.NotFound(domain.ReasonPurchaseNotFound, "purchase %s not found", id)
	}
	return err
}
