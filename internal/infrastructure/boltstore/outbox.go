package boltstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	bolt "github.com/boltdb/bolt"
	"github.com/google/uuid"

	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/domain"
)

type OutboxRepository struct {
	db *bolt.DB
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)

func NewOutboxRepository(s *Store) *OutboxRepository {
	return &OutboxRepository{db: s.db}
}

func (r *OutboxRepository) Insert(_ context.Context, msg domain.OutboxMessage) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.OccurredAtUtc == 0 {
		msg.OccurredAtUtc = time.Now().UTC().Unix()
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketOutbox)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := seqKey(seq)
		if err := tx.Bucket(bucketOutboxIndex).Put(idKey(msg.ID), key); err != nil {
			return err
		}
		return putJSON(b, key, msg)
	})
}

// GetPendingBatch walks messages in insertion order, which is also
// occurrence order.
func (r *OutboxRepository) GetPendingBatch(
	_ context.Context,
	maxRetry, batchSize int,
) ([]domain.OutboxMessage, error) {
	var result []domain.OutboxMessage
	err := r.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketOutbox).Cursor()
		for k, v := c.First(); k != nil && len(result) < batchSize; k, v = c.Next() {
			var msg domain.OutboxMessage
			if err := json.Unmarshal(v, &msg); err != nil {
				return err
			}
			if msg.ProcessedAtUtc == nil && msg.RetryCount < maxRetry {
				result = append(result, msg)
			}
		}
		return nil
	})
	return result, err
}

func (r *OutboxRepository) Save(_ context.Context, msg domain.OutboxMessage) error {
	if msg.ID == uuid.Nil {
		return errors.New("outbox message id is empty")
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		key := tx.Bucket(bucketOutboxIndex).Get(idKey(msg.ID))
		if key == nil {
			return domain.NotFound(domain.ReasonStoreFailure, "outbox message %s not found", msg.ID)
		}
		b := tx.Bucket(bucketOutbox)
		var stored domain.OutboxMessage
		if _, err := getJSON(b, key, &stored); err != nil {
			return err
		}
		stored.RetryCount = msg.RetryCount
		if msg.ProcessedAtUtc != nil {
			stored.ProcessedAtUtc = msg.ProcessedAtUtc
		}
		// copy: key belongs to the read-only index page
		return putJSON(b, append([]byte(nil), key...), &stored)
	})
}
