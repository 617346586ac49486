// Package boltstore implements the repository ports on an embedded BoltDB
// file for single-node deployments. Values are JSON documents keyed by id.
package boltstore

import (
	"encoding/binary"
	"encoding/json"
	"time"

	bolt "github.com/boltdb/bolt"
	"github.com/google/uuid"
)

var (
	bucketLots        = []byte("lots")
	bucketRewardItems = []byte("reward_items") // nested bucket per lot, keyed by sequence
	bucketCoupons     = []byte("coupons")
	bucketGrants      = []byte("coupon_grants")
	bucketPurchases   = []byte("purchases")
	bucketOutbox      = []byte("outbox_messages") // keyed by sequence
	bucketOutboxIndex = []byte("outbox_index")    // id -> sequence key
)

type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the database file and its buckets.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{
			bucketLots, bucketRewardItems, bucketCoupons, bucketGrants,
			bucketPurchases, bucketOutbox, bucketOutboxIndex,
		} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func idKey(id uuid.UUID) []byte {
	return id[:]
}

func seqKey(n uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, n)
	return k
}

func putJSON(b *bolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

// getJSON reports false when the key is absent.
func getJSON(b *bolt.Bucket, key []byte, v any) (bool, error) {
	data := b.Get(key)
	if data == nil {
		return false, nil
	}
	return true, json.Unmarshal(data, v)
}
