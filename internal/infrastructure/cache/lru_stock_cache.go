package cache

import (
	"fmt"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/domain"
)

// LRUStockCache keeps remaining counts for the hottest lots. An evicted
// entry is re-seeded from the durable store by the ledger on next access.
type LRUStockCache struct {
	entries *lru.Cache[uuid.UUID, int]
}

var _ domain.StockCache = (*LRUStockCache)(nil)

func NewLRUStockCache(size int) (*LRUStockCache, error) {
	entries, err := lru.New[uuid.UUID, int](size)
	if err != nil {
		return nil, fmt.Errorf("stock cache: %w", err)
	}
	return &LRUStockCache{entries: entries}, nil
}

func (c *LRUStockCache) Get(lotID uuid.UUID) (int, bool) {
	return c.entries.Get(lotID)
}

func (c *LRUStockCache) Set(lotID uuid.UUID, remaining int) {
	c.entries.Add(lotID, remaining)
}

// SeedIfAbsent reports whether the value was stored.
func (c *LRUStockCache) SeedIfAbsent(lotID uuid.UUID, remaining int) bool {
	present, _ := c.entries.ContainsOrAdd(lotID, remaining)
	return !present
}

func (c *LRUStockCache) Invalidate(lotID uuid.UUID) {
	c.entries.Remove(lotID)
}
