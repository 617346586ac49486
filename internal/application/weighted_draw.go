package application

import (
	"errors"
	"math/rand/v2"
	"sync"

	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/domain"
)

var ErrEmptyPool = errors.New("weighted draw: empty pool")

type Weighted[T any] struct {
	Item   T
	Weight float64
}

// Draw walks pool in order accumulating weights and returns the first
// entry whose running total reaches roll. When the weights sum below roll
// the last entry absorbs the remainder.
func Draw[T any](roll float64, pool []Weighted[T]) (T, error) {
	var zero T
	if len(pool) == 0 {
		return zero, ErrEmptyPool
	}
	cumulative := 0.0
	for _, w := range pool {
		cumulative += w.Weight
		if roll <= cumulative {
			return w.Item, nil
		}
	}
	return pool[len(pool)-1].Item, nil
}

// RewardDrawer picks reward items with a uniform roll in [0, 100).
type RewardDrawer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRewardDrawer uses src when given, otherwise a randomly seeded PCG.
func NewRewardDrawer(src rand.Source) *RewardDrawer {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &RewardDrawer{rng: rand.New(src)}
}

func (d *RewardDrawer) roll() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rng.Float64() * 100
}

func (d *RewardDrawer) Draw(items []domain.RewardItem) (domain.RewardItem, error) {
	pool := make([]Weighted[domain.RewardItem], len(items))
	for i, it := range items {
		pool[i] = Weighted[domain.RewardItem]{Item: it, Weight: it.Weight.InexactFloat64()}
	}
	return Draw(d.roll(), pool)
}
