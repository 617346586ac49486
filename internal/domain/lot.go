package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	maxWeight  = decimal.NewFromInt(100)
	zeroAmount = decimal.Zero
)

// Lot es una caja aleatoria a la venta con stock limitado y ventana de venta.
type Lot struct {
	ID            uuid.UUID
	Name          string
	Description   string
	Price         decimal.Decimal
	TotalQuantity int
	Remaining     int
	SalesStartUtc time.Time
	SalesEndUtc   time.Time
	UpdatedAtUtc  time.Time
}

func NewLot(name, description string, price decimal.Decimal, quantity int, start, end time.Time) *Lot {
	return &Lot{
		ID:            uuid.New(),
		Name:          name,
		Description:   description,
		Price:         price,
		TotalQuantity: quantity,
		Remaining:     quantity,
		SalesStartUtc: start.UTC(),
		SalesEndUtc:   end.UTC(),
		UpdatedAtUtc:  time.Now().UTC(),
	}
}

// InSaleWindow reports whether now falls in [start, end).
func (l *Lot) InSaleWindow(now time.Time) bool {
	return !now.Before(l.SalesStartUtc) && now.Before(l.SalesEndUtc)
}

func (l *Lot) IsOnSale(now time.Time) bool {
	return l.InSaleWindow(now) && l.Remaining > 0
}

func (l *Lot) Validate() error {
	switch {
	case strings.TrimSpace(l.Name) == "":
		return Invalid(ReasonInvalidLot, "lot name is required")
	case l.Price.LessThan(zeroAmount):
		return Invalid(ReasonInvalidLot, "price must not be negative")
	case l.TotalQuantity < 0 || l.Remaining < 0:
		return Invalid(ReasonInvalidLot, "quantities must not be negative")
	case l.Remaining > l.TotalQuantity:
		return Invalid(ReasonInvalidLot, "remaining %d exceeds total %d", l.Remaining, l.TotalQuantity)
	case !l.SalesEndUtc.After(l.SalesStartUtc):
		return Invalid(ReasonInvalidLot, "sales end must be after sales start")
	}
	return nil
}

type Rarity string

const (
	RarityCommon    Rarity = "COMMON"
	RarityRare      Rarity = "RARE"
	RarityEpic      Rarity = "EPIC"
	RarityLegendary Rarity = "LEGENDARY"
)

func ParseRarity(s string) (Rarity, bool) {
	switch r := Rarity(strings.ToUpper(strings.TrimSpace(s))); r {
	case RarityCommon, RarityRare, RarityEpic, RarityLegendary:
		return r, true
	}
	return "", false
}

// RewardItem es una entrada de la tabla de premios de un lote.
// Weight es un porcentaje en (0, 100].
type RewardItem struct {
	ID           uuid.UUID
	LotID        uuid.UUID
	Name         string
	Description  string
	Rarity       Rarity
	Weight       decimal.Decimal
	CreatedAtUtc time.Time
}

func NewRewardItem(lotID uuid.UUID, name, description string, rarity Rarity, weight decimal.Decimal) *RewardItem {
	return &RewardItem{
		ID:           uuid.New(),
		LotID:        lotID,
		Name:         name,
		Description:  description,
		Rarity:       rarity,
		Weight:       weight,
		CreatedAtUtc: time.Now().UTC(),
	}
}

func ValidateWeight(w decimal.Decimal) error {
	if !w.IsPositive() || w.GreaterThan(maxWeight) {
		return Invalid(ReasonInvalidProbability, "weight %s must be in (0, 100]", w.String())
	}
	return nil
}

// ValidateRewardTable checks every weight and that the table sums to at most 100.
func ValidateRewardTable(items []RewardItem) error {
	sum := decimal.Zero
	for _, it := range items {
		if err := ValidateWeight(it.Weight); err != nil {
			return err
		}
		sum = sum.Add(it.Weight)
	}
	if sum.GreaterThan(maxWeight) {
		return Invalid(ReasonProbabilityOverflow, "weights sum to %s, above 100", sum.String())
	}
	return nil
}

// CheckWeightChange validates the table that results from adding candidate,
// or replacing the existing entry with the same ID.
func CheckWeightChange(existing []RewardItem, candidate RewardItem) error {
	next := make([]RewardItem, 0, len(existing)+1)
	for _, it := range existing {
		if it.ID == candidate.ID {
			continue
		}
		next = append(next, it)
	}
	next = append(next, candidate)
	return ValidateRewardTable(next)
}
