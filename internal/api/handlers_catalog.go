package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/domain"
)

type registerLotRequest struct {
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	Quantity      int             `json:"quantity"`
	SalesStartUtc time.Time       `json:"salesStartUtc"`
	SalesEndUtc   time.Time       `json:"salesEndUtc"`
}

type lotResponse struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	TotalQuantity int             `json:"totalQuantity"`
	Remaining     int             `json:"remaining"`
	SalesStartUtc string          `json:"salesStartUtc"`
	SalesEndUtc   string          `json:"salesEndUtc"`
}

type rewardItemRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Rarity      string          `json:"rarity"`
	Weight      decimal.Decimal `json:"weight"`
}

type rewardItemResponse struct {
	ID          uuid.UUID       `json:"id"`
	LotID       uuid.UUID       `json:"lotId"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Rarity      string          `json:"rarity"`
	Weight      decimal.Decimal `json:"weight"`
}

type couponRequest struct {
	Code          string              `json:"code"`
	Name          string              `json:"name"`
	DiscountType  string              `json:"discountType"`
	DiscountValue decimal.Decimal     `json:"discountValue"`
	MinPurchase   decimal.NullDecimal `json:"minPurchase"`
	MaxDiscount   decimal.NullDecimal `json:"maxDiscount"`
	StartsAtUtc   time.Time           `json:"startsAtUtc"`
	EndsAtUtc     time.Time           `json:"endsAtUtc"`
}

type couponResponse struct {
	ID           uuid.UUID `json:"id"`
	Code         string    `json:"code"`
	DiscountType string    `json:"discountType"`
}

type grantRequest struct {
	UserID uuid.UUID `json:"userId"`
}

type grantResponse struct {
	ID       uuid.UUID `json:"id"`
	CouponID uuid.UUID `json:"couponId"`
	UserID   uuid.UUID `json:"userId"`
	Used     bool      `json:"used"`
}

func toRewardItemResponse(it domain.RewardItem) rewardItemResponse {
	return rewardItemResponse{
		ID:          it.ID,
		LotID:       it.LotID,
		Name:        it.Name,
		Description: it.Description,
		Rarity:      string(it.Rarity),
		Weight:      it.Weight,
	}
}

func toLotResponse(lot *domain.Lot) lotResponse {
	return lotResponse{
		ID:            lot.ID,
		Name:          lot.Name,
		Price:         lot.Price,
		TotalQuantity: lot.TotalQuantity,
		Remaining:     lot.Remaining,
		SalesStartUtc: formatUtc(lot.SalesStartUtc),
		SalesEndUtc:   formatUtc(lot.SalesEndUtc),
	}
}

// rarityOf normaliza el texto; valores desconocidos pasan tal cual y el
// servicio los rechaza.
func rarityOf(s string) domain.Rarity {
	if r, ok := domain.ParseRarity(s); ok {
		return r
	}
	return domain.Rarity(s)
}

// Handler POST /api/lots
func (s *Server) handleRegisterLot(w http.ResponseWriter, r *http.Request) {
	var req registerLotRequest
	if !s.decode(w, r, &req) {
		return
	}
	lot := domain.NewLot(req.Name, req.Description, req.Price, req.Quantity, req.SalesStartUtc, req.SalesEndUtc)
	if err := s.catalog.RegisterLot(r.Context(), lot); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLotResponse(lot), s.logger)
}

// Handler GET /api/lots?onSale=true
func (s *Server) handleListLots(w http.ResponseWriter, r *http.Request) {
	onSale := false
	if v := r.URL.Query().Get("onSale"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: "onSale must be a boolean"}, s.logger)
			return
		}
		onSale = parsed
	}
	lots, err := s.catalog.Lots(r.Context(), onSale)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := make([]lotResponse, 0, len(lots))
	for i := range lots {
		resp = append(resp, toLotResponse(&lots[i]))
	}
	writeJSON(w, http.StatusOK, resp, s.logger)
}

// Handler GET /api/lots/{lotId}/items
func (s *Server) handleListRewardItems(w http.ResponseWriter, r *http.Request) {
	lotID, ok := s.pathUUID(w, r, "lotId")
	if !ok {
		return
	}
	items, err := s.catalog.RewardItems(r.Context(), lotID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := make([]rewardItemResponse, 0, len(items))
	for _, it := range items {
		resp = append(resp, toRewardItemResponse(it))
	}
	writeJSON(w, http.StatusOK, resp, s.logger)
}

// Handler POST /api/lots/{lotId}/items
func (s *Server) handleAddRewardItem(w http.ResponseWriter, r *http.Request) {
	lotID, ok := s.pathUUID(w, r, "lotId")
	if !ok {
		return
	}
	var req rewardItemRequest
	if !s.decode(w, r, &req) {
		return
	}
	item := domain.NewRewardItem(lotID, req.Name, req.Description, rarityOf(req.Rarity), req.Weight)
	if err := s.catalog.AddRewardItem(r.Context(), item); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRewardItemResponse(*item), s.logger)
}

// Handler PUT /api/lots/{lotId}/items/{itemId}
func (s *Server) handleUpdateRewardItem(w http.ResponseWriter, r *http.Request) {
	lotID, ok := s.pathUUID(w, r, "lotId")
	if !ok {
		return
	}
	itemID, ok := s.pathUUID(w, r, "itemId")
	if !ok {
		return
	}
	var req rewardItemRequest
	if !s.decode(w, r, &req) {
		return
	}
	item := domain.NewRewardItem(lotID, req.Name, req.Description, rarityOf(req.Rarity), req.Weight)
	item.ID = itemID
	if err := s.catalog.UpdateRewardItem(r.Context(), item); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRewardItemResponse(*item), s.logger)
}

// Handler POST /api/coupons
func (s *Server) handleCreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if !s.decode(w, r, &req) {
		return
	}
	c := &domain.Coupon{
		Code:          req.Code,
		Name:          req.Name,
		DiscountType:  domain.DiscountType(req.DiscountType),
		DiscountValue: req.DiscountValue,
		MinPurchase:   req.MinPurchase,
		MaxDiscount:   req.MaxDiscount,
		StartsAtUtc:   req.StartsAtUtc.UTC(),
		EndsAtUtc:     req.EndsAtUtc.UTC(),
	}
	if err := s.coupons.CreateCoupon(r.Context(), c); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, couponResponse{ID: c.ID, Code: c.Code, DiscountType: string(c.DiscountType)}, s.logger)
}

// Handler POST /api/coupons/{couponId}/grants
func (s *Server) handleIssueGrant(w http.ResponseWriter, r *http.Request) {
	couponID, ok := s.pathUUID(w, r, "couponId")
	if !ok {
		return
	}
	var req grantRequest
	if !s.decode(w, r, &req) {
		return
	}
	g, err := s.coupons.IssueGrant(r.Context(), couponID, req.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, grantResponse{ID: g.ID, CouponID: g.CouponID, UserID: g.UserID, Used: g.Used}, s.logger)
}
