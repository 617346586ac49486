package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/application"
	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/domain"
)

type purchaseRequest struct {
	UserID        uuid.UUID  `json:"userId"`
	LotID         uuid.UUID  `json:"lotId"`
	Quantity      int        `json:"quantity"`
	CouponGrantID *uuid.UUID `json:"couponGrantId,omitempty"`
}

type cancelRequest struct {
	UserID uuid.UUID `json:"userId"`
}

type purchaseResultResponse struct {
	UnitIndex    int       `json:"unitIndex"`
	RewardItemID uuid.UUID `json:"rewardItemId"`
	RewardName   string    `json:"rewardName"`
	Rarity       string    `json:"rarity"`
}

type purchaseResponse struct {
	ID             uuid.UUID                `json:"id"`
	UserID         uuid.UUID                `json:"userId"`
	LotID          uuid.UUID                `json:"lotId"`
	Quantity       int                      `json:"quantity"`
	UnitPrice      decimal.Decimal          `json:"unitPrice"`
	Subtotal       decimal.Decimal          `json:"subtotal"`
	Discount       decimal.Decimal          `json:"discount"`
	FinalTotal     decimal.Decimal          `json:"finalTotal"`
	CouponGrantID  *uuid.UUID               `json:"couponGrantId,omitempty"`
	Status         string                   `json:"status"`
	PurchasedAtUtc string                   `json:"purchasedAtUtc"`
	CancelledAtUtc *string                  `json:"cancelledAtUtc,omitempty"`
	Results        []purchaseResultResponse `json:"results"`
}

// Respuesta de compra en espera: no es un error.
type waitingResponse struct {
	Status string `json:"status"`
	queueStatusResponse
}

func formatUtc(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func toPurchaseResponse(p *domain.Purchase) purchaseResponse {
	resp := purchaseResponse{
		ID:             p.ID,
		UserID:         p.UserID,
		LotID:          p.LotID,
		Quantity:       p.Quantity,
		UnitPrice:      p.UnitPrice,
		Subtotal:       p.Subtotal(),
		Discount:       p.Discount,
		FinalTotal:     p.FinalTotal,
		Status:         string(p.Status),
		PurchasedAtUtc: formatUtc(p.PurchasedAtUtc),
		Results:        make([]purchaseResultResponse, 0, len(p.Results)),
	}
	if p.CouponGrantID.Valid {
		id := p.CouponGrantID.UUID
		resp.CouponGrantID = &id
	}
	if p.CancelledAtUtc != nil {
		sv := formatUtc(*p.CancelledAtUtc)
		resp.CancelledAtUtc = &sv
	}
	for _, r := range p.Results {
		resp.Results = append(resp.Results, purchaseResultResponse{
			UnitIndex:    r.UnitIndex,
			RewardItemID: r.RewardItemID,
			RewardName:   r.RewardName,
			Rarity:       string(r.Rarity),
		})
	}
	return resp
}

// Handler POST /api/purchases
func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.UserID == uuid.Nil || req.LotID == uuid.Nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: "userId and lotId are required"}, s.logger)
		return
	}

	in := application.PurchaseRequest{UserID: req.UserID, LotID: req.LotID, Quantity: req.Quantity}
	if req.CouponGrantID != nil {
		in.CouponGrantID = uuid.NullUUID{UUID: *req.CouponGrantID, Valid: true}
	}

	out, err := s.purchases.Purchase(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !out.Admitted {
		writeJSON(w, http.StatusAccepted, waitingResponse{
			Status:              "WAITING",
			queueStatusResponse: toQueueStatusResponse(req.LotID, req.UserID, out.Queue),
		}, s.logger)
		return
	}
	writeJSON(w, http.StatusCreated, toPurchaseResponse(out.Purchase), s.logger)
}

// Handler GET /api/purchases/{purchaseId}
func (s *Server) handleGetPurchase(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathUUID(w, r, "purchaseId")
	if !ok {
		return
	}
	p, err := s.purchases.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPurchaseResponse(p), s.logger)
}

// Handler POST /api/purchases/{purchaseId}/cancel
func (s *Server) handleCancelPurchase(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathUUID(w, r, "purchaseId")
	if !ok {
		return
	}
	var req cancelRequest
	if !s.decode(w, r, &req) {
		return
	}
	p, err := s.cancels.Cancel(r.Context(), req.UserID, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPurchaseResponse(p), s.logger)
}

// Handler GET /api/users/{userId}/purchases
func (s *Server) handleListUserPurchases(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.pathUUID(w, r, "userId")
	if !ok {
		return
	}
	list, err := s.purchases.ListByUser(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := make([]purchaseResponse, 0, len(list))
	for _, p := range list {
		resp = append(resp, toPurchaseResponse(p))
	}
	writeJSON(w, http.StatusOK, resp, s.logger)
}
