package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/application"
)

type queueStatusResponse struct {
	LotID                uuid.UUID `json:"lotId"`
	UserID               uuid.UUID `json:"userId"`
	Position             int       `json:"position"`
	WaitingCount         int       `json:"waitingCount"`
	EstimatedWaitSeconds int64     `json:"estimatedWaitSeconds"`
}

type queueSummaryResponse struct {
	LotID        uuid.UUID  `json:"lotId"`
	WaitingCount int        `json:"waitingCount"`
	HeadUserID   *uuid.UUID `json:"headUserId,omitempty"`
}

type inventoryResponse struct {
	LotID     uuid.UUID `json:"lotId"`
	Remaining int       `json:"remaining"`
}

func toQueueStatusResponse(lotID, userID uuid.UUID, st application.QueueStatus) queueStatusResponse {
	return queueStatusResponse{
		LotID:                lotID,
		UserID:               userID,
		Position:             st.Position,
		WaitingCount:         st.WaitingCount,
		EstimatedWaitSeconds: int64(st.EstimatedWait.Seconds()),
	}
}

func (s *Server) lotAndUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	lotID, ok := s.pathUUID(w, r, "lotId")
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	userID, ok := s.pathUUID(w, r, "userId")
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	return lotID, userID, true
}

// Handler GET /api/lots/{lotId}/inventory
func (s *Server) handleGetInventory(w http.ResponseWriter, r *http.Request) {
	lotID, ok := s.pathUUID(w, r, "lotId")
	if !ok {
		return
	}
	n, err := s.ledger.Get(r.Context(), lotID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inventoryResponse{LotID: lotID, Remaining: n}, s.logger)
}

// Handler POST /api/lots/{lotId}/queue/{userId}
func (s *Server) handleQueueEnter(w http.ResponseWriter, r *http.Request) {
	lotID, userID, ok := s.lotAndUser(w, r)
	if !ok {
		return
	}
	// sólo se hace fila para lotes conocidos
	if _, err := s.ledger.Get(r.Context(), lotID); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.queue.Enqueue(lotID, userID)
	st, _ := s.queue.Status(lotID, userID)
	writeJSON(w, http.StatusOK, toQueueStatusResponse(lotID, userID, st), s.logger)
}

// Handler GET /api/lots/{lotId}/queue/{userId}
func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	lotID, userID, ok := s.lotAndUser(w, r)
	if !ok {
		return
	}
	st, queued := s.queue.Status(lotID, userID)
	if !queued {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_queued", Message: "user is not in this queue"}, s.logger)
		return
	}
	writeJSON(w, http.StatusOK, toQueueStatusResponse(lotID, userID, st), s.logger)
}

// Handler DELETE /api/lots/{lotId}/queue/{userId}
func (s *Server) handleQueueLeave(w http.ResponseWriter, r *http.Request) {
	lotID, userID, ok := s.lotAndUser(w, r)
	if !ok {
		return
	}
	if !s.queue.Remove(lotID, userID) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not_queued", Message: "user is not in this queue"}, s.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Handler GET /api/lots/{lotId}/queue
func (s *Server) handleQueueSummary(w http.ResponseWriter, r *http.Request) {
	lotID, ok := s.pathUUID(w, r, "lotId")
	if !ok {
		return
	}
	resp := queueSummaryResponse{LotID: lotID, WaitingCount: s.queue.WaitingCount(lotID)}
	if head, ok := s.queue.Head(lotID); ok {
		resp.HeadUserID = &head
	}
	writeJSON(w, http.StatusOK, resp, s.logger)
}

// Handler POST /api/lots/{lotId}/queue/skip
func (s *Server) handleQueueSkip(w http.ResponseWriter, r *http.Request) {
	lotID, ok := s.pathUUID(w, r, "lotId")
	if !ok {
		return
	}
	resp := queueSummaryResponse{LotID: lotID}
	if next, ok := s.janitor.Skip(r.Context(), lotID); ok {
		resp.HeadUserID = &next
	}
	resp.WaitingCount = s.queue.WaitingCount(lotID)
	writeJSON(w, http.StatusOK, resp, s.logger)
}
