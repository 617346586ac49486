package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/application"
	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/domain"
)

// Deps agrupa los servicios que expone la capa HTTP.
type Deps struct {
	Purchases *application.PurchaseService
	Cancels   *application.CancelPurchaseService
	Queue     *application.AdmissionQueue
	Janitor   *application.QueueJanitor
	Ledger    *application.InventoryLedger
	Catalog   *application.CatalogService
	Coupons   *application.CouponService
	Gatherer  prometheus.Gatherer
	Logger    *zap.Logger
}

type Server struct {
	purchases *application.PurchaseService
	cancels   *application.CancelPurchaseService
	queue     *application.AdmissionQueue
	janitor   *application.QueueJanitor
	ledger    *application.InventoryLedger
	catalog   *application.CatalogService
	coupons   *application.CouponService
	gatherer  prometheus.Gatherer
	logger    *zap.Logger
}

func NewServer(d Deps) *Server {
	return &Server{
		purchases: d.Purchases,
		cancels:   d.Cancels,
		queue:     d.Queue,
		janitor:   d.Janitor,
		ledger:    d.Ledger,
		catalog:   d.Catalog,
		coupons:   d.Coupons,
		gatherer:  d.Gatherer,
		logger:    d.Logger,
	}
}

// RegisterRoutes registra todas las rutas HTTP en el mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("GET /api/lots", s.handleListLots)
	mux.HandleFunc("POST /api/lots", s.handleRegisterLot)
	mux.HandleFunc("GET /api/lots/{lotId}/inventory", s.handleGetInventory)
	mux.HandleFunc("GET /api/lots/{lotId}/items", s.handleListRewardItems)
	mux.HandleFunc("POST /api/lots/{lotId}/items", s.handleAddRewardItem)
	mux.HandleFunc("PUT /api/lots/{lotId}/items/{itemId}", s.handleUpdateRewardItem)

	mux.HandleFunc("GET /api/lots/{lotId}/queue", s.handleQueueSummary)
	mux.HandleFunc("POST /api/lots/{lotId}/queue/skip", s.handleQueueSkip)
	mux.HandleFunc("POST /api/lots/{lotId}/queue/{userId}", s.handleQueueEnter)
	mux.HandleFunc("GET /api/lots/{lotId}/queue/{userId}", s.handleQueueStatus)
	mux.HandleFunc("DELETE /api/lots/{lotId}/queue/{userId}", s.handleQueueLeave)

	mux.HandleFunc("POST /api/purchases", s.handlePurchase)
	mux.HandleFunc("GET /api/purchases/{purchaseId}", s.handleGetPurchase)
	mux.HandleFunc("POST /api/purchases/{purchaseId}/cancel", s.handleCancelPurchase)
	mux.HandleFunc("GET /api/users/{userId}/purchases", s.handleListUserPurchases)

	mux.HandleFunc("POST /api/coupons", s.handleCreateCoupon)
	mux.HandleFunc("POST /api/coupons/{couponId}/grants", s.handleIssueGrant)
}

type healthResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"}, s.logger)
}

// pathUUID lee un parámetro de ruta; escribe 400 si no es un uuid.
func (s *Server) pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: name + " is invalid"}, s.logger)
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: "malformed json body"}, s.logger)
		return false
	}
	return true
}

func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindStateConflict:
		return http.StatusConflict
	case domain.KindValidation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("kind", string(kind)),
			zap.Error(err))
		writeJSON(w, status, errorResponse{Error: string(domain.ReasonOf(err)), Message: "internal error"}, s.logger)
		return
	}

	var de *domain.Error
	msg := err.Error()
	if errors.As(err, &de) {
		msg = de.Message
	}
	writeJSON(w, status, errorResponse{Error: string(domain.ReasonOf(err)), Message: msg}, s.logger)
}

// Util para escribir JSON
func writeJSON(w http.ResponseWriter, status int, v any, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("writeJSON error", zap.Error(err))
	}
}
