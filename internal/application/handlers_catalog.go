package application

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rodolfodevapp/eventshop-messaging-go/core/primitives"
	"go.uber.org/zap"

	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/domain"
)

type EventHandler interface {
	Handle(ctx context.Context, ev primitives.Event) error
}

const (
	EventLotCreated     = "RandomBoxCreated"
	EventLotStockEdited = "RandomBoxStockEdited"
)

// decodeEnvelope returns false for anything that is not an envelope of
// the wanted type; those are acknowledged and dropped.
func decodeEnvelope(ev primitives.Event, wantType string, dst any, logger *zap.Logger) bool {
	env, ok := ev.(*primitives.IntegrationEventEnvelope)
	if !ok {
		logger.Warn("unexpected event type", zap.String("go_type", fmt.Sprintf("%T", ev)))
		return false
	}
	if env.Type != wantType {
		return false
	}
	if err := json.Unmarshal([]byte(env.PayloadJSON), dst); err != nil {
		logger.Warn("failed to unmarshal payload", zap.String("type", env.Type), zap.Error(err))
		return false
	}
	return true
}

// LotCreatedHandler seeds the stock cache for a newly published lot.
type LotCreatedHandler struct {
	ledger *InventoryLedger
	logger *zap.Logger
}

func NewLotCreatedHandler(ledger *InventoryLedger, logger *zap.Logger) *LotCreatedHandler {
	return &LotCreatedHandler{ledger: ledger, logger: logger}
}

func (h *LotCreatedHandler) Handle(ctx context.Context, ev primitives.Event) error {
	var payload domain.LotCreatedPayload
	if !decodeEnvelope(ev, EventLotCreated, &payload, h.logger) {
		return nil
	}
	if payload.LotID == uuid.Nil {
		h.logger.Warn("RandomBoxCreated without randomBoxId")
		return nil
	}

	h.logger.Info("seeding stock for new lot",
		zap.String("lotId", payload.LotID.String()),
		zap.Int("quantity", payload.Quantity))

	err := h.ledger.Initialize(ctx, payload.LotID)
	if domain.IsKind(err, domain.KindNotFound) {
		// el lote todavía no es visible; se sembrará en el primer acceso
		h.logger.Warn("lot not visible yet", zap.String("lotId", payload.LotID.String()))
		return nil
	}
	return err
}

// LotStockEditedHandler re-reads the durable count after the catalog
// edits stock outside the ledger.
type LotStockEditedHandler struct {
	ledger *InventoryLedger
	logger *zap.Logger
}

func NewLotStockEditedHandler(ledger *InventoryLedger, logger *zap.Logger) *LotStockEditedHandler {
	return &LotStockEditedHandler{ledger: ledger, logger: logger}
}

func (h *LotStockEditedHandler) Handle(ctx context.Context, ev primitives.Event) error {
	var payload domain.LotStockEditedPayload
	if !decodeEnvelope(ev, EventLotStockEdited, &payload, h.logger) {
		return nil
	}
	if payload.LotID == uuid.Nil {
		h.logger.Warn("RandomBoxStockEdited without randomBoxId")
		return nil
	}

	ok, err := h.ledger.Reconcile(ctx, payload.LotID)
	if err != nil {
		if domain.IsKind(err, domain.KindNotFound) {
			return nil
		}
		return err
	}
	if !ok {
		// el bus reintenta con RetryDelayMs
		return fmt.Errorf("reconcile lot %s: %w", payload.LotID, errLockUnavailable)
	}
	h.logger.Info("stock reconciled",
		zap.String("lotId", payload.LotID.String()),
		zap.String("reason", payload.Reason))
	return nil
}
