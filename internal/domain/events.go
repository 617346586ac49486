package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/rodolfodevapp/eventshop-messaging-go/core/primitives"
)

// =========== Payloads de eventos entrantes ===========

// RandomBoxCreated (desde catalog.events)
type LotCreatedPayload struct {
	LotID        uuid.UUID `json:"randomBoxId"`
	Name         string    `json:"name"`
	Quantity     int       `json:"quantity"`
	CreatedAtUtc time.Time `json:"createdAtUtc"`
}

// RandomBoxStockEdited (desde catalog.events): el catálogo tocó el stock por fuera.
type LotStockEditedPayload struct {
	LotID  uuid.UUID `json:"randomBoxId"`
	Reason string    `json:"reason"`
}

// =========== Eventos salientes ===========

type NotificationKind string

const (
	NotifyPurchaseSuccess   NotificationKind = "PURCHASE_SUCCESS"
	NotifyPurchaseCancelled NotificationKind = "PURCHASE_CANCELLED"
	NotifyQueueReady        NotificationKind = "QUEUE_READY"
	NotifyQueueExpired      NotificationKind = "QUEUE_EXPIRED"
)

type NotificationEvent struct {
	primitives.BaseEvent
	UserID        uuid.UUID         `json:"userId"`
	Kind          NotificationKind  `json:"kind"`
	Data          map[string]string `json:"data"`
	OccurredAtUtc time.Time         `json:"occurredAtUtc"`
}

func NewNotificationEvent(userID uuid.UUID, kind NotificationKind, data map[string]string) *NotificationEvent {
	ev := &NotificationEvent{
		BaseEvent:     primitives.NewBaseEvent(),
		UserID:        userID,
		Kind:          kind,
		Data:          data,
		OccurredAtUtc: time.Now().UTC(),
	}
	ev.SetRoutingKey("UserNotification")
	return ev
}

// LotStockAdjusted (para Catalog, Search, etc.)
type LotStockAdjustedEvent struct {
	primitives.BaseEvent
	LotID         uuid.UUID `json:"randomBoxId"`
	Delta         int       `json:"delta"`
	Reason        string    `json:"reason"`
	OccurredAtUtc time.Time `json:"occurredAtUtc"`
}

func NewLotStockAdjustedEvent(lotID uuid.UUID, delta int, reason string) *LotStockAdjustedEvent {
	ev := &LotStockAdjustedEvent{
		BaseEvent:     primitives.NewBaseEvent(),
		LotID:         lotID,
		Delta:         delta,
		Reason:        reason,
		OccurredAtUtc: time.Now().UTC(),
	}
	ev.SetRoutingKey("RandomBoxStockAdjusted")
	return ev
}
