package messaging

import (
	"context"
	"fmt"

	messaging "github.com/rodolfodevapp/eventshop-messaging-go/rabbitmq"

	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/application"
)

const (
	ProducerExchange    = "randombox.events"
	CatalogExchange     = "catalog.events"
	catalogQueuePrefix  = "randombox.catalog-events.v1"
	producerQueuePrefix = "randombox.dispatcher.v1"
)

type EventBuses struct {
	CatalogConsumer *messaging.RabbitMqEventBus
	Producer        *messaging.RabbitMqEventBus
}

// Consumer para catalog.events + Producer para randombox.events
func NewEventBuses(rabbitUri string) EventBuses {
	return EventBuses{
		CatalogConsumer: newBus(rabbitUri, CatalogExchange, catalogQueuePrefix),
		Producer:        newBus(rabbitUri, ProducerExchange, producerQueuePrefix),
	}
}

func newBus(uri, exchange, queuePrefix string) *messaging.RabbitMqEventBus {
	return messaging.NewRabbitMqEventBus(messaging.RabbitMqOptions{
		URI:          uri,
		ExchangeName: exchange,
		QueuePrefix:  queuePrefix,
		Prefetch:     32,
		RetryDelayMs: 30000,
	}, nil, nil)
}

func RegisterCatalogSubscriptions(
	ctx context.Context,
	bus *messaging.RabbitMqEventBus,
	lotCreated application.EventHandler,
	stockEdited application.EventHandler,
) error {
	bus.Subscribe(application.EventLotCreated, lotCreated)
	bus.Subscribe(application.EventLotStockEdited, stockEdited)

	if err := bus.StartConsumers(ctx); err != nil {
		return fmt.Errorf("start catalog consumers: %w", err)
	}
	return nil
}
