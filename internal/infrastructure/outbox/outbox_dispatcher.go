package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rodolfodevapp/eventshop-messaging-go/core/abstractions"
	"github.com/rodolfodevapp/eventshop-messaging-go/core/primitives"
	"go.uber.org/zap"

	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/domain"
	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/observability"
)

// Dispatcher publishes pending outbox rows as integration envelopes.
// A row is retried until it reaches maxRetry failed attempts.
type Dispatcher struct {
	repo      domain.OutboxRepository
	eventBus  abstractions.EventBus
	maxRetry  int
	batchSize int
	now       func() time.Time
	logger    *zap.Logger
	metrics   *observability.Metrics
}

func NewDispatcher(
	repo domain.OutboxRepository,
	eventBus abstractions.EventBus,
	maxRetry, batchSize int,
	logger *zap.Logger,
	metrics *observability.Metrics,
) *Dispatcher {
	return &Dispatcher{
		repo:      repo,
		eventBus:  eventBus,
		maxRetry:  maxRetry,
		batchSize: batchSize,
		now:       time.Now,
		logger:    logger,
		metrics:   metrics,
	}
}

func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	msgs, err := d.repo.GetPendingBatch(ctx, d.maxRetry, d.batchSize)
	if err != nil {
		return 0, err
	}

	processed := 0
	for i := range msgs {
		msg := &msgs[i]

		if !json.Valid([]byte(msg.PayloadJSON)) {
			d.logger.Warn("outbox payload is not valid json",
				zap.String("id", msg.ID.String()),
				zap.String("type", msg.Type))
			msg.RetryCount = d.maxRetry
			d.save(ctx, msg)
			d.metrics.OutboxMessage("failed")
			continue
		}

		// Envelope estándar; el tipo es también la routing key
		envelope := primitives.NewIntegrationEventEnvelope(msg.Type, msg.PayloadJSON)
		envelope.SetRoutingKey(msg.Type)

		if err := d.eventBus.Publish(ctx, &envelope); err != nil {
			msg.RetryCount++
			d.metrics.OutboxMessage("failed")
			d.logger.Warn("outbox publish failed",
				zap.String("id", msg.ID.String()),
				zap.String("type", msg.Type),
				zap.Int("retry", msg.RetryCount),
				zap.Error(err))
		} else {
			now := d.now().UTC().Unix()
			msg.ProcessedAtUtc = &now
			processed++
			d.metrics.OutboxMessage("published")
		}

		d.save(ctx, msg)
	}

	return processed, nil
}

func (d *Dispatcher) save(ctx context.Context, msg *domain.OutboxMessage) {
	if err := d.repo.Save(ctx, *msg); err != nil {
		d.logger.Error("outbox save failed", zap.String("id", msg.ID.String()), zap.Error(err))
	}
}
