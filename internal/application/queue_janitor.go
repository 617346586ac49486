package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/domain"
)

// QueueJanitor moves a line along when its head sits at position 0 for
// too long without buying.
type QueueJanitor struct {
	queue       *AdmissionQueue
	notifier    domain.Notifier
	headTimeout time.Duration
	interval    time.Duration
	logger      *zap.Logger
}

func NewQueueJanitor(
	queue *AdmissionQueue,
	notifier domain.Notifier,
	headTimeout, interval time.Duration,
	logger *zap.Logger,
) *QueueJanitor {
	return &QueueJanitor{
		queue:       queue,
		notifier:    notifier,
		headTimeout: headTimeout,
		interval:    interval,
		logger:      logger,
	}
}

func (j *QueueJanitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("queue janitor stopped")
			return nil
		case <-ticker.C:
			if n := j.SweepOnce(ctx); n > 0 {
				j.logger.Info("expired stalled queue heads", zap.Int("count", n))
			}
		}
	}
}

func (j *QueueJanitor) SweepOnce(ctx context.Context) int {
	expired := 0
	for _, h := range j.queue.StalledHeads(j.headTimeout) {
		next, hasNext, ok := j.queue.ExpireHead(h.LotID, h.UserID)
		if !ok {
			continue
		}
		expired++
		j.handOff(ctx, h.LotID, h.UserID, next, hasNext)
	}
	return expired
}

// Skip expires the current head right away and returns who is next.
func (j *QueueJanitor) Skip(ctx context.Context, lotID uuid.UUID) (uuid.UUID, bool) {
	head, ok := j.queue.Head(lotID)
	if !ok {
		return uuid.Nil, false
	}
	next, hasNext, expired := j.queue.ExpireHead(lotID, head)
	if !expired {
		return uuid.Nil, false
	}
	j.handOff(ctx, lotID, head, next, hasNext)
	return next, hasNext
}

func (j *QueueJanitor) handOff(ctx context.Context, lotID, expired, next uuid.UUID, hasNext bool) {
	data := map[string]string{"lotId": lotID.String()}
	if err := j.notifier.Notify(ctx, expired, domain.NotifyQueueExpired, data); err != nil {
		j.logger.Warn("notification dropped", zap.String("userId", expired.String()), zap.Error(err))
	}
	if !hasNext {
		return
	}
	if err := j.notifier.Notify(ctx, next, domain.NotifyQueueReady, data); err != nil {
		j.logger.Warn("notification dropped", zap.String("userId", next.String()), zap.Error(err))
	}
}
