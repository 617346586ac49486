package outbox

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type Scheduler struct {
	dispatcher *Dispatcher
	interval   time.Duration
	logger     *zap.Logger
}

func NewScheduler(d *Dispatcher, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		dispatcher: d,
		interval:   interval,
		logger:     logger,
	}
}

// Run dispatches on every tick until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("outbox scheduler stopped")
			return nil
		case <-ticker.C:
			n, err := s.dispatcher.DispatchOnce(ctx)
			if err != nil {
				s.logger.Error("outbox dispatch error", zap.Error(err))
			} else if n > 0 {
				s.logger.Debug("outbox dispatch processed messages", zap.Int("count", n))
			}
		}
	}
}
