package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/config"
	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/domain"
	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/infrastructure/boltstore"
	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/infrastructure/db"
	"github.com/RodolfoDevApp/eventshop-randombox-go/internal/infrastructure/lock"
)

// backend agrupa los repositorios y el locker del driver elegido.
type backend struct {
	lots      domain.LotRepository
	coupons   domain.CouponRepository
	purchases domain.PurchaseRepository
	outbox    domain.OutboxRepository
	locker    domain.LotLocker
	close     func()
}

func openBackend(ctx context.Context, cfg config.Config, logger *zap.Logger) (*backend, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		return openPostgres(ctx, cfg, logger)
	case config.StoreBolt:
		return openBolt(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func openPostgres(ctx context.Context, cfg config.Config, logger *zap.Logger) (*backend, error) {
	pool, err := pgxpool.New(ctx, cfg.PgDsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	if err := db.EnsureSchema(ctx, sqlDB); err != nil {
		sqlDB.Close()
		pool.Close()
		return nil, err
	}
	logger.Info("postgres store ready")

	return &backend{
		lots:      db.NewPgLotRepository(sqlDB),
		coupons:   db.NewPgCouponRepository(sqlDB),
		purchases: db.NewPgPurchaseRepository(sqlDB),
		outbox:    db.NewPgOutboxRepository(sqlDB),
		locker:    lock.NewAdvisoryLocker(pool, logger),
		close: func() {
			sqlDB.Close()
			pool.Close()
		},
	}, nil
}

// openBolt sirve a un solo nodo; el lock es local al proceso.
func openBolt(cfg config.Config, logger *zap.Logger) (*backend, error) {
	store, err := boltstore.Open(cfg.BoltPath)
	if err != nil {
		return nil, fmt.Errorf("open bolt store %s: %w", cfg.BoltPath, err)
	}
	logger.Info("bolt store ready", zap.String("path", cfg.BoltPath))

	return &backend{
		lots:      boltstore.NewLotRepository(store),
		coupons:   boltstore.NewCouponRepository(store),
		purchases: boltstore.NewPurchaseRepository(store),
		outbox:    boltstore.NewOutboxRepository(store),
		locker:    lock.NewLocalLocker(),
		close: func() {
			if err := store.Close(); err != nil {
				logger.Warn("bolt close failed", zap.Error(err))
			}
		},
	}, nil
}
