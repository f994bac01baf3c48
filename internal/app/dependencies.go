package app

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/leafmarket/pointshop/internal/cache"
	"github.com/leafmarket/pointshop/internal/domain"
	"github.com/leafmarket/pointshop/internal/health"
	"github.com/leafmarket/pointshop/internal/storage/memory"
	"github.com/leafmarket/pointshop/internal/storage/postgres"
)

// Dependencies содержит хранилище и кеш, общие для сервиса допуска и воркера.
type Dependencies struct {
	Members     domain.MemberRepository
	Products    domain.ProductRepository
	Timedeals   domain.TimedealRepository
	Guard       domain.IdempotencyGuard
	Statuses    domain.PurchaseStatusRepository
	Audit       domain.AuditLogRepository
	Settlements domain.SettlementStore
	Stock       domain.StockReservationCache

	Logger *log.Entry

	pgStore    *postgres.Store
	redisStock *cache.RedisStock
}

// NewDependencies собирает зависимости по выбранным драйверам.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps := &Dependencies{Logger: logger}

	switch cfg.StorageDriver {
	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres storage driver requires a DSN")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres storage: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
		}
		deps.pgStore = store
		deps.Members = postgres.NewMemberRepository(store)
		deps.Products = postgres.NewProductRepository(store)
		deps.Timedeals = postgres.NewTimedealRepository(store)
		deps.Guard = postgres.NewIdempotencyGuard(store)
		deps.Statuses = postgres.NewStatusRepository(store)
		deps.Audit = postgres.NewAuditLogRepository(store)
		deps.Settlements = postgres.NewSettlementStore(store)
		logger.Info("postgres storage initialized")
	case StorageDriverMemory:
		store := memory.NewStore()
		deps.Members = memory.NewMemberRepository(store)
		deps.Products = memory.NewProductRepository(store)
		deps.Timedeals = memory.NewTimedealRepository(store)
		deps.Guard = memory.NewIdempotencyGuard(store)
		deps.Statuses = memory.NewStatusRepository(store)
		deps.Audit = memory.NewAuditLogRepository(store)
		deps.Settlements = memory.NewSettlementStore(store)
		logger.Info("in-memory storage initialized")
	default:
		return nil, fmt.Errorf("unsupported storage driver: %q", cfg.StorageDriver)
	}

	switch cfg.CacheDriver {
	case CacheDriverRedis:
		stock, err := cache.NewRedisStock(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("connect redis stock cache: %w", err)
		}
		deps.redisStock = stock
		deps.Stock = stock
		logger.WithField("addr", cfg.RedisAddr).Info("redis stock cache initialized")
	case CacheDriverMemory:
		deps.Stock = cache.NewMemoryStock()
		logger.Info("in-memory stock cache initialized")
	default:
		deps.Close()
		return nil, fmt.Errorf("unsupported cache driver: %q", cfg.CacheDriver)
	}

	return deps, nil
}

// RegisterHealthCheckers добавляет проверки доступности хранилищ.
func (d *Dependencies) RegisterHealthCheckers(handler *health.Handler) {
	if d.pgStore != nil {
		handler.RegisterChecker("postgres", health.NewPingChecker("postgres", d.pgStore, 2*time.Second))
	}
	if d.redisStock != nil {
		handler.RegisterChecker("redis", health.NewPingChecker("redis", d.redisStock, 2*time.Second))
	}
}

// PrimeStock восстанавливает кеш-счётчики остатков из системы записи.
// Счётчик товара живёт без TTL; счётчик акции — до конца окна плюс запас.
func (d *Dependencies) PrimeStock(ctx context.Context, margin time.Duration) error {
	now := time.Now()

	products, err := d.Products.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active products: %w", err)
	}
	for _, product := range products {
		if err := d.Stock.Prime(ctx, cache.ProductStockKey(product.ID), product.Stock, 0); err != nil {
			return fmt.Errorf("prime product %d counter: %w", product.ID, err)
		}
	}

	deals, err := d.Timedeals.ListCurrent(ctx, now)
	if err != nil {
		return fmt.Errorf("list current timedeals: %w", err)
	}
	for _, deal := range deals {
		ttl := deal.WindowEnd.Sub(now) + margin
		if err := d.Stock.Prime(ctx, cache.DealStockKey(deal.ID), deal.Stock, ttl); err != nil {
			return fmt.Errorf("prime deal %d counter: %w", deal.ID, err)
		}
	}

	d.Logger.WithFields(log.Fields{
		"products": len(products),
		"deals":    len(deals),
	}).Info("stock counters primed")
	return nil
}

// Close освобождает подключения к внешним хранилищам.
func (d *Dependencies) Close() {
	if d.redisStock != nil {
		if err := d.redisStock.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close redis client")
		}
		d.redisStock = nil
	}
	if d.pgStore != nil {
		if err := d.pgStore.Close(); err != nil {
			d.Logger.WithError(err).Warn("failed to close postgres store")
		}
		d.pgStore = nil
	}
}
