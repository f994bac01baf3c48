package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/leafmarket/pointshop/internal/domain"
)

const (
	// Скриптовые исходы: счётчик отсутствует / остатка не хватает.
	scriptKeyMissing   = -1
	scriptInsufficient = -2
)

// reserveScript атомарно проверяет и уменьшает счётчик остатка.
// Раздельные GET и DECRBY позволили бы двум конкурентным вызовам обоим
// увидеть достаточный остаток, поэтому проверка и декремент выполняются
// одним серверным скриптом.
var reserveScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if current == false then
  return -1
end
current = tonumber(current)
local qty = tonumber(ARGV[1])
if current < qty then
  return -2
end
return redis.call('DECRBY', KEYS[1], qty)
`)

// releaseScript возвращает резерв только при живом ключе,
// чтобы не воскрешать истёкшие счётчики акций.
var releaseScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
return redis.call('INCRBY', KEYS[1], ARGV[1])
`)

// RedisStock — Redis-реализация StockReservationCache.
type RedisStock struct {
	client *redis.Client
	logger *log.Entry
}

// NewRedisStock подключается к Redis и проверяет доступность сервера.
func NewRedisStock(ctx context.Context, addr, password string, db int) (*RedisStock, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisStock{
		client: client,
		logger: log.WithField("component", "stock-cache"),
	}, nil
}

// Reserve атомарно резервирует qty единиц по ключу.
func (s *RedisStock) Reserve(ctx context.Context, key string, qty int64) (domain.StockReservation, error) {
	if qty <= 0 {
		return domain.StockReservation{}, domain.ErrInvalidQuantity
	}

	result, err := reserveScript.Run(ctx, s.client, []string{key}, qty).Int64()
	if err != nil {
		return domain.StockReservation{}, fmt.Errorf("run reserve script: %w", err)
	}

	switch result {
	case scriptKeyMissing:
		return domain.StockReservation{Outcome: domain.ReserveKeyMissing}, nil
	case scriptInsufficient:
		return domain.StockReservation{Outcome: domain.ReserveInsufficient}, nil
	default:
		return domain.StockReservation{Outcome: domain.ReserveOK, Remaining: result}, nil
	}
}

// Release возвращает qty единиц в счётчик после неуспешного расчёта.
func (s *RedisStock) Release(ctx context.Context, key string, qty int64) error {
	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}

	result, err := releaseScript.Run(ctx, s.client, []string{key}, qty).Int64()
	if err != nil {
		return fmt.Errorf("run release script: %w", err)
	}
	if result == scriptKeyMissing {
		return domain.ErrStockKeyNotFound
	}

	s.logger.WithFields(log.Fields{
		"key":       key,
		"qty":       qty,
		"remaining": result,
	}).Debug("reservation released")

	return nil
}

// Prime выставляет счётчик из авторитетного остатка системы записи.
func (s *RedisStock) Prime(ctx context.Context, key string, count int64, ttl time.Duration) error {
	if count < 0 {
		return domain.ErrAmountNegative
	}
	if err := s.client.Set(ctx, key, count, ttl).Err(); err != nil {
		return fmt.Errorf("prime stock counter: %w", err)
	}

	s.logger.WithFields(log.Fields{
		"key":   key,
		"count": count,
		"ttl":   ttl,
	}).Info("stock counter primed")

	return nil
}

// Ping проверяет доступность Redis; используется health-чеком.
func (s *RedisStock) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close закрывает подключение к Redis.
func (s *RedisStock) Close() error {
	return s.client.Close()
}

var _ domain.StockReservationCache = (*RedisStock)(nil)
