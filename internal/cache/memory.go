package cache

import (
	"context"
	"sync"
	"time"

	"github.com/leafmarket/pointshop/internal/domain"
)

type memoryCounter struct {
	value     int64
	expiresAt time.Time
}

func (c memoryCounter) expired(now time.Time) bool {
	return !c.expiresAt.IsZero() && now.After(c.expiresAt)
}

// MemoryStock — in-memory реализация StockReservationCache для тестов
// и запуска без Redis. Семантика повторяет Lua-скрипты Redis-реализации.
type MemoryStock struct {
	mu       sync.Mutex
	counters map[string]memoryCounter
}

// NewMemoryStock создаёт пустой in-memory кеш остатков.
func NewMemoryStock() *MemoryStock {
	return &MemoryStock{counters: make(map[string]memoryCounter)}
}

func (s *MemoryStock) Reserve(_ context.Context, key string, qty int64) (domain.StockReservation, error) {
	if qty <= 0 {
		return domain.StockReservation{}, domain.ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	counter, ok := s.counters[key]
	if !ok || counter.expired(time.Now()) {
		delete(s.counters, key)
		return domain.StockReservation{Outcome: domain.ReserveKeyMissing}, nil
	}
	if counter.value < qty {
		return domain.StockReservation{Outcome: domain.ReserveInsufficient}, nil
	}

	counter.value -= qty
	s.counters[key] = counter
	return domain.StockReservation{Outcome: domain.ReserveOK, Remaining: counter.value}, nil
}

func (s *MemoryStock) Release(_ context.Context, key string, qty int64) error {
	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	counter, ok := s.counters[key]
	if !ok || counter.expired(time.Now()) {
		delete(s.counters, key)
		return domain.ErrStockKeyNotFound
	}

	counter.value += qty
	s.counters[key] = counter
	return nil
}

func (s *MemoryStock) Prime(_ context.Context, key string, count int64, ttl time.Duration) error {
	if count < 0 {
		return domain.ErrAmountNegative
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.counters[key] = memoryCounter{value: count, expiresAt: expiresAt}
	return nil
}

// Value возвращает текущее значение счётчика; вспомогательный метод тестов.
func (s *MemoryStock) Value(key string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counter, ok := s.counters[key]
	if !ok || counter.expired(time.Now()) {
		return 0, false
	}
	return counter.value, true
}

var _ domain.StockReservationCache = (*MemoryStock)(nil)
