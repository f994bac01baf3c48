package memory

import (
	"context"
	"strings"
	"time"

	"github.com/leafmarket/pointshop/internal/domain"
)

type idempotencyGuard struct {
	store *Store
}

// NewIdempotencyGuard создаёт in-memory реализацию IdempotencyGuard.
func NewIdempotencyGuard(store *Store) domain.IdempotencyGuard {
	return &idempotencyGuard{store: store}
}

func (g *idempotencyGuard) Admit(_ context.Context, memberID int64, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}
	if memberID == 0 {
		return domain.ErrMemberIDRequired
	}

	g.store.mu.Lock()
	defer g.store.mu.Unlock()

	composite := memberKey(memberID, key)
	if _, exists := g.store.idempotency[composite]; exists {
		return domain.ErrDuplicatePurchase
	}

	g.store.idempotency[composite] = domain.IdempotencyRecord{
		MemberID:  memberID,
		Key:       key,
		CreatedAt: time.Now().UTC(),
	}
	return nil
}

// DeleteOlderThan удаляет записи идемпотентности старше указанного момента.
// limit>0 ограничивает размер одной пачки.
func (g *idempotencyGuard) DeleteOlderThan(_ context.Context, before time.Time, limit int) (int, error) {
	g.store.mu.Lock()
	defer g.store.mu.Unlock()

	deleted := 0
	for composite, record := range g.store.idempotency {
		if limit > 0 && deleted >= limit {
			break
		}
		if !record.CreatedAt.After(before) {
			delete(g.store.idempotency, composite)
			deleted++
		}
	}
	return deleted, nil
}

var _ domain.IdempotencyGuard = (*idempotencyGuard)(nil)
