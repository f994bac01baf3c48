package memory

import (
	"context"
	"time"

	"github.com/leafmarket/pointshop/internal/domain"
)

type statusRepository struct {
	store *Store
}

// NewStatusRepository создаёт in-memory реализацию PurchaseStatusRepository.
func NewStatusRepository(store *Store) domain.PurchaseStatusRepository {
	return &statusRepository{store: store}
}

func (r *statusRepository) MarkPending(_ context.Context, memberID int64, key string) error {
	return r.mark(memberID, key, domain.PurchaseStatusPending, "")
}

func (r *statusRepository) MarkSettled(_ context.Context, memberID int64, key string) error {
	return r.mark(memberID, key, domain.PurchaseStatusSettled, "")
}

func (r *statusRepository) MarkFailed(_ context.Context, memberID int64, key, reason string) (bool, error) {
	if key == "" {
		return false, domain.ErrIdempotencyKeyRequired
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	now := time.Now().UTC()
	composite := memberKey(memberID, key)

	record, ok := r.store.statuses[composite]
	if ok && record.Status == domain.PurchaseStatusFailed {
		// Повторная неуспешная попытка: переход уже состоялся.
		return false, nil
	}
	if !ok {
		record = domain.PurchaseStatusRecord{
			MemberID:       memberID,
			IdempotencyKey: key,
			CreatedAt:      now,
		}
	}
	record.Status = domain.PurchaseStatusFailed
	record.Reason = reason
	record.UpdatedAt = now

	r.store.statuses[composite] = record
	return true, nil
}

func (r *statusRepository) Get(_ context.Context, memberID int64, key string) (domain.PurchaseStatusRecord, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	record, ok := r.store.statuses[memberKey(memberID, key)]
	if !ok {
		return domain.PurchaseStatusRecord{}, domain.ErrPurchaseStatusNotFound
	}
	return record, nil
}

func (r *statusRepository) mark(memberID int64, key string, status domain.PurchaseStatus, reason string) error {
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	now := time.Now().UTC()
	composite := memberKey(memberID, key)

	record, ok := r.store.statuses[composite]
	if !ok {
		record = domain.PurchaseStatusRecord{
			MemberID:       memberID,
			IdempotencyKey: key,
			CreatedAt:      now,
		}
	}
	record.Status = status
	record.Reason = reason
	record.UpdatedAt = now

	r.store.statuses[composite] = record
	return nil
}

var _ domain.PurchaseStatusRepository = (*statusRepository)(nil)
