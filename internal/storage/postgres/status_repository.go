package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/leafmarket/pointshop/internal/domain"
)

type statusRepository struct {
	db *sql.DB
}

// NewStatusRepository создаёт PostgreSQL-реализацию PurchaseStatusRepository.
func NewStatusRepository(store *Store) domain.PurchaseStatusRepository {
	return &statusRepository{db: store.DB()}
}

func (r *statusRepository) MarkPending(ctx context.Context, memberID int64, key string) error {
	return r.upsert(ctx, memberID, key, domain.PurchaseStatusPending, "")
}

func (r *statusRepository) MarkSettled(ctx context.Context, memberID int64, key string) error {
	return r.upsert(ctx, memberID, key, domain.PurchaseStatusSettled, "")
}

func (r *statusRepository) MarkFailed(ctx context.Context, memberID int64, key, reason string) (bool, error) {
	if key == "" {
		return false, domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	// Условный upsert: повторный MarkFailed не затрагивает строк,
	// поэтому RowsAffected однозначно выделяет первый переход в FAILED.
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO purchase_status (member_id, idempotency_key, status, reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (member_id, idempotency_key)
		DO UPDATE SET status = EXCLUDED.status,
		              reason = EXCLUDED.reason,
		              updated_at = EXCLUDED.updated_at
		WHERE purchase_status.status <> EXCLUDED.status
	`, memberID, key, string(domain.PurchaseStatusFailed), reason, now)
	if err != nil {
		return false, fmt.Errorf("mark purchase status failed: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark purchase status failed: %w", err)
	}
	return affected > 0, nil
}

func (r *statusRepository) Get(ctx context.Context, memberID int64, key string) (domain.PurchaseStatusRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		record    domain.PurchaseStatusRecord
		statusRaw string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT member_id, idempotency_key, status, reason, created_at, updated_at
		FROM purchase_status
		WHERE member_id = $1
		  AND idempotency_key = $2
	`, memberID, key).Scan(
		&record.MemberID, &record.IdempotencyKey, &statusRaw,
		&record.Reason, &record.CreatedAt, &record.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PurchaseStatusRecord{}, domain.ErrPurchaseStatusNotFound
		}
		return domain.PurchaseStatusRecord{}, fmt.Errorf("select purchase status: %w", err)
	}

	record.Status = domain.PurchaseStatus(statusRaw)
	if !record.Status.Valid() {
		return domain.PurchaseStatusRecord{}, fmt.Errorf("invalid purchase status %q for key %s", statusRaw, key)
	}

	return record, nil
}

func (r *statusRepository) upsert(ctx context.Context, memberID int64, key string, status domain.PurchaseStatus, reason string) error {
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now().UTC()
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO purchase_status (member_id, idempotency_key, status, reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (member_id, idempotency_key)
		DO UPDATE SET status = EXCLUDED.status,
		              reason = EXCLUDED.reason,
		              updated_at = EXCLUDED.updated_at
	`, memberID, key, string(status), reason, now); err != nil {
		return fmt.Errorf("upsert purchase status: %w", err)
	}

	return nil
}

var _ domain.PurchaseStatusRepository = (*statusRepository)(nil)
