package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/leafmarket/pointshop/internal/domain"
)

type idempotencyGuard struct {
	db *sql.DB
}

// NewIdempotencyGuard создаёт PostgreSQL-реализацию IdempotencyGuard.
// Уникальный индекс по паре (member_id, idem_key) делает вставку
// серверным арбитром конкурентных повторов.
func NewIdempotencyGuard(store *Store) domain.IdempotencyGuard {
	return &idempotencyGuard{db: store.DB()}
}

func (g *idempotencyGuard) Admit(ctx context.Context, memberID int64, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := g.db.ExecContext(ctx, `
		INSERT INTO purchase_idempotency_key (member_id, idem_key, created_at)
		VALUES ($1, $2, $3)
	`, memberID, key, time.Now().UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicatePurchase
		}
		return fmt.Errorf("insert idempotency key: %w", err)
	}

	return nil
}

// DeleteOlderThan удаляет записи идемпотентности старше указанного момента.
// Используется воркером очистки; limit>0 ограничивает размер одной пачки.
func (g *idempotencyGuard) DeleteOlderThan(ctx context.Context, before time.Time, limit int) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		res sql.Result
		err error
	)

	if limit > 0 {
		res, err = g.db.ExecContext(ctx, `
			DELETE FROM purchase_idempotency_key
			WHERE (member_id, idem_key) IN (
				SELECT member_id, idem_key
				FROM purchase_idempotency_key
				WHERE created_at <= $1
				ORDER BY created_at ASC
				LIMIT $2
			)
		`, before, limit)
	} else {
		res, err = g.db.ExecContext(ctx, `
			DELETE FROM purchase_idempotency_key
			WHERE created_at <= $1
		`, before)
	}
	if err != nil {
		return 0, fmt.Errorf("delete stale idempotency keys: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("idempotency rows affected: %w", err)
	}

	return int(affected), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.IdempotencyGuard = (*idempotencyGuard)(nil)
