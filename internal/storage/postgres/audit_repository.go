package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/leafmarket/pointshop/internal/domain"
)

type auditLogRepository struct {
	db *sql.DB
}

// NewAuditLogRepository создаёт PostgreSQL-реализацию AuditLogRepository.
// Журналы append-only: записи не изменяются и не удаляются.
func NewAuditLogRepository(store *Store) domain.AuditLogRepository {
	return &auditLogRepository{db: store.DB()}
}

func (r *auditLogRepository) AppendProcessing(ctx context.Context, entry domain.ProcessingLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO purchase_processing_log (id, product_id, status, message, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, entry.ID, entry.ProductID, string(entry.Status), entry.Message, entry.CreatedAt); err != nil {
		return fmt.Errorf("insert processing log entry: %w", err)
	}

	return nil
}

func (r *auditLogRepository) AppendFailure(ctx context.Context, entry domain.FailureLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO purchase_failure_log (id, member_id, product_id, reason, request_body, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.ID, entry.MemberID, entry.ProductID, entry.Reason, entry.RequestBody, entry.OccurredAt); err != nil {
		return fmt.Errorf("insert failure log entry: %w", err)
	}

	return nil
}

var _ domain.AuditLogRepository = (*auditLogRepository)(nil)
