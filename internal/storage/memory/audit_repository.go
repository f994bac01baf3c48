package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/leafmarket/pointshop/internal/domain"
)

type auditLogRepository struct {
	store *Store
}

// NewAuditLogRepository создаёт in-memory реализацию AuditLogRepository.
func NewAuditLogRepository(store *Store) domain.AuditLogRepository {
	return &auditLogRepository{store: store}
}

func (r *auditLogRepository) AppendProcessing(_ context.Context, entry domain.ProcessingLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.processingLog = append(r.store.processingLog, entry)
	return nil
}

func (r *auditLogRepository) AppendFailure(_ context.Context, entry domain.FailureLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.failureLog = append(r.store.failureLog, entry)
	return nil
}

var _ domain.AuditLogRepository = (*auditLogRepository)(nil)
