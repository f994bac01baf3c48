// Package fulfillment реализует воркер расчёта покупок: потребляет
// команды из очереди, атомарно применяет их к системе записи и ведёт
// журнал аудита. Воркер обязан переживать повторную доставку команды.
package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/leafmarket/pointshop/internal/cache"
	"github.com/leafmarket/pointshop/internal/domain"
	"github.com/leafmarket/pointshop/internal/metrics"
)

// Processor рассчитывает одну команду покупки за вызов.
type Processor struct {
	settlements domain.SettlementStore
	statuses    domain.PurchaseStatusRepository
	audit       domain.AuditLogRepository
	stock       domain.StockReservationCache
	metrics     *metrics.PurchaseMetrics
	logger      *log.Entry

	now func() time.Time
}

// NewProcessor конструирует процессор расчёта.
func NewProcessor(
	settlements domain.SettlementStore,
	statuses domain.PurchaseStatusRepository,
	audit domain.AuditLogRepository,
	stock domain.StockReservationCache,
	purchaseMetrics *metrics.PurchaseMetrics,
	logger *log.Entry,
) *Processor {
	if logger == nil {
		logger = log.WithField("component", "fulfillment")
	}

	return &Processor{
		settlements: settlements,
		statuses:    statuses,
		audit:       audit,
		stock:       stock,
		metrics:     purchaseMetrics,
		logger:      logger,
		now:         time.Now,
	}
}

// Process валидирует команду и применяет её к системе записи.
// Ошибка возвращается только когда попытку имеет смысл повторить:
// повторная доставка уже рассчитанной команды завершается успехом без
// побочных эффектов.
func (p *Processor) Process(ctx context.Context, cmd domain.PurchaseCommand) error {
	if errs := cmd.Validate(); len(errs) > 0 {
		// Невалидная команда не станет валидной при повторе.
		err := errors.Join(errs...)
		p.logger.WithError(err).WithFields(log.Fields{
			"member_id":       cmd.MemberID,
			"idempotency_key": cmd.IdempotencyKey,
		}).Error("rejecting malformed purchase command")
		p.metrics.RecordSettlement("invalid")
		return nil
	}

	started := p.now()
	p.metrics.SettlingStarted()
	defer p.metrics.SettlingFinished()
	defer func() {
		p.metrics.RecordSettlementDuration(p.now().Sub(started))
	}()

	entry := p.logger.WithFields(log.Fields{
		"member_id":       cmd.MemberID,
		"product_id":      cmd.ProductID,
		"quantity":        cmd.Quantity,
		"purchase_type":   cmd.Type(),
		"idempotency_key": cmd.IdempotencyKey,
	})

	record, err := p.settlements.Settle(ctx, cmd)
	if err != nil {
		if errors.Is(err, domain.ErrPurchaseAlreadySettled) {
			entry.Info("purchase already settled, skipping redelivery")
			p.metrics.RecordSettlement("redelivery")
			return nil
		}
		p.fail(ctx, cmd, err, entry)
		return err
	}

	if markErr := p.statuses.MarkSettled(ctx, cmd.MemberID, cmd.IdempotencyKey); markErr != nil {
		entry.WithError(markErr).Warn("failed to mark purchase status settled")
	}

	entry.WithFields(log.Fields{
		"purchase_id": record.ID,
		"total_price": record.TotalPrice(),
	}).Info("purchase settled")
	p.metrics.RecordSettlement("success")
	return nil
}

// fail фиксирует неуспех расчёта: журнал аудита, статус FAILED и
// компенсация резерва в кеш-счётчике. Резерв был создан один раз при
// допуске, поэтому возвращается только при первом переходе в FAILED:
// повторная доставка той же неуспешной команды не должна накручивать
// счётчик выше авторитетного остатка.
func (p *Processor) fail(ctx context.Context, cmd domain.PurchaseCommand, cause error, entry *log.Entry) {
	entry.WithError(cause).Error("purchase settlement failed")
	p.metrics.RecordSettlement("failure")

	occurred := p.now().UTC()

	if err := p.audit.AppendFailure(ctx, domain.FailureLogEntry{
		ID:          uuid.NewString(),
		MemberID:    cmd.MemberID,
		ProductID:   cmd.ProductID,
		Reason:      cause.Error(),
		RequestBody: serializeCommand(cmd),
		OccurredAt:  occurred,
	}); err != nil {
		entry.WithError(err).Error("failed to append failure log entry")
	}

	if err := p.audit.AppendProcessing(ctx, domain.ProcessingLogEntry{
		ID:        uuid.NewString(),
		ProductID: cmd.ProductID,
		Status:    domain.ProcessingStatusFailure,
		Message:   cause.Error(),
		CreatedAt: occurred,
	}); err != nil {
		entry.WithError(err).Error("failed to append processing log entry")
	}

	first, markErr := p.statuses.MarkFailed(ctx, cmd.MemberID, cmd.IdempotencyKey, cause.Error())
	if markErr != nil {
		// Без статуса не отличить первый неуспех от повторного;
		// компенсацию выполнит следующая доставка.
		entry.WithError(markErr).Warn("failed to mark purchase status failed, release deferred")
		return
	}
	if !first {
		entry.Info("repeated settlement failure, reserved stock already released")
		return
	}

	p.release(ctx, cmd, entry)
}

// release возвращает зарезервированное количество в кеш-счётчик,
// иначе отклонённый расчёт навсегда занял бы часть остатка.
func (p *Processor) release(ctx context.Context, cmd domain.PurchaseCommand, entry *log.Entry) {
	key := cache.ProductStockKey(cmd.ProductID)
	if cmd.DealID != nil {
		key = cache.DealStockKey(*cmd.DealID)
	}

	if err := p.stock.Release(ctx, key, int64(cmd.Quantity)); err != nil {
		if errors.Is(err, domain.ErrStockKeyNotFound) {
			// Ключ истёк (окно акции закрылось) — компенсировать нечего.
			entry.WithField("stock_key", key).Warn("stock counter expired, release skipped")
			return
		}
		entry.WithError(err).WithField("stock_key", key).Error("failed to release reserved stock")
		return
	}

	p.metrics.RecordReservationRelease()
	entry.WithField("stock_key", key).Info("reserved stock released")
}

// serializeCommand возвращает JSON команды для журнала неуспехов.
// Сериализация не должна терять запись аудита, поэтому при ошибке
// возвращается текстовое представление.
func serializeCommand(cmd domain.PurchaseCommand) string {
	body, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Sprintf("%+v", cmd)
	}
	return string(body)
}
