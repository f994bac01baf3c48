// Package order реализует синхронный допуск заказов: идемпотентность,
// атомарное резервирование остатка в кеше и передачу команды покупки
// в очередь. Баланс баллов здесь не проверяется — авторитетная проверка
// выполняется воркером при расчёте.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/leafmarket/pointshop/internal/cache"
	"github.com/leafmarket/pointshop/internal/domain"
	"github.com/leafmarket/pointshop/internal/metrics"
)

// DealKeyTTLMargin — запас к TTL счётчика акции после конца окна,
// чтобы расчёты и компенсации успели завершиться до исчезновения ключа.
const DealKeyTTLMargin = 10 * time.Minute

// Service — OrderAdmissionService для обычных и таймдил-заказов.
type Service struct {
	members   domain.MemberRepository
	products  domain.ProductRepository
	deals     domain.TimedealRepository
	guard     domain.IdempotencyGuard
	stock     domain.StockReservationCache
	publisher domain.CommandPublisher
	statuses  domain.PurchaseStatusRepository
	metrics   *metrics.PurchaseMetrics
	logger    *log.Entry

	// now переопределяется в тестах окна акции.
	now func() time.Time
}

// NewService конструирует сервис допуска с зависимостями.
func NewService(
	members domain.MemberRepository,
	products domain.ProductRepository,
	deals domain.TimedealRepository,
	guard domain.IdempotencyGuard,
	stock domain.StockReservationCache,
	publisher domain.CommandPublisher,
	statuses domain.PurchaseStatusRepository,
	purchaseMetrics *metrics.PurchaseMetrics,
	logger *log.Entry,
) *Service {
	if logger == nil {
		logger = log.WithField("component", "order-admission")
	}

	return &Service{
		members:   members,
		products:  products,
		deals:     deals,
		guard:     guard,
		stock:     stock,
		publisher: publisher,
		statuses:  statuses,
		metrics:   purchaseMetrics,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateProductOrder допускает заказ на обычный товар.
func (s *Service) CreateProductOrder(ctx context.Context, memberID, productID int64, qty int32, idemKey string) error {
	started := s.now()
	err := s.createProductOrder(ctx, memberID, productID, qty, idemKey)
	s.finishAdmission(started, err)
	return err
}

// CreateTimedealOrder допускает заказ по таймдил-акции.
func (s *Service) CreateTimedealOrder(ctx context.Context, memberID, dealID int64, qty int32, idemKey string) error {
	started := s.now()
	err := s.createTimedealOrder(ctx, memberID, dealID, qty, idemKey)
	s.finishAdmission(started, err)
	return err
}

// Status возвращает видимый клиенту статус заказа по idempotency-key.
func (s *Service) Status(ctx context.Context, memberID int64, idemKey string) (domain.PurchaseStatusRecord, error) {
	return s.statuses.Get(ctx, memberID, idemKey)
}

func (s *Service) createProductOrder(ctx context.Context, memberID, productID int64, qty int32, idemKey string) error {
	if err := s.admit(ctx, memberID, qty, idemKey); err != nil {
		return err
	}

	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return err
	}
	if !product.Sellable() {
		return domain.ErrProductNotFound
	}

	if err := s.reserve(ctx, cache.ProductStockKey(product.ID), qty); err != nil {
		return err
	}

	s.dispatch(ctx, domain.PurchaseCommand{
		MemberID:       memberID,
		ProductID:      product.ID,
		Quantity:       qty,
		IdempotencyKey: idemKey,
		CreatedAt:      s.now().UTC(),
	})
	return nil
}

func (s *Service) createTimedealOrder(ctx context.Context, memberID, dealID int64, qty int32, idemKey string) error {
	if err := s.admit(ctx, memberID, qty, idemKey); err != nil {
		return err
	}

	deal, err := s.deals.GetByID(ctx, dealID)
	if err != nil {
		return err
	}
	// Окно проверяется до обращения к счётчику остатка.
	if !deal.ActiveAt(s.now()) {
		return domain.ErrTimedealNotActive
	}

	if err := s.reserve(ctx, cache.DealStockKey(deal.ID), qty); err != nil {
		return err
	}

	s.dispatch(ctx, domain.PurchaseCommand{
		MemberID:       memberID,
		ProductID:      deal.ProductID,
		DealID:         &deal.ID,
		Quantity:       qty,
		IdempotencyKey: idemKey,
		CreatedAt:      s.now().UTC(),
	})
	return nil
}

// admit выполняет общие первые шаги допуска: валидацию входа,
// разрешение участника и вставку идемпотентной записи.
func (s *Service) admit(ctx context.Context, memberID int64, qty int32, idemKey string) error {
	if qty <= 0 {
		return domain.ErrInvalidQuantity
	}
	if idemKey == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	if _, err := s.members.GetByID(ctx, memberID); err != nil {
		return err
	}

	// Проигравший гонку получает ErrDuplicatePurchase до любых мутаций
	// остатка и публикаций.
	if err := s.guard.Admit(ctx, memberID, idemKey); err != nil {
		return err
	}

	return nil
}

func (s *Service) reserve(ctx context.Context, key string, qty int32) error {
	reservation, err := s.stock.Reserve(ctx, key, int64(qty))
	if err != nil {
		s.metrics.RecordReservation("error")
		return fmt.Errorf("reserve stock %s: %w", key, err)
	}

	switch reservation.Outcome {
	case domain.ReserveKeyMissing:
		s.metrics.RecordReservation("key_missing")
		return domain.ErrStockKeyNotFound
	case domain.ReserveInsufficient:
		s.metrics.RecordReservation("insufficient")
		return domain.ErrOutOfStock
	default:
		s.metrics.RecordReservation("ok")
		return nil
	}
}

// dispatch фиксирует статус PENDING и передаёт команду паблишеру.
// Публикация best-effort: её сбои не отменяют уже выданный допуск.
func (s *Service) dispatch(ctx context.Context, cmd domain.PurchaseCommand) {
	if err := s.statuses.MarkPending(ctx, cmd.MemberID, cmd.IdempotencyKey); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"member_id":       cmd.MemberID,
			"idempotency_key": cmd.IdempotencyKey,
		}).Warn("failed to mark purchase status pending")
	}

	s.publisher.Publish(cmd)

	s.logger.WithFields(log.Fields{
		"member_id":       cmd.MemberID,
		"product_id":      cmd.ProductID,
		"quantity":        cmd.Quantity,
		"purchase_type":   cmd.Type(),
		"idempotency_key": cmd.IdempotencyKey,
	}).Info("order admitted")
}

func (s *Service) finishAdmission(started time.Time, err error) {
	s.metrics.RecordAdmissionDuration(s.now().Sub(started))
	s.metrics.RecordAdmission(admissionResult(err))
}

func admissionResult(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, domain.ErrDuplicatePurchase):
		return "conflict"
	case errors.Is(err, domain.ErrOutOfStock):
		return "out_of_stock"
	case errors.Is(err, domain.ErrTimedealNotActive):
		return "time_window"
	case domain.IsNotFound(err):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidQuantity), errors.Is(err, domain.ErrIdempotencyKeyRequired):
		return "invalid"
	default:
		return "error"
	}
}
