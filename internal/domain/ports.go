package domain

import (
	"context"
	"time"
)

// MemberRepository читает участников из системы записи.
type MemberRepository interface {
	GetByID(ctx context.Context, id int64) (Member, error)
}

// ProductRepository читает товары из системы записи.
type ProductRepository interface {
	GetByID(ctx context.Context, id int64) (Product, error)
	// ListActive возвращает продаваемые товары; используется для
	// восстановления кеш-счётчиков из авторитетного остатка.
	ListActive(ctx context.Context) ([]Product, error)
}

// TimedealRepository читает акции из системы записи.
type TimedealRepository interface {
	GetByID(ctx context.Context, id int64) (TimedealPolicy, error)
	// ListCurrent возвращает не удалённые акции, окно которых ещё не закрылось.
	ListCurrent(ctx context.Context, now time.Time) ([]TimedealPolicy, error)
}

// IdempotencyGuard обеспечивает единственность пары (участник, ключ).
type IdempotencyGuard interface {
	// Admit вставляет запись о принятом запросе.
	// Возвращает ErrDuplicatePurchase, если пара уже существует.
	Admit(ctx context.Context, memberID int64, key string) error
}

// ReserveOutcome — исход атомарного резервирования в кеше.
type ReserveOutcome int

const (
	// ReserveOK — счётчик уменьшен, резерв получен.
	ReserveOK ReserveOutcome = iota
	// ReserveKeyMissing — счётчик для ключа отсутствует.
	ReserveKeyMissing
	// ReserveInsufficient — остатка меньше запрошенного; счётчик не изменён.
	ReserveInsufficient
)

// StockReservation — результат успешного или отклонённого резервирования.
type StockReservation struct {
	Outcome   ReserveOutcome
	Remaining int64
}

// StockReservationCache — атомарный счётчик остатков для фильтра допуска.
// Проверка и декремент выполняются одной серверной операцией; раздельные
// чтение и запись позволили бы двум конкурентным вызовам продать один остаток.
type StockReservationCache interface {
	Reserve(ctx context.Context, key string, qty int64) (StockReservation, error)
	// Release возвращает ранее зарезервированное количество (компенсация
	// после неуспешного расчёта).
	Release(ctx context.Context, key string, qty int64) error
	// Prime выставляет счётчик из авторитетного остатка.
	// ttl=0 означает ключ без срока жизни.
	Prime(ctx context.Context, key string, count int64, ttl time.Duration) error
}

// CommandPublisher доставляет команду покупки во внешнюю очередь.
// Доставка best-effort и at-least-once: сбои логируются, а не возвращаются
// вызывающему; воркер обязан переживать повторную доставку.
type CommandPublisher interface {
	Publish(cmd PurchaseCommand)
}

// PurchaseStatusRepository хранит видимый клиенту статус заказа по ключу.
type PurchaseStatusRepository interface {
	MarkPending(ctx context.Context, memberID int64, key string) error
	MarkSettled(ctx context.Context, memberID int64, key string) error
	// MarkFailed переводит статус в FAILED и сообщает, был ли это первый
	// такой переход. Резерв компенсируется ровно один раз на команду,
	// поэтому вызывающий освобождает его только при first == true.
	MarkFailed(ctx context.Context, memberID int64, key, reason string) (first bool, err error)
	Get(ctx context.Context, memberID int64, key string) (PurchaseStatusRecord, error)
}

// AuditLogRepository хранит append-only журнал попыток расчёта.
type AuditLogRepository interface {
	AppendProcessing(ctx context.Context, entry ProcessingLogEntry) error
	AppendFailure(ctx context.Context, entry FailureLogEntry) error
}

// SettlementStore атомарно применяет покупку к системе записи.
type SettlementStore interface {
	// Settle в одной транзакции с блокировкой строк повторно валидирует
	// остаток и баланс, списывает их, создаёт PurchaseRecord и запись
	// ProcessingLogEntry(SUCCESS). Возвращает ErrPurchaseAlreadySettled,
	// если покупка с таким idempotency-key уже записана.
	Settle(ctx context.Context, cmd PurchaseCommand) (PurchaseRecord, error)
}
