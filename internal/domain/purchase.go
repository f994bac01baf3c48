package domain

import "time"

// PurchaseType разделяет обычные покупки и покупки по таймдилу.
type PurchaseType string

const (
	PurchaseTypeNormal   PurchaseType = "NORMAL"
	PurchaseTypeTimedeal PurchaseType = "TIMEDEAL"
)

// PurchaseCommand — сообщение очереди с намерением покупки.
// Публикуется один раз при допуске заказа; транспорт может доставить его повторно.
type PurchaseCommand struct {
	MemberID       int64     `json:"memberId"`
	ProductID      int64     `json:"sellableUnitId"`
	DealID         *int64    `json:"dealId,omitempty"`
	Quantity       int32     `json:"quantity"`
	IdempotencyKey string    `json:"idempotencyKey"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Type возвращает тип покупки, закодированный в команде.
func (c *PurchaseCommand) Type() PurchaseType {
	if c.DealID != nil {
		return PurchaseTypeTimedeal
	}
	return PurchaseTypeNormal
}

// Validate проверяет, что команда пригодна к расчёту.
func (c *PurchaseCommand) Validate() []error {
	var errs []error

	if c.MemberID == 0 {
		errs = append(errs, ErrMemberIDRequired)
	}
	if c.ProductID == 0 {
		errs = append(errs, ErrProductIDRequired)
	}
	if c.Quantity <= 0 {
		errs = append(errs, ErrInvalidQuantity)
	}
	if c.IdempotencyKey == "" {
		errs = append(errs, ErrIdempotencyKeyRequired)
	}

	return errs
}

// PurchaseRecord — прочная запись о состоявшейся покупке.
// Создаётся воркером ровно один раз на команду; не изменяется и не удаляется.
type PurchaseRecord struct {
	ID             string
	MemberID       int64
	ProductID      int64
	DealID         *int64
	Quantity       int32
	// UnitPrice — цена за единицу на момент расчёта (для таймдила — со скидкой).
	UnitPrice      int64
	Type           PurchaseType
	IdempotencyKey string
	PurchasedAt    time.Time
}

// TotalPrice возвращает полную стоимость покупки в баллах.
func (r *PurchaseRecord) TotalPrice() int64 {
	return r.UnitPrice * int64(r.Quantity)
}

// ProcessingStatus — исход одной попытки расчёта.
type ProcessingStatus string

const (
	ProcessingStatusSuccess ProcessingStatus = "SUCCESS"
	ProcessingStatusFailure ProcessingStatus = "FAILURE"
)

// ProcessingLogEntry — append-only запись аудита о попытке расчёта.
type ProcessingLogEntry struct {
	ID        string
	ProductID int64
	Status    ProcessingStatus
	Message   string
	CreatedAt time.Time
}

// FailureLogEntry — запись аудита о неуспешном расчёте.
// RequestBody хранит сериализованную исходную команду.
type FailureLogEntry struct {
	ID          string
	MemberID    int64
	ProductID   int64
	Reason      string
	RequestBody string
	OccurredAt  time.Time
}

// PurchaseStatus — состояние заказа, видимое клиенту по idempotency-key.
type PurchaseStatus string

const (
	// PurchaseStatusPending — заказ допущен, расчёт ещё не завершён.
	PurchaseStatusPending PurchaseStatus = "PENDING"
	// PurchaseStatusSettled — расчёт успешно применён к системе записи.
	PurchaseStatusSettled PurchaseStatus = "SETTLED"
	// PurchaseStatusFailed — расчёт завершился ошибкой; причина в Reason.
	PurchaseStatusFailed PurchaseStatus = "FAILED"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s PurchaseStatus) Valid() bool {
	switch s {
	case PurchaseStatusPending, PurchaseStatusSettled, PurchaseStatusFailed:
		return true
	default:
		return false
	}
}

// PurchaseStatusRecord отражает текущий статус заказа для клиентских запросов.
type PurchaseStatusRecord struct {
	MemberID       int64
	IdempotencyKey string
	Status         PurchaseStatus
	Reason         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
