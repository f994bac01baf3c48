package domain

import "errors"

var (
	// ErrMemberNotFound возвращается, если участник не найден.
	ErrMemberNotFound = errors.New("member not found")
	// ErrProductNotFound возвращается, если товар не найден или скрыт.
	ErrProductNotFound = errors.New("product not found")
	// ErrTimedealNotFound возвращается, если акция не найдена или удалена.
	ErrTimedealNotFound = errors.New("timedeal policy not found")
	// ErrDuplicatePurchase — повторный запрос с тем же idempotency-key.
	ErrDuplicatePurchase = errors.New("duplicate purchase request")
	// ErrOutOfStock — кеш-счётчик остатка меньше запрошенного количества.
	ErrOutOfStock = errors.New("out of stock")
	// ErrStockKeyNotFound — счётчик остатка для позиции отсутствует в кеше.
	ErrStockKeyNotFound = errors.New("stock counter not found")
	// ErrTimedealNotActive — текущее время вне окна акции.
	ErrTimedealNotActive = errors.New("timedeal is not active")
	// ErrInsufficientPoints — баланс баллов меньше стоимости покупки.
	ErrInsufficientPoints = errors.New("insufficient point balance")
	// ErrInsufficientStock — авторитетный остаток меньше запрошенного количества.
	ErrInsufficientStock = errors.New("insufficient durable stock")
	// ErrPurchaseAlreadySettled — по этому idempotency-key покупка уже рассчитана.
	ErrPurchaseAlreadySettled = errors.New("purchase already settled")
	// ErrPurchaseStatusNotFound — статус заказа по ключу не найден.
	ErrPurchaseStatusNotFound = errors.New("purchase status not found")

	// Ошибка отсутствующего идентификатора участника.
	ErrMemberIDRequired = errors.New("member_id is required")
	// Ошибка отсутствующего идентификатора товара.
	ErrProductIDRequired = errors.New("product_id is required")
	// Ошибка некорректного количества (<= 0).
	ErrInvalidQuantity = errors.New("quantity must be greater than zero")
	// Ошибка отсутствующего idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// Ошибка отрицательной суммы в баллах.
	ErrAmountNegative = errors.New("amount must be non-negative")
	// Ошибка некорректного окна акции (конец не позже начала).
	ErrTimedealWindowInvalid = errors.New("timedeal window end must be after start")
)

// IsNotFound проверяет, относится ли ошибка к отсутствующим сущностям.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrMemberNotFound) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrTimedealNotFound) ||
		errors.Is(err, ErrStockKeyNotFound)
}

// IsAdmissionRejection сообщает, является ли ошибка синхронным отказом допуска,
// а не сбоем инфраструктуры.
func IsAdmissionRejection(err error) bool {
	return IsNotFound(err) ||
		errors.Is(err, ErrDuplicatePurchase) ||
		errors.Is(err, ErrOutOfStock) ||
		errors.Is(err, ErrTimedealNotActive) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrIdempotencyKeyRequired)
}
