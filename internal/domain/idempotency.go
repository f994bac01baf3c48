package domain

import "time"

// IdempotencyRecord фиксирует принятый запрос на заказ.
// Пара (MemberID, Key) уникальна; нарушенная вставка — единственный механизм
// обнаружения повторного запроса. Записи не изменяются и не читаются
// конвейером; удаляет их только фоновая чистка по сроку хранения,
// когда повтор запроса уже не ожидается.
type IdempotencyRecord struct {
	MemberID  int64
	Key       string
	CreatedAt time.Time
}
