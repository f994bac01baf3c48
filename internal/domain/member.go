package domain

import "time"

// Member представляет участника программы лояльности с балансом баллов.
type Member struct {
	ID           int64
	Nickname     string
	PointBalance int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CanAfford проверяет, хватает ли баллов на указанную сумму.
func (m *Member) CanAfford(totalPrice int64) bool {
	return m.PointBalance >= totalPrice
}

// DebitPoints списывает баллы с баланса участника.
// Возвращает ErrInsufficientPoints, если баланс меньше суммы списания.
func (m *Member) DebitPoints(totalPrice int64) error {
	if totalPrice < 0 {
		return ErrAmountNegative
	}
	if m.PointBalance < totalPrice {
		return ErrInsufficientPoints
	}
	m.PointBalance -= totalPrice
	return nil
}
