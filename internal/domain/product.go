package domain

import "time"

// ProductStatus описывает доступность товара в витрине.
type ProductStatus string

const (
	// ProductStatusActive — товар продаётся.
	ProductStatusActive ProductStatus = "active"
	// ProductStatusInactive — товар скрыт из продажи.
	ProductStatusInactive ProductStatus = "inactive"
)

// Product — товар витрины, оплачиваемый баллами.
type Product struct {
	ID        int64
	Name      string
	// Price — цена за единицу в баллах.
	Price     int64
	// Stock — авторитетный остаток в системе записи. Инвариант: Stock >= 0.
	Stock     int64
	Status    ProductStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Sellable сообщает, можно ли сейчас оформлять заказ на товар.
func (p *Product) Sellable() bool {
	return p.Status == ProductStatusActive
}

// DecreaseStock уменьшает авторитетный остаток товара.
func (p *Product) DecreaseStock(qty int32) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if p.Stock < int64(qty) {
		return ErrInsufficientStock
	}
	p.Stock -= int64(qty)
	return nil
}

// TimedealPolicy — ограниченное по времени предложение со скидкой и собственным остатком.
type TimedealPolicy struct {
	ID              int64
	ProductID       int64
	// DiscountedPrice — цена за единицу в баллах на время акции.
	DiscountedPrice int64
	// DiscountRate — процент скидки, хранится для витрины.
	DiscountRate    int32
	// Stock — авторитетный остаток акции, отдельный от остатка товара.
	Stock           int64
	WindowStart     time.Time
	WindowEnd       time.Time
	DeletedAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ActiveAt проверяет, попадает ли момент времени в окно акции.
func (tp *TimedealPolicy) ActiveAt(at time.Time) bool {
	if tp.DeletedAt != nil {
		return false
	}
	return !at.Before(tp.WindowStart) && at.Before(tp.WindowEnd)
}

// DecreaseStock уменьшает авторитетный остаток акции.
func (tp *TimedealPolicy) DecreaseStock(qty int32) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if tp.Stock < int64(qty) {
		return ErrInsufficientStock
	}
	tp.Stock -= int64(qty)
	return nil
}

// OverlapsWith сообщает, пересекаются ли окна двух акций одного товара.
// Инвариант витрины: активные окна акций по одному товару не пересекаются.
func (tp *TimedealPolicy) OverlapsWith(other *TimedealPolicy) bool {
	if other == nil || tp.ProductID != other.ProductID {
		return false
	}
	if tp.DeletedAt != nil || other.DeletedAt != nil {
		return false
	}
	return tp.WindowStart.Before(other.WindowEnd) && other.WindowStart.Before(tp.WindowEnd)
}

// Validate проверяет базовые инварианты акции.
func (tp *TimedealPolicy) Validate() []error {
	var errs []error

	if tp.ProductID == 0 {
		errs = append(errs, ErrProductIDRequired)
	}
	if tp.DiscountedPrice < 0 {
		errs = append(errs, ErrAmountNegative)
	}
	if tp.Stock < 0 {
		errs = append(errs, ErrInsufficientStock)
	}
	if !tp.WindowEnd.After(tp.WindowStart) {
		errs = append(errs, ErrTimedealWindowInvalid)
	}

	return errs
}
