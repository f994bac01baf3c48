// Package cache реализует StockReservationCache — атомарные счётчики
// остатков, через которые проходит допуск заказов.
package cache

import "fmt"

// Пространство ключей счётчиков остатков.
const (
	productStockKeyPrefix = "stock:product:"
	dealStockKeyPrefix    = "stock:deal:"
)

// ProductStockKey возвращает ключ счётчика остатка товара.
func ProductStockKey(productID int64) string {
	return fmt.Sprintf("%s%d", productStockKeyPrefix, productID)
}

// DealStockKey возвращает ключ счётчика остатка таймдил-акции.
// Ключи акций создаются с TTL до конца окна плюс запас, чтобы устаревшие
// счётчики исчезали сами.
func DealStockKey(dealID int64) string {
	return fmt.Sprintf("%s%d", dealStockKeyPrefix, dealID)
}
