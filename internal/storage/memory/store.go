// Package memory реализует хранилище пайплайна покупок в памяти.
// Используется юнит-тестами и запуском без PostgreSQL; репозитории
// разделяют один Store, чтобы расчёт был атомарным.
package memory

import (
	"fmt"
	"sync"

	"github.com/leafmarket/pointshop/internal/domain"
)

// Store держит состояние всех таблиц пайплайна под одним мьютексом.
type Store struct {
	mu sync.Mutex

	members  map[int64]domain.Member
	products map[int64]domain.Product
	deals    map[int64]domain.TimedealPolicy

	// idempotency и purchases ключуются парой (memberID, key) и
	// idempotency-key соответственно.
	idempotency map[string]domain.IdempotencyRecord
	purchases   map[string]domain.PurchaseRecord
	statuses    map[string]domain.PurchaseStatusRecord

	processingLog []domain.ProcessingLogEntry
	failureLog    []domain.FailureLogEntry
}

// NewStore создаёт пустое in-memory хранилище.
func NewStore() *Store {
	return &Store{
		members:     make(map[int64]domain.Member),
		products:    make(map[int64]domain.Product),
		deals:       make(map[int64]domain.TimedealPolicy),
		idempotency: make(map[string]domain.IdempotencyRecord),
		purchases:   make(map[string]domain.PurchaseRecord),
		statuses:    make(map[string]domain.PurchaseStatusRecord),
	}
}

func memberKey(memberID int64, key string) string {
	return fmt.Sprintf("%d:%s", memberID, key)
}

// PutMember добавляет или заменяет участника.
func (s *Store) PutMember(m domain.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[m.ID] = m
}

// PutProduct добавляет или заменяет товар.
func (s *Store) PutProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

// PutTimedeal добавляет или заменяет акцию.
func (s *Store) PutTimedeal(tp domain.TimedealPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deals[tp.ID] = tp
}

// Member возвращает текущее состояние участника.
func (s *Store) Member(id int64) (domain.Member, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[id]
	return m, ok
}

// Product возвращает текущее состояние товара.
func (s *Store) Product(id int64) (domain.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	return p, ok
}

// Timedeal возвращает текущее состояние акции.
func (s *Store) Timedeal(id int64) (domain.TimedealPolicy, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tp, ok := s.deals[id]
	return tp, ok
}

// Purchases возвращает копию всех записей о покупках.
func (s *Store) Purchases() []domain.PurchaseRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.PurchaseRecord, 0, len(s.purchases))
	for _, record := range s.purchases {
		out = append(out, record)
	}
	return out
}

// ProcessingLog возвращает копию журнала попыток расчёта.
func (s *Store) ProcessingLog() []domain.ProcessingLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ProcessingLogEntry(nil), s.processingLog...)
}

// FailureLog возвращает копию журнала неуспешных расчётов.
func (s *Store) FailureLog() []domain.FailureLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.FailureLogEntry(nil), s.failureLog...)
}
