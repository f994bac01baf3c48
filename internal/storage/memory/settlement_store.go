package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/leafmarket/pointshop/internal/domain"
)

type settlementStore struct {
	store *Store
}

// NewSettlementStore создаёт in-memory реализацию SettlementStore.
// Атомарность транзакции обеспечивается мьютексом Store.
func NewSettlementStore(store *Store) domain.SettlementStore {
	return &settlementStore{store: store}
}

func (s *settlementStore) Settle(_ context.Context, cmd domain.PurchaseCommand) (domain.PurchaseRecord, error) {
	if errs := cmd.Validate(); len(errs) != 0 {
		return domain.PurchaseRecord{}, errs[0]
	}

	s.store.mu.Lock()
	defer s.store.mu.Unlock()

	if _, exists := s.store.purchases[cmd.IdempotencyKey]; exists {
		return domain.PurchaseRecord{}, domain.ErrPurchaseAlreadySettled
	}

	member, ok := s.store.members[cmd.MemberID]
	if !ok {
		return domain.PurchaseRecord{}, domain.ErrMemberNotFound
	}
	product, ok := s.store.products[cmd.ProductID]
	if !ok {
		return domain.PurchaseRecord{}, domain.ErrProductNotFound
	}

	now := time.Now().UTC()
	unitPrice := product.Price

	var deal domain.TimedealPolicy
	if cmd.DealID != nil {
		deal, ok = s.store.deals[*cmd.DealID]
		if !ok || deal.DeletedAt != nil {
			return domain.PurchaseRecord{}, domain.ErrTimedealNotFound
		}
		if !deal.ActiveAt(now) {
			return domain.PurchaseRecord{}, domain.ErrTimedealNotActive
		}
		unitPrice = deal.DiscountedPrice
	}

	totalPrice := unitPrice * int64(cmd.Quantity)

	// Повторная валидация против системы записи: сначала остаток, затем баланс.
	if cmd.DealID != nil {
		if err := deal.DecreaseStock(cmd.Quantity); err != nil {
			return domain.PurchaseRecord{}, err
		}
	} else {
		if err := product.DecreaseStock(cmd.Quantity); err != nil {
			return domain.PurchaseRecord{}, err
		}
	}
	if err := member.DebitPoints(totalPrice); err != nil {
		return domain.PurchaseRecord{}, err
	}

	member.UpdatedAt = now
	product.UpdatedAt = now
	s.store.members[cmd.MemberID] = member
	s.store.products[cmd.ProductID] = product
	if cmd.DealID != nil {
		deal.UpdatedAt = now
		s.store.deals[*cmd.DealID] = deal
	}

	record := domain.PurchaseRecord{
		ID:             uuid.NewString(),
		MemberID:       cmd.MemberID,
		ProductID:      cmd.ProductID,
		DealID:         cmd.DealID,
		Quantity:       cmd.Quantity,
		UnitPrice:      unitPrice,
		Type:           cmd.Type(),
		IdempotencyKey: cmd.IdempotencyKey,
		PurchasedAt:    now,
	}
	s.store.purchases[cmd.IdempotencyKey] = record

	s.store.processingLog = append(s.store.processingLog, domain.ProcessingLogEntry{
		ID:        uuid.NewString(),
		ProductID: cmd.ProductID,
		Status:    domain.ProcessingStatusSuccess,
		Message:   "purchase settled",
		CreatedAt: now,
	})

	return record, nil
}

var _ domain.SettlementStore = (*settlementStore)(nil)
