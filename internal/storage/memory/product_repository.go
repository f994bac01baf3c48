package memory

import (
	"context"
	"sort"
	"time"

	"github.com/leafmarket/pointshop/internal/domain"
)

type productRepository struct {
	store *Store
}

// NewProductRepository создаёт in-memory реализацию ProductRepository.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{store: store}
}

func (r *productRepository) GetByID(_ context.Context, id int64) (domain.Product, error) {
	product, ok := r.store.Product(id)
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

func (r *productRepository) ListActive(_ context.Context) ([]domain.Product, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	products := make([]domain.Product, 0)
	for _, p := range r.store.products {
		if p.Sellable() {
			products = append(products, p)
		}
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products, nil
}

var _ domain.ProductRepository = (*productRepository)(nil)

type timedealRepository struct {
	store *Store
}

// NewTimedealRepository создаёт in-memory реализацию TimedealRepository.
func NewTimedealRepository(store *Store) domain.TimedealRepository {
	return &timedealRepository{store: store}
}

func (r *timedealRepository) GetByID(_ context.Context, id int64) (domain.TimedealPolicy, error) {
	deal, ok := r.store.Timedeal(id)
	if !ok || deal.DeletedAt != nil {
		return domain.TimedealPolicy{}, domain.ErrTimedealNotFound
	}
	return deal, nil
}

func (r *timedealRepository) ListCurrent(_ context.Context, now time.Time) ([]domain.TimedealPolicy, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	deals := make([]domain.TimedealPolicy, 0)
	for _, deal := range r.store.deals {
		if deal.DeletedAt == nil && deal.WindowEnd.After(now) {
			deals = append(deals, deal)
		}
	}
	sort.Slice(deals, func(i, j int) bool { return deals[i].ID < deals[j].ID })
	return deals, nil
}

var _ domain.TimedealRepository = (*timedealRepository)(nil)
