package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/leafmarket/pointshop/internal/domain"
)

type productRepository struct {
	db *sql.DB
}

// NewProductRepository создаёт PostgreSQL-реализацию ProductRepository.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{db: store.DB()}
}

func (r *productRepository) GetByID(ctx context.Context, id int64) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	product, err := scanProduct(r.db.QueryRowContext(ctx, `
		SELECT id, name, price, stock, status, created_at, updated_at
		FROM product
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}

	return product, nil
}

func (r *productRepository) ListActive(ctx context.Context) ([]domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, price, stock, status, created_at, updated_at
		FROM product
		WHERE status = $1
		ORDER BY id ASC
	`, string(domain.ProductStatusActive))
	if err != nil {
		return nil, fmt.Errorf("list active products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}

	return products, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var (
		product domain.Product
		status  string
	)
	if err := row.Scan(
		&product.ID, &product.Name, &product.Price, &product.Stock,
		&status, &product.CreatedAt, &product.UpdatedAt,
	); err != nil {
		return domain.Product{}, err
	}
	product.Status = domain.ProductStatus(status)
	return product, nil
}

type timedealRepository struct {
	db *sql.DB
}

// NewTimedealRepository создаёт PostgreSQL-реализацию TimedealRepository.
func NewTimedealRepository(store *Store) domain.TimedealRepository {
	return &timedealRepository{db: store.DB()}
}

func (r *timedealRepository) GetByID(ctx context.Context, id int64) (domain.TimedealPolicy, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	deal, err := scanTimedeal(r.db.QueryRowContext(ctx, `
		SELECT id, product_id, discounted_price, discount_rate, stock,
		       window_start, window_end, deleted_at, created_at, updated_at
		FROM timedeal_policy
		WHERE id = $1
		  AND deleted_at IS NULL
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.TimedealPolicy{}, domain.ErrTimedealNotFound
		}
		return domain.TimedealPolicy{}, fmt.Errorf("select timedeal policy: %w", err)
	}

	return deal, nil
}

func (r *timedealRepository) ListCurrent(ctx context.Context, now time.Time) ([]domain.TimedealPolicy, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, discounted_price, discount_rate, stock,
		       window_start, window_end, deleted_at, created_at, updated_at
		FROM timedeal_policy
		WHERE deleted_at IS NULL
		  AND window_end > $1
		ORDER BY window_start ASC, id ASC
	`, now)
	if err != nil {
		return nil, fmt.Errorf("list current timedeal policies: %w", err)
	}
	defer rows.Close()

	deals := make([]domain.TimedealPolicy, 0)
	for rows.Next() {
		deal, err := scanTimedeal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan timedeal row: %w", err)
		}
		deals = append(deals, deal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timedeal rows: %w", err)
	}

	return deals, nil
}

func scanTimedeal(row rowScanner) (domain.TimedealPolicy, error) {
	var (
		deal      domain.TimedealPolicy
		deletedAt sql.NullTime
	)
	if err := row.Scan(
		&deal.ID, &deal.ProductID, &deal.DiscountedPrice, &deal.DiscountRate,
		&deal.Stock, &deal.WindowStart, &deal.WindowEnd, &deletedAt,
		&deal.CreatedAt, &deal.UpdatedAt,
	); err != nil {
		return domain.TimedealPolicy{}, err
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		deal.DeletedAt = &t
	}
	return deal, nil
}

var (
	_ domain.ProductRepository  = (*productRepository)(nil)
	_ domain.TimedealRepository = (*timedealRepository)(nil)
)
