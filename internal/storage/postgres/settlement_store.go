package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/leafmarket/pointshop/internal/domain"
)

// settlementTimeout длиннее opTimeout: транзакция держит блокировки строк
// и может ждать конкурентный расчёт того же товара.
const settlementTimeout = 10 * time.Second

type settlementStore struct {
	db *sql.DB
}

// NewSettlementStore создаёт PostgreSQL-реализацию SettlementStore.
// Остаток и баланс повторно валидируются под блокировками строк, поэтому
// два воркера не могут продать один и тот же остаток или списать баллы дважды.
func NewSettlementStore(store *Store) domain.SettlementStore {
	return &settlementStore{db: store.DB()}
}

func (s *settlementStore) Settle(ctx context.Context, cmd domain.PurchaseCommand) (domain.PurchaseRecord, error) {
	if errs := cmd.Validate(); len(errs) != 0 {
		return domain.PurchaseRecord{}, errs[0]
	}

	ctx, cancel := context.WithTimeout(ctx, settlementTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.PurchaseRecord{}, fmt.Errorf("begin settlement tx: %w", err)
	}

	record, err := s.settleTx(ctx, tx, cmd)
	if err != nil {
		_ = tx.Rollback()
		return domain.PurchaseRecord{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.PurchaseRecord{}, fmt.Errorf("commit settlement: %w", err)
	}

	return record, nil
}

func (s *settlementStore) settleTx(ctx context.Context, tx *sql.Tx, cmd domain.PurchaseCommand) (domain.PurchaseRecord, error) {
	if settled, err := s.alreadySettled(ctx, tx, cmd.IdempotencyKey); err != nil {
		return domain.PurchaseRecord{}, err
	} else if settled {
		return domain.PurchaseRecord{}, domain.ErrPurchaseAlreadySettled
	}

	member, err := s.lockMember(ctx, tx, cmd.MemberID)
	if err != nil {
		return domain.PurchaseRecord{}, err
	}
	product, err := s.lockProduct(ctx, tx, cmd.ProductID)
	if err != nil {
		return domain.PurchaseRecord{}, err
	}

	now := time.Now().UTC()
	unitPrice := product.Price

	var deal domain.TimedealPolicy
	if cmd.DealID != nil {
		deal, err = s.lockTimedeal(ctx, tx, *cmd.DealID)
		if err != nil {
			return domain.PurchaseRecord{}, err
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
		if _, err := tx.ExecContext(ctx, `
			UPDATE timedeal_policy
			SET stock = $1, updated_at = $2
			WHERE id = $3
		`, deal.Stock, now, deal.ID); err != nil {
			return domain.PurchaseRecord{}, fmt.Errorf("update timedeal stock: %w", err)
		}
	} else {
		if err := product.DecreaseStock(cmd.Quantity); err != nil {
			return domain.PurchaseRecord{}, err
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE product
			SET stock = $1, updated_at = $2
			WHERE id = $3
		`, product.Stock, now, product.ID); err != nil {
			return domain.PurchaseRecord{}, fmt.Errorf("update product stock: %w", err)
		}
	}

	if err := member.DebitPoints(totalPrice); err != nil {
		return domain.PurchaseRecord{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE member
		SET point_balance = $1, updated_at = $2
		WHERE id = $3
	`, member.PointBalance, now, member.ID); err != nil {
		return domain.PurchaseRecord{}, fmt.Errorf("update member balance: %w", err)
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

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO product_purchase (
			id, member_id, product_id, deal_id, quantity,
			unit_price, purchase_type, idempotency_key, purchased_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		record.ID, record.MemberID, record.ProductID, record.DealID,
		record.Quantity, record.UnitPrice, string(record.Type),
		record.IdempotencyKey, record.PurchasedAt,
	); err != nil {
		if isUniqueViolation(err) {
			// Гонка двух воркеров за одну команду: проигравший видит
			// нарушение уникальности idempotency-key.
			return domain.PurchaseRecord{}, domain.ErrPurchaseAlreadySettled
		}
		return domain.PurchaseRecord{}, fmt.Errorf("insert purchase record: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO purchase_processing_log (id, product_id, status, message, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.NewString(), cmd.ProductID, string(domain.ProcessingStatusSuccess), "purchase settled", now); err != nil {
		return domain.PurchaseRecord{}, fmt.Errorf("insert processing log entry: %w", err)
	}

	return record, nil
}

func (s *settlementStore) alreadySettled(ctx context.Context, tx *sql.Tx, idemKey string) (bool, error) {
	var id string
	err := tx.QueryRowContext(ctx, `
		SELECT id FROM product_purchase WHERE idempotency_key = $1
	`, idemKey).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check purchase settled: %w", err)
}

func (s *settlementStore) lockMember(ctx context.Context, tx *sql.Tx, id int64) (domain.Member, error) {
	var member domain.Member
	err := tx.QueryRowContext(ctx, `
		SELECT id, nickname, point_balance, created_at, updated_at
		FROM member
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(
		&member.ID, &member.Nickname, &member.PointBalance,
		&member.CreatedAt, &member.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Member{}, domain.ErrMemberNotFound
		}
		return domain.Member{}, fmt.Errorf("lock member row: %w", err)
	}
	return member, nil
}

func (s *settlementStore) lockProduct(ctx context.Context, tx *sql.Tx, id int64) (domain.Product, error) {
	product, err := scanProduct(tx.QueryRowContext(ctx, `
		SELECT id, name, price, stock, status, created_at, updated_at
		FROM product
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("lock product row: %w", err)
	}
	return product, nil
}

func (s *settlementStore) lockTimedeal(ctx context.Context, tx *sql.Tx, id int64) (domain.TimedealPolicy, error) {
	deal, err := scanTimedeal(tx.QueryRowContext(ctx, `
		SELECT id, product_id, discounted_price, discount_rate, stock,
		       window_start, window_end, deleted_at, created_at, updated_at
		FROM timedeal_policy
		WHERE id = $1
		  AND deleted_at IS NULL
		FOR UPDATE
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.TimedealPolicy{}, domain.ErrTimedealNotFound
		}
		return domain.TimedealPolicy{}, fmt.Errorf("lock timedeal row: %w", err)
	}
	return deal, nil
}

var _ domain.SettlementStore = (*settlementStore)(nil)
