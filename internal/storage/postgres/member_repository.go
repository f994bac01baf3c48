package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/leafmarket/pointshop/internal/domain"
)

const (
	opTimeout = 5 * time.Second
)

type memberRepository struct {
	db *sql.DB
}

// NewMemberRepository создаёт PostgreSQL-реализацию MemberRepository.
func NewMemberRepository(store *Store) domain.MemberRepository {
	return &memberRepository{db: store.DB()}
}

func (r *memberRepository) GetByID(ctx context.Context, id int64) (domain.Member, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var member domain.Member
	err := r.db.QueryRowContext(ctx, `
		SELECT id, nickname, point_balance, created_at, updated_at
		FROM member
		WHERE id = $1
	`, id).Scan(
		&member.ID, &member.Nickname, &member.PointBalance,
		&member.CreatedAt, &member.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Member{}, domain.ErrMemberNotFound
		}
		return domain.Member{}, fmt.Errorf("select member: %w", err)
	}

	return member, nil
}

var _ domain.MemberRepository = (*memberRepository)(nil)
