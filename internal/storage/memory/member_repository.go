package memory

import (
	"context"

	"github.com/leafmarket/pointshop/internal/domain"
)

type memberRepository struct {
	store *Store
}

// NewMemberRepository создаёт in-memory реализацию MemberRepository.
func NewMemberRepository(store *Store) domain.MemberRepository {
	return &memberRepository{store: store}
}

func (r *memberRepository) GetByID(_ context.Context, id int64) (domain.Member, error) {
	member, ok := r.store.Member(id)
	if !ok {
		return domain.Member{}, domain.ErrMemberNotFound
	}
	return member, nil
}

var _ domain.MemberRepository = (*memberRepository)(nil)
