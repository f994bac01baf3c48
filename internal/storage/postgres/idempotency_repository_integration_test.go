package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/leafmarket/pointshop/internal/domain"
)

func TestIdempotencyGuard_PostgresAdmitOnce(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	guard := NewIdempotencyGuard(store)

	ctx := context.Background()

	if err := guard.Admit(ctx, 1, "order-1"); err != nil {
		t.Fatalf("first admit: %v", err)
	}
	if err := guard.Admit(ctx, 1, "order-1"); !errors.Is(err, domain.ErrDuplicatePurchase) {
		t.Fatalf("expected ErrDuplicatePurchase, got %v", err)
	}

	// Тот же ключ другого участника — самостоятельный запрос.
	if err := guard.Admit(ctx, 2, "order-1"); err != nil {
		t.Fatalf("admit for another member: %v", err)
	}
	// Другой ключ того же участника проходит.
	if err := guard.Admit(ctx, 1, "order-2"); err != nil {
		t.Fatalf("admit another key: %v", err)
	}

	if err := guard.Admit(ctx, 1, "  "); !errors.Is(err, domain.ErrIdempotencyKeyRequired) {
		t.Fatalf("expected ErrIdempotencyKeyRequired, got %v", err)
	}
}

func TestIdempotencyGuard_PostgresConcurrentSingleWinner(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	guard := NewIdempotencyGuard(store)

	const attempts = 8

	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = guard.Admit(context.Background(), 1, "contended")
		}(i)
	}
	wg.Wait()

	admitted := 0
	for _, err := range errs {
		switch {
		case err == nil:
			admitted++
		case errors.Is(err, domain.ErrDuplicatePurchase):
		default:
			t.Fatalf("unexpected admit error: %v", err)
		}
	}
	if admitted != 1 {
		t.Fatalf("expected exactly one winner, got %d", admitted)
	}
}

func TestIdempotencyGuard_PostgresDeleteOlderThan(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	guard := NewIdempotencyGuard(store).(*idempotencyGuard)

	ctx := context.Background()
	for _, key := range []string{"old-1", "old-2", "old-3"} {
		if err := guard.Admit(ctx, 1, key); err != nil {
			t.Fatalf("admit %s: %v", key, err)
		}
	}

	deleted, err := guard.DeleteOlderThan(ctx, time.Now().UTC().Add(time.Minute), 2)
	if err != nil {
		t.Fatalf("delete older than with limit: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted, got %d", deleted)
	}

	deleted, err = guard.DeleteOlderThan(ctx, time.Now().UTC().Add(time.Minute), 0)
	if err != nil {
		t.Fatalf("delete older than without limit: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted, got %d", deleted)
	}
}
