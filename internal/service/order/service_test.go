package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/leafmarket/pointshop/internal/cache"
	"github.com/leafmarket/pointshop/internal/domain"
	"github.com/leafmarket/pointshop/internal/storage/memory"
)

type capturingPublisher struct {
	mu       sync.Mutex
	commands []domain.PurchaseCommand
}

func (p *capturingPublisher) Publish(cmd domain.PurchaseCommand) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.commands = append(p.commands, cmd)
}

func (p *capturingPublisher) all() []domain.PurchaseCommand {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.PurchaseCommand(nil), p.commands...)
}

type fixture struct {
	store     *memory.Store
	stock     *cache.MemoryStock
	publisher *capturingPublisher
	service   *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	stock := cache.NewMemoryStock()
	pub := &capturingPublisher{}

	svc := NewService(
		memory.NewMemberRepository(store),
		memory.NewProductRepository(store),
		memory.NewTimedealRepository(store),
		memory.NewIdempotencyGuard(store),
		stock,
		pub,
		memory.NewStatusRepository(store),
		nil,
		nil,
	)

	return &fixture{store: store, stock: stock, publisher: pub, service: svc}
}

func (f *fixture) seedMember(id int64) {
	f.store.PutMember(domain.Member{ID: id, Nickname: "tester", PointBalance: 10000})
}

func (f *fixture) seedProduct(id, stock int64) {
	f.store.PutProduct(domain.Product{
		ID:     id,
		Name:   "mug",
		Price:  1000,
		Stock:  stock,
		Status: domain.ProductStatusActive,
	})
	_ = f.stock.Prime(context.Background(), cache.ProductStockKey(id), stock, 0)
}

func (f *fixture) seedDeal(id, productID, stock int64, start, end time.Time) {
	f.store.PutProduct(domain.Product{
		ID:     productID,
		Name:   "mug",
		Price:  1000,
		Stock:  stock,
		Status: domain.ProductStatusActive,
	})
	f.store.PutTimedeal(domain.TimedealPolicy{
		ID:              id,
		ProductID:       productID,
		DiscountedPrice: 700,
		DiscountRate:    30,
		Stock:           stock,
		WindowStart:     start,
		WindowEnd:       end,
	})
	_ = f.stock.Prime(context.Background(), cache.DealStockKey(id), stock, time.Hour)
}

func TestService_CreateProductOrder(t *testing.T) {
	f := newFixture(t)
	f.seedMember(1)
	f.seedProduct(10, 5)

	err := f.service.CreateProductOrder(context.Background(), 1, 10, 2, "order-1")
	require.NoError(t, err)

	commands := f.publisher.all()
	require.Len(t, commands, 1)
	require.Equal(t, int64(1), commands[0].MemberID)
	require.Equal(t, int64(10), commands[0].ProductID)
	require.Nil(t, commands[0].DealID)
	require.Equal(t, int32(2), commands[0].Quantity)
	require.Equal(t, "order-1", commands[0].IdempotencyKey)
	require.False(t, commands[0].CreatedAt.IsZero())

	remaining, ok := f.stock.Value(cache.ProductStockKey(10))
	require.True(t, ok)
	require.Equal(t, int64(3), remaining)

	status, err := f.service.Status(context.Background(), 1, "order-1")
	require.NoError(t, err)
	require.Equal(t, domain.PurchaseStatusPending, status.Status)
}

func TestService_CreateProductOrder_DuplicateKeyRejected(t *testing.T) {
	f := newFixture(t)
	f.seedMember(1)
	f.seedProduct(10, 5)

	require.NoError(t, f.service.CreateProductOrder(context.Background(), 1, 10, 1, "order-1"))

	err := f.service.CreateProductOrder(context.Background(), 1, 10, 1, "order-1")
	require.ErrorIs(t, err, domain.ErrDuplicatePurchase)

	// Повтор не резервирует остаток и не публикует вторую команду.
	remaining, _ := f.stock.Value(cache.ProductStockKey(10))
	require.Equal(t, int64(4), remaining)
	require.Len(t, f.publisher.all(), 1)
}

func TestService_CreateProductOrder_OutOfStock(t *testing.T) {
	f := newFixture(t)
	f.seedMember(1)
	f.seedProduct(10, 1)

	err := f.service.CreateProductOrder(context.Background(), 1, 10, 3, "order-1")
	require.ErrorIs(t, err, domain.ErrOutOfStock)
	require.Empty(t, f.publisher.all())

	// Счётчик не изменён отказанной попыткой.
	remaining, _ := f.stock.Value(cache.ProductStockKey(10))
	require.Equal(t, int64(1), remaining)
}

func TestService_CreateProductOrder_CounterMissing(t *testing.T) {
	f := newFixture(t)
	f.seedMember(1)
	f.store.PutProduct(domain.Product{ID: 10, Price: 1000, Stock: 5, Status: domain.ProductStatusActive})

	err := f.service.CreateProductOrder(context.Background(), 1, 10, 1, "order-1")
	require.ErrorIs(t, err, domain.ErrStockKeyNotFound)
}

func TestService_CreateProductOrder_UnknownMember(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(10, 5)

	err := f.service.CreateProductOrder(context.Background(), 42, 10, 1, "order-1")
	require.ErrorIs(t, err, domain.ErrMemberNotFound)
	require.Empty(t, f.publisher.all())
}

func TestService_CreateProductOrder_InactiveProductHidden(t *testing.T) {
	f := newFixture(t)
	f.seedMember(1)
	f.store.PutProduct(domain.Product{ID: 10, Price: 1000, Stock: 5, Status: domain.ProductStatusInactive})

	err := f.service.CreateProductOrder(context.Background(), 1, 10, 1, "order-1")
	require.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestService_CreateProductOrder_ValidatesInput(t *testing.T) {
	f := newFixture(t)
	f.seedMember(1)
	f.seedProduct(10, 5)

	require.ErrorIs(t, f.service.CreateProductOrder(context.Background(), 1, 10, 0, "order-1"), domain.ErrInvalidQuantity)
	require.ErrorIs(t, f.service.CreateProductOrder(context.Background(), 1, 10, 1, ""), domain.ErrIdempotencyKeyRequired)
}

func TestService_CreateTimedealOrder(t *testing.T) {
	f := newFixture(t)
	f.seedMember(1)

	now := time.Now()
	f.seedDeal(77, 10, 3, now.Add(-time.Minute), now.Add(time.Minute))

	err := f.service.CreateTimedealOrder(context.Background(), 1, 77, 1, "deal-order-1")
	require.NoError(t, err)

	commands := f.publisher.all()
	require.Len(t, commands, 1)
	require.Equal(t, int64(10), commands[0].ProductID)
	require.NotNil(t, commands[0].DealID)
	require.Equal(t, int64(77), *commands[0].DealID)
	require.Equal(t, domain.PurchaseTypeTimedeal, commands[0].Type())

	remaining, _ := f.stock.Value(cache.DealStockKey(77))
	require.Equal(t, int64(2), remaining)
}

func TestService_CreateTimedealOrder_OutsideWindow(t *testing.T) {
	f := newFixture(t)
	f.seedMember(1)

	now := time.Now()

	cases := map[string]struct {
		start, end time.Time
	}{
		"before window": {start: now.Add(time.Hour), end: now.Add(2 * time.Hour)},
		"after window":  {start: now.Add(-2 * time.Hour), end: now.Add(-time.Hour)},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f.seedDeal(77, 10, 3, tc.start, tc.end)

			err := f.service.CreateTimedealOrder(context.Background(), 1, 77, 1, "deal-"+name)
			require.ErrorIs(t, err, domain.ErrTimedealNotActive)
			require.Empty(t, f.publisher.all())

			// Окно отклоняет заявку до обращения к счётчику.
			remaining, _ := f.stock.Value(cache.DealStockKey(77))
			require.Equal(t, int64(3), remaining)
		})
	}
}

func TestService_CreateTimedealOrder_WindowBoundaries(t *testing.T) {
	f := newFixture(t)
	f.seedMember(1)

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	f.seedDeal(77, 10, 10, start, end)

	// Начало окна включительно.
	f.service.now = func() time.Time { return start }
	require.NoError(t, f.service.CreateTimedealOrder(context.Background(), 1, 77, 1, "at-start"))

	// Конец окна исключительно.
	f.service.now = func() time.Time { return end }
	err := f.service.CreateTimedealOrder(context.Background(), 1, 77, 1, "at-end")
	require.ErrorIs(t, err, domain.ErrTimedealNotActive)
}

func TestService_CreateTimedealOrder_UnknownDeal(t *testing.T) {
	f := newFixture(t)
	f.seedMember(1)

	err := f.service.CreateTimedealOrder(context.Background(), 1, 404, 1, "deal-order-1")
	require.ErrorIs(t, err, domain.ErrTimedealNotFound)
}

func TestService_ConcurrentOrders_NeverOversell(t *testing.T) {
	f := newFixture(t)
	f.seedProduct(10, 4)
	for i := int64(1); i <= 10; i++ {
		f.seedMember(i)
	}

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			memberID := int64(i + 1)
			errs[i] = f.service.CreateProductOrder(context.Background(), memberID, 10, 1, "concurrent")
		}(i)
	}
	wg.Wait()

	admitted := 0
	for _, err := range errs {
		if err == nil {
			admitted++
		}
	}
	require.Equal(t, 4, admitted)
	require.Len(t, f.publisher.all(), 4)

	remaining, _ := f.stock.Value(cache.ProductStockKey(10))
	require.Zero(t, remaining)
}
