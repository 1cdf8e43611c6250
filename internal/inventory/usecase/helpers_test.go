package usecase_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fekuna/omnipos-stock-service/internal/inventory"
	"github.com/fekuna/omnipos-stock-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-stock-service/internal/inventory/repository"
	"github.com/fekuna/omnipos-stock-service/internal/inventory/usecase"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/metrics"
	"github.com/fekuna/omnipos-stock-service/internal/testutil"
)

type harness struct {
	repo    *repository.PGRepository
	clock   *testutil.Clock
	cache   *testutil.MemoryCache
	sink    *testutil.RecordingSink
	metrics *metrics.Metrics

	ledger       inventory.Ledger
	reservations inventory.ReservationManager
	inventory    inventory.UseCase
}

func newHarness(t *testing.T) *harness {
	return newHarnessWithCache(t, testutil.NewMemoryCache())
}

func newHarnessWithCache(t *testing.T, c inventory.Cache) *harness {
	return newHarnessWith(t, c, nil)
}

// newHarnessWith builds the use cases over wrap(repo) so tests can observe or
// perturb store calls. h.repo stays the unwrapped store.
func newHarnessWith(t *testing.T, c inventory.Cache, wrap func(inventory.Repository) inventory.Repository) *harness {
	t.Helper()

	h := &harness{
		repo:    repository.NewPGRepository(testutil.NewSQLiteDB(t)),
		clock:   testutil.NewClock(),
		sink:    &testutil.RecordingSink{},
		metrics: metrics.NewNop(),
	}
	if mc, ok := c.(*testutil.MemoryCache); ok {
		h.cache = mc
	}

	opts := usecase.Options{
		ReservationTTL:     15 * time.Minute,
		MaxConflictRetries: 3,
		RetryDelay:         time.Millisecond,
		AlertTimeout:       time.Second,
		Now:                h.clock.Now,
	}
	log := logger.NewNop()

	var store inventory.Repository = h.repo
	if wrap != nil {
		store = wrap(h.repo)
	}

	h.ledger = usecase.NewLedgerUseCase(store, c, h.sink, h.metrics, log, opts)
	h.reservations = usecase.NewReservationUseCase(store, c, h.sink, h.metrics, log, opts)
	h.inventory = usecase.NewInventoryUseCase(store, h.ledger, c, h.sink, h.metrics, log, opts)
	return h
}

func (h *harness) initialize(t *testing.T, productID string, quantity, threshold int) *model.Inventory {
	t.Helper()
	inv, err := h.ledger.InitializeInventory(context.Background(), &dto.InitializeInventoryInput{
		ProductID:         productID,
		InitialQuantity:   quantity,
		LowStockThreshold: threshold,
	})
	require.NoError(t, err)
	return inv
}

func (h *harness) load(t *testing.T, productID string) *model.Inventory {
	t.Helper()
	inv, err := h.repo.GetByProduct(context.Background(), productID)
	require.NoError(t, err)
	require.NotNil(t, inv)
	return inv
}

func (h *harness) reserve(t *testing.T, productID string, quantity int, orderID, cartID string) *dto.ReservationResult {
	t.Helper()
	result, err := h.reservations.ReserveStock(context.Background(), &dto.ReserveStockInput{
		ProductID: productID,
		Quantity:  quantity,
		Reason:    "checkout",
		OrderID:   orderID,
		CartID:    cartID,
	})
	require.NoError(t, err)
	return result
}

// requireBalanced checks that reserved equals the held quantity and that the
// ledger replays to the current on-hand value.
func (h *harness) requireBalanced(t *testing.T, productID string) {
	t.Helper()
	ctx := context.Background()
	inv := h.load(t, productID)

	holds, err := h.repo.ListReservations(ctx, &dto.ReservationFilters{ProductID: productID})
	require.NoError(t, err)
	held := 0
	for _, r := range holds {
		if r.Status == model.ReservationActive {
			held += r.Quantity
		}
	}
	require.Equal(t, held, inv.QuantityReserved, "reserved must equal the sum of active holds")
	require.GreaterOrEqual(t, inv.AvailableQuantity(), 0)

	movements, _, err := h.repo.ListMovements(ctx, &dto.MovementFilters{ProductID: productID})
	require.NoError(t, err)
	replayed := 0
	for i := len(movements) - 1; i >= 0; i-- {
		m := movements[i]
		require.True(t, m.IsConsistent(), "movement %s is inconsistent", m.ID)
		replayed += int(m.Type.Direction()) * m.QuantityDelta
	}
	require.Equal(t, inv.QuantityOnHand, replayed, "ledger must replay to on-hand")
}

// spyRepo records the reservation reads issued through it.
type spyRepo struct {
	inventory.Repository

	mu             sync.Mutex
	listCalls      int
	expiredScopes  []string
	expiredResults []model.Reservation
}

func (s *spyRepo) ListReservations(ctx context.Context, filters *dto.ReservationFilters) ([]model.Reservation, error) {
	s.mu.Lock()
	s.listCalls++
	s.mu.Unlock()
	return s.Repository.ListReservations(ctx, filters)
}

func (s *spyRepo) FindExpiredReservations(ctx context.Context, productID string, now time.Time, limit int) ([]model.Reservation, error) {
	items, err := s.Repository.FindExpiredReservations(ctx, productID, now, limit)
	s.mu.Lock()
	s.expiredScopes = append(s.expiredScopes, productID)
	s.expiredResults = append(s.expiredResults, items...)
	s.mu.Unlock()
	return items, err
}

func (s *spyRepo) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls = 0
	s.expiredScopes = nil
	s.expiredResults = nil
}

// racingRepo runs race once, just before the first movement is written, to
// stand in for a competing writer.
type racingRepo struct {
	inventory.Repository

	once sync.Once
	race func()
}

func (r *racingRepo) ApplyMovement(ctx context.Context, m *model.Movement) error {
	r.once.Do(r.race)
	return r.Repository.ApplyMovement(ctx, m)
}
