package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Abdurahmanit/GroupProject/cart-service/internal/adapter/client"
	"github.com/Abdurahmanit/GroupProject/cart-service/internal/domain/entity"
	"github.com/Abdurahmanit/GroupProject/cart-service/internal/platform/logger"
	"github.com/Abdurahmanit/GroupProject/cart-service/internal/platform/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type NoOpLogger struct{}

func (l *NoOpLogger) Init()                                       {}
func (l *NoOpLogger) Debug(args ...interface{})                   {}
func (l *NoOpLogger) Debugf(template string, args ...interface{}) {}
func (l *NoOpLogger) Info(args ...interface{})                    {}
func (l *NoOpLogger) Infof(template string, args ...interface{})  {}
func (l *NoOpLogger) Warn(args ...interface{})                    {}
func (l *NoOpLogger) Warnf(template string, args ...interface{})  {}
func (l *NoOpLogger) Error(args ...interface{})                   {}
func (l *NoOpLogger) Errorf(template string, args ...interface{}) {}
func (l *NoOpLogger) Fatal(args ...interface{})                   {}
func (l *NoOpLogger) Fatalf(template string, args ...interface{}) {}
func (l *NoOpLogger) With(args ...interface{}) logger.Logger      { return l }

// MockCartGateway records the order of remote calls on top of the usual
// expectation plumbing, so tests can assert call sequences like
// clear-then-push.
type MockCartGateway struct {
	mock.Mock
	mu  sync.Mutex
	ops []string
}

func (m *MockCartGateway) record(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, op)
}

func (m *MockCartGateway) Ops() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ops := make([]string, len(m.ops))
	copy(ops, m.ops)
	return ops
}

func (m *MockCartGateway) FetchCart(ctx context.Context) (entity.CartSnapshot, error) {
	m.record("fetch")
	args := m.Called(ctx)
	return args.Get(0).(entity.CartSnapshot), args.Error(1)
}

func (m *MockCartGateway) AddItem(ctx context.Context, productID int64, skuID *int64, quantity int) (entity.CartSnapshot, error) {
	m.record("add")
	args := m.Called(ctx, productID, skuID, quantity)
	return args.Get(0).(entity.CartSnapshot), args.Error(1)
}

func (m *MockCartGateway) UpdateItem(ctx context.Context, itemID int64, quantity int) (entity.CartSnapshot, error) {
	m.record("update")
	args := m.Called(ctx, itemID, quantity)
	return args.Get(0).(entity.CartSnapshot), args.Error(1)
}

func (m *MockCartGateway) RemoveItem(ctx context.Context, itemID int64) (entity.CartSnapshot, error) {
	m.record("remove")
	args := m.Called(ctx, itemID)
	return args.Get(0).(entity.CartSnapshot), args.Error(1)
}

func (m *MockCartGateway) ClearCart(ctx context.Context) (client.ClearResult, error) {
	m.record("clear")
	args := m.Called(ctx)
	return args.Get(0).(client.ClearResult), args.Error(1)
}

// memStore is an in-memory LocalCartStore that records saves and can be
// switched into a failing mode to exercise storage degradation.
type memStore struct {
	mu    sync.Mutex
	data  map[string][]entity.CartLine
	saves [][]entity.CartLine
	fail  bool
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]entity.CartLine)}
}

func (s *memStore) Load(_ context.Context, sessionID string) ([]entity.CartLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errors.New("store unavailable")
	}
	lines, ok := s.data[sessionID]
	if !ok {
		return []entity.CartLine{}, nil
	}
	out := make([]entity.CartLine, len(lines))
	copy(out, lines)
	return out, nil
}

func (s *memStore) Save(_ context.Context, sessionID string, lines []entity.CartLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("store unavailable")
	}
	saved := make([]entity.CartLine, len(lines))
	copy(saved, lines)
	s.data[sessionID] = saved
	s.saves = append(s.saves, saved)
	return nil
}

func (s *memStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("store unavailable")
	}
	delete(s.data, sessionID)
	return nil
}

func (s *memStore) lastSave() []entity.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saves) == 0 {
		return nil
	}
	return s.saves[len(s.saves)-1]
}

type stubOracle struct {
	mu     sync.Mutex
	authed bool
}

func (o *stubOracle) IsAuthenticated() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.authed
}

func (o *stubOracle) SessionID() string { return "session-1" }

func (o *stubOracle) setAuthed(v bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.authed = v
}

func newTestSync(store *memStore, gateway *MockCartGateway, oracle *stubOracle) (CartSync, *ViewState) {
	view := NewViewState()
	return NewCartSync(store, gateway, oracle, view, &NoOpLogger{}, CartSyncConfig{}), view
}

func snapshotOf(lines ...entity.CartLine) entity.CartSnapshot {
	if lines == nil {
		lines = []entity.CartLine{}
	}
	return entity.CartSnapshot{Items: lines}
}

func TestInitialize_GuestLoadsLocalStore(t *testing.T) {
	store := newMemStore()
	store.data["session-1"] = []entity.CartLine{{ID: 1, Price: 100, Quantity: 2}}
	gateway := new(MockCartGateway)
	svc, view := newTestSync(store, gateway, &stubOracle{})

	require.NoError(t, svc.Initialize(context.Background()))

	assert.Equal(t, StateGuestActive, svc.State())
	assert.True(t, view.IsInitialized())
	assert.False(t, view.IsLoading())
	require.Len(t, view.Items(), 1)
	assert.Equal(t, int64(1), view.Items()[0].ID)
	gateway.AssertNotCalled(t, "FetchCart", mock.Anything)
}

func TestInitialize_AuthenticatedAdoptsRemoteCart(t *testing.T) {
	store := newMemStore()
	gateway := new(MockCartGateway)
	remote := snapshotOf(entity.CartLine{ID: 5, Price: 300, Quantity: 1})
	gateway.On("FetchCart", mock.Anything).Return(remote, nil)
	svc, view := newTestSync(store, gateway, &stubOracle{authed: true})

	require.NoError(t, svc.Initialize(context.Background()))

	assert.Equal(t, StateAuthActive, svc.State())
	require.Len(t, view.Items(), 1)
	assert.Equal(t, int64(5), view.Items()[0].ID)
}

func TestInitialize_AuthenticatedEmptyRemotePushesLeftoverLocal(t *testing.T) {
	store := newMemStore()
	store.data["session-1"] = []entity.CartLine{{ID: 1, Price: 100, Quantity: 2}}
	gateway := new(MockCartGateway)
	gateway.On("FetchCart", mock.Anything).Return(snapshotOf(), nil)
	pushed := snapshotOf(entity.CartLine{ID: 11, Price: 100, Quantity: 2})
	gateway.On("AddItem", mock.Anything, int64(1), (*int64)(nil), 2).Return(pushed, nil)
	svc, view := newTestSync(store, gateway, &stubOracle{authed: true})

	require.NoError(t, svc.Initialize(context.Background()))

	assert.Equal(t, StateAuthActive, svc.State())
	assert.Equal(t, []string{"fetch", "add"}, gateway.Ops())
	require.Len(t, view.Items(), 1)
	assert.Equal(t, int64(11), view.Items()[0].ID)
}

func TestInitialize_SecondCallIsNoOp(t *testing.T) {
	store := newMemStore()
	gateway := new(MockCartGateway)
	svc, _ := newTestSync(store, gateway, &stubOracle{})

	require.NoError(t, svc.Initialize(context.Background()))
	require.NoError(t, svc.Initialize(context.Background()))
	assert.Equal(t, StateGuestActive, svc.State())
}

func TestAddToCart_GuestAccumulatesSameIdentity(t *testing.T) {
	store := newMemStore()
	gateway := new(MockCartGateway)
	svc, view := newTestSync(store, gateway, &stubOracle{})
	require.NoError(t, svc.Initialize(context.Background()))

	line := entity.CartLine{ID: 1, Name: "Shoe", Price: 100, Quantity: 2}
	require.NoError(t, svc.AddToCart(context.Background(), line))
	require.NoError(t, svc.AddToCart(context.Background(), line))

	items := view.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 4, items[0].Quantity)
	require.Len(t, store.lastSave(), 1)
	assert.Equal(t, 4, store.lastSave()[0].Quantity)
	gateway.AssertNotCalled(t, "AddItem", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAddToCart_GuestDefaultsQuantityToOne(t *testing.T) {
	store := newMemStore()
	gateway := new(MockCartGateway)
	svc, view := newTestSync(store, gateway, &stubOracle{})

	require.NoError(t, svc.AddToCart(context.Background(), entity.CartLine{ID: 1, Price: 100}))

	require.Len(t, view.Items(), 1)
	assert.Equal(t, 1, view.Items()[0].Quantity)
}

func TestAddToCart_AuthenticatedUsesGateway(t *testing.T) {
	store := newMemStore()
	gateway := new(MockCartGateway)
	snap := snapshotOf(entity.CartLine{ID: 21, Price: 100, Quantity: 3})
	gateway.On("AddItem", mock.Anything, int64(1), (*int64)(nil), 3).Return(snap, nil)
	svc, view := newTestSync(store, gateway, &stubOracle{authed: true})

	require.NoError(t, svc.AddToCart(context.Background(), entity.CartLine{ID: 1, Price: 100, Quantity: 3}))

	require.Len(t, view.Items(), 1)
	assert.Equal(t, int64(21), view.Items()[0].ID)
	assert.Empty(t, store.saves)
	gateway.AssertExpectations(t)
}

func TestAddToCart_NetworkFaultLeavesViewIntact(t *testing.T) {
	store := newMemStore()
	gateway := new(MockCartGateway)
	gateway.On("AddItem", mock.Anything, int64(1), (*int64)(nil), 1).
		Return(entity.CartSnapshot{}, errors.New("connection refused"))
	svc, view := newTestSync(store, gateway, &stubOracle{authed: true})
	view.SetItems([]entity.CartLine{{ID: 9, Price: 50, Quantity: 1}})

	err := svc.AddToCart(context.Background(), entity.CartLine{ID: 1, Price: 100, Quantity: 1})

	require.Error(t, err)
	require.Len(t, view.Items(), 1)
	assert.Equal(t, int64(9), view.Items()[0].ID)
}

func TestUpdateQuantity_FloorIsNoOp(t *testing.T) {
	store := newMemStore()
	gateway := new(MockCartGateway)
	svc, view := newTestSync(store, gateway, &stubOracle{authed: true})
	view.SetItems([]entity.CartLine{{ID: 4, Price: 100, Quantity: 2}})

	require.NoError(t, svc.UpdateQuantity(context.Background(), 4, 0))
	require.NoError(t, svc.UpdateQuantity(context.Background(), 4, -1))

	assert.Equal(t, 2, view.Items()[0].Quantity)
	gateway.AssertNotCalled(t, "UpdateItem", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateQuantity_GuestIsIdempotent(t *testing.T) {
	store := newMemStore()
	store.data["session-1"] = []entity.CartLine{{ID: 1, Price: 100, Quantity: 2}}
	gateway := new(MockCartGateway)
	svc, view := newTestSync(store, gateway, &stubOracle{})
	require.NoError(t, svc.Initialize(context.Background()))

	require.NoError(t, svc.UpdateQuantity(context.Background(), 1, 5))
	first := view.Snapshot()
	require.NoError(t, svc.UpdateQuantity(context.Background(), 1, 5))
	second := view.Snapshot()

	assert.Equal(t, first, second)
	assert.Equal(t, 5, store.lastSave()[0].Quantity)
}

func TestRemoveFromCart_GuestLastLinePersistsEmptyArray(t *testing.T) {
	store := newMemStore()
	store.data["session-1"] = []entity.CartLine{{ID: 7, Price: 100, Quantity: 1}}
	gateway := new(MockCartGateway)
	svc, view := newTestSync(store, gateway, &stubOracle{})
	require.NoError(t, svc.Initialize(context.Background()))

	require.NoError(t, svc.RemoveFromCart(context.Background(), 7))

	assert.Empty(t, view.Items())
	saved, ok := store.data["session-1"]
	require.True(t, ok, "an emptied cart must persist as an empty array, not a missing key")
	assert.NotNil(t, saved)
	assert.Empty(t, saved)
}

func TestClearCart_Guest(t *testing.T) {
	store := newMemStore()
	store.data["session-1"] = []entity.CartLine{{ID: 7, Price: 100, Quantity: 1}}
	gateway := new(MockCartGateway)
	svc, view := newTestSync(store, gateway, &stubOracle{})
	require.NoError(t, svc.Initialize(context.Background()))

	require.NoError(t, svc.ClearCart(context.Background()))

	assert.Empty(t, view.Items())
	_, ok := store.data["session-1"]
	assert.False(t, ok)
}

func TestClearCart_Authenticated(t *testing.T) {
	store := newMemStore()
	gateway := new(MockCartGateway)
	gateway.On("ClearCart", mock.Anything).Return(client.ClearResult{Success: true, Message: "Cart cleared"}, nil)
	svc, view := newTestSync(store, gateway, &stubOracle{authed: true})
	view.SetItems([]entity.CartLine{{ID: 7, Price: 100, Quantity: 1}})

	require.NoError(t, svc.ClearCart(context.Background()))

	assert.Empty(t, view.Items())
	gateway.AssertExpectations(t)
}

func TestClearCart_RemoteRefusalKeepsView(t *testing.T) {
	store := newMemStore()
	gateway := new(MockCartGateway)
	gateway.On("ClearCart", mock.Anything).Return(client.ClearResult{Success: false}, nil)
	svc, view := newTestSync(store, gateway, &stubOracle{authed: true})
	view.SetItems([]entity.CartLine{{ID: 7, Price: 100, Quantity: 1}})

	err := svc.ClearCart(context.Background())

	require.Error(t, err)
	require.Len(t, view.Items(), 1)
	assert.Equal(t, int64(7), view.Items()[0].ID)
}

func TestOnLoginSuccess_LocalCartWins(t *testing.T) {
	store := newMemStore()
	store.data["session-1"] = []entity.CartLine{{ID: 1, Price: 100, Quantity: 2}}
	gateway := new(MockCartGateway)
	remote := snapshotOf(entity.CartLine{ID: 5, Price: 200, Quantity: 1})
	gateway.On("FetchCart", mock.Anything).Return(remote, nil)
	gateway.On("ClearCart", mock.Anything).Return(client.ClearResult{Success: true}, nil)
	final := snapshotOf(entity.CartLine{ID: 31, Price: 100, Quantity: 2})
	gateway.On("AddItem", mock.Anything, int64(1), (*int64)(nil), 2).Return(final, nil)

	oracle := &stubOracle{}
	svc, view := newTestSync(store, gateway, oracle)
	require.NoError(t, svc.Initialize(context.Background()))
	require.Equal(t, StateGuestActive, svc.State())

	oracle.setAuthed(true)
	require.NoError(t, svc.OnLoginSuccess(context.Background()))

	// The server cart is cleared before the local lines are pushed.
	assert.Equal(t, []string{"fetch", "clear", "add"}, gateway.Ops())
	assert.Equal(t, StateAuthActive, svc.State())
	require.Len(t, view.Items(), 1)
	assert.Equal(t, 2, view.Items()[0].Quantity)
}

func TestOnLoginSuccess_EmptyLocalAdoptsRemote(t *testing.T) {
	store := newMemStore()
	gateway := new(MockCartGateway)
	remote := snapshotOf(entity.CartLine{ID: 5, Price: 200, Quantity: 1})
	gateway.On("FetchCart", mock.Anything).Return(remote, nil)

	oracle := &stubOracle{authed: true}
	svc, view := newTestSync(store, gateway, oracle)

	require.NoError(t, svc.OnLoginSuccess(context.Background()))

	assert.Equal(t, []string{"fetch"}, gateway.Ops())
	gateway.AssertNotCalled(t, "ClearCart", mock.Anything)
	require.Len(t, view.Items(), 1)
	assert.Equal(t, int64(5), view.Items()[0].ID)
}

func TestOnLogout_ReloadsLocalStoreNotRemote(t *testing.T) {
	store := newMemStore()
	store.data["session-1"] = []entity.CartLine{{ID: 2, Price: 100, Quantity: 1}}
	gateway := new(MockCartGateway)
	oracle := &stubOracle{authed: true}
	svc, view := newTestSync(store, gateway, oracle)
	view.SetItems([]entity.CartLine{{ID: 9, Price: 500, Quantity: 3}})

	oracle.setAuthed(false)
	require.NoError(t, svc.OnLogout(context.Background()))

	assert.Equal(t, StateGuestActive, svc.State())
	require.Len(t, view.Items(), 1)
	assert.Equal(t, int64(2), view.Items()[0].ID)
	assert.Equal(t, 1, view.Items()[0].Quantity)
}

func TestGuestMutations_DegradeToMemoryWhenStoreFails(t *testing.T) {
	store := newMemStore()
	store.fail = true
	gateway := new(MockCartGateway)
	svc, view := newTestSync(store, gateway, &stubOracle{})

	require.NoError(t, svc.AddToCart(context.Background(), entity.CartLine{ID: 1, Price: 100, Quantity: 1}))
	require.NoError(t, svc.AddToCart(context.Background(), entity.CartLine{ID: 1, Price: 100, Quantity: 1}))

	items := view.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
}

func TestAddToCart_CountsMutationMetrics(t *testing.T) {
	store := newMemStore()
	gateway := new(MockCartGateway)
	view := NewViewState()
	mm := metrics.NewMetricsManager("cart_service_test")
	svc := NewCartSync(store, gateway, &stubOracle{}, view, &NoOpLogger{}, CartSyncConfig{Metrics: mm})

	require.NoError(t, svc.AddToCart(context.Background(), entity.CartLine{ID: 1, Price: 100, Quantity: 1}))

	count := testutil.ToFloat64(mm.CartMutationsTotal.WithLabelValues("add", "local"))
	assert.Equal(t, float64(1), count)
	assert.Equal(t, float64(0), testutil.ToFloat64(mm.CartMutationsTotal.WithLabelValues("add", "remote")))
}

func TestConcurrentSameLineMutations_DoNotDropUpdates(t *testing.T) {
	store := newMemStore()
	gateway := new(MockCartGateway)
	svc, view := newTestSync(store, gateway, &stubOracle{})

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = svc.AddToCart(context.Background(), entity.CartLine{ID: 1, Price: 100, Quantity: 1})
		}()
	}
	wg.Wait()

	items := view.Items()
	require.Len(t, items, 1)
	assert.Equal(t, workers, items[0].Quantity)
}
