package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Abdurahmanit/GroupProject/cart-service/internal/adapter/client"
	"github.com/Abdurahmanit/GroupProject/cart-service/internal/domain/entity"
	"github.com/Abdurahmanit/GroupProject/cart-service/internal/platform/logger"
	"github.com/Abdurahmanit/GroupProject/cart-service/internal/platform/metrics"
	"github.com/Abdurahmanit/GroupProject/cart-service/internal/repository"
	"github.com/google/uuid"
)

// State is the per-session phase of the cart sync machine. The machine
// cycles between guest and authenticated ownership for the lifetime of
// the session; there is no terminal state.
type State int32

const (
	StateUninitialized State = iota
	StateGuestActive
	StateAuthActive
	StateReconciling
)

func (s State) String() string {
	switch s {
	case StateGuestActive:
		return "GUEST_ACTIVE"
	case StateAuthActive:
		return "AUTH_ACTIVE"
	case StateReconciling:
		return "RECONCILING"
	default:
		return "UNINITIALIZED"
	}
}

// AuthOracle answers whether the current session is authenticated. It
// must not fail: any doubt reads as guest. session.Manager implements it.
type AuthOracle interface {
	IsAuthenticated() bool
	SessionID() string
}

// EventPublisher emits cart events. nats.MessagePublisher satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, message interface{}) error
}

const (
	subjectCartUpdated    = "cart.updated"
	subjectCartReconciled = "cart.reconciled"
)

type cartEvent struct {
	EventID   string            `json:"event_id"`
	SessionID string            `json:"session_id"`
	Items     []entity.CartLine `json:"items"`
	Total     int64             `json:"total"`
	ItemCount int               `json:"item_count"`
}

// CartSync is the single orchestration point for cart mutations. For every
// operation it decides which backend owns the cart — the local guest store
// or the remote cart resource — and it performs the one-time local-to-remote
// merge when a guest session becomes authenticated.
//
// Mutations touching the same cart line are applied strictly in issuance
// order; mutations on different lines may interleave. Network failures are
// returned to the caller with the previous view state left intact; local
// storage failures degrade the guest cart to in-memory and are logged only.
type CartSync interface {
	Initialize(ctx context.Context) error
	AddToCart(ctx context.Context, line entity.CartLine) error
	UpdateQuantity(ctx context.Context, itemID int64, quantity int) error
	RemoveFromCart(ctx context.Context, itemID int64) error
	ClearCart(ctx context.Context) error
	OnLoginSuccess(ctx context.Context) error
	OnLogout(ctx context.Context) error
	State() State
}

type cartSync struct {
	store     repository.LocalCartStore
	gateway   client.CartGateway
	auth      AuthOracle
	view      *ViewState
	log       logger.Logger
	metrics   *metrics.MetricsManager
	publisher EventPublisher
	queue     *keyedSerializer

	// localMu guards the read-modify-write cycle on the guest store, so
	// mutations on different lines cannot lose each other's writes.
	localMu sync.Mutex

	stateMu sync.Mutex
	state   State
}

// CartSyncConfig carries the optional collaborators. Both may be nil.
type CartSyncConfig struct {
	Metrics   *metrics.MetricsManager
	Publisher EventPublisher
}

func NewCartSync(
	store repository.LocalCartStore,
	gateway client.CartGateway,
	auth AuthOracle,
	view *ViewState,
	log logger.Logger,
	cfg CartSyncConfig,
) CartSync {
	return &cartSync{
		store:     store,
		gateway:   gateway,
		auth:      auth,
		view:      view,
		log:       log,
		metrics:   cfg.Metrics,
		publisher: cfg.Publisher,
		queue:     newKeyedSerializer(),
		state:     StateUninitialized,
	}
}

func (s *cartSync) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

func (s *cartSync) setState(next State) {
	s.stateMu.Lock()
	prev := s.state
	s.state = next
	s.stateMu.Unlock()
	if prev != next {
		s.log.Debugf("Cart sync state: %s -> %s", prev, next)
	}
}

// Initialize loads the cart from whichever backend owns it. An
// authenticated session whose remote cart is empty while the local store
// still holds lines (carried over from a prior guest session) pushes the
// local lines to the server before settling.
func (s *cartSync) Initialize(ctx context.Context) error {
	if s.view.IsInitialized() {
		return nil
	}
	defer s.observe("initialize", time.Now())
	s.view.SetLoading(true)
	defer s.view.SetLoading(false)

	if !s.auth.IsAuthenticated() {
		lines, _ := s.loadLocal(ctx)
		s.view.SetItems(lines)
		s.setState(StateGuestActive)
		s.view.SetInitialized(true)
		s.log.Infof("Cart initialized for guest session %s with %d lines", s.auth.SessionID(), len(lines))
		return nil
	}

	snap, err := s.gateway.FetchCart(ctx)
	if err != nil {
		s.countGatewayError("fetch")
		return fmt.Errorf("could not fetch remote cart: %w", err)
	}

	if snap.IsEmpty() {
		if local, ok := s.loadLocal(ctx); ok && len(local) > 0 {
			s.setState(StateReconciling)
			pushed, err := s.pushLocalLines(ctx, local)
			if err != nil {
				s.setState(StateAuthActive)
				return err
			}
			snap = pushed
		}
	}

	s.view.SetItems(snap.Items)
	s.setState(StateAuthActive)
	s.view.SetInitialized(true)
	s.log.Infof("Cart initialized for authenticated session with %d lines", len(snap.Items))
	return nil
}

// AddToCart appends the line to the active cart, accumulating quantity
// into an existing line with the same (product, SKU) identity. A
// non-positive quantity defaults to one.
func (s *cartSync) AddToCart(ctx context.Context, line entity.CartLine) error {
	if line.ID <= 0 {
		return fmt.Errorf("product ID must be positive")
	}
	if line.Quantity <= 0 {
		line.Quantity = 1
	}
	defer s.observe("add", time.Now())

	return s.queue.Do(ctx, line.IdentityKey(), func() error {
		if s.auth.IsAuthenticated() {
			snap, err := s.gateway.AddItem(ctx, line.ID, line.ProductSkuID, line.Quantity)
			if err != nil {
				s.countGatewayError("add")
				return fmt.Errorf("could not add item to remote cart: %w", err)
			}
			s.view.SetItems(snap.Items)
			s.countMutation("add", "remote")
		} else {
			s.localMu.Lock()
			cart := entity.NewCart(s.guestLines(ctx))
			if err := cart.AddLine(line); err != nil {
				s.localMu.Unlock()
				return fmt.Errorf("could not add item to cart: %w", err)
			}
			s.persistLocal(ctx, cart.Items)
			s.view.SetItems(cart.Items)
			s.localMu.Unlock()
			s.countMutation("add", "local")
		}
		s.publishEvent(ctx, subjectCartUpdated)
		return nil
	})
}

// UpdateQuantity sets the quantity of an existing line. Quantities below
// one are rejected synchronously as a no-op: no backend call is made and
// the snapshot is unchanged.
func (s *cartSync) UpdateQuantity(ctx context.Context, itemID int64, quantity int) error {
	if quantity <= 0 {
		s.log.Debugf("Ignoring quantity update to %d for line %d", quantity, itemID)
		return nil
	}
	defer s.observe("update", time.Now())

	return s.queue.Do(ctx, s.identityKeyFor(itemID), func() error {
		if s.auth.IsAuthenticated() {
			snap, err := s.gateway.UpdateItem(ctx, itemID, quantity)
			if err != nil {
				s.countGatewayError("update")
				return fmt.Errorf("could not update item quantity in remote cart: %w", err)
			}
			s.view.SetItems(snap.Items)
			s.countMutation("update", "remote")
		} else {
			s.localMu.Lock()
			cart := entity.NewCart(s.guestLines(ctx))
			if err := cart.UpdateQuantity(itemID, quantity); err != nil {
				s.localMu.Unlock()
				return fmt.Errorf("could not update item quantity: %w", err)
			}
			s.persistLocal(ctx, cart.Items)
			s.view.SetItems(cart.Items)
			s.localMu.Unlock()
			s.countMutation("update", "local")
		}
		s.publishEvent(ctx, subjectCartUpdated)
		return nil
	})
}

func (s *cartSync) RemoveFromCart(ctx context.Context, itemID int64) error {
	defer s.observe("remove", time.Now())

	return s.queue.Do(ctx, s.identityKeyFor(itemID), func() error {
		if s.auth.IsAuthenticated() {
			snap, err := s.gateway.RemoveItem(ctx, itemID)
			if err != nil {
				s.countGatewayError("remove")
				return fmt.Errorf("could not remove item from remote cart: %w", err)
			}
			s.view.SetItems(snap.Items)
			s.countMutation("remove", "remote")
		} else {
			s.localMu.Lock()
			cart := entity.NewCart(s.guestLines(ctx))
			if err := cart.RemoveLine(itemID); err != nil {
				s.localMu.Unlock()
				return fmt.Errorf("could not remove item from cart: %w", err)
			}
			// An emptied cart persists as an empty array, not a missing key.
			s.persistLocal(ctx, cart.Items)
			s.view.SetItems(cart.Items)
			s.localMu.Unlock()
			s.countMutation("remove", "local")
		}
		s.publishEvent(ctx, subjectCartUpdated)
		return nil
	})
}

func (s *cartSync) ClearCart(ctx context.Context) error {
	defer s.observe("clear", time.Now())

	if s.auth.IsAuthenticated() {
		result, err := s.gateway.ClearCart(ctx)
		if err != nil {
			s.countGatewayError("clear")
			return fmt.Errorf("could not clear remote cart: %w", err)
		}
		if !result.Success {
			return fmt.Errorf("remote cart clear refused: %s", result.Message)
		}
		s.countMutation("clear", "remote")
	} else {
		if err := s.store.Clear(ctx, s.auth.SessionID()); err != nil {
			s.log.Warnf("Failed to clear guest cart store, keeping in-memory state only: %v", err)
		}
		s.countMutation("clear", "local")
	}

	s.view.SetItems(nil)
	s.publishEvent(ctx, subjectCartUpdated)
	return nil
}

// OnLoginSuccess performs the guest-to-authenticated transition. The policy
// is local-cart-wins: when the guest cart holds lines, any pre-existing
// server cart is cleared and the local lines are pushed one by one.
func (s *cartSync) OnLoginSuccess(ctx context.Context) error {
	defer s.observe("login", time.Now())
	s.setState(StateReconciling)
	s.view.SetLoading(true)
	defer s.view.SetLoading(false)

	local, _ := s.loadLocal(ctx)

	if len(local) == 0 {
		snap, err := s.gateway.FetchCart(ctx)
		if err != nil {
			s.countGatewayError("fetch")
			s.setState(StateAuthActive)
			return fmt.Errorf("could not fetch remote cart after login: %w", err)
		}
		s.view.SetItems(snap.Items)
		s.setState(StateAuthActive)
		s.view.SetInitialized(true)
		return nil
	}

	remote, err := s.gateway.FetchCart(ctx)
	if err != nil {
		s.countGatewayError("fetch")
		s.setState(StateAuthActive)
		return fmt.Errorf("could not fetch remote cart after login: %w", err)
	}

	if !remote.IsEmpty() {
		s.log.Infof("Discarding %d remote cart lines in favor of the local cart", len(remote.Items))
		if _, err := s.gateway.ClearCart(ctx); err != nil {
			s.countGatewayError("clear")
			s.setState(StateAuthActive)
			return fmt.Errorf("could not clear remote cart before merge: %w", err)
		}
	}

	final, err := s.pushLocalLines(ctx, local)
	if err != nil {
		s.setState(StateAuthActive)
		return err
	}

	s.view.SetItems(final.Items)
	s.setState(StateAuthActive)
	s.view.SetInitialized(true)
	s.log.Infof("Merged %d local cart lines into the remote cart", len(local))
	return nil
}

// OnLogout reverts to whatever the local store currently holds, not to the
// just-abandoned remote cart.
func (s *cartSync) OnLogout(ctx context.Context) error {
	defer s.observe("logout", time.Now())

	lines, _ := s.loadLocal(ctx)
	s.view.SetItems(lines)
	s.setState(StateGuestActive)
	s.log.Infof("Cart reverted to guest session %s with %d lines", s.auth.SessionID(), len(lines))
	return nil
}

// pushLocalLines adds every local line to the remote cart individually and
// returns the server's view after the last push.
func (s *cartSync) pushLocalLines(ctx context.Context, lines []entity.CartLine) (entity.CartSnapshot, error) {
	snap := entity.EmptySnapshot()
	for _, line := range lines {
		pushed, err := s.gateway.AddItem(ctx, line.ID, line.ProductSkuID, line.Quantity)
		if err != nil {
			s.countGatewayError("add")
			return entity.CartSnapshot{}, fmt.Errorf("could not push local line %d to remote cart: %w", line.ID, err)
		}
		snap = pushed
	}
	if s.metrics != nil {
		s.metrics.ReconciliationsTotal.Inc()
	}
	s.publishEvent(ctx, subjectCartReconciled)
	return snap, nil
}

// guestLines is the base for a guest mutation: the local store when it is
// reachable, the current view otherwise (in-memory degradation).
func (s *cartSync) guestLines(ctx context.Context) []entity.CartLine {
	lines, ok := s.loadLocal(ctx)
	if !ok {
		return s.view.Items()
	}
	return lines
}

func (s *cartSync) loadLocal(ctx context.Context) ([]entity.CartLine, bool) {
	lines, err := s.store.Load(ctx, s.auth.SessionID())
	if err != nil {
		s.log.Warnf("Failed to load guest cart, treating as empty: %v", err)
		return nil, false
	}
	return lines, true
}

func (s *cartSync) persistLocal(ctx context.Context, lines []entity.CartLine) {
	if err := s.store.Save(ctx, s.auth.SessionID(), lines); err != nil {
		s.log.Warnf("Failed to persist guest cart, keeping in-memory state only: %v", err)
	}
}

// identityKeyFor maps a line ID onto the serialization key of the line it
// currently denotes, so updates and removals chain behind pending adds for
// the same line. The lookup relies on the view: when a server item ID
// differs from the product ID and the view has not yet adopted the add's
// response, a mutation issued in that window falls back to the i<id> key
// and runs on its own chain instead of behind the add.
func (s *cartSync) identityKeyFor(itemID int64) string {
	for _, line := range s.view.Items() {
		if line.ID == itemID {
			return line.IdentityKey()
		}
	}
	return fmt.Sprintf("i%d", itemID)
}

func (s *cartSync) publishEvent(ctx context.Context, subject string) {
	if s.publisher == nil {
		return
	}
	snap := s.view.Snapshot()
	event := cartEvent{
		EventID:   uuid.NewString(),
		SessionID: s.auth.SessionID(),
		Items:     snap.Items,
		Total:     snap.Total(),
		ItemCount: snap.ItemCount(),
	}
	if err := s.publisher.Publish(ctx, subject, event); err != nil {
		s.log.Warnf("Failed to publish %s event: %v", subject, err)
	}
}

func (s *cartSync) observe(op string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.OperationLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (s *cartSync) countMutation(op, backend string) {
	if s.metrics == nil {
		return
	}
	s.metrics.CartMutationsTotal.WithLabelValues(op, backend).Inc()
}

func (s *cartSync) countGatewayError(op string) {
	if s.metrics == nil {
		return
	}
	s.metrics.GatewayErrorsTotal.WithLabelValues(op).Inc()
}
