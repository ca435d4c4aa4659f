package service

import (
	"sync"

	"github.com/Abdurahmanit/GroupProject/cart-service/internal/domain/entity"
)

// ViewState is the last-known cart snapshot plus loading/initialized flags
// for consumers. It is a cache of whichever backend currently owns the
// cart, never a source of truth, and does no I/O of its own. Total and
// item count are always derived from the lines.
type ViewState struct {
	mu          sync.RWMutex
	items       []entity.CartLine
	loading     bool
	initialized bool
}

func NewViewState() *ViewState {
	return &ViewState{items: make([]entity.CartLine, 0)}
}

func (v *ViewState) SetItems(lines []entity.CartLine) {
	items := make([]entity.CartLine, len(lines))
	copy(items, lines)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.items = items
}

func (v *ViewState) SetLoading(loading bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.loading = loading
}

func (v *ViewState) SetInitialized(initialized bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.initialized = initialized
}

func (v *ViewState) IsLoading() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.loading
}

func (v *ViewState) IsInitialized() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.initialized
}

// Items returns a copy of the current lines.
func (v *ViewState) Items() []entity.CartLine {
	v.mu.RLock()
	defer v.mu.RUnlock()
	items := make([]entity.CartLine, len(v.items))
	copy(items, v.items)
	return items
}

func (v *ViewState) Snapshot() entity.CartSnapshot {
	return entity.CartSnapshot{Items: v.Items()}
}
