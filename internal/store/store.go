// Package store owns the client-side view of the shopping cart and keeps it
// consistent with the remote cart service. Every mutation is server-confirmed:
// the local collection changes only after the corresponding remote call
// succeeds, so the user is never shown a cart the backend has not agreed to.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/shopfront/cartsync/internal/client"
	"github.com/shopfront/cartsync/internal/domain"
	"github.com/shopfront/cartsync/internal/notify"
)

var (
	ErrInvalidQuantity = errors.New("store: quantity must be at least 1")
	ErrMissingProduct  = errors.New("store: product id is required")
)

// genericFailure is shown when the service gives no usable error message.
const genericFailure = "cart request failed"

// Store is a constructor-injected state container; there is no package-level
// instance. It is safe for concurrent use, but cross-intent ordering is not
// enforced: two racing mutations on one slot resolve in network-completion
// order, and Refresh reconciles any drift.
type Store struct {
	mu        sync.Mutex
	items     domain.Items
	syncing   bool
	lastError string
	panelOpen bool

	api      client.CartAPI
	mirror   *Mirror
	notifier notify.Notifier
	logger   *zap.Logger
	sfg      singleflight.Group
}

// New builds a store seeded from the mirror's last snapshot. The seed is
// provisional: the first successful Refresh replaces it wholesale.
func New(api client.CartAPI, mirror *Mirror, notifier notify.Notifier, logger *zap.Logger) *Store {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		items:    mirror.Load(),
		api:      api,
		mirror:   mirror,
		notifier: notifier,
		logger:   logger,
	}
}

// Refresh pulls the authoritative cart from the service and replaces the
// local collection with it — a full replace, never a merge. Concurrent calls
// are coalesced into a single request.
func (s *Store) Refresh(ctx context.Context) error {
	_, err, _ := s.sfg.Do("refresh", func() (interface{}, error) {
		s.mu.Lock()
		s.syncing = true
		s.mu.Unlock()

		items, err := s.api.FetchCart(ctx)

		s.mu.Lock()
		s.syncing = false
		if err != nil {
			s.lastError = errMessage(err)
		} else {
			s.items = items
			s.lastError = ""
		}
		snapshot := s.items.Clone()
		s.mu.Unlock()

		s.mirror.Save(snapshot)
		if err != nil {
			s.logger.Warn("cart fetch failed", zap.Error(err))
			return nil, fmt.Errorf("fetch cart: %w", err)
		}
		return nil, nil
	})
	return err
}

// AddItem adds quantity units of the product to the cart. An existing
// product/variant slot is incremented by the delta; a new slot is appended
// with the given snapshot. The increment trusts the client-computed delta
// rather than re-reading the response body; Refresh reconciles any drift with
// the service's own arithmetic.
func (s *Store) AddItem(ctx context.Context, product domain.ProductSnapshot, quantity int, variantID string) error {
	if product.ID == "" {
		s.notifier.Error(genericFailure)
		return ErrMissingProduct
	}
	if quantity < 1 {
		s.notifier.Error(genericFailure)
		return ErrInvalidQuantity
	}

	err := s.api.AddItem(ctx, product.ID, quantity, variantID)
	s.apply(err, func() {
		s.items = s.items.Add(domain.LineItem{
			ProductID: product.ID,
			VariantID: variantID,
			Product:   product,
			Quantity:  quantity,
		})
	})
	if err != nil {
		return fmt.Errorf("add item %s: %w", product.ID, err)
	}
	return nil
}

// UpdateQuantity sets the absolute quantity of the slot. A quantity of zero
// or less removes the row; the cart never holds zero-quantity items.
func (s *Store) UpdateQuantity(ctx context.Context, productID string, quantity int, variantID string) error {
	err := s.api.UpdateItem(ctx, productID, quantity, variantID)
	s.apply(err, func() {
		s.items = s.items.SetQuantity(productID, variantID, quantity)
	})
	if err != nil {
		return fmt.Errorf("update item %s: %w", productID, err)
	}
	return nil
}

// RemoveItem deletes the slot from the cart.
func (s *Store) RemoveItem(ctx context.Context, productID, variantID string) error {
	err := s.api.RemoveItem(ctx, productID, variantID)
	s.apply(err, func() {
		s.items = s.items.Remove(productID, variantID)
	})
	if err != nil {
		return fmt.Errorf("remove item %s: %w", productID, err)
	}
	s.notifier.Success("item removed from cart")
	return nil
}

// Clear empties the cart.
func (s *Store) Clear(ctx context.Context) error {
	err := s.api.ClearCart(ctx)
	s.apply(err, func() {
		s.items = nil
	})
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	s.notifier.Success("cart cleared")
	return nil
}

// Reset wipes the local state and the durable snapshot without talking to the
// service. Used by logout flows.
func (s *Store) Reset() {
	s.mu.Lock()
	s.items = nil
	s.lastError = ""
	s.mu.Unlock()
	s.mirror.Drop()
}

// apply commits the outcome of a mutating intent: on success the mutation
// runs under the lock, on failure the collection stays untouched and only
// lastError changes. The mirror is written either way — the snapshot tracks
// every processed intent, not just the successful ones.
func (s *Store) apply(err error, mutate func()) {
	s.mu.Lock()
	if err != nil {
		s.lastError = errMessage(err)
	} else {
		mutate()
		s.lastError = ""
	}
	snapshot := s.items.Clone()
	s.mu.Unlock()

	s.mirror.Save(snapshot)
	if err != nil {
		s.notifier.Error(errMessage(err))
		s.logger.Warn("cart mutation failed", zap.Error(err))
	}
}

// TogglePanel flips the presentational open/closed flag. The flag is not part
// of the cart data and is never mirrored.
func (s *Store) TogglePanel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panelOpen = !s.panelOpen
}

func (s *Store) SetPanelOpen(open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panelOpen = open
}

func (s *Store) PanelOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.panelOpen
}

// Items returns a copy of the current collection in insertion order.
func (s *Store) Items() domain.Items {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items.Clone()
}

// Syncing reports whether a Refresh is outstanding.
func (s *Store) Syncing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncing
}

// LastError returns the failure message of the most recent operation, empty
// after a success.
func (s *Store) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

func (s *Store) TotalQuantity() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items.TotalQuantity()
}

func (s *Store) Subtotal() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items.Subtotal()
}

// errMessage extracts the human-readable message for lastError and
// notifications: the service-provided message when present, else a generic
// fallback.
func errMessage(err error) string {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return genericFailure
}
