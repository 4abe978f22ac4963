package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateSlot = errors.New("cart: duplicate product/variant slot")
	ErrBadQuantity   = errors.New("cart: quantity must be at least 1")
)

// ProductSnapshot is a denormalized copy of product display data captured at
// the last successful sync. It exists so the cart can render without a join;
// it is never authoritative for pricing at checkout.
type ProductSnapshot struct {
	ID       string  `json:"id"`
	SKU      string  `json:"sku,omitempty"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Image    string  `json:"image,omitempty"`
	Category string  `json:"category,omitempty"`
}

// LineItem is one row in the cart. A line item is addressed by its slot key,
// the (ProductID, VariantID) pair; an empty VariantID means "no variant" and
// matches only an empty VariantID.
type LineItem struct {
	ProductID string          `json:"productId"`
	VariantID string          `json:"variantId,omitempty"`
	Product   ProductSnapshot `json:"product"`
	Quantity  int             `json:"quantity"`
}

// SameSlot reports whether the item occupies the given slot. Equality is
// exact on both components, never a substring or prefix match.
func (li LineItem) SameSlot(productID, variantID string) bool {
	return li.ProductID == productID && li.VariantID == variantID
}

// SlotKey returns a printable identifier for the item's slot.
func (li LineItem) SlotKey() string {
	if li.VariantID == "" {
		return li.ProductID
	}
	return li.ProductID + "/" + li.VariantID
}

// Items is an ordered cart collection, unique by slot key. Insertion order is
// preserved for stable rendering.
type Items []LineItem

// Find returns the index of the item at the given slot, or -1.
func (it Items) Find(productID, variantID string) int {
	for i := range it {
		if it[i].SameSlot(productID, variantID) {
			return i
		}
	}
	return -1
}

// Add merges item into the collection: an existing slot has its quantity
// incremented by item.Quantity and its product snapshot refreshed, otherwise
// the item is appended. Returns the updated collection.
func (it Items) Add(item LineItem) Items {
	if i := it.Find(item.ProductID, item.VariantID); i >= 0 {
		it[i].Quantity += item.Quantity
		it[i].Product = item.Product
		return it
	}
	return append(it, item)
}

// SetQuantity sets the absolute quantity of the item at the given slot. A
// quantity of zero or less removes the row entirely; the collection never
// holds zero-quantity items. Unknown slots are left untouched.
func (it Items) SetQuantity(productID, variantID string, quantity int) Items {
	i := it.Find(productID, variantID)
	if i < 0 {
		return it
	}
	if quantity <= 0 {
		return append(it[:i], it[i+1:]...)
	}
	it[i].Quantity = quantity
	return it
}

// Remove deletes the item at the given slot, preserving the order of the
// remaining items.
func (it Items) Remove(productID, variantID string) Items {
	i := it.Find(productID, variantID)
	if i < 0 {
		return it
	}
	return append(it[:i], it[i+1:]...)
}

// Clone returns an independent copy of the collection.
func (it Items) Clone() Items {
	if it == nil {
		return nil
	}
	out := make(Items, len(it))
	copy(out, it)
	return out
}

// TotalQuantity returns the unit count across all line items.
func (it Items) TotalQuantity() int {
	total := 0
	for i := range it {
		total += it[i].Quantity
	}
	return total
}

// Subtotal returns the display subtotal computed from the denormalized
// snapshots. Not authoritative for checkout.
func (it Items) Subtotal() float64 {
	var total float64
	for i := range it {
		total += it[i].Product.Price * float64(it[i].Quantity)
	}
	return total
}

// Validate checks the collection invariants: every quantity is at least 1 and
// no two items share a slot key.
func (it Items) Validate() error {
	seen := make(map[string]struct{}, len(it))
	for i := range it {
		if it[i].Quantity < 1 {
			return fmt.Errorf("%w: %s has quantity %d", ErrBadQuantity, it[i].SlotKey(), it[i].Quantity)
		}
		key := it[i].ProductID + "\x00" + it[i].VariantID
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateSlot, it[i].SlotKey())
		}
		seen[key] = struct{}{}
	}
	return nil
}
