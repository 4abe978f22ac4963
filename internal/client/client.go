// Package client talks to the remote cart service. The store consumes the
// CartAPI contract; the HTTP implementation lives in this package too.
package client

import (
	"context"
	"fmt"

	"github.com/shopfront/cartsync/internal/domain"
)

// CartAPI is the remote cart service contract. All mutations report only
// success or failure; the authoritative item list comes from FetchCart.
type CartAPI interface {
	FetchCart(ctx context.Context) (domain.Items, error)
	AddItem(ctx context.Context, productID string, quantity int, variantID string) error
	UpdateItem(ctx context.Context, productID string, quantity int, variantID string) error
	RemoveItem(ctx context.Context, productID, variantID string) error
	ClearCart(ctx context.Context) error
}

// APIError is a non-2xx response from the cart service. Message is taken from
// the response body when the service provides one.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cart api: %s (status %d)", e.Message, e.Status)
}
