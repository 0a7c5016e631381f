// Package inventory owns product stock. All stock movement goes through the
// reservation primitives so no caller ever does its own read-then-write.
package inventory

import (
	"context"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("product not found")

// InsufficientStockError identifies the first cart line that could not be
// covered. TryReserve performs no decrement at all when it is returned.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// mergeLines collapses lines naming the same product into one, so the
// availability check and the decrement agree on the total quantity requested.
// First-seen order is preserved.
func mergeLines(lines []CartLine) []CartLine {
	merged := make([]CartLine, 0, len(lines))
	index := make(map[string]int, len(lines))
	for _, l := range lines {
		if i, ok := index[l.ProductID]; ok {
			merged[i].Quantity += l.Quantity
			continue
		}
		index[l.ProductID] = len(merged)
		merged = append(merged, l)
	}
	return merged
}

// Store is the inventory contract. TryReserve is all-or-nothing across the
// whole cart: either every line is checked and decremented, or nothing is.
type Store interface {
	GetProduct(ctx context.Context, productID string) (Product, error)
	ListProducts(ctx context.Context, f ListFilter) ([]Product, error)
	CreateProduct(ctx context.Context, np NewProduct) (Product, error)
	UpdateProduct(ctx context.Context, productID string, p Product) (Product, error)
	DeleteProduct(ctx context.Context, productID string) error

	TryReserve(ctx context.Context, lines []CartLine) (*Reservation, error)
	Release(ctx context.Context, r *Reservation) error
	Confirm(ctx context.Context, r *Reservation) error
}
