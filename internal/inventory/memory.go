package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is the in-memory Store. It backs the server when no DATABASE_URL is
// configured (the storefront originally ran off a local JSON file) and the
// tests. One mutex covers the whole cart so TryReserve stays all-or-nothing.
type MemStore struct {
	mu           sync.Mutex
	products     map[string]Product
	reservations map[string]ReservationState
}

func NewMemStore() *MemStore {
	return &MemStore{
		products:     make(map[string]Product),
		reservations: make(map[string]ReservationState),
	}
}

func (m *MemStore) GetProduct(_ context.Context, productID string) (Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return Product{}, ErrNotFound
	}
	return p, nil
}

func (m *MemStore) ListProducts(_ context.Context, f ListFilter) ([]Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Product
	for _, p := range m.products {
		if f.Name != "" && !strings.Contains(strings.ToLower(p.Title), strings.ToLower(f.Name)) {
			continue
		}
		if f.Category != "" && p.Category != f.Category {
			continue
		}
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool {
		var less bool
		switch f.Sort {
		case "price":
			less = out[i].PriceCents < out[j].PriceCents
		case "stock":
			less = out[i].Stock < out[j].Stock
		default:
			less = out[i].Title < out[j].Title
		}
		if f.Order == "desc" {
			return !less
		}
		return less
	})

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 10
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemStore) CreateProduct(_ context.Context, np NewProduct) (Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	p := Product{
		ID:          uuid.NewString(),
		Title:       np.Title,
		Description: np.Description,
		PriceCents:  np.PriceCents,
		Stock:       np.Stock,
		Category:    np.Category,
		ImageURL:    np.ImageURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.products[p.ID] = p
	return p, nil
}

func (m *MemStore) UpdateProduct(_ context.Context, productID string, p Product) (Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.products[productID]
	if !ok {
		return Product{}, ErrNotFound
	}
	p.ID = productID
	p.CreatedAt = cur.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	m.products[productID] = p
	return p, nil
}

func (m *MemStore) DeleteProduct(_ context.Context, productID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[productID]; !ok {
		return ErrNotFound
	}
	delete(m.products, productID)
	return nil
}

// Seed inserts a product as-is, keeping the caller's id. Used by main for
// demo data and by tests.
func (m *MemStore) Seed(p Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
}

func (m *MemStore) TryReserve(_ context.Context, lines []CartLine) (*Reservation, error) {
	lines = mergeLines(lines)

	m.mu.Lock()
	defer m.mu.Unlock()

	// Check every line before touching anything.
	for _, line := range lines {
		p, ok := m.products[line.ProductID]
		if !ok {
			return nil, ErrNotFound
		}
		if p.Stock < line.Quantity {
			return nil, &InsufficientStockError{
				ProductID: line.ProductID,
				Requested: line.Quantity,
				Available: p.Stock,
			}
		}
	}

	r := &Reservation{
		ID:        uuid.NewString(),
		State:     ReservationPending,
		CreatedAt: time.Now().UTC(),
	}
	for _, line := range lines {
		p := m.products[line.ProductID]
		p.Stock -= line.Quantity
		p.UpdatedAt = time.Now().UTC()
		m.products[line.ProductID] = p
		r.Lines = append(r.Lines, ReservedLine{
			ProductID:      line.ProductID,
			Title:          p.Title,
			Quantity:       line.Quantity,
			UnitPriceCents: p.PriceCents,
		})
	}
	m.reservations[r.ID] = ReservationPending
	return r, nil
}

func (m *MemStore) Release(_ context.Context, r *Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.reservations[r.ID] {
	case ReservationReleased:
		return nil
	case ReservationConfirmed:
		slog.Error("attempted to release a confirmed reservation",
			slog.String("reservation_id", r.ID))
		return nil
	}

	for _, l := range r.Lines {
		p, ok := m.products[l.ProductID]
		if !ok {
			continue // product deleted while reserved; nothing to restore into
		}
		p.Stock += l.Quantity
		p.UpdatedAt = time.Now().UTC()
		m.products[l.ProductID] = p
	}
	m.reservations[r.ID] = ReservationReleased
	r.State = ReservationReleased
	return nil
}

func (m *MemStore) Confirm(_ context.Context, r *Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state := m.reservations[r.ID]; state != ReservationPending {
		return fmt.Errorf("cannot confirm reservation %s in state %s", r.ID, state)
	}
	m.reservations[r.ID] = ReservationConfirmed
	r.State = ReservationConfirmed
	return nil
}
