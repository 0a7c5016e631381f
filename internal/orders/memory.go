package orders

import (
	"context"
	"sync"
)

type MemRepo struct {
	mu      sync.Mutex
	byID    map[string]Order
	byToken map[string]string
}

func NewMemRepo() *MemRepo {
	return &MemRepo{
		byID:    make(map[string]Order),
		byToken: make(map[string]string),
	}
}

func (m *MemRepo) Create(_ context.Context, o Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[o.ID] = o
	m.byToken[o.PaymentToken] = o.ID
	return nil
}

func (m *MemRepo) Get(_ context.Context, orderID string) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byID[orderID]
	if !ok {
		return Order{}, ErrNotFound
	}
	return o, nil
}

func (m *MemRepo) GetByToken(_ context.Context, token string) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byToken[token]
	if !ok {
		return Order{}, ErrNotFound
	}
	return m.byID[id], nil
}
