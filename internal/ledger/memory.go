package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/latronicstore/latronic1/pkg/logkey"
)

// MemLedger is the in-memory Ledger used without a database and in tests.
type MemLedger struct {
	mu       sync.Mutex
	attempts map[string]PaymentAttempt
}

func NewMemLedger() *MemLedger {
	return &MemLedger{attempts: make(map[string]PaymentAttempt)}
}

func (m *MemLedger) Begin(_ context.Context, token string, amountCents int64, currency string) (PaymentAttempt, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if att, ok := m.attempts[token]; ok {
		return att, false, nil
	}
	now := time.Now().UTC()
	att := PaymentAttempt{
		Token:       token,
		AmountCents: amountCents,
		Currency:    currency,
		State:       StateSubmitted,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.attempts[token] = att
	return att, true, nil
}

func (m *MemLedger) Complete(_ context.Context, token string, state State, gatewayRef string) error {
	if !state.Terminal() {
		return fmt.Errorf("complete called with non-terminal state %s", state)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	att, ok := m.attempts[token]
	if !ok {
		return ErrNotFound
	}
	if att.State.Terminal() {
		if att.State == state {
			return nil
		}
		slog.Error("payment attempt outcome conflict",
			slog.String(logkey.Token, token),
			slog.String("stored_state", string(att.State)),
			slog.String("proposed_state", string(state)),
		)
		return ErrConflict
	}
	att.State = state
	att.GatewayRef = gatewayRef
	att.UpdatedAt = time.Now().UTC()
	m.attempts[token] = att
	return nil
}

func (m *MemLedger) Lookup(_ context.Context, token string) (PaymentAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	att, ok := m.attempts[token]
	if !ok {
		return PaymentAttempt{}, ErrNotFound
	}
	return att, nil
}
