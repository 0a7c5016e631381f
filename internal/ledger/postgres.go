package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/latronicstore/latronic1/pkg/logkey"
)

// Conf is the Postgres-backed Ledger. The primary key on token is what makes
// Begin race-safe.
type Conf struct {
	db *sql.DB
}

func NewConf(db *sql.DB) (*Conf, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	return &Conf{db: db}, nil
}

func (c *Conf) Begin(ctx context.Context, token string, amountCents int64, currency string) (PaymentAttempt, bool, error) {
	const insert = `
		INSERT INTO payment_attempts (token, amount_cents, currency, state, gateway_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, '', NOW(), NOW())
		ON CONFLICT (token) DO NOTHING
		RETURNING token, amount_cents, currency, state, gateway_ref, created_at, updated_at
	`
	var att PaymentAttempt
	err := c.db.QueryRowContext(ctx, insert, token, amountCents, currency, StateSubmitted).Scan(
		&att.Token, &att.AmountCents, &att.Currency, &att.State, &att.GatewayRef,
		&att.CreatedAt, &att.UpdatedAt,
	)
	if err == nil {
		return att, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return PaymentAttempt{}, false, fmt.Errorf("failed to insert payment attempt: %w", err)
	}

	// Token already registered; hand back the existing attempt.
	att, err = c.Lookup(ctx, token)
	if err != nil {
		return PaymentAttempt{}, false, err
	}
	return att, false, nil
}

func (c *Conf) Complete(ctx context.Context, token string, state State, gatewayRef string) error {
	if !state.Terminal() {
		return fmt.Errorf("complete called with non-terminal state %s", state)
	}

	const update = `
		UPDATE payment_attempts
		SET state = $2, gateway_ref = $3, updated_at = NOW()
		WHERE token = $1 AND state = $4
	`
	res, err := c.db.ExecContext(ctx, update, token, state, gatewayRef, StateSubmitted)
	if err != nil {
		return fmt.Errorf("failed to complete payment attempt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	// Nothing transitioned: either unknown token or already terminal.
	att, err := c.Lookup(ctx, token)
	if err != nil {
		return err
	}
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

func (c *Conf) Lookup(ctx context.Context, token string) (PaymentAttempt, error) {
	const query = `
		SELECT token, amount_cents, currency, state, gateway_ref, created_at, updated_at
		FROM payment_attempts
		WHERE token = $1
	`
	var att PaymentAttempt
	err := c.db.QueryRowContext(ctx, query, token).Scan(
		&att.Token, &att.AmountCents, &att.Currency, &att.State, &att.GatewayRef,
		&att.CreatedAt, &att.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PaymentAttempt{}, ErrNotFound
		}
		return PaymentAttempt{}, fmt.Errorf("failed to query payment attempt: %w", err)
	}
	return att, nil
}
