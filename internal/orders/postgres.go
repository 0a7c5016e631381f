package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/latronicstore/latronic1/internal/inventory"
	"github.com/latronicstore/latronic1/pkg/logkey"
)

type Conf struct {
	db *sql.DB
}

func NewConf(db *sql.DB) (*Conf, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	return &Conf{db: db}, nil
}

func (c *Conf) Create(ctx context.Context, o Order) error {
	return c.withTx(ctx, func(tx *sql.Tx) error {
		const insertOrder = `
			INSERT INTO orders (id, reservation_id, payment_token, gateway_ref, tracking_id,
			                    first_name, last_name, email, address, total_cents, settled_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`
		_, err := tx.ExecContext(ctx, insertOrder, o.ID, o.ReservationID, o.PaymentToken,
			o.GatewayRef, o.TrackingID, o.FirstName, o.LastName, o.Email, o.Address,
			o.TotalCents, o.SettledAt)
		if err != nil {
			return fmt.Errorf("failed to insert order: %w", err)
		}

		for _, l := range o.Lines {
			const insertLine = `
				INSERT INTO order_lines (order_id, product_id, title, quantity, unit_price_cents)
				VALUES ($1, $2, $3, $4, $5)
			`
			if _, err := tx.ExecContext(ctx, insertLine, o.ID, l.ProductID, l.Title,
				l.Quantity, l.UnitPriceCents); err != nil {
				return fmt.Errorf("failed to insert order line: %w", err)
			}
		}
		return nil
	})
}

func (c *Conf) Get(ctx context.Context, orderID string) (Order, error) {
	return c.getBy(ctx, `WHERE id = $1`, orderID)
}

func (c *Conf) GetByToken(ctx context.Context, token string) (Order, error) {
	return c.getBy(ctx, `WHERE payment_token = $1`, token)
}

func (c *Conf) getBy(ctx context.Context, where, arg string) (Order, error) {
	query := `
		SELECT id, reservation_id, payment_token, gateway_ref, tracking_id,
		       first_name, last_name, email, address, total_cents, settled_at
		FROM orders ` + where

	var o Order
	err := c.db.QueryRowContext(ctx, query, arg).Scan(
		&o.ID, &o.ReservationID, &o.PaymentToken, &o.GatewayRef, &o.TrackingID,
		&o.FirstName, &o.LastName, &o.Email, &o.Address, &o.TotalCents, &o.SettledAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("failed to query order: %w", err)
	}

	const linesQuery = `
		SELECT product_id, title, quantity, unit_price_cents
		FROM order_lines
		WHERE order_id = $1
	`
	rows, err := c.db.QueryContext(ctx, linesQuery, o.ID)
	if err != nil {
		return Order{}, fmt.Errorf("failed to query order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l inventory.ReservedLine
		if err := rows.Scan(&l.ProductID, &l.Title, &l.Quantity, &l.UnitPriceCents); err != nil {
			return Order{}, fmt.Errorf("failed to scan order line: %w", err)
		}
		o.Lines = append(o.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return Order{}, fmt.Errorf("error iterating order lines: %w", err)
	}
	return o, nil
}

func (c *Conf) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if er := tx.Rollback(); er != nil && !errors.Is(er, sql.ErrTxDone) {
			slog.Error("failed to rollback tx", slog.String(logkey.ERROR, er.Error()))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tx: %w", err)
	}
	return nil
}
