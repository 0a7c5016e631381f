package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/latronicstore/latronic1/pkg/logkey"
)

// Conf is the Postgres-backed Store.
type Conf struct {
	db *sql.DB
}

func NewConf(db *sql.DB) (*Conf, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	return &Conf{db: db}, nil
}

func (c *Conf) GetProduct(ctx context.Context, productID string) (Product, error) {
	const query = `
		SELECT id, title, description, price_cents, stock, category, image_url, created_at, updated_at
		FROM products
		WHERE id = $1
	`
	var p Product
	err := c.db.QueryRowContext(ctx, query, productID).Scan(
		&p.ID, &p.Title, &p.Description, &p.PriceCents, &p.Stock, &p.Category,
		&p.ImageURL, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("failed to query product: %w", err)
	}
	return p, nil
}

func (c *Conf) ListProducts(ctx context.Context, f ListFilter) ([]Product, error) {
	sortCol := "title"
	switch f.Sort {
	case "price":
		sortCol = "price_cents"
	case "stock":
		sortCol = "stock"
	}
	dir := "ASC"
	if f.Order == "desc" {
		dir = "DESC"
	}
	if f.Limit <= 0 {
		f.Limit = 10
	}

	query := fmt.Sprintf(`
		SELECT id, title, description, price_cents, stock, category, image_url, created_at, updated_at
		FROM products
		WHERE ($1 = '' OR title ILIKE '%%' || $1 || '%%')
		  AND ($2 = '' OR category = $2)
		ORDER BY %s %s
		LIMIT $3 OFFSET $4
	`, sortCol, dir)

	rows, err := c.db.QueryContext(ctx, query, f.Name, f.Category, f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.PriceCents, &p.Stock,
			&p.Category, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}
	return products, nil
}

func (c *Conf) CreateProduct(ctx context.Context, np NewProduct) (Product, error) {
	const query = `
		INSERT INTO products (id, title, description, price_cents, stock, category, image_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING id, title, description, price_cents, stock, category, image_url, created_at, updated_at
	`
	var p Product
	err := c.db.QueryRowContext(ctx, query, uuid.NewString(), np.Title, np.Description,
		np.PriceCents, np.Stock, np.Category, np.ImageURL).Scan(
		&p.ID, &p.Title, &p.Description, &p.PriceCents, &p.Stock, &p.Category,
		&p.ImageURL, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return Product{}, fmt.Errorf("failed to insert product: %w", err)
	}
	return p, nil
}

func (c *Conf) UpdateProduct(ctx context.Context, productID string, p Product) (Product, error) {
	const query = `
		UPDATE products
		SET title = $2, description = $3, price_cents = $4, stock = $5, category = $6,
		    image_url = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING id, title, description, price_cents, stock, category, image_url, created_at, updated_at
	`
	var out Product
	err := c.db.QueryRowContext(ctx, query, productID, p.Title, p.Description,
		p.PriceCents, p.Stock, p.Category, p.ImageURL).Scan(
		&out.ID, &out.Title, &out.Description, &out.PriceCents, &out.Stock,
		&out.Category, &out.ImageURL, &out.CreatedAt, &out.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, fmt.Errorf("failed to update product: %w", err)
	}
	return out, nil
}

func (c *Conf) DeleteProduct(ctx context.Context, productID string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// TryReserve decrements stock for every line inside one transaction. The
// UPDATE carries the stock >= qty guard so two carts racing for the last unit
// serialize on the row and exactly one wins; any short line rolls the whole
// cart back with no decrement applied.
func (c *Conf) TryReserve(ctx context.Context, lines []CartLine) (*Reservation, error) {
	lines = mergeLines(lines)

	r := &Reservation{
		ID:        uuid.NewString(),
		State:     ReservationPending,
		CreatedAt: time.Now().UTC(),
	}

	err := c.withTx(ctx, func(tx *sql.Tx) error {
		for _, line := range lines {
			const decrement = `
				UPDATE products
				SET stock = stock - $2, updated_at = NOW()
				WHERE id = $1 AND stock >= $2
				RETURNING title, price_cents
			`
			var title string
			var priceCents int64
			err := tx.QueryRowContext(ctx, decrement, line.ProductID, line.Quantity).Scan(&title, &priceCents)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return c.shortLine(ctx, tx, line)
				}
				return fmt.Errorf("failed to decrement stock for %s: %w", line.ProductID, err)
			}
			r.Lines = append(r.Lines, ReservedLine{
				ProductID:      line.ProductID,
				Title:          title,
				Quantity:       line.Quantity,
				UnitPriceCents: priceCents,
			})
		}

		const insertReservation = `
			INSERT INTO reservations (id, state, created_at) VALUES ($1, $2, $3)
		`
		if _, err := tx.ExecContext(ctx, insertReservation, r.ID, r.State, r.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert reservation: %w", err)
		}
		for _, l := range r.Lines {
			const insertLine = `
				INSERT INTO reservation_lines (reservation_id, product_id, quantity, unit_price_cents)
				VALUES ($1, $2, $3, $4)
			`
			if _, err := tx.ExecContext(ctx, insertLine, r.ID, l.ProductID, l.Quantity, l.UnitPriceCents); err != nil {
				return fmt.Errorf("failed to insert reservation line: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// shortLine distinguishes "unknown product" from "not enough stock" for the
// error returned on a failed reservation. Runs inside the failing tx, which
// is rolled back either way.
func (c *Conf) shortLine(ctx context.Context, tx *sql.Tx, line CartLine) error {
	var available int
	err := tx.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = $1`, line.ProductID).Scan(&available)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to query stock for %s: %w", line.ProductID, err)
	}
	return &InsufficientStockError{ProductID: line.ProductID, Requested: line.Quantity, Available: available}
}

// Release restores each line's quantity. Idempotent: releasing an already
// released reservation is a no-op, and releasing a confirmed one is refused
// and logged as a programming error.
func (c *Conf) Release(ctx context.Context, r *Reservation) error {
	return c.withTx(ctx, func(tx *sql.Tx) error {
		state, err := lockReservation(ctx, tx, r.ID)
		if err != nil {
			return err
		}
		switch state {
		case ReservationReleased:
			return nil
		case ReservationConfirmed:
			slog.Error("attempted to release a confirmed reservation",
				slog.String("reservation_id", r.ID))
			return nil
		}

		for _, l := range r.Lines {
			const restore = `
				UPDATE products SET stock = stock + $2, updated_at = NOW() WHERE id = $1
			`
			if _, err := tx.ExecContext(ctx, restore, l.ProductID, l.Quantity); err != nil {
				return fmt.Errorf("failed to restore stock for %s: %w", l.ProductID, err)
			}
		}
		if err := setReservationState(ctx, tx, r.ID, ReservationReleased); err != nil {
			return err
		}
		r.State = ReservationReleased
		return nil
	})
}

// Confirm flips the reservation to confirmed. The stock decrement already
// happened at TryReserve time, so no product row is touched here.
func (c *Conf) Confirm(ctx context.Context, r *Reservation) error {
	return c.withTx(ctx, func(tx *sql.Tx) error {
		state, err := lockReservation(ctx, tx, r.ID)
		if err != nil {
			return err
		}
		if state != ReservationPending {
			return fmt.Errorf("cannot confirm reservation %s in state %s", r.ID, state)
		}
		if err := setReservationState(ctx, tx, r.ID, ReservationConfirmed); err != nil {
			return err
		}
		r.State = ReservationConfirmed
		return nil
	})
}

func lockReservation(ctx context.Context, tx *sql.Tx, id string) (ReservationState, error) {
	var state ReservationState
	err := tx.QueryRowContext(ctx, `SELECT state FROM reservations WHERE id = $1 FOR UPDATE`, id).Scan(&state)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("reservation %s not found", id)
		}
		return "", fmt.Errorf("failed to lock reservation: %w", err)
	}
	return state, nil
}

func setReservationState(ctx context.Context, tx *sql.Tx, id string, state ReservationState) error {
	if _, err := tx.ExecContext(ctx, `UPDATE reservations SET state = $2 WHERE id = $1`, id, state); err != nil {
		return fmt.Errorf("failed to update reservation state: %w", err)
	}
	return nil
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
