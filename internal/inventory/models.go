package inventory

import "time"

// Product is the catalog entry and the single source of truth for stock.
// Stock is only mutated through TryReserve/Release or an explicit catalog edit.
type Product struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	PriceCents  int64     `json:"price_cents"` // unit price in cents, avoids float rounding
	Stock       int       `json:"stock"`
	Category    string    `json:"category"`
	ImageURL    string    `json:"image_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewProduct is the payload for catalog creation.
type NewProduct struct {
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
	PriceCents  int64  `json:"price_cents" validate:"required,min=1"`
	Stock       int    `json:"stock" validate:"min=0"`
	Category    string `json:"category"`
	ImageURL    string `json:"image_url"`
}

// CartLine is one requested line of a checkout cart. Transient input.
type CartLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// ReservedLine is a cart line with the unit price captured at reservation time,
// so the settlement total cannot drift under a concurrent price edit.
type ReservedLine struct {
	ProductID      string `json:"product_id"`
	Title          string `json:"title"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

type ReservationState string

const (
	ReservationPending   ReservationState = "pending"
	ReservationConfirmed ReservationState = "confirmed"
	ReservationReleased  ReservationState = "released"
)

// Reservation is a provisional hold on inventory for one checkout attempt.
// The decrement already happened at TryReserve time; Confirm only flips state
// and Release puts the quantities back.
type Reservation struct {
	ID        string           `json:"id"`
	Lines     []ReservedLine   `json:"lines"`
	State     ReservationState `json:"state"`
	CreatedAt time.Time        `json:"created_at"`
}

// SubtotalCents sums quantity times captured unit price across all lines.
func (r *Reservation) SubtotalCents() int64 {
	var total int64
	for _, l := range r.Lines {
		total += int64(l.Quantity) * l.UnitPriceCents
	}
	return total
}

// ListFilter narrows and pages ListProducts results.
type ListFilter struct {
	Name     string
	Category string
	Limit    int
	Offset   int
	Sort     string // name | price | stock
	Order    string // asc | desc
}
