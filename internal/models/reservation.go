package models

import (
	"time"

	"github.com/google/uuid"
)

type ReservationStatus string

const (
	ReservationStatusActive    ReservationStatus = "ACTIVE"
	ReservationStatusCommitted ReservationStatus = "COMMITTED"
	ReservationStatusReleased  ReservationStatus = "RELEASED"
	ReservationStatusExpired   ReservationStatus = "EXPIRED"
)

// IsTerminal reports whether the reservation has reached its single allowed
// terminal transition. Terminal reservations are never mutated again.
func (s ReservationStatus) IsTerminal() bool {
	return s == ReservationStatusCommitted ||
		s == ReservationStatusReleased ||
		s == ReservationStatusExpired
}

// Reservation is a time-bounded hold against a variant's availability. It
// never touches the stock counter; only a commit does.
type Reservation struct {
	ID        uuid.UUID         `json:"id"`
	TenantID  string            `json:"tenant_id"`
	VariantID int64             `json:"variant_id"`
	OrderID   *int64            `json:"order_id,omitempty"`
	Quantity  int               `json:"quantity"`
	Status    ReservationStatus `json:"status"`
	ExpiresAt time.Time         `json:"expires_at"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
