package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Channel is a sales channel (Airbnb, Booking.com, direct...) configured by an owner.
type Channel struct {
	ID             string          `json:"id" db:"id"`
	OwnerID        string          `json:"owner_id" db:"owner_id"`
	Name           string          `json:"name" db:"name"`
	CommissionRate decimal.Decimal `json:"commission_rate" db:"commission_rate"` // percent, e.g. 3 = 3%
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}
