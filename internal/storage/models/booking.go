package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Booking status constants
const (
	BookingStatusConfirmed  = "CONFIRMED"
	BookingStatusPending    = "PENDING"
	BookingStatusCancelled  = "CANCELLED"
	BookingStatusCheckedIn  = "CHECKED_IN"
	BookingStatusCheckedOut = "CHECKED_OUT"
)

// Booking is a stay at a property, entered manually or imported from a feed.
type Booking struct {
	ID               string          `json:"id" db:"id"`
	PropertyID       string          `json:"property_id" db:"property_id"`
	OwnerID          string          `json:"owner_id" db:"owner_id"`
	ChannelID        *string         `json:"channel_id,omitempty" db:"channel_id"`
	GuestName        string          `json:"guest_name" db:"guest_name"`
	CheckIn          time.Time       `json:"check_in" db:"check_in"`
	CheckOut         time.Time       `json:"check_out" db:"check_out"`
	Nights           int             `json:"nights" db:"nights"`
	Status           string          `json:"status" db:"status"`
	Notes            string          `json:"notes" db:"notes"`
	GrossRevenue     decimal.Decimal `json:"gross_revenue" db:"gross_revenue"`
	CommissionRate   decimal.Decimal `json:"commission_rate" db:"commission_rate"`
	CommissionAmount decimal.Decimal `json:"commission_amount" db:"commission_amount"`
	NetRevenue       decimal.Decimal `json:"net_revenue" db:"net_revenue"`
	ExternalUID      *string         `json:"external_uid,omitempty" db:"external_uid"`
	ExternalSource   *string         `json:"external_source,omitempty" db:"external_source"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// IsExternal returns true if the booking was imported from a calendar feed.
func (b *Booking) IsExternal() bool {
	return b.ExternalUID != nil && *b.ExternalUID != ""
}

// IsCancelled returns true if the booking no longer occupies the property.
func (b *Booking) IsCancelled() bool {
	return b.Status == BookingStatusCancelled
}

// ValidBookingStatus reports whether s is a known booking status.
func ValidBookingStatus(s string) bool {
	switch s {
	case BookingStatusConfirmed, BookingStatusPending, BookingStatusCancelled,
		BookingStatusCheckedIn, BookingStatusCheckedOut:
		return true
	}
	return false
}

// NightsBetween returns the whole days between check-in and check-out,
// rounding partial days up. Never negative.
func NightsBetween(checkIn, checkOut time.Time) int {
	d := checkOut.Sub(checkIn)
	if d <= 0 {
		return 0
	}
	nights := int(d / (24 * time.Hour))
	if d%(24*time.Hour) != 0 {
		nights++
	}
	return nights
}
