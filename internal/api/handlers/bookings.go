package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/stayledger/backend/internal/api/middleware"
	"github.com/stayledger/backend/internal/finance"
	"github.com/stayledger/backend/internal/storage"
	"github.com/stayledger/backend/internal/storage/models"
)

// Booking request types

type CreateBookingRequest struct {
	PropertyID   string           `json:"property_id"`
	ChannelID    *string          `json:"channel_id"`
	GuestName    string           `json:"guest_name"`
	CheckIn      string           `json:"check_in"`
	CheckOut     string           `json:"check_out"`
	Status       string           `json:"status"`
	Notes        string           `json:"notes"`
	GrossRevenue *decimal.Decimal `json:"gross_revenue"`
}

// UpdateBookingRequest holds the locally editable fields. Omitted fields are unchanged.
type UpdateBookingRequest struct {
	ChannelID    *string          `json:"channel_id"`
	GuestName    *string          `json:"guest_name"`
	Status       *string          `json:"status"`
	Notes        *string          `json:"notes"`
	GrossRevenue *decimal.Decimal `json:"gross_revenue"`
}

// CreateBooking records a manual booking. Financials are derived from the
// channel's commission rate.
func CreateBooking(properties *storage.PropertyRepository, bookings *storage.BookingRepository, channels *storage.ChannelRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req CreateBookingRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		checkIn, err := parseDate(req.CheckIn)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "check_in: "+err.Error())
			return
		}
		checkOut, err := parseDate(req.CheckOut)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "check_out: "+err.Error())
			return
		}
		if checkOut.Before(checkIn) {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "check_out must not be before check_in")
			return
		}
		if req.Status == "" {
			req.Status = models.BookingStatusConfirmed
		}
		if !models.ValidBookingStatus(req.Status) {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "Unknown status "+req.Status)
			return
		}
		gross := decimal.Zero
		if req.GrossRevenue != nil {
			gross = *req.GrossRevenue
		}
		if gross.IsNegative() {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "gross_revenue must not be negative")
			return
		}

		property, err := properties.GetByID(ctx, req.PropertyID)
		if err != nil {
			writeStoreError(w, err, "Property")
			return
		}
		if property == nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "Unknown property_id")
			return
		}

		b := &models.Booking{
			PropertyID: property.ID,
			OwnerID:    property.OwnerID,
			GuestName:  strings.TrimSpace(req.GuestName),
			CheckIn:    checkIn,
			CheckOut:   checkOut,
			Nights:     models.NightsBetween(checkIn, checkOut),
			Status:     req.Status,
			Notes:      req.Notes,
		}

		rate := decimal.Zero
		if req.ChannelID != nil && *req.ChannelID != "" {
			ch, ok := loadChannel(w, r, channels, *req.ChannelID)
			if !ok {
				return
			}
			b.ChannelID = &ch.ID
			rate = ch.CommissionRate
		}
		finance.Derive(gross, rate).Apply(b)

		if err := bookings.Create(ctx, b); err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to create booking")
			return
		}

		writeJSON(w, http.StatusCreated, b)
	}
}

// GetBooking returns a single booking.
func GetBooking(bookings *storage.BookingRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := bookings.GetByID(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			writeStoreError(w, err, "Booking")
			return
		}
		if b == nil {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Booking not found")
			return
		}
		writeJSON(w, http.StatusOK, b)
	}
}

// UpdateBooking edits guest name, notes, status, channel and gross revenue.
// Financials are re-derived when the channel or gross revenue changes.
func UpdateBooking(bookings *storage.BookingRepository, channels *storage.ChannelRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		b, err := bookings.GetByID(ctx, mux.Vars(r)["id"])
		if err != nil {
			writeStoreError(w, err, "Booking")
			return
		}
		if b == nil {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Booking not found")
			return
		}

		var req UpdateBookingRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		if req.GuestName != nil {
			b.GuestName = strings.TrimSpace(*req.GuestName)
		}
		if req.Notes != nil {
			b.Notes = *req.Notes
		}
		if req.Status != nil {
			if !models.ValidBookingStatus(*req.Status) {
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "Unknown status "+*req.Status)
				return
			}
			b.Status = *req.Status
		}

		rederive := false
		gross, rate := b.GrossRevenue, b.CommissionRate
		if req.ChannelID != nil {
			rederive = true
			if *req.ChannelID == "" {
				b.ChannelID = nil
				rate = decimal.Zero
			} else {
				ch, ok := loadChannel(w, r, channels, *req.ChannelID)
				if !ok {
					return
				}
				b.ChannelID = &ch.ID
				rate = ch.CommissionRate
			}
		}
		if req.GrossRevenue != nil {
			if req.GrossRevenue.IsNegative() {
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "gross_revenue must not be negative")
				return
			}
			rederive = true
			gross = *req.GrossRevenue
		}
		if rederive && req.ChannelID == nil && b.ChannelID != nil {
			// Imported bookings carry a zero rate until revenue is known.
			ch, err := channels.GetByID(ctx, *b.ChannelID)
			if err != nil {
				writeStoreError(w, err, "Channel")
				return
			}
			if ch != nil {
				rate = ch.CommissionRate
			}
		}
		if rederive {
			finance.Derive(gross, rate).Apply(b)
		}

		if err := bookings.Update(ctx, b); err != nil {
			writeStoreError(w, err, "Booking")
			return
		}
		writeJSON(w, http.StatusOK, b)
	}
}

func loadChannel(w http.ResponseWriter, r *http.Request, channels *storage.ChannelRepository, id string) (*models.Channel, bool) {
	ch, err := channels.GetByID(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, "Channel")
		return nil, false
	}
	if ch == nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "Unknown channel_id")
		return nil, false
	}
	return ch, true
}
