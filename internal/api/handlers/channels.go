package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/stayledger/backend/internal/api/middleware"
	"github.com/stayledger/backend/internal/storage"
	"github.com/stayledger/backend/internal/storage/models"
)

type ChannelRequest struct {
	OwnerID        string          `json:"owner_id"`
	Name           string          `json:"name"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
}

var maxCommissionRate = decimal.NewFromInt(100)

// ListChannels returns the channels of ?owner_id= in creation order.
func ListChannels(channels *storage.ChannelRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := r.URL.Query().Get("owner_id")
		if owner == "" {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "owner_id is required")
			return
		}

		list, err := channels.ListByOwner(r.Context(), owner)
		if err != nil {
			writeStoreError(w, err, "Channels")
			return
		}
		if list == nil {
			list = []models.Channel{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// CreateChannel adds a booking channel with its commission rate in percent.
func CreateChannel(channels *storage.ChannelRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ChannelRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.OwnerID) == "" {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "owner_id is required")
			return
		}
		if msg := validateChannel(req); msg != "" {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, msg)
			return
		}

		c := &models.Channel{
			OwnerID:        strings.TrimSpace(req.OwnerID),
			Name:           strings.TrimSpace(req.Name),
			CommissionRate: req.CommissionRate,
		}
		if err := channels.Create(r.Context(), c); err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to create channel")
			return
		}
		writeJSON(w, http.StatusCreated, c)
	}
}

// UpdateChannel renames a channel or changes its commission rate.
// Existing bookings keep the rate they were derived with.
func UpdateChannel(channels *storage.ChannelRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		c, err := channels.GetByID(ctx, mux.Vars(r)["id"])
		if err != nil {
			writeStoreError(w, err, "Channel")
			return
		}
		if c == nil {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Channel not found")
			return
		}

		var req ChannelRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if msg := validateChannel(req); msg != "" {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, msg)
			return
		}

		c.Name = strings.TrimSpace(req.Name)
		c.CommissionRate = req.CommissionRate
		if err := channels.Update(ctx, c); err != nil {
			writeStoreError(w, err, "Channel")
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

// DeleteChannel removes a channel. Its bookings lose the channel reference.
func DeleteChannel(channels *storage.ChannelRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := channels.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
			writeStoreError(w, err, "Channel")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func validateChannel(req ChannelRequest) string {
	if strings.TrimSpace(req.Name) == "" {
		return "name is required"
	}
	if req.CommissionRate.IsNegative() || req.CommissionRate.GreaterThan(maxCommissionRate) {
		return "commission_rate must be between 0 and 100"
	}
	return ""
}
