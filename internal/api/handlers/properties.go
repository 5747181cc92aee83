package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/stayledger/backend/internal/api/middleware"
	"github.com/stayledger/backend/internal/calendar"
	"github.com/stayledger/backend/internal/finance"
	"github.com/stayledger/backend/internal/storage"
	"github.com/stayledger/backend/internal/storage/models"
)

// Property request/response types

type PropertyRequest struct {
	OwnerID          string              `json:"owner_id"`
	Name             string              `json:"name"`
	MonthlyFixedCost *decimal.Decimal    `json:"monthly_fixed_cost"`
	Feeds            []models.FeedSource `json:"feeds"`
}

type FeedsRequest struct {
	Feeds []models.FeedSource `json:"feeds"`
}

// ListProperties returns all properties, optionally filtered by ?owner_id=.
func ListProperties(properties *storage.PropertyRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		props, err := properties.List(r.Context(), r.URL.Query().Get("owner_id"))
		if err != nil {
			writeStoreError(w, err, "Properties")
			return
		}
		if props == nil {
			props = []models.Property{}
		}
		writeJSON(w, http.StatusOK, props)
	}
}

// CreateProperty adds a new property with its feeds.
func CreateProperty(properties *storage.PropertyRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PropertyRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		if strings.TrimSpace(req.OwnerID) == "" || strings.TrimSpace(req.Name) == "" {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "owner_id and name are required")
			return
		}
		cost := decimal.Zero
		if req.MonthlyFixedCost != nil {
			cost = *req.MonthlyFixedCost
		}
		if cost.IsNegative() {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "monthly_fixed_cost must not be negative")
			return
		}
		feeds, err := validateFeeds(req.Feeds)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
			return
		}

		p := &models.Property{
			OwnerID:          strings.TrimSpace(req.OwnerID),
			Name:             strings.TrimSpace(req.Name),
			MonthlyFixedCost: cost,
			Feeds:            feeds,
		}
		if err := properties.Create(r.Context(), p); err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to create property")
			return
		}

		writeJSON(w, http.StatusCreated, p)
	}
}

// GetProperty returns a single property with its feeds.
func GetProperty(properties *storage.PropertyRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := loadProperty(w, r, properties)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// UpdateProperty updates the name, owner and fixed cost of a property.
// Feeds are replaced only when the request includes them.
func UpdateProperty(properties *storage.PropertyRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := loadProperty(w, r, properties)
		if !ok {
			return
		}

		var req PropertyRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if name := strings.TrimSpace(req.Name); name != "" {
			p.Name = name
		}
		if owner := strings.TrimSpace(req.OwnerID); owner != "" {
			p.OwnerID = owner
		}
		if req.MonthlyFixedCost != nil {
			if req.MonthlyFixedCost.IsNegative() {
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "monthly_fixed_cost must not be negative")
				return
			}
			p.MonthlyFixedCost = *req.MonthlyFixedCost
		}

		var feeds []models.FeedSource
		if req.Feeds != nil {
			var err error
			if feeds, err = validateFeeds(req.Feeds); err != nil {
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
				return
			}
		}

		ctx := r.Context()
		if err := properties.Update(ctx, p); err != nil {
			writeStoreError(w, err, "Property")
			return
		}
		if req.Feeds != nil {
			if err := properties.ReplaceFeeds(ctx, p.ID, feeds); err != nil {
				writeStoreError(w, err, "Property")
				return
			}
			p.Feeds = feeds
		}

		writeJSON(w, http.StatusOK, p)
	}
}

// DeleteProperty removes a property, its feeds and its bookings.
func DeleteProperty(properties *storage.PropertyRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := properties.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
			writeStoreError(w, err, "Property")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// GetPropertyFeeds returns the feeds of a property in sync order.
func GetPropertyFeeds(properties *storage.PropertyRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := loadProperty(w, r, properties)
		if !ok {
			return
		}
		feeds := p.Feeds
		if feeds == nil {
			feeds = []models.FeedSource{}
		}
		writeJSON(w, http.StatusOK, feeds)
	}
}

// ReplacePropertyFeeds replaces the whole feed list of a property.
func ReplacePropertyFeeds(properties *storage.PropertyRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		var req FeedsRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		feeds, err := validateFeeds(req.Feeds)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
			return
		}

		if err := properties.ReplaceFeeds(r.Context(), id, feeds); err != nil {
			writeStoreError(w, err, "Property")
			return
		}
		if feeds == nil {
			feeds = []models.FeedSource{}
		}
		writeJSON(w, http.StatusOK, feeds)
	}
}

// SyncProperty reconciles the feeds of one property and returns the result.
func SyncProperty(syncService *calendar.SyncService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if syncService == nil {
			middleware.WriteError(w, http.StatusServiceUnavailable, middleware.ErrUnavailable, "Calendar sync is not available")
			return
		}

		result, err := syncService.SyncProperty(r.Context(), mux.Vars(r)["id"])
		if errors.Is(err, storage.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Property not found")
			return
		}
		if err != nil {
			middleware.WriteErrorWithDetails(w, http.StatusInternalServerError, middleware.ErrInternalError, "Calendar sync failed", result)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

// ListPropertyBookings returns the bookings of a property, optionally within ?from=&to=.
func ListPropertyBookings(properties *storage.PropertyRepository, bookings *storage.BookingRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		from, to, err := dateRange(r)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
			return
		}
		p, ok := loadProperty(w, r, properties)
		if !ok {
			return
		}

		list, err := bookings.ListByProperty(r.Context(), p.ID, from, to)
		if err != nil {
			writeStoreError(w, err, "Bookings")
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// ListPropertyOverlaps reports double bookings on a property.
func ListPropertyOverlaps(properties *storage.PropertyRepository, bookings *storage.BookingRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := loadProperty(w, r, properties)
		if !ok {
			return
		}

		list, err := bookings.ListByProperty(r.Context(), p.ID, time.Time{}, time.Time{})
		if err != nil {
			writeStoreError(w, err, "Bookings")
			return
		}
		overlaps := calendar.FindOverlaps(list)
		if overlaps == nil {
			overlaps = []calendar.Overlap{}
		}
		writeJSON(w, http.StatusOK, overlaps)
	}
}

// PropertySummary returns revenue, costs and occupancy for ?from=&to=.
func PropertySummary(properties *storage.PropertyRepository, bookings *storage.BookingRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		from, to, err := dateRange(r)
		if err == nil && (from.IsZero() || to.IsZero()) {
			err = errors.New("from and to are required")
		}
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
			return
		}
		p, ok := loadProperty(w, r, properties)
		if !ok {
			return
		}

		list, err := bookings.ListByProperty(r.Context(), p.ID, from, to)
		if err != nil {
			writeStoreError(w, err, "Bookings")
			return
		}
		writeJSON(w, http.StatusOK, finance.Summarize(list, p.MonthlyFixedCost, from, to))
	}
}

func loadProperty(w http.ResponseWriter, r *http.Request, properties *storage.PropertyRepository) (*models.Property, bool) {
	p, err := properties.GetByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeStoreError(w, err, "Property")
		return nil, false
	}
	if p == nil {
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Property not found")
		return nil, false
	}
	return p, true
}

// validateFeeds trims feed names, requires unique names and http(s) URLs.
// webcal:// links are rewritten to https://.
func validateFeeds(feeds []models.FeedSource) ([]models.FeedSource, error) {
	out := make([]models.FeedSource, 0, len(feeds))
	seen := make(map[string]bool, len(feeds))
	for i, f := range feeds {
		name := strings.TrimSpace(f.Name)
		raw := strings.TrimSpace(f.URL)
		if name == "" || raw == "" {
			return nil, fmt.Errorf("feed %d: name and url are required", i+1)
		}
		key := strings.ToLower(name)
		if seen[key] {
			return nil, fmt.Errorf("feed %q: duplicate name", name)
		}
		seen[key] = true

		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("feed %q: invalid url", name)
		}
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
		case "webcal", "webcals":
			u.Scheme = "https"
		default:
			return nil, fmt.Errorf("feed %q: url must be http, https or webcal", name)
		}

		out = append(out, models.FeedSource{Name: name, URL: u.String()})
	}
	return out, nil
}
