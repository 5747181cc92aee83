// Package handlers provides HTTP request handlers for the API endpoints.
package handlers

import (
	"net/http"
	"time"

	"github.com/stayledger/backend/internal/calendar"
	"github.com/stayledger/backend/internal/storage"
	"github.com/stayledger/backend/internal/websocket"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status      string `json:"status"`
	DBConnected bool   `json:"db_connected"`
	Version     string `json:"version,omitempty"`
}

// HealthCheck returns a handler that performs a health check.
func HealthCheck(db *storage.DB, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbConnected := db.PingContext(r.Context()) == nil

		status := "healthy"
		code := http.StatusOK
		if !dbConnected {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		writeJSON(w, code, HealthResponse{
			Status:      status,
			DBConnected: dbConnected,
			Version:     version,
		})
	}
}

// StatusResponse represents the system status response.
type StatusResponse struct {
	PropertiesCount  int        `json:"properties_count"`
	BookingsCount    int        `json:"bookings_count"`
	WebSocketClients int        `json:"websocket_clients"`
	SyncInterval     string     `json:"sync_interval,omitempty"`
	NextSyncAt       *time.Time `json:"next_sync_at,omitempty"`
}

// Status returns a handler that provides system status information.
func Status(properties *storage.PropertyRepository, bookings *storage.BookingRepository, hub *websocket.Hub, scheduler *calendar.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var resp StatusResponse
		var err error
		if resp.PropertiesCount, err = properties.Count(ctx); err != nil {
			writeStoreError(w, err, "Properties")
			return
		}
		if resp.BookingsCount, err = bookings.Count(ctx); err != nil {
			writeStoreError(w, err, "Bookings")
			return
		}
		if hub != nil {
			resp.WebSocketClients = hub.ClientCount()
		}
		if scheduler != nil {
			resp.SyncInterval = scheduler.Interval().String()
			resp.NextSyncAt = scheduler.NextRun()
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
