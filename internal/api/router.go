// Package api provides HTTP routing and handlers for the REST API.
package api

import (
	"log/slog"

	"github.com/gorilla/mux"

	"github.com/stayledger/backend/internal/api/handlers"
	"github.com/stayledger/backend/internal/api/middleware"
	"github.com/stayledger/backend/internal/calendar"
	"github.com/stayledger/backend/internal/config"
	"github.com/stayledger/backend/internal/storage"
	"github.com/stayledger/backend/internal/websocket"
)

// Services are the dependencies shared by the handlers.
// SyncService, Scheduler and Hub may be nil; their routes then report 503.
type Services struct {
	DB          *storage.DB
	Config      *config.Config
	Properties  *storage.PropertyRepository
	Bookings    *storage.BookingRepository
	Channels    *storage.ChannelRepository
	SyncService *calendar.SyncService
	Scheduler   *calendar.Scheduler
	Hub         *websocket.Hub
	Logger      *slog.Logger
	Version     string
}

// NewRouter creates and configures the HTTP router with all API routes.
func NewRouter(s Services) *mux.Router {
	r := mux.NewRouter()
	logger := s.Logger.With("component", "http")

	// Apply global middleware
	r.Use(middleware.Logging(logger))
	r.Use(middleware.ErrorRecovery(logger))

	api := r.PathPrefix("/api").Subrouter()

	// Health and status endpoints
	api.HandleFunc("/health", handlers.HealthCheck(s.DB, s.Version)).Methods("GET")
	api.HandleFunc("/status", handlers.Status(s.Properties, s.Bookings, s.Hub, s.Scheduler)).Methods("GET")
	if s.Config != nil {
		api.HandleFunc("/settings", handlers.GetSettings(s.Config)).Methods("GET")
	}

	// WebSocket endpoint
	if s.Hub != nil {
		api.HandleFunc("/ws", handlers.WebSocketUpgrade(s.Hub, logger)).Methods("GET")
	}

	// Property endpoints
	api.HandleFunc("/properties", handlers.ListProperties(s.Properties)).Methods("GET")
	api.HandleFunc("/properties", handlers.CreateProperty(s.Properties)).Methods("POST")
	api.HandleFunc("/properties/{id}", handlers.GetProperty(s.Properties)).Methods("GET")
	api.HandleFunc("/properties/{id}", handlers.UpdateProperty(s.Properties)).Methods("PUT")
	api.HandleFunc("/properties/{id}", handlers.DeleteProperty(s.Properties)).Methods("DELETE")
	api.HandleFunc("/properties/{id}/feeds", handlers.GetPropertyFeeds(s.Properties)).Methods("GET")
	api.HandleFunc("/properties/{id}/feeds", handlers.ReplacePropertyFeeds(s.Properties)).Methods("PUT")
	api.HandleFunc("/properties/{id}/sync", handlers.SyncProperty(s.SyncService)).Methods("POST")
	api.HandleFunc("/properties/{id}/bookings", handlers.ListPropertyBookings(s.Properties, s.Bookings)).Methods("GET")
	api.HandleFunc("/properties/{id}/overlaps", handlers.ListPropertyOverlaps(s.Properties, s.Bookings)).Methods("GET")
	api.HandleFunc("/properties/{id}/summary", handlers.PropertySummary(s.Properties, s.Bookings)).Methods("GET")

	// Booking endpoints
	api.HandleFunc("/bookings", handlers.CreateBooking(s.Properties, s.Bookings, s.Channels)).Methods("POST")
	api.HandleFunc("/bookings/{id}", handlers.GetBooking(s.Bookings)).Methods("GET")
	api.HandleFunc("/bookings/{id}", handlers.UpdateBooking(s.Bookings, s.Channels)).Methods("PATCH")

	// Channel endpoints
	api.HandleFunc("/channels", handlers.ListChannels(s.Channels)).Methods("GET")
	api.HandleFunc("/channels", handlers.CreateChannel(s.Channels)).Methods("POST")
	api.HandleFunc("/channels/{id}", handlers.UpdateChannel(s.Channels)).Methods("PUT")
	api.HandleFunc("/channels/{id}", handlers.DeleteChannel(s.Channels)).Methods("DELETE")

	// Sync all properties now
	api.HandleFunc("/sync", handlers.RunSync(s.Scheduler)).Methods("POST")

	return r
}
