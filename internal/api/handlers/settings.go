package handlers

import (
	"net/http"

	"github.com/stayledger/backend/internal/config"
)

// SettingsResponse is the non-secret part of the running configuration.
type SettingsResponse struct {
	DatabaseDriver     string `json:"database_driver"`
	SyncInterval       string `json:"sync_interval"`
	StartupDelay       string `json:"startup_delay"`
	FetchTimeout       string `json:"fetch_timeout"`
	StaleAfter         string `json:"stale_after"`
	RecurrenceHorizon  string `json:"recurrence_horizon"`
	MaxParallelFetches int    `json:"max_parallel_fetches"`
	CalendarBlockLabel string `json:"calendar_block_label"`
	ExternalLabel      string `json:"external_booking_label"`
	TelegramAlerts     bool   `json:"telegram_alerts"`
}

// GetSettings returns the effective settings. Credentials are never included.
func GetSettings(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, SettingsResponse{
			DatabaseDriver:     cfg.Database.Driver,
			SyncInterval:       cfg.Sync.Interval.String(),
			StartupDelay:       cfg.Sync.StartupDelay.String(),
			FetchTimeout:       cfg.Sync.FetchTimeout.String(),
			StaleAfter:         cfg.Sync.StaleAfter.String(),
			RecurrenceHorizon:  cfg.Sync.RecurrenceHorizon.String(),
			MaxParallelFetches: cfg.Sync.MaxParallelFetches,
			CalendarBlockLabel: cfg.Labels.CalendarBlock,
			ExternalLabel:      cfg.Labels.ExternalBooking,
			TelegramAlerts:     cfg.Telegram.Enabled(),
		})
	}
}
