package handlers

import (
	"net/http"

	"github.com/stayledger/backend/internal/api/middleware"
	"github.com/stayledger/backend/internal/calendar"
)

// RunSync reconciles every property with feeds and returns the summary.
func RunSync(scheduler *calendar.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if scheduler == nil {
			middleware.WriteError(w, http.StatusServiceUnavailable, middleware.ErrUnavailable, "Calendar sync is not available")
			return
		}
		summary, err := scheduler.RunNow(r.Context())
		if err != nil {
			middleware.WriteError(w, http.StatusServiceUnavailable, middleware.ErrUnavailable, "Calendar sync is shutting down")
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}
