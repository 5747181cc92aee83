package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stayledger/backend/internal/api/middleware"
	"github.com/stayledger/backend/internal/storage"
)

const dateLayout = "2006-01-02"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
		return false
	}
	return true
}

// writeStoreError maps a repository error to a response.
func writeStoreError(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, storage.ErrNotFound) {
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, what+" not found")
		return
	}
	middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to access "+strings.ToLower(what))
}

// parseDate accepts YYYY-MM-DD or RFC 3339 and returns a UTC time.
func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(dateLayout, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", value)
	}
	return t.UTC(), nil
}

// dateRange reads optional from/to query parameters.
func dateRange(r *http.Request) (from, to time.Time, err error) {
	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		if from, err = parseDate(v); err != nil {
			return
		}
	}
	if v := q.Get("to"); v != "" {
		if to, err = parseDate(v); err != nil {
			return
		}
	}
	if !from.IsZero() && !to.IsZero() && !to.After(from) {
		err = errors.New("to must be after from")
	}
	return
}
