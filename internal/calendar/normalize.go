package calendar

import (
	"errors"
	"strings"
	"time"

	"github.com/stayledger/backend/internal/storage/models"
)

var (
	// ErrInvalidEventDates is returned for events with a missing start or end,
	// or an end before the start.
	ErrInvalidEventDates = errors.New("invalid event dates")
	// ErrStaleEvent is returned for events that ended too long ago to matter.
	ErrStaleEvent = errors.New("stale event")
)

const (
	guestNameSeparator = " - "

	DefaultBlockLabel    = "calendar block"
	DefaultExternalLabel = "external booking"
	DefaultStaleAfter    = 7 * 24 * time.Hour
)

// blockKeywords mark a summary as a calendar block rather than a guest.
var blockKeywords = []string{"reserved", "blocked", "not available", "airbnb"}

// Candidate is a calendar event ready to be reconciled into a booking.
type Candidate struct {
	UID       string
	Start     time.Time
	End       time.Time
	Nights    int
	GuestName string
	Notes     string
	FeedName  string
}

// Normalizer turns raw feed events into candidates.
type Normalizer struct {
	BlockLabel    string
	ExternalLabel string
	StaleAfter    time.Duration
}

// NewNormalizer creates a normalizer with the default labels and stale window.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		BlockLabel:    DefaultBlockLabel,
		ExternalLabel: DefaultExternalLabel,
		StaleAfter:    DefaultStaleAfter,
	}
}

// Normalize validates an event and derives its candidate booking.
// Discarded events return ErrInvalidEventDates or ErrStaleEvent.
func (n *Normalizer) Normalize(ev models.CalendarEvent, feedName string, now time.Time) (Candidate, error) {
	if ev.Start.IsZero() || ev.End.IsZero() || ev.End.Before(ev.Start) {
		return Candidate{}, ErrInvalidEventDates
	}

	staleAfter := n.StaleAfter
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if ev.End.Before(now.Add(-staleAfter)) {
		return Candidate{}, ErrStaleEvent
	}

	return Candidate{
		UID:       ev.UID,
		Start:     ev.Start.UTC(),
		End:       ev.End.UTC(),
		Nights:    models.NightsBetween(ev.Start, ev.End),
		GuestName: n.GuestName(ev.Summary),
		Notes:     ev.Description,
		FeedName:  feedName,
	}, nil
}

// GuestName derives a display name from an event summary.
func (n *Normalizer) GuestName(summary string) string {
	if i := strings.Index(summary, guestNameSeparator); i >= 0 {
		if name := strings.TrimSpace(summary[:i]); name != "" {
			return name
		}
	}

	lower := strings.ToLower(summary)
	for _, kw := range blockKeywords {
		if strings.Contains(lower, kw) {
			return orDefault(n.BlockLabel, DefaultBlockLabel)
		}
	}

	if s := strings.TrimSpace(summary); s != "" {
		return s
	}
	return orDefault(n.ExternalLabel, DefaultExternalLabel)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
