// Package calendar fetches external iCal feeds and reconciles their events
// into bookings.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"github.com/stayledger/backend/internal/storage/models"
)

// ErrFeedUnavailable wraps every network, timeout, status or parse failure of a feed.
var ErrFeedUnavailable = errors.New("feed unavailable")

const (
	maxFeedBytes          = 10 << 20
	maxOccurrencesPerUID  = 500
	defaultFetchTimeout   = 30 * time.Second
	defaultRecurrenceSpan = 365 * 24 * time.Hour
	defaultLookback       = 7 * 24 * time.Hour
)

// Fetcher retrieves and parses one calendar feed.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]models.CalendarEvent, error)
}

// FeedClient downloads iCal feeds over HTTP and parses them into events.
type FeedClient struct {
	httpClient *http.Client
	timeout    time.Duration
	horizon    time.Duration
	lookback   time.Duration
	now        func() time.Time
}

// FeedOption customizes a FeedClient.
type FeedOption func(*FeedClient)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) FeedOption {
	return func(f *FeedClient) { f.httpClient = c }
}

// WithRecurrenceWindow sets how far back and ahead recurring events are expanded.
func WithRecurrenceWindow(lookback, horizon time.Duration) FeedOption {
	return func(f *FeedClient) {
		if lookback > 0 {
			f.lookback = lookback
		}
		if horizon > 0 {
			f.horizon = horizon
		}
	}
}

// WithFeedClock sets the clock used to anchor recurrence expansion.
func WithFeedClock(now func() time.Time) FeedOption {
	return func(f *FeedClient) { f.now = now }
}

// NewFeedClient creates a feed client. timeout bounds each fetch.
func NewFeedClient(timeout time.Duration, opts ...FeedOption) *FeedClient {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	c := &FeedClient{
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
		horizon:    defaultRecurrenceSpan,
		lookback:   defaultLookback,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch downloads and parses an iCal feed from a URL.
// Every error wraps ErrFeedUnavailable.
func (c *FeedClient) Fetch(ctx context.Context, feedURL string) ([]models.CalendarEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request for %s: %v", ErrFeedUnavailable, RedactURL(feedURL), err)
	}
	req.Header.Set("Accept", "text/calendar")
	req.Header.Set("User-Agent", "stayledger-calendar-sync/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// url.Error repeats the full URL, token included.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, fmt.Errorf("%w: fetching %s: %v", ErrFeedUnavailable, RedactURL(feedURL), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrFeedUnavailable, RedactURL(feedURL), resp.StatusCode)
	}

	events, err := c.Parse(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFeedUnavailable, RedactURL(feedURL), err)
	}
	return events, nil
}

// Parse reads iCal data and returns its events in document order.
// Recurring events are expanded into one event per occurrence.
func (c *FeedClient) Parse(r io.Reader) ([]models.CalendarEvent, error) {
	cal, err := ical.ParseCalendar(r)
	if err != nil {
		return nil, fmt.Errorf("parsing calendar: %w", err)
	}

	vevents := cal.Events()

	// Master events lend their zone to overrides with a floating RECURRENCE-ID.
	zones := make(map[string]*time.Location)
	for _, ve := range vevents {
		if ve.GetProperty("RECURRENCE-ID") != nil {
			continue
		}
		if p := ve.GetProperty(ical.ComponentPropertyDtStart); p != nil {
			zones[propertyText(ve, ical.ComponentPropertyUniqueId)] = zoneOf(p, time.UTC)
		}
	}

	// RECURRENCE-ID overrides replace the generated occurrence with the same key.
	overrides := make(map[string]bool)
	for _, ve := range vevents {
		if key, ok := overrideKey(ve, zones); ok {
			overrides[key] = true
		}
	}

	now := c.now().UTC()
	var events []models.CalendarEvent
	for _, ve := range vevents {
		uid := propertyText(ve, ical.ComponentPropertyUniqueId)
		if uid == "" {
			continue
		}
		zone := time.UTC
		if z, ok := zones[uid]; ok {
			zone = z
		}

		event := models.CalendarEvent{
			UID:         uid,
			Summary:     propertyText(ve, ical.ComponentPropertySummary),
			Description: propertyText(ve, ical.ComponentPropertyDescription),
		}

		start, allDay := eventTime(ve, ical.ComponentPropertyDtStart, zone)
		end, _ := eventTime(ve, ical.ComponentPropertyDtEnd, zone)
		if end.IsZero() && allDay && !start.IsZero() {
			end = start.Add(24 * time.Hour)
		}
		event.Start, event.End = start.UTC(), end.UTC()

		if key, ok := overrideKey(ve, zones); ok {
			event.UID = key
			events = append(events, event)
			continue
		}

		rule := ve.GetProperty(ical.ComponentPropertyRrule)
		if rule == nil || rule.Value == "" || start.IsZero() || end.IsZero() {
			events = append(events, event)
			continue
		}

		// Expansion runs in the DTSTART zone so local wall time survives DST.
		occurrences, err := expand(event, start, rule.Value, exDates(ve, zone), now.Add(-c.lookback), now.Add(c.horizon))
		if err != nil {
			// An unreadable rule still yields the first instance.
			events = append(events, event)
			continue
		}
		for _, occ := range occurrences {
			if !overrides[occ.UID] {
				events = append(events, occ)
			}
		}
	}

	return events, nil
}

// expand returns the occurrences of a recurring event inside [from, to].
// dtstart is the event start in its own zone.
func expand(base models.CalendarEvent, dtstart time.Time, rawRule string, exdates []time.Time, from, to time.Time) ([]models.CalendarEvent, error) {
	rule, err := rrule.StrToRRule(rawRule)
	if err != nil {
		return nil, err
	}
	rule.DTStart(dtstart)

	var set rrule.Set
	set.RRule(rule)
	for _, ex := range exdates {
		set.ExDate(ex.In(dtstart.Location()))
	}

	duration := base.End.Sub(base.Start)
	// Occurrences that started before from can still overlap it.
	starts := set.Between(from.Add(-duration).In(dtstart.Location()), to.In(dtstart.Location()), true)
	if len(starts) > maxOccurrencesPerUID {
		starts = starts[:maxOccurrencesPerUID]
	}

	out := make([]models.CalendarEvent, 0, len(starts))
	for _, s := range starts {
		occ := base
		occ.UID = occurrenceUID(base.UID, s)
		occ.Start = s.UTC()
		occ.End = s.Add(duration).UTC()
		out = append(out, occ)
	}
	return out, nil
}

// occurrenceUID keys an occurrence by the UTC date of its start instant.
func occurrenceUID(uid string, start time.Time) string {
	return uid + "#" + start.UTC().Format("20060102")
}

func overrideKey(ve *ical.VEvent, zones map[string]*time.Location) (string, bool) {
	rid := ve.GetProperty("RECURRENCE-ID")
	if rid == nil {
		return "", false
	}
	uid := propertyText(ve, ical.ComponentPropertyUniqueId)
	zone := time.UTC
	if z, ok := zones[uid]; ok {
		zone = z
	}
	t, err := parseICSTime(rid.Value, zoneOf(rid, zone))
	if err != nil {
		return "", false
	}
	return occurrenceUID(uid, t), true
}

// eventTime reads DTSTART/DTEND in the zone named by its TZID, falling back
// to zone for floating values. DATE values are UTC midnight. Zero when
// missing or invalid.
func eventTime(ve *ical.VEvent, prop ical.ComponentProperty, zone *time.Location) (t time.Time, allDay bool) {
	p := ve.GetProperty(prop)
	if p == nil {
		return time.Time{}, false
	}
	value := strings.TrimSpace(p.Value)

	allDay = !strings.Contains(value, "T")
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		allDay = true
	}

	t, err := parseICSTime(value, zoneOf(p, zone))
	if err != nil {
		return time.Time{}, allDay
	}
	return t, allDay
}

func exDates(ve *ical.VEvent, zone *time.Location) []time.Time {
	var out []time.Time
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		loc := zoneOf(p, zone)
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(part, loc); err == nil {
				out = append(out, t)
			}
		}
	}
	return out
}

// zoneOf returns the location named by the property's TZID, or fallback
// when it has none or the name is unknown.
func zoneOf(p *ical.IANAProperty, fallback *time.Location) *time.Location {
	if tz, ok := p.ICalParameters["TZID"]; ok && len(tz) > 0 {
		if loc, err := time.LoadLocation(strings.Trim(tz[0], `"`)); err == nil {
			return loc
		}
	}
	return fallback
}

// parseICSTime parses a bare DATE or DATE-TIME value. Floating times are
// read in loc; DATE values are UTC midnight.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.Parse("20060102", v)
	}
}

func propertyText(ve *ical.VEvent, prop ical.ComponentProperty) string {
	p := ve.GetProperty(prop)
	if p == nil {
		return ""
	}
	return unescapeText(p.Value)
}

// unescapeText undoes iCal TEXT escaping.
func unescapeText(value string) string {
	value = strings.ReplaceAll(value, "\\n", "\n")
	value = strings.ReplaceAll(value, "\\N", "\n")
	value = strings.ReplaceAll(value, "\\,", ",")
	value = strings.ReplaceAll(value, "\\;", ";")
	value = strings.ReplaceAll(value, "\\\\", "\\")
	return strings.TrimSpace(value)
}

// RedactURL hides the path and query of a feed URL, which usually carry a
// private token, for logging.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "ics://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
