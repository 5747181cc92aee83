package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stayledger/backend/internal/finance"
	"github.com/stayledger/backend/internal/storage"
	"github.com/stayledger/backend/internal/storage/models"
)

const defaultMaxParallelFetches = 4

// outcome is what reconciling one candidate did.
type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeCreated
	outcomeUpdated
)

// SyncService reconciles the calendar feeds of properties into bookings.
type SyncService struct {
	properties  *storage.PropertyRepository
	bookings    *storage.BookingRepository
	channels    *storage.ChannelRepository
	fetcher     Fetcher
	normalizer  *Normalizer
	logger      *slog.Logger
	now         func() time.Time
	maxParallel int

	// Per-property locks; two syncs of the same property never interleave.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// SyncOption customizes a SyncService.
type SyncOption func(*SyncService)

// WithClock sets the clock used for stale filtering and sync timestamps.
func WithClock(now func() time.Time) SyncOption {
	return func(s *SyncService) { s.now = now }
}

// WithNormalizer replaces the default event normalizer.
func WithNormalizer(n *Normalizer) SyncOption {
	return func(s *SyncService) { s.normalizer = n }
}

// WithMaxParallelFetches bounds how many feeds of a property are downloaded at once.
func WithMaxParallelFetches(n int) SyncOption {
	return func(s *SyncService) {
		if n > 0 {
			s.maxParallel = n
		}
	}
}

// NewSyncService creates a new calendar sync service.
func NewSyncService(
	properties *storage.PropertyRepository,
	bookings *storage.BookingRepository,
	channels *storage.ChannelRepository,
	fetcher Fetcher,
	logger *slog.Logger,
	opts ...SyncOption,
) *SyncService {
	s := &SyncService{
		properties:  properties,
		bookings:    bookings,
		channels:    channels,
		fetcher:     fetcher,
		normalizer:  NewNormalizer(),
		logger:      logger.With("component", "calendar-sync"),
		now:         time.Now,
		maxParallel: defaultMaxParallelFetches,
		locks:       make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SyncProperty reconciles every feed of a single property.
// Returns an error wrapping storage.ErrNotFound for an unknown property.
func (s *SyncService) SyncProperty(ctx context.Context, propertyID string) (*models.SyncResult, error) {
	property, err := s.properties.GetByID(ctx, propertyID)
	if err != nil {
		return nil, fmt.Errorf("getting property: %w", err)
	}
	if property == nil {
		return nil, fmt.Errorf("property %s: %w", propertyID, storage.ErrNotFound)
	}
	return s.Reconcile(ctx, property)
}

// Reconcile merges the events of a property's feeds into its bookings.
// Feed failures are reported in the result and do not stop other feeds.
// Storage failures abort the property; the counts so far are still returned.
func (s *SyncService) Reconcile(ctx context.Context, property *models.Property) (*models.SyncResult, error) {
	unlock := s.lockProperty(property.ID)
	defer unlock()

	result := &models.SyncResult{
		PropertyID:   property.ID,
		PropertyName: property.Name,
		Errors:       []models.FeedError{},
	}

	// Without channels every new booking is imported unmatched.
	channels, err := s.channels.ListByOwner(ctx, property.OwnerID)
	if err != nil {
		s.logger.Warn("channel lookup failed, importing without channels",
			"property_id", property.ID, "owner_id", property.OwnerID, "error", err)
		channels = nil
	}

	now := s.now().UTC()
	fetched := s.fetchFeeds(ctx, property.Feeds)

	for i, feed := range property.Feeds {
		if err := fetched[i].err; err != nil {
			s.logger.Warn("feed fetch failed",
				"property_id", property.ID, "feed", feed.Name, "url", RedactURL(feed.URL), "error", err)
			result.Errors = append(result.Errors, models.FeedError{Source: feed.Name, Message: err.Error()})
			continue
		}

		for _, ev := range fetched[i].events {
			candidate, err := s.normalizer.Normalize(ev, feed.Name, now)
			if err != nil {
				s.logger.Debug("event discarded", "property_id", property.ID, "feed", feed.Name, "uid", ev.UID, "reason", err)
				continue
			}

			out, err := s.apply(ctx, property, candidate, channels)
			if err != nil {
				return result, fmt.Errorf("reconciling event %s from %s: %w", candidate.UID, feed.Name, err)
			}
			switch out {
			case outcomeCreated:
				result.Imported++
				result.Created++
			case outcomeUpdated:
				result.Imported++
				result.Updated++
			default:
				result.Skipped++
			}
		}
	}

	// A sync with no changes still counts as a sync.
	if err := s.properties.UpdateLastSync(ctx, property.ID, now); err != nil {
		return result, fmt.Errorf("stamping last sync: %w", err)
	}
	result.SyncedAt = now
	property.LastSyncAt = &now

	s.logger.Info("property synced",
		"property_id", property.ID,
		"imported", result.Imported,
		"created", result.Created,
		"updated", result.Updated,
		"skipped", result.Skipped,
		"feed_errors", len(result.Errors))

	return result, nil
}

// SyncAll reconciles every property that has at least one feed. A failing
// property is recorded in the summary and the run continues.
func (s *SyncService) SyncAll(ctx context.Context) models.SyncSummary {
	summary := models.SyncSummary{
		StartedAt: s.now().UTC(),
		Results:   []models.SyncResult{},
	}

	properties, err := s.properties.ListWithFeeds(ctx)
	if err != nil {
		s.logger.Error("listing properties for sync", "error", err)
		summary.Failed = append(summary.Failed, models.SyncFailure{Message: err.Error()})
		summary.FinishedAt = s.now().UTC()
		return summary
	}

	for i := range properties {
		if ctx.Err() != nil {
			break
		}
		p := &properties[i]
		summary.Properties++

		result, err := s.Reconcile(ctx, p)
		if result != nil {
			summary.Imported += result.Imported
			summary.Skipped += result.Skipped
			summary.FeedErrors += len(result.Errors)
			summary.Results = append(summary.Results, *result)
		}
		if err != nil {
			s.logger.Error("property sync failed", "property_id", p.ID, "error", err)
			summary.Failed = append(summary.Failed, models.SyncFailure{
				PropertyID:   p.ID,
				PropertyName: p.Name,
				Message:      err.Error(),
			})
		}
	}

	summary.FinishedAt = s.now().UTC()
	return summary
}

// apply creates, updates or skips the booking for one candidate.
func (s *SyncService) apply(ctx context.Context, property *models.Property, c Candidate, channels []models.Channel) (outcome, error) {
	existing, err := s.bookings.GetByExternalUID(ctx, property.ID, c.UID)
	if err != nil {
		return outcomeSkipped, err
	}

	if existing == nil {
		booking := newExternalBooking(property, c, channels)
		inserted, err := s.bookings.InsertExternal(ctx, booking)
		if err != nil {
			return outcomeSkipped, err
		}
		if inserted {
			return outcomeCreated, nil
		}

		// Lost an insert race; the row exists now.
		existing, err = s.bookings.GetByExternalUID(ctx, property.ID, c.UID)
		if err != nil {
			return outcomeSkipped, err
		}
		if existing == nil {
			return outcomeSkipped, errors.New("booking vanished after conflicting insert")
		}
	}

	if existing.CheckIn.Equal(c.Start) && existing.CheckOut.Equal(c.End) {
		return outcomeSkipped, nil
	}

	// Only dates follow the feed; local edits to everything else are kept.
	if err := s.bookings.UpdateDates(ctx, existing.ID, c.Start, c.End, c.Nights); err != nil {
		return outcomeSkipped, err
	}
	return outcomeUpdated, nil
}

func newExternalBooking(property *models.Property, c Candidate, channels []models.Channel) *models.Booking {
	uid, source := c.UID, c.FeedName
	b := &models.Booking{
		PropertyID:     property.ID,
		OwnerID:        property.OwnerID,
		GuestName:      c.GuestName,
		CheckIn:        c.Start,
		CheckOut:       c.End,
		Nights:         c.Nights,
		Status:         models.BookingStatusConfirmed,
		Notes:          c.Notes,
		ExternalUID:    &uid,
		ExternalSource: &source,
	}
	if ch := MatchChannel(c.FeedName, channels); ch != nil {
		id := ch.ID
		b.ChannelID = &id
	}
	// Feeds carry no money.
	finance.Derive(decimal.Zero, decimal.Zero).Apply(b)
	return b
}

type fetchResult struct {
	events []models.CalendarEvent
	err    error
}

// fetchFeeds downloads all feeds concurrently. Results keep feed order.
func (s *SyncService) fetchFeeds(ctx context.Context, feeds []models.FeedSource) []fetchResult {
	results := make([]fetchResult, len(feeds))
	sem := make(chan struct{}, s.maxParallel)

	var wg sync.WaitGroup
	for i, feed := range feeds {
		wg.Add(1)
		go func(i int, feed models.FeedSource) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			events, err := s.fetcher.Fetch(ctx, feed.URL)
			results[i] = fetchResult{events: events, err: err}
		}(i, feed)
	}
	wg.Wait()

	return results
}

func (s *SyncService) lockProperty(id string) func() {
	s.locksMu.Lock()
	mu, ok := s.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[id] = mu
	}
	s.locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}
