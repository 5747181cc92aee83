package calendar

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stayledger/backend/internal/logging"
	"github.com/stayledger/backend/internal/storage"
	"github.com/stayledger/backend/internal/storage/models"
)

// fakeFetcher serves canned events or errors per feed URL.
type fakeFetcher struct {
	mu     sync.Mutex
	events map[string][]models.CalendarEvent
	errs   map[string]error
	calls  int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		events: make(map[string][]models.CalendarEvent),
		errs:   make(map[string]error),
	}
}

func (f *fakeFetcher) set(url string, events ...models.CalendarEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[url] = events
	delete(f.errs, url)
}

func (f *fakeFetcher) fail(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[url] = err
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]models.CalendarEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	return append([]models.CalendarEvent(nil), f.events[url]...), nil
}

type testEnv struct {
	db         *storage.DB
	properties *storage.PropertyRepository
	bookings   *storage.BookingRepository
	channels   *storage.ChannelRepository
	fetcher    *fakeFetcher
	service    *SyncService
	now        time.Time
}

func newTestEnv(t *testing.T, now time.Time) *testEnv {
	t.Helper()

	db, err := storage.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := storage.RunMigrations(db, logging.Discard()); err != nil {
		t.Fatalf("running migrations: %v", err)
	}

	env := &testEnv{
		db:         db,
		properties: storage.NewPropertyRepository(db),
		bookings:   storage.NewBookingRepository(db),
		channels:   storage.NewChannelRepository(db),
		fetcher:    newFakeFetcher(),
		now:        now,
	}
	env.service = NewSyncService(env.properties, env.bookings, env.channels, env.fetcher, logging.Discard(),
		WithClock(func() time.Time { return env.now }))
	return env
}

func (e *testEnv) addProperty(t *testing.T, name string, feeds ...models.FeedSource) *models.Property {
	t.Helper()
	p := &models.Property{OwnerID: "owner-1", Name: name, MonthlyFixedCost: decimal.Zero, Feeds: feeds}
	if err := e.properties.Create(context.Background(), p); err != nil {
		t.Fatalf("creating property: %v", err)
	}
	return p
}

func (e *testEnv) addChannel(t *testing.T, name string, rate int64) *models.Channel {
	t.Helper()
	c := &models.Channel{OwnerID: "owner-1", Name: name, CommissionRate: decimal.NewFromInt(rate)}
	if err := e.channels.Create(context.Background(), c); err != nil {
		t.Fatalf("creating channel: %v", err)
	}
	return c
}

func (e *testEnv) booking(t *testing.T, propertyID, uid string) *models.Booking {
	t.Helper()
	b, err := e.bookings.GetByExternalUID(context.Background(), propertyID, uid)
	if err != nil {
		t.Fatalf("loading booking %s: %v", uid, err)
	}
	return b
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func event(uid string, start, end time.Time, summary string) models.CalendarEvent {
	return models.CalendarEvent{UID: uid, Start: start, End: end, Summary: summary}
}
