package calendar

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stayledger/backend/internal/storage"
	"github.com/stayledger/backend/internal/storage/models"
)

const airbnbURL = "https://www.airbnb.test/calendar/ical/1.ics?s=secret"

func TestSyncEndToEnd(t *testing.T) {
	env := newTestEnv(t, day(2025, 5, 20))
	ctx := context.Background()

	airbnb := env.addChannel(t, "Airbnb", 3)
	env.addChannel(t, "Booking.com", 15)
	p := env.addProperty(t, "Beach House", models.FeedSource{Name: "Airbnb Calendar", URL: airbnbURL})
	env.fetcher.set(airbnbURL, event("abc123", day(2025, 6, 1), day(2025, 6, 4), "Jane Doe - Airbnb reservation"))

	result, err := env.service.SyncProperty(ctx, p.ID)
	if err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if result.Imported != 1 || result.Created != 1 || result.Skipped != 0 {
		t.Fatalf("first sync = %+v, want 1 created", result)
	}

	b := env.booking(t, p.ID, "abc123")
	if b == nil {
		t.Fatal("booking not created")
	}
	if !b.CheckIn.Equal(day(2025, 6, 1)) || !b.CheckOut.Equal(day(2025, 6, 4)) {
		t.Errorf("dates = %v..%v", b.CheckIn, b.CheckOut)
	}
	if b.Nights != 3 {
		t.Errorf("nights = %d, want 3", b.Nights)
	}
	if b.GuestName != "Jane Doe" {
		t.Errorf("guest = %q, want Jane Doe", b.GuestName)
	}
	if b.ChannelID == nil || *b.ChannelID != airbnb.ID {
		t.Errorf("channel = %v, want %s", b.ChannelID, airbnb.ID)
	}
	if !b.GrossRevenue.IsZero() || !b.NetRevenue.IsZero() || !b.CommissionAmount.IsZero() {
		t.Errorf("financials should be zero, got gross=%s net=%s", b.GrossRevenue, b.NetRevenue)
	}
	if b.Status != models.BookingStatusConfirmed {
		t.Errorf("status = %s", b.Status)
	}
	if b.ExternalSource == nil || *b.ExternalSource != "Airbnb Calendar" {
		t.Errorf("external source = %v", b.ExternalSource)
	}

	result, err = env.service.SyncProperty(ctx, p.ID)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if result.Imported != 0 || result.Skipped != 1 {
		t.Errorf("second sync = %+v, want imported=0 skipped=1", result)
	}

	n, err := env.bookings.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("bookings = %d, want 1", n)
	}
}

func TestSyncUpdatesOnlyDates(t *testing.T) {
	env := newTestEnv(t, day(2025, 5, 20))
	ctx := context.Background()

	p := env.addProperty(t, "Loft", models.FeedSource{Name: "Airbnb", URL: airbnbURL})
	env.fetcher.set(airbnbURL, event("uid-1", day(2025, 6, 1), day(2025, 6, 4), "Jane Doe - Stay"))
	if _, err := env.service.SyncProperty(ctx, p.ID); err != nil {
		t.Fatal(err)
	}

	b := env.booking(t, p.ID, "uid-1")
	b.GuestName = "Jane D. (VIP)"
	b.Notes = "late arrival"
	if err := env.bookings.Update(ctx, b); err != nil {
		t.Fatal(err)
	}

	env.fetcher.set(airbnbURL, event("uid-1", day(2025, 6, 2), day(2025, 6, 7), "Someone Else - Stay"))
	result, err := env.service.SyncProperty(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if result.Imported != 1 || result.Updated != 1 {
		t.Fatalf("result = %+v, want 1 updated", result)
	}

	b = env.booking(t, p.ID, "uid-1")
	if !b.CheckIn.Equal(day(2025, 6, 2)) || !b.CheckOut.Equal(day(2025, 6, 7)) || b.Nights != 5 {
		t.Errorf("dates not updated: %v..%v (%d nights)", b.CheckIn, b.CheckOut, b.Nights)
	}
	if b.GuestName != "Jane D. (VIP)" || b.Notes != "late arrival" {
		t.Errorf("local edits overwritten: guest=%q notes=%q", b.GuestName, b.Notes)
	}
}

func TestSyncStaleBoundary(t *testing.T) {
	now := time.Date(2025, 6, 20, 12, 0, 0, 0, time.UTC)
	env := newTestEnv(t, now)

	p := env.addProperty(t, "Cabin", models.FeedSource{Name: "Direct", URL: "https://direct.test/feed.ics"})
	env.fetcher.set("https://direct.test/feed.ics",
		event("ten-days", now.Add(-12*24*time.Hour), now.Add(-10*24*time.Hour), "Old Guest - x"),
		event("five-days", now.Add(-8*24*time.Hour), now.Add(-5*24*time.Hour), "Recent Guest - x"),
		event("seven-days", now.Add(-9*24*time.Hour), now.Add(-7*24*time.Hour), "Boundary Guest - x"),
	)

	result, err := env.service.SyncProperty(context.Background(), p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if result.Imported != 2 {
		t.Errorf("imported = %d, want 2", result.Imported)
	}
	if env.booking(t, p.ID, "ten-days") != nil {
		t.Error("event ended 10 days ago was imported")
	}
	if env.booking(t, p.ID, "five-days") == nil {
		t.Error("event ended 5 days ago was not imported")
	}
	if env.booking(t, p.ID, "seven-days") == nil {
		t.Error("event ended exactly 7 days ago was not imported")
	}
}

func TestSyncDiscardsInvalidDates(t *testing.T) {
	env := newTestEnv(t, day(2025, 5, 20))

	p := env.addProperty(t, "Cabin", models.FeedSource{Name: "Direct", URL: "https://direct.test/feed.ics"})
	env.fetcher.set("https://direct.test/feed.ics",
		event("backwards", day(2025, 6, 5), day(2025, 6, 1), "Bad - x"),
		models.CalendarEvent{UID: "no-end", Start: day(2025, 6, 1)},
		event("same-day", day(2025, 6, 10), day(2025, 6, 10), "Blocked"),
	)

	result, err := env.service.SyncProperty(context.Background(), p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if result.Imported != 1 {
		t.Errorf("imported = %d, want 1", result.Imported)
	}
	b := env.booking(t, p.ID, "same-day")
	if b == nil || b.Nights != 0 || b.GuestName != DefaultBlockLabel {
		t.Errorf("same-day block = %+v", b)
	}
}

func TestSyncPartialFailureIsolation(t *testing.T) {
	env := newTestEnv(t, day(2025, 5, 20))

	p := env.addProperty(t, "Villa",
		models.FeedSource{Name: "Vrbo", URL: "https://vrbo.test/down.ics"},
		models.FeedSource{Name: "Airbnb", URL: airbnbURL},
	)
	env.fetcher.fail("https://vrbo.test/down.ics", fmt.Errorf("%w: status 503", ErrFeedUnavailable))
	env.fetcher.set(airbnbURL,
		event("a", day(2025, 6, 1), day(2025, 6, 3), "A - x"),
		event("b", day(2025, 6, 5), day(2025, 6, 8), "B - x"),
		event("c", day(2025, 6, 10), day(2025, 6, 12), "C - x"),
	)

	result, err := env.service.SyncProperty(context.Background(), p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Errors) != 1 || result.Errors[0].Source != "Vrbo" {
		t.Errorf("errors = %+v, want one for Vrbo", result.Errors)
	}
	if result.Imported != 3 {
		t.Errorf("imported = %d, want 3", result.Imported)
	}

	stored, err := env.properties.GetByID(context.Background(), p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.LastSyncAt == nil || !stored.LastSyncAt.Equal(env.now) {
		t.Errorf("last sync = %v, want %v", stored.LastSyncAt, env.now)
	}
}

func TestSyncEmptyFeedStampsLastSync(t *testing.T) {
	env := newTestEnv(t, day(2025, 5, 20))
	p := env.addProperty(t, "Studio", models.FeedSource{Name: "Direct", URL: "https://direct.test/empty.ics"})

	result, err := env.service.SyncProperty(context.Background(), p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if result.Imported != 0 || result.Skipped != 0 || len(result.Errors) != 0 {
		t.Errorf("result = %+v", result)
	}
	if !result.SyncedAt.Equal(env.now) {
		t.Errorf("synced at = %v", result.SyncedAt)
	}

	stored, err := env.properties.GetByID(context.Background(), p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.LastSyncAt == nil {
		t.Error("last sync not stamped for an empty feed")
	}
}

func TestSyncLeavesManualBookingsAlone(t *testing.T) {
	env := newTestEnv(t, day(2025, 5, 20))
	ctx := context.Background()

	p := env.addProperty(t, "Loft", models.FeedSource{Name: "Airbnb", URL: airbnbURL})
	manual := &models.Booking{
		PropertyID: p.ID,
		OwnerID:    p.OwnerID,
		GuestName:  "Walk-in",
		CheckIn:    day(2025, 6, 1),
		CheckOut:   day(2025, 6, 4),
		Nights:     3,
		Status:     models.BookingStatusConfirmed,
	}
	if err := env.bookings.Create(ctx, manual); err != nil {
		t.Fatal(err)
	}

	env.fetcher.set(airbnbURL, event("abc", day(2025, 6, 2), day(2025, 6, 5), "Guest - x"))
	if _, err := env.service.SyncProperty(ctx, p.ID); err != nil {
		t.Fatal(err)
	}

	got, err := env.bookings.GetByID(ctx, manual.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.GuestName != "Walk-in" || !got.CheckIn.Equal(day(2025, 6, 1)) || got.IsExternal() {
		t.Errorf("manual booking changed: %+v", got)
	}
}

func TestSyncPropertyNotFound(t *testing.T) {
	env := newTestEnv(t, day(2025, 5, 20))
	_, err := env.service.SyncProperty(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSyncConcurrentRunsDoNotDuplicate(t *testing.T) {
	env := newTestEnv(t, day(2025, 5, 20))
	p := env.addProperty(t, "Loft", models.FeedSource{Name: "Airbnb", URL: airbnbURL})
	env.fetcher.set(airbnbURL, event("abc123", day(2025, 6, 1), day(2025, 6, 4), "Jane Doe - x"))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := env.service.SyncProperty(context.Background(), p.ID)
			if err != nil {
				t.Errorf("sync: %v", err)
				return
			}
			mu.Lock()
			created += result.Created
			mu.Unlock()
		}()
	}
	wg.Wait()

	if created != 1 {
		t.Errorf("created across runs = %d, want 1", created)
	}
	n, err := env.bookings.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("bookings = %d, want 1", n)
	}
}

func TestSyncAll(t *testing.T) {
	env := newTestEnv(t, day(2025, 5, 20))

	env.addProperty(t, "One", models.FeedSource{Name: "Airbnb", URL: airbnbURL})
	env.addProperty(t, "Two",
		models.FeedSource{Name: "Vrbo", URL: "https://vrbo.test/down.ics"},
		models.FeedSource{Name: "Direct", URL: "https://direct.test/feed.ics"},
	)
	env.addProperty(t, "No feeds")

	env.fetcher.set(airbnbURL, event("x", day(2025, 6, 1), day(2025, 6, 2), "X - y"))
	env.fetcher.fail("https://vrbo.test/down.ics", ErrFeedUnavailable)
	env.fetcher.set("https://direct.test/feed.ics", event("y", day(2025, 6, 1), day(2025, 6, 2), "Y - z"))

	summary := env.service.SyncAll(context.Background())
	if summary.Properties != 2 {
		t.Errorf("properties = %d, want 2", summary.Properties)
	}
	if summary.Imported != 2 {
		t.Errorf("imported = %d, want 2", summary.Imported)
	}
	if summary.FeedErrors != 1 {
		t.Errorf("feed errors = %d, want 1", summary.FeedErrors)
	}
	if len(summary.Failed) != 0 {
		t.Errorf("failed = %+v", summary.Failed)
	}
	if !summary.HasFailures() {
		t.Error("summary with a feed error should report failures")
	}
}

func TestSyncDuplicateUIDAcrossFeeds(t *testing.T) {
	env := newTestEnv(t, day(2025, 5, 20))
	p := env.addProperty(t, "Loft",
		models.FeedSource{Name: "Airbnb", URL: airbnbURL},
		models.FeedSource{Name: "Mirror", URL: "https://mirror.test/feed.ics"},
	)
	ev := event("shared", day(2025, 6, 1), day(2025, 6, 3), "Guest - x")
	env.fetcher.set(airbnbURL, ev)
	env.fetcher.set("https://mirror.test/feed.ics", ev)

	result, err := env.service.SyncProperty(context.Background(), p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if result.Created != 1 || result.Skipped != 1 {
		t.Errorf("result = %+v, want 1 created and 1 skipped", result)
	}
	b := env.booking(t, p.ID, "shared")
	if b.ExternalSource == nil || *b.ExternalSource != "Airbnb" {
		t.Errorf("first feed in order should own the booking, got %v", b.ExternalSource)
	}
}

func TestSyncChannelLookupFailureIsNotFatal(t *testing.T) {
	env := newTestEnv(t, day(2025, 5, 20))
	ctx := context.Background()

	env.addChannel(t, "Airbnb", 3)
	p := env.addProperty(t, "Loft", models.FeedSource{Name: "Airbnb", URL: airbnbURL})
	env.fetcher.set(airbnbURL, event("abc123", day(2025, 6, 1), day(2025, 6, 4), "Jane Doe - Airbnb"))

	if _, err := env.db.ExecContext(ctx, `ALTER TABLE channels RENAME COLUMN commission_rate TO rate_pct`); err != nil {
		t.Fatalf("breaking channels table: %v", err)
	}

	result, err := env.service.SyncProperty(ctx, p.ID)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if result.Imported != 1 {
		t.Errorf("imported = %d, want 1", result.Imported)
	}

	b := env.booking(t, p.ID, "abc123")
	if b == nil {
		t.Fatal("booking not created")
	}
	if b.ChannelID != nil {
		t.Errorf("channel = %v, want none", *b.ChannelID)
	}

	got, err := env.properties.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.LastSyncAt == nil || !got.LastSyncAt.Equal(env.now) {
		t.Errorf("last sync = %v, want %v", got.LastSyncAt, env.now)
	}
}

func TestSyncAllContinuesAfterStorageFailure(t *testing.T) {
	env := newTestEnv(t, day(2025, 5, 20))
	ctx := context.Background()

	broken := env.addProperty(t, "Broken", models.FeedSource{Name: "Airbnb", URL: airbnbURL})
	healthy := env.addProperty(t, "Healthy", models.FeedSource{Name: "Direct", URL: "https://direct.test/feed.ics"})
	env.fetcher.set(airbnbURL, event("x", day(2025, 6, 1), day(2025, 6, 2), "X - y"))
	env.fetcher.set("https://direct.test/feed.ics", event("y", day(2025, 6, 1), day(2025, 6, 2), "Y - z"))

	trigger := fmt.Sprintf(`
		CREATE TRIGGER reject_bookings BEFORE INSERT ON bookings
		WHEN NEW.property_id = '%s'
		BEGIN SELECT RAISE(ABORT, 'disk full'); END`, broken.ID)
	if _, err := env.db.ExecContext(ctx, trigger); err != nil {
		t.Fatalf("creating trigger: %v", err)
	}

	summary := env.service.SyncAll(ctx)
	if summary.Properties != 2 {
		t.Errorf("properties = %d, want 2", summary.Properties)
	}
	if len(summary.Failed) != 1 || summary.Failed[0].PropertyID != broken.ID {
		t.Fatalf("failed = %+v, want only %s", summary.Failed, broken.ID)
	}
	if summary.Imported != 1 {
		t.Errorf("imported = %d, want 1", summary.Imported)
	}
	if env.booking(t, broken.ID, "x") != nil {
		t.Error("broken property should have no booking")
	}
	if env.booking(t, healthy.ID, "y") == nil {
		t.Error("healthy property was not imported")
	}

	got, err := env.properties.GetByID(ctx, broken.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.LastSyncAt != nil {
		t.Errorf("aborted property should not be stamped, got %v", got.LastSyncAt)
	}
}
