package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stayledger/backend/internal/logging"
	"github.com/stayledger/backend/internal/storage/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := RunMigrations(db, logging.Discard()); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}
	return db
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func createProperty(t *testing.T, repo *PropertyRepository, feeds ...models.FeedSource) *models.Property {
	t.Helper()
	p := &models.Property{OwnerID: "owner-1", Name: "Loft", MonthlyFixedCost: decimal.NewFromInt(300), Feeds: feeds}
	if err := repo.Create(context.Background(), p); err != nil {
		t.Fatalf("Create property: %v", err)
	}
	return p
}

func TestMigrationsAreIdempotent(t *testing.T) {
	db := newTestDB(t)
	if err := RunMigrations(db, logging.Discard()); err != nil {
		t.Fatalf("second RunMigrations: %v", err)
	}
}

func TestPropertyFeedsKeepOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewPropertyRepository(newTestDB(t))
	p := createProperty(t, repo,
		models.FeedSource{Name: "Vrbo", URL: "https://vrbo.example/ical/1"},
		models.FeedSource{Name: "Airbnb", URL: "https://airbnb.example/ical/1"},
	)

	got, err := repo.GetByID(ctx, p.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: %v %v", got, err)
	}
	if len(got.Feeds) != 2 || got.Feeds[0].Name != "Vrbo" || got.Feeds[1].Name != "Airbnb" {
		t.Fatalf("feeds = %+v", got.Feeds)
	}
	if !got.MonthlyFixedCost.Equal(decimal.NewFromInt(300)) {
		t.Errorf("monthly fixed cost = %s", got.MonthlyFixedCost)
	}

	if err := repo.ReplaceFeeds(ctx, p.ID, []models.FeedSource{{Name: "Direct", URL: "https://direct.example/cal.ics"}}); err != nil {
		t.Fatalf("ReplaceFeeds: %v", err)
	}
	feeds, err := repo.ListFeeds(ctx, p.ID)
	if err != nil {
		t.Fatalf("ListFeeds: %v", err)
	}
	if len(feeds) != 1 || feeds[0].Name != "Direct" {
		t.Errorf("feeds after replace = %+v", feeds)
	}
}

func TestPropertyMissingRows(t *testing.T) {
	ctx := context.Background()
	repo := NewPropertyRepository(newTestDB(t))

	got, err := repo.GetByID(ctx, "missing")
	if err != nil || got != nil {
		t.Fatalf("GetByID(missing) = %v, %v; want nil, nil", got, err)
	}
	if err := repo.Delete(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete(missing) = %v, want ErrNotFound", err)
	}
	if err := repo.ReplaceFeeds(ctx, "missing", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("ReplaceFeeds(missing) = %v, want ErrNotFound", err)
	}
}

func TestListWithFeedsSkipsPropertiesWithoutFeeds(t *testing.T) {
	ctx := context.Background()
	repo := NewPropertyRepository(newTestDB(t))
	createProperty(t, repo)
	withFeed := createProperty(t, repo, models.FeedSource{Name: "Airbnb", URL: "https://airbnb.example/ical/2"})

	props, err := repo.ListWithFeeds(ctx)
	if err != nil {
		t.Fatalf("ListWithFeeds: %v", err)
	}
	if len(props) != 1 || props[0].ID != withFeed.ID {
		t.Fatalf("ListWithFeeds = %+v", props)
	}
	if !props[0].HasFeeds() {
		t.Error("feeds were not attached")
	}
}

func TestInsertExternalIgnoresDuplicateUID(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	p := createProperty(t, NewPropertyRepository(db))
	bookings := NewBookingRepository(db)

	uid, source := "abc123", "Airbnb"
	newBooking := func() *models.Booking {
		return &models.Booking{
			PropertyID:     p.ID,
			OwnerID:        p.OwnerID,
			GuestName:      "Jane Doe",
			CheckIn:        day(2025, 6, 1),
			CheckOut:       day(2025, 6, 4),
			Nights:         3,
			Status:         models.BookingStatusConfirmed,
			ExternalUID:    &uid,
			ExternalSource: &source,
		}
	}

	inserted, err := bookings.InsertExternal(ctx, newBooking())
	if err != nil || !inserted {
		t.Fatalf("first InsertExternal = %v, %v", inserted, err)
	}
	inserted, err = bookings.InsertExternal(ctx, newBooking())
	if err != nil {
		t.Fatalf("second InsertExternal: %v", err)
	}
	if inserted {
		t.Error("duplicate external uid was inserted")
	}

	n, err := bookings.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}

	manual := newBooking()
	manual.ExternalUID = nil
	if _, err := bookings.InsertExternal(ctx, manual); err == nil {
		t.Error("InsertExternal accepted a booking without external uid")
	}
}

func TestUpdateDatesKeepsOtherFields(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	p := createProperty(t, NewPropertyRepository(db))
	bookings := NewBookingRepository(db)

	b := &models.Booking{
		PropertyID:   p.ID,
		OwnerID:      p.OwnerID,
		GuestName:    "Walk-in",
		CheckIn:      day(2025, 6, 1),
		CheckOut:     day(2025, 6, 3),
		Nights:       2,
		Status:       models.BookingStatusConfirmed,
		Notes:        "late arrival",
		GrossRevenue: decimal.NewFromInt(200),
		NetRevenue:   decimal.NewFromInt(200),
	}
	if err := bookings.Create(ctx, b); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := bookings.UpdateDates(ctx, b.ID, day(2025, 6, 2), day(2025, 6, 5), 3); err != nil {
		t.Fatalf("UpdateDates: %v", err)
	}
	got, err := bookings.GetByID(ctx, b.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: %v %v", got, err)
	}
	if !got.CheckIn.Equal(day(2025, 6, 2)) || !got.CheckOut.Equal(day(2025, 6, 5)) || got.Nights != 3 {
		t.Errorf("dates = %s..%s (%d)", got.CheckIn, got.CheckOut, got.Nights)
	}
	if got.Notes != "late arrival" || !got.GrossRevenue.Equal(decimal.NewFromInt(200)) {
		t.Errorf("local fields changed: %+v", got)
	}

	if err := bookings.UpdateDates(ctx, "missing", day(2025, 6, 2), day(2025, 6, 5), 3); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateDates(missing) = %v, want ErrNotFound", err)
	}
}

func TestListByPropertyRange(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	p := createProperty(t, NewPropertyRepository(db))
	bookings := NewBookingRepository(db)

	stays := [][2]time.Time{
		{day(2025, 5, 28), day(2025, 6, 1)}, // ends on the range start
		{day(2025, 5, 30), day(2025, 6, 2)},
		{day(2025, 6, 10), day(2025, 6, 12)},
		{day(2025, 7, 1), day(2025, 7, 3)}, // starts on the range end
	}
	for _, s := range stays {
		b := &models.Booking{
			PropertyID: p.ID, OwnerID: p.OwnerID, CheckIn: s[0], CheckOut: s[1],
			Nights: models.NightsBetween(s[0], s[1]), Status: models.BookingStatusConfirmed,
		}
		if err := bookings.Create(ctx, b); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	got, err := bookings.ListByProperty(ctx, p.ID, day(2025, 6, 1), day(2025, 7, 1))
	if err != nil {
		t.Fatalf("ListByProperty: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d bookings, want 2", len(got))
	}
	if !got[0].CheckIn.Equal(day(2025, 5, 30)) || !got[1].CheckIn.Equal(day(2025, 6, 10)) {
		t.Errorf("unexpected bookings %s, %s", got[0].CheckIn, got[1].CheckIn)
	}

	all, err := bookings.ListByProperty(ctx, p.ID, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("ListByProperty(open): %v", err)
	}
	if len(all) != len(stays) {
		t.Errorf("open range returned %d bookings, want %d", len(all), len(stays))
	}
}

func TestDeletePropertyCascades(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	props := NewPropertyRepository(db)
	bookings := NewBookingRepository(db)
	p := createProperty(t, props, models.FeedSource{Name: "Airbnb", URL: "https://airbnb.example/ical/3"})

	b := &models.Booking{
		PropertyID: p.ID, OwnerID: p.OwnerID, CheckIn: day(2025, 6, 1), CheckOut: day(2025, 6, 2),
		Nights: 1, Status: models.BookingStatusConfirmed,
	}
	if err := bookings.Create(ctx, b); err != nil {
		t.Fatalf("Create booking: %v", err)
	}
	if err := props.Delete(ctx, p.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	got, err := bookings.GetByID(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got != nil {
		t.Error("booking survived property delete")
	}
}

func TestChannelsListInCreationOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewChannelRepository(newTestDB(t))
	tick := day(2025, 1, 1)
	repo.SetClock(func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	})

	for _, name := range []string{"Vrbo", "Airbnb", "Direct"} {
		if err := repo.Create(ctx, &models.Channel{OwnerID: "owner-1", Name: name, CommissionRate: decimal.NewFromInt(3)}); err != nil {
			t.Fatalf("Create %s: %v", name, err)
		}
	}
	if err := repo.Create(ctx, &models.Channel{OwnerID: "owner-2", Name: "Other"}); err != nil {
		t.Fatalf("Create other: %v", err)
	}

	got, err := repo.ListByOwner(ctx, "owner-1")
	if err != nil {
		t.Fatalf("ListByOwner: %v", err)
	}
	if len(got) != 3 || got[0].Name != "Vrbo" || got[2].Name != "Direct" {
		t.Fatalf("ListByOwner = %+v", got)
	}
	if !got[0].CommissionRate.Equal(decimal.NewFromInt(3)) {
		t.Errorf("commission rate = %s", got[0].CommissionRate)
	}
}
