package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/stayledger/backend/internal/storage/models"
)

const bookingColumns = `id, property_id, owner_id, channel_id, guest_name, check_in, check_out, nights,
	status, notes, gross_revenue, commission_rate, commission_amount, net_revenue,
	external_uid, external_source, created_at, updated_at`

// BookingRepository provides data access for bookings.
type BookingRepository struct {
	BaseRepository
}

// NewBookingRepository creates a new booking repository.
func NewBookingRepository(db *DB) *BookingRepository {
	return &BookingRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Create inserts a new booking.
func (r *BookingRepository) Create(ctx context.Context, b *models.Booking) error {
	_, err := r.insert(ctx, b, false)
	return err
}

// InsertExternal inserts a feed-imported booking unless one already exists for
// the same (property, external uid). Returns false when the row already existed.
func (r *BookingRepository) InsertExternal(ctx context.Context, b *models.Booking) (bool, error) {
	if !b.IsExternal() {
		return false, fmt.Errorf("inserting external booking: missing external uid")
	}
	return r.insert(ctx, b, true)
}

func (r *BookingRepository) insert(ctx context.Context, b *models.Booking, onConflictNothing bool) (bool, error) {
	b.ID = GenerateID()
	b.CreatedAt = r.Now()
	b.UpdatedAt = b.CreatedAt

	query := `
		INSERT INTO bookings (
			id, property_id, owner_id, channel_id, guest_name, check_in, check_out, nights,
			status, notes, gross_revenue, commission_rate, commission_amount, net_revenue,
			external_uid, external_source, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if onConflictNothing {
		query += ` ON CONFLICT (property_id, external_uid) DO NOTHING`
	}

	result, err := r.DB().ExecContext(ctx, r.DB().Rebind(query),
		b.ID, b.PropertyID, b.OwnerID, b.ChannelID, b.GuestName, b.CheckIn.UTC(), b.CheckOut.UTC(), b.Nights,
		b.Status, b.Notes, b.GrossRevenue, b.CommissionRate, b.CommissionAmount, b.NetRevenue,
		b.ExternalUID, b.ExternalSource, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("inserting booking: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("inserting booking: %w", err)
	}
	return n > 0, nil
}

// GetByID retrieves a booking by its ID. Returns nil if not found.
func (r *BookingRepository) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	b := &models.Booking{}
	err := r.DB().GetContext(ctx, b, r.DB().Rebind(`SELECT `+bookingColumns+` FROM bookings WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying booking: %w", err)
	}
	return b, nil
}

// GetByExternalUID retrieves the booking imported from a feed event. Returns nil if not found.
func (r *BookingRepository) GetByExternalUID(ctx context.Context, propertyID, uid string) (*models.Booking, error) {
	b := &models.Booking{}
	err := r.DB().GetContext(ctx, b, r.DB().Rebind(`
		SELECT `+bookingColumns+` FROM bookings WHERE property_id = ? AND external_uid = ?
	`), propertyID, uid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying booking by external uid: %w", err)
	}
	return b, nil
}

// ListByProperty retrieves the bookings of a property ordered by check-in.
// A zero from/to leaves that side of the range open; the range matches
// bookings whose stay intersects [from, to).
func (r *BookingRepository) ListByProperty(ctx context.Context, propertyID string, from, to time.Time) ([]models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE property_id = ?`
	args := []any{propertyID}
	if !to.IsZero() {
		query += ` AND check_in < ?`
		args = append(args, to.UTC())
	}
	if !from.IsZero() {
		query += ` AND check_out > ?`
		args = append(args, from.UTC())
	}
	query += ` ORDER BY check_in, id`

	bookings := []models.Booking{}
	if err := r.DB().SelectContext(ctx, &bookings, r.DB().Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("querying bookings: %w", err)
	}
	return bookings, nil
}

// UpdateDates overwrites only the stay dates of a booking.
func (r *BookingRepository) UpdateDates(ctx context.Context, id string, checkIn, checkOut time.Time, nights int) error {
	result, err := r.DB().ExecContext(ctx, r.DB().Rebind(`
		UPDATE bookings SET check_in = ?, check_out = ?, nights = ?, updated_at = ? WHERE id = ?
	`), checkIn.UTC(), checkOut.UTC(), nights, r.Now(), id)
	if err != nil {
		return fmt.Errorf("updating booking dates: %w", err)
	}
	return requireRow(result)
}

// Update writes every locally editable field of a booking. External identity is immutable.
func (r *BookingRepository) Update(ctx context.Context, b *models.Booking) error {
	b.UpdatedAt = r.Now()

	result, err := r.DB().ExecContext(ctx, r.DB().Rebind(`
		UPDATE bookings SET
			channel_id = ?, guest_name = ?, check_in = ?, check_out = ?, nights = ?, status = ?, notes = ?,
			gross_revenue = ?, commission_rate = ?, commission_amount = ?, net_revenue = ?, updated_at = ?
		WHERE id = ?
	`),
		b.ChannelID, b.GuestName, b.CheckIn.UTC(), b.CheckOut.UTC(), b.Nights, b.Status, b.Notes,
		b.GrossRevenue, b.CommissionRate, b.CommissionAmount, b.NetRevenue, b.UpdatedAt,
		b.ID,
	)
	if err != nil {
		return fmt.Errorf("updating booking: %w", err)
	}
	return requireRow(result)
}

// Count returns the number of bookings.
func (r *BookingRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.DB().GetContext(ctx, &n, `SELECT COUNT(*) FROM bookings`); err != nil {
		return 0, fmt.Errorf("counting bookings: %w", err)
	}
	return n, nil
}
