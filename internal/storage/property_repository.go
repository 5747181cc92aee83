package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stayledger/backend/internal/storage/models"
)

const propertyColumns = `id, owner_id, name, monthly_fixed_cost, last_sync_at, created_at, updated_at`

// PropertyRepository provides data access for properties and their feeds.
type PropertyRepository struct {
	BaseRepository
}

// NewPropertyRepository creates a new property repository.
func NewPropertyRepository(db *DB) *PropertyRepository {
	return &PropertyRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Create inserts a new property together with its feeds.
func (r *PropertyRepository) Create(ctx context.Context, p *models.Property) error {
	p.ID = GenerateID()
	p.CreatedAt = r.Now()
	p.UpdatedAt = p.CreatedAt

	return r.DB().Transaction(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO properties (id, owner_id, name, monthly_fixed_cost, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`), p.ID, p.OwnerID, p.Name, p.MonthlyFixedCost, p.CreatedAt, p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("inserting property: %w", err)
		}
		return r.insertFeeds(ctx, tx, p.ID, p.Feeds)
	})
}

// GetByID retrieves a property and its feeds. Returns nil if not found.
func (r *PropertyRepository) GetByID(ctx context.Context, id string) (*models.Property, error) {
	p := &models.Property{}
	err := r.DB().GetContext(ctx, p, r.DB().Rebind(`SELECT `+propertyColumns+` FROM properties WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying property: %w", err)
	}

	feeds, err := r.ListFeeds(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Feeds = feeds
	return p, nil
}

// List retrieves all properties, optionally restricted to one owner.
func (r *PropertyRepository) List(ctx context.Context, ownerID string) ([]models.Property, error) {
	query := `SELECT ` + propertyColumns + ` FROM properties`
	var args []any
	if ownerID != "" {
		query += ` WHERE owner_id = ?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY name`

	var props []models.Property
	if err := r.DB().SelectContext(ctx, &props, r.DB().Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("querying properties: %w", err)
	}
	if err := r.attachFeeds(ctx, props); err != nil {
		return nil, err
	}
	return props, nil
}

// ListWithFeeds retrieves every property, of any owner, that has at least one feed.
func (r *PropertyRepository) ListWithFeeds(ctx context.Context) ([]models.Property, error) {
	var props []models.Property
	err := r.DB().SelectContext(ctx, &props, `
		SELECT `+propertyColumns+` FROM properties
		WHERE EXISTS (SELECT 1 FROM property_feeds f WHERE f.property_id = properties.id)
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying properties with feeds: %w", err)
	}
	if err := r.attachFeeds(ctx, props); err != nil {
		return nil, err
	}
	return props, nil
}

// Update modifies the editable fields of a property. Feeds are not touched.
func (r *PropertyRepository) Update(ctx context.Context, p *models.Property) error {
	p.UpdatedAt = r.Now()

	result, err := r.DB().ExecContext(ctx, r.DB().Rebind(`
		UPDATE properties SET owner_id = ?, name = ?, monthly_fixed_cost = ?, updated_at = ?
		WHERE id = ?
	`), p.OwnerID, p.Name, p.MonthlyFixedCost, p.UpdatedAt, p.ID)
	if err != nil {
		return fmt.Errorf("updating property: %w", err)
	}
	return requireRow(result)
}

// Delete removes a property. Feeds and bookings cascade.
func (r *PropertyRepository) Delete(ctx context.Context, id string) error {
	result, err := r.DB().ExecContext(ctx, r.DB().Rebind(`DELETE FROM properties WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("deleting property: %w", err)
	}
	return requireRow(result)
}

// UpdateLastSync stamps the time of the last completed reconciliation.
func (r *PropertyRepository) UpdateLastSync(ctx context.Context, id string, at time.Time) error {
	_, err := r.DB().ExecContext(ctx, r.DB().Rebind(`
		UPDATE properties SET last_sync_at = ?, updated_at = ? WHERE id = ?
	`), at.UTC(), r.Now(), id)
	if err != nil {
		return fmt.Errorf("updating last sync: %w", err)
	}
	return nil
}

// ListFeeds returns the feeds of one property in configured order.
func (r *PropertyRepository) ListFeeds(ctx context.Context, propertyID string) ([]models.FeedSource, error) {
	feeds := []models.FeedSource{}
	err := r.DB().SelectContext(ctx, &feeds, r.DB().Rebind(`
		SELECT name, url FROM property_feeds WHERE property_id = ? ORDER BY position, name
	`), propertyID)
	if err != nil {
		return nil, fmt.Errorf("querying feeds: %w", err)
	}
	return feeds, nil
}

// ReplaceFeeds swaps the whole feed list of a property atomically.
func (r *PropertyRepository) ReplaceFeeds(ctx context.Context, propertyID string, feeds []models.FeedSource) error {
	return r.DB().Transaction(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE properties SET updated_at = ? WHERE id = ?`), r.Now(), propertyID)
		if err != nil {
			return fmt.Errorf("touching property: %w", err)
		}
		if err := requireRow(result); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM property_feeds WHERE property_id = ?`), propertyID); err != nil {
			return fmt.Errorf("clearing feeds: %w", err)
		}
		return r.insertFeeds(ctx, tx, propertyID, feeds)
	})
}

// Count returns the number of properties.
func (r *PropertyRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.DB().GetContext(ctx, &n, `SELECT COUNT(*) FROM properties`); err != nil {
		return 0, fmt.Errorf("counting properties: %w", err)
	}
	return n, nil
}

func (r *PropertyRepository) insertFeeds(ctx context.Context, tx *sqlx.Tx, propertyID string, feeds []models.FeedSource) error {
	now := r.Now()
	for i, f := range feeds {
		_, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO property_feeds (property_id, name, url, position, created_at) VALUES (?, ?, ?, ?, ?)
		`), propertyID, f.Name, f.URL, i, now)
		if err != nil {
			return fmt.Errorf("inserting feed %q: %w", f.Name, err)
		}
	}
	return nil
}

func (r *PropertyRepository) attachFeeds(ctx context.Context, props []models.Property) error {
	if len(props) == 0 {
		return nil
	}

	var rows []struct {
		PropertyID string `db:"property_id"`
		models.FeedSource
	}
	err := r.DB().SelectContext(ctx, &rows, `
		SELECT property_id, name, url FROM property_feeds ORDER BY property_id, position, name
	`)
	if err != nil {
		return fmt.Errorf("querying feeds: %w", err)
	}

	byProperty := make(map[string][]models.FeedSource)
	for _, row := range rows {
		byProperty[row.PropertyID] = append(byProperty[row.PropertyID], row.FeedSource)
	}
	for i := range props {
		props[i].Feeds = byProperty[props[i].ID]
		if props[i].Feeds == nil {
			props[i].Feeds = []models.FeedSource{}
		}
	}
	return nil
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
