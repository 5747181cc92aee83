package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/stayledger/backend/internal/storage/models"
)

const channelColumns = `id, owner_id, name, commission_rate, created_at, updated_at`

// ChannelRepository provides data access for sales channels.
type ChannelRepository struct {
	BaseRepository
}

// NewChannelRepository creates a new channel repository.
func NewChannelRepository(db *DB) *ChannelRepository {
	return &ChannelRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Create inserts a new channel.
func (r *ChannelRepository) Create(ctx context.Context, c *models.Channel) error {
	c.ID = GenerateID()
	c.CreatedAt = r.Now()
	c.UpdatedAt = c.CreatedAt

	_, err := r.DB().ExecContext(ctx, r.DB().Rebind(`
		INSERT INTO channels (id, owner_id, name, commission_rate, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), c.ID, c.OwnerID, c.Name, c.CommissionRate, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting channel: %w", err)
	}
	return nil
}

// GetByID retrieves a channel by its ID. Returns nil if not found.
func (r *ChannelRepository) GetByID(ctx context.Context, id string) (*models.Channel, error) {
	c := &models.Channel{}
	err := r.DB().GetContext(ctx, c, r.DB().Rebind(`SELECT `+channelColumns+` FROM channels WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying channel: %w", err)
	}
	return c, nil
}

// ListByOwner returns an owner's channels in creation order, which is the
// order channel matching walks.
func (r *ChannelRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.Channel, error) {
	channels := []models.Channel{}
	err := r.DB().SelectContext(ctx, &channels, r.DB().Rebind(`
		SELECT `+channelColumns+` FROM channels WHERE owner_id = ? ORDER BY created_at, id
	`), ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying channels: %w", err)
	}
	return channels, nil
}

// Update modifies a channel's name and commission rate.
func (r *ChannelRepository) Update(ctx context.Context, c *models.Channel) error {
	c.UpdatedAt = r.Now()
	result, err := r.DB().ExecContext(ctx, r.DB().Rebind(`
		UPDATE channels SET name = ?, commission_rate = ?, updated_at = ? WHERE id = ?
	`), c.Name, c.CommissionRate, c.UpdatedAt, c.ID)
	if err != nil {
		return fmt.Errorf("updating channel: %w", err)
	}
	return requireRow(result)
}

// Delete removes a channel. Bookings keep their row with channel_id cleared.
func (r *ChannelRepository) Delete(ctx context.Context, id string) error {
	result, err := r.DB().ExecContext(ctx, r.DB().Rebind(`DELETE FROM channels WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("deleting channel: %w", err)
	}
	return requireRow(result)
}
