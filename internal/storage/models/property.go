package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Property is a rental unit with its configured calendar feeds.
type Property struct {
	ID               string          `json:"id" db:"id"`
	OwnerID          string          `json:"owner_id" db:"owner_id"`
	Name             string          `json:"name" db:"name"`
	MonthlyFixedCost decimal.Decimal `json:"monthly_fixed_cost" db:"monthly_fixed_cost"`
	LastSyncAt       *time.Time      `json:"last_sync_at,omitempty" db:"last_sync_at"`
	Feeds            []FeedSource    `json:"feeds" db:"-"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// FeedSource is an external calendar URL attached to a property.
// Name is unique within one property.
type FeedSource struct {
	Name string `json:"name" db:"name"`
	URL  string `json:"url" db:"url"`
}

// HasFeeds reports whether the property has at least one configured feed.
func (p *Property) HasFeeds() bool {
	return len(p.Feeds) > 0
}
