package storage

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by update/delete calls that matched no row.
var ErrNotFound = errors.New("not found")

// BaseRepository provides common functionality for all repositories.
type BaseRepository struct {
	db  *DB
	now func() time.Time
}

// NewBaseRepository creates a new base repository with the given database connection.
func NewBaseRepository(db *DB) BaseRepository {
	return BaseRepository{db: db, now: time.Now}
}

// DB returns the underlying database connection.
func (r *BaseRepository) DB() *DB {
	return r.db
}

// Now returns the current time in UTC for database timestamps.
func (r *BaseRepository) Now() time.Time {
	return r.now().UTC()
}

// SetClock overrides the timestamp source, for tests.
func (r *BaseRepository) SetClock(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// GenerateID creates a new UUID for use as a primary key.
func GenerateID() string {
	return uuid.NewString()
}
