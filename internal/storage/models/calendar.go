// Package models contains the domain models for the application.
package models

import (
	"time"
)

// CalendarEvent represents a parsed event from an iCal feed.
type CalendarEvent struct {
	UID         string    `json:"uid"`
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// FeedError records a feed that could not be fetched during a sync.
type FeedError struct {
	Source  string `json:"source"`
	Message string `json:"message"`
}

// SyncResult contains the results of reconciling one property.
type SyncResult struct {
	PropertyID   string      `json:"property_id"`
	PropertyName string      `json:"property_name"`
	Imported     int         `json:"imported"`
	Skipped      int         `json:"skipped"`
	Created      int         `json:"created"`
	Updated      int         `json:"updated"`
	Errors       []FeedError `json:"errors"`
	SyncedAt     time.Time   `json:"synced_at"`
}

// SyncSummary aggregates one sync tick across all eligible properties.
type SyncSummary struct {
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Properties int           `json:"properties"`
	Imported   int           `json:"imported"`
	Skipped    int           `json:"skipped"`
	FeedErrors int           `json:"feed_errors"`
	Failed     []SyncFailure `json:"failed,omitempty"`
	Results    []SyncResult  `json:"results"`
}

// SyncFailure is a property whose reconciliation was aborted.
type SyncFailure struct {
	PropertyID   string `json:"property_id"`
	PropertyName string `json:"property_name"`
	Message      string `json:"message"`
}

// HasFailures reports whether any property aborted or any feed failed.
func (s *SyncSummary) HasFailures() bool {
	return len(s.Failed) > 0 || s.FeedErrors > 0
}
