package websocket

import (
	"log/slog"
	"time"

	"github.com/stayledger/backend/internal/storage/models"
)

// EventBroadcaster handles broadcasting WebSocket events.
type EventBroadcaster struct {
	hub    *Hub
	logger *slog.Logger
}

// NewEventBroadcaster creates a new event broadcaster.
func NewEventBroadcaster(hub *Hub, logger *slog.Logger) *EventBroadcaster {
	return &EventBroadcaster{hub: hub, logger: logger}
}

// BroadcastSyncCompleted sends a sync completed event for one property.
func (b *EventBroadcaster) BroadcastSyncCompleted(result models.SyncResult) {
	payload := SyncPayload{
		PropertyID:   result.PropertyID,
		PropertyName: result.PropertyName,
		Status:       "success",
		Imported:     result.Imported,
		Skipped:      result.Skipped,
		Created:      result.Created,
		Updated:      result.Updated,
		FeedErrors:   len(result.Errors),
	}
	if len(result.Errors) > 0 {
		payload.Status = "partial"
	}

	b.broadcast(NewMessage(TypeSyncCompleted, payload))
}

// BroadcastSyncError sends a sync error event for a property whose sync aborted.
func (b *EventBroadcaster) BroadcastSyncError(propertyID, propertyName, message string) {
	payload := SyncErrorPayload{
		PropertyID:   propertyID,
		PropertyName: propertyName,
		Error:        "sync_error",
		Message:      message,
	}

	b.broadcast(NewMessage(TypeSyncError, payload))
}

// BroadcastBatchCompleted sends the totals of a full sync run.
func (b *EventBroadcaster) BroadcastBatchCompleted(summary models.SyncSummary, next *time.Time) {
	payload := BatchPayload{
		Properties: summary.Properties,
		Imported:   summary.Imported,
		Skipped:    summary.Skipped,
		FeedErrors: summary.FeedErrors,
		Failed:     len(summary.Failed),
		DurationMS: summary.FinishedAt.Sub(summary.StartedAt).Milliseconds(),
		NextSyncAt: next,
	}

	b.broadcast(NewMessage(TypeSyncBatchCompleted, payload))
}

// BroadcastNotification sends a notification to all connected clients.
func (b *EventBroadcaster) BroadcastNotification(level, title, message string) {
	payload := NotificationPayload{
		Level:       level,
		Title:       title,
		Message:     message,
		Dismissible: true,
	}

	b.broadcast(NewMessage(TypeNotification, payload))
}

// broadcast sends a message to all connected clients.
func (b *EventBroadcaster) broadcast(msg Message) {
	data, err := msg.JSON()
	if err != nil {
		b.logger.Error("encoding websocket message", "type", msg.Type, "error", err)
		return
	}

	b.hub.Broadcast(data)
}
