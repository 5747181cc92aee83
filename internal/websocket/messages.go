package websocket

import (
	"encoding/json"
	"time"
)

// MessageType identifies the type of WebSocket message.
type MessageType string

const (
	// Server -> Client event types
	TypeSyncCompleted      MessageType = "sync.completed"
	TypeSyncError          MessageType = "sync.error"
	TypeSyncBatchCompleted MessageType = "sync.batch_completed"
	TypeNotification       MessageType = "notification"

	// Client -> Server command types
	TypePing MessageType = "ping"

	// Server -> Client response types
	TypePong  MessageType = "pong"
	TypeError MessageType = "error"
)

// Message represents a WebSocket message envelope.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(msgType MessageType, payload any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// JSON serializes the message to JSON bytes.
func (m Message) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// SyncPayload is the payload for sync.completed events.
type SyncPayload struct {
	PropertyID   string `json:"property_id"`
	PropertyName string `json:"property_name"`
	Status       string `json:"status"` // "success" or "partial"
	Imported     int    `json:"imported"`
	Skipped      int    `json:"skipped"`
	Created      int    `json:"created"`
	Updated      int    `json:"updated"`
	FeedErrors   int    `json:"feed_errors"`
}

// SyncErrorPayload is the payload for sync.error events.
type SyncErrorPayload struct {
	PropertyID   string `json:"property_id"`
	PropertyName string `json:"property_name"`
	Error        string `json:"error"`
	Message      string `json:"message"`
}

// BatchPayload is the payload for sync.batch_completed events.
type BatchPayload struct {
	Properties int        `json:"properties"`
	Imported   int        `json:"imported"`
	Skipped    int        `json:"skipped"`
	FeedErrors int        `json:"feed_errors"`
	Failed     int        `json:"failed"`
	DurationMS int64      `json:"duration_ms"`
	NextSyncAt *time.Time `json:"next_sync_at,omitempty"`
}

// NotificationPayload is the payload for notification events.
type NotificationPayload struct {
	Level       string `json:"level"` // info, warning, error, success
	Title       string `json:"title"`
	Message     string `json:"message"`
	Dismissible bool   `json:"dismissible"`
}

// ErrorPayload is the payload for error messages.
type ErrorPayload struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	OriginalType string `json:"original_type,omitempty"`
}
