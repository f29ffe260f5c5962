package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	ExchangeName = "reading.events"
	ExchangeType = "topic"

	EventTypeBookRegistered   = "reading.book_registered"
	EventTypeProgressRecorded = "reading.progress_recorded"

	eventVersion = "1.0.0"
)

// Event is the envelope of every message on the exchange
type Event struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  string          `json:"event_version"`
	Timestamp     string          `json:"timestamp"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// BookRegistered is the payload of EventTypeBookRegistered
type BookRegistered struct {
	BookID       string `json:"book_id"`
	ISBN         string `json:"isbn,omitempty"`
	Title        string `json:"title"`
	RegisteredBy string `json:"registered_by"`
}

// ProgressRecorded is the payload of EventTypeProgressRecorded
type ProgressRecorded struct {
	UserID      string `json:"user_id"`
	BookID      string `json:"book_id"`
	PagesRead   int    `json:"pages_read"`
	CurrentPage int    `json:"current_page"`
	Status      string `json:"status"`
}

type correlationKey struct{}

// WithCorrelationID tags ctx so events published under it carry id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

func correlationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// NewEvent wraps payload in an envelope.
func NewEvent(ctx context.Context, eventType string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  eventVersion,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		CorrelationID: correlationID(ctx),
		Payload:       raw,
	}, nil
}
