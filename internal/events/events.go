package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventBookingConfirmed    = "booking_confirmed"
	EventPaymentMismatch     = "payment_mismatch"
	EventReservationCreated  = "reservation_created"
	EventReservationCanceled = "reservation_canceled"
)

// BookingEventPayload is the snapshot carried by confirmation and
// mismatch events.
type BookingEventPayload struct {
	RefCode        string  `json:"ref_code"`
	SlotID         string  `json:"slot_id"`
	Date           string  `json:"date"`
	Time           string  `json:"time"`
	Hours          int     `json:"hours"`
	ProviderID     string  `json:"provider_id"`
	ProviderName   string  `json:"provider_name,omitempty"`
	CustomerName   string  `json:"customer_name"`
	Phone          string  `json:"phone,omitempty"`
	ServiceType    string  `json:"service_type,omitempty"`
	AmountExpected float64 `json:"amount_expected"`
	AmountRead     float64 `json:"amount_read,omitempty"`
	Status         string  `json:"status"`
}

// ReservationEventPayload is carried by reservation lifecycle events.
type ReservationEventPayload struct {
	ReservationID string `json:"reservation_id"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	Hours         int    `json:"hours"`
	ProviderID    string `json:"provider_id"`
	CustomerName  string `json:"customer_name"`
	Channel       string `json:"channel"`
	ChannelUserID string `json:"channel_user_id,omitempty"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
