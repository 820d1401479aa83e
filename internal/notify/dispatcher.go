package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"salonbook/internal/events"

	"github.com/rs/zerolog"
)

// Queue accepts messages for asynchronous delivery.
type Queue interface {
	Enqueue(ctx context.Context, recipient, text string) error
}

// Dispatcher turns domain events into operator notifications.
type Dispatcher struct {
	queue      Queue
	recipients []string
	logger     *zerolog.Logger
}

func NewDispatcher(queue Queue, recipients []string, logger *zerolog.Logger) *Dispatcher {
	return &Dispatcher{queue: queue, recipients: recipients, logger: logger}
}

// Bind subscribes the dispatcher to the booking lifecycle events.
func (d *Dispatcher) Bind(bus *events.EventBus) {
	bus.Subscribe(events.EventBookingConfirmed, d.onBookingEvent)
	bus.Subscribe(events.EventPaymentMismatch, d.onBookingEvent)
	bus.Subscribe(events.EventReservationCanceled, d.onReservationEvent)
}

func (d *Dispatcher) onBookingEvent(event *events.Event) error {
	var p events.BookingEventPayload
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		d.logger.Error().Err(err).Str("event", event.Type).Msg("decode event payload")
		return err
	}

	var text string
	switch event.Type {
	case events.EventBookingConfirmed:
		text = fmt.Sprintf("✅ Booking confirmed: %s %s, %dh, %s (%s), ref %s",
			p.Date, p.Time, p.Hours, p.CustomerName, p.ProviderName, p.RefCode)
	case events.EventPaymentMismatch:
		text = fmt.Sprintf("⚠️ Payment mismatch: ref %s expected %.2f got %.2f, %s %s (%s)",
			p.RefCode, p.AmountExpected, p.AmountRead, p.Date, p.Time, p.CustomerName)
	default:
		return nil
	}

	d.fanOut(text)
	return nil
}

func (d *Dispatcher) onReservationEvent(event *events.Event) error {
	var p events.ReservationEventPayload
	if err := json.Unmarshal(event.Payload, &p); err != nil {
		d.logger.Error().Err(err).Str("event", event.Type).Msg("decode event payload")
		return err
	}

	// Клиент с привязанным каналом получает персональное уведомление.
	if p.ChannelUserID != "" {
		text := fmt.Sprintf("❌ %s, your booking on %s at %s was cancelled. Contact the shop if you have any questions.",
			p.CustomerName, p.Date, p.StartTime)
		if err := d.queue.Enqueue(context.Background(), p.ChannelUserID, text); err != nil {
			d.logger.Error().Err(err).Str("recipient", p.ChannelUserID).Msg("enqueue customer notification")
		}
	}

	d.fanOut(fmt.Sprintf("❌ Reservation cancelled: %s %s, %dh, %s (provider %s)",
		p.Date, p.StartTime, p.Hours, p.CustomerName, p.ProviderID))
	return nil
}

func (d *Dispatcher) fanOut(text string) {
	for _, recipient := range d.recipients {
		if err := d.queue.Enqueue(context.Background(), recipient, text); err != nil {
			d.logger.Error().Err(err).Str("recipient", recipient).Msg("enqueue notification")
		}
	}
}
