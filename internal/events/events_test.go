package events

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishJSON(t *testing.T) {
	bus := NewEventBus()

	var got BookingEventPayload
	var calls int
	bus.Subscribe(EventBookingConfirmed, func(e *Event) error {
		calls++
		return json.Unmarshal(e.Payload, &got)
	})

	err := bus.PublishJSON(EventBookingConfirmed, BookingEventPayload{
		RefCode: "R4F7K2M91", SlotID: "B1_2026-03-14_14-00", Status: "confirmed",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "R4F7K2M91", got.RefCode)
	assert.Equal(t, "B1_2026-03-14_14-00", got.SlotID)
}

func TestSubscribersAreTypeScoped(t *testing.T) {
	bus := NewEventBus()

	var confirmed, mismatched int
	bus.Subscribe(EventBookingConfirmed, func(*Event) error { confirmed++; return nil })
	bus.Subscribe(EventPaymentMismatch, func(*Event) error { mismatched++; return nil })

	require.NoError(t, bus.PublishJSON(EventPaymentMismatch, ReservationEventPayload{}))
	assert.Equal(t, 0, confirmed)
	assert.Equal(t, 1, mismatched)
}

func TestAllSubscribersRunDespiteErrors(t *testing.T) {
	bus := NewEventBus()

	var second bool
	bus.Subscribe(EventReservationCanceled, func(*Event) error { return errors.New("boom") })
	bus.Subscribe(EventReservationCanceled, func(*Event) error { second = true; return nil })

	require.NoError(t, bus.PublishJSON(EventReservationCanceled, ReservationEventPayload{}))
	assert.True(t, second, "ошибка одного обработчика не глушит остальных")
}

func TestNilBusIsSafe(t *testing.T) {
	var bus *EventBus
	assert.NoError(t, bus.PublishJSON(EventBookingConfirmed, BookingEventPayload{}))
}
