package notify

import (
	"context"
	"testing"

	"salonbook/internal/events"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureQueue struct {
	messages []string
}

func (q *captureQueue) Enqueue(_ context.Context, recipient, text string) error {
	q.messages = append(q.messages, recipient+"|"+text)
	return nil
}

func TestDispatcherFanOut(t *testing.T) {
	logger := zerolog.Nop()
	q := &captureQueue{}
	bus := events.NewEventBus()
	NewDispatcher(q, []string{"chat-1", "chat-2"}, &logger).Bind(bus)

	err := bus.PublishJSON(events.EventBookingConfirmed, events.BookingEventPayload{
		RefCode: "R4F7K2M91", Date: "2026-03-14", Time: "14:00", Hours: 2,
		CustomerName: "Alice", ProviderName: "Mint",
	})
	require.NoError(t, err)

	require.Len(t, q.messages, 2, "каждый операторский чат получает копию")
	assert.Contains(t, q.messages[0], "chat-1|")
	assert.Contains(t, q.messages[0], "R4F7K2M91")
	assert.Contains(t, q.messages[1], "chat-2|")
}

func TestDispatcherMismatchText(t *testing.T) {
	logger := zerolog.Nop()
	q := &captureQueue{}
	bus := events.NewEventBus()
	NewDispatcher(q, []string{"ops"}, &logger).Bind(bus)

	err := bus.PublishJSON(events.EventPaymentMismatch, events.BookingEventPayload{
		RefCode: "R4F7K2M91", AmountExpected: 200.69, AmountRead: 200.00,
	})
	require.NoError(t, err)

	require.Len(t, q.messages, 1)
	assert.Contains(t, q.messages[0], "expected 200.69")
	assert.Contains(t, q.messages[0], "got 200.00")
}

func TestDispatcherCancellation(t *testing.T) {
	logger := zerolog.Nop()
	q := &captureQueue{}
	bus := events.NewEventBus()
	NewDispatcher(q, []string{"ops"}, &logger).Bind(bus)

	err := bus.PublishJSON(events.EventReservationCanceled, events.ReservationEventPayload{
		Date: "2026-03-14", StartTime: "14:00", Hours: 1, CustomerName: "Alice", ProviderID: "b1",
	})
	require.NoError(t, err)

	require.Len(t, q.messages, 1)
	assert.Contains(t, q.messages[0], "cancelled")

	// событие создания заявки не рассылается операторам
	require.NoError(t, bus.PublishJSON(events.EventReservationCreated, events.ReservationEventPayload{}))
	assert.Len(t, q.messages, 1)
}

func TestDispatcherNotifiesCustomerOnCancel(t *testing.T) {
	logger := zerolog.Nop()
	q := &captureQueue{}
	bus := events.NewEventBus()
	NewDispatcher(q, nil, &logger).Bind(bus)

	err := bus.PublishJSON(events.EventReservationCanceled, events.ReservationEventPayload{
		Date: "2026-03-14", StartTime: "14:00", Hours: 1,
		CustomerName: "Alice", ProviderID: "b1", ChannelUserID: "U12345",
	})
	require.NoError(t, err)

	// без операторских чатов клиент всё равно получает своё уведомление
	require.Len(t, q.messages, 1)
	assert.Contains(t, q.messages[0], "U12345|")
	assert.Contains(t, q.messages[0], "Alice")
	assert.Contains(t, q.messages[0], "2026-03-14")

	// отмена без привязанного канала никого лишнего не дёргает
	q.messages = nil
	require.NoError(t, bus.PublishJSON(events.EventReservationCanceled, events.ReservationEventPayload{
		CustomerName: "Bob",
	}))
	assert.Empty(t, q.messages)
}
