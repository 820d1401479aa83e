package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "salonbook",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	holdRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "salonbook",
			Name:      "hold_requests_total",
			Help:      "Soft-hold operations by result (acquired, renewed, released, conflict).",
		},
		[]string{"result"},
	)

	bookingConfirms = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "salonbook",
			Name:      "booking_confirm_total",
			Help:      "Booking confirmations by result (confirmed, mismatch, slot_taken, error).",
		},
		[]string{"result"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "salonbook",
			Name:      "notifications_total",
			Help:      "Notification deliveries by result (sent, failed, dropped).",
		},
		[]string{"result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, holdRequests, bookingConfirms, notifications)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// IncHold increments the soft-hold counter for a result label.
func IncHold(result string) {
	holdRequests.WithLabelValues(result).Inc()
}

// IncConfirm increments the confirmation counter for a result label.
func IncConfirm(result string) {
	bookingConfirms.WithLabelValues(result).Inc()
}

// IncNotification increments the notification counter for a result label.
func IncNotification(result string) {
	notifications.WithLabelValues(result).Inc()
}
