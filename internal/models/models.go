package models

import "time"

// Provider is a bookable calendar owner (a master working in the shop).
type Provider struct {
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`
}

// Reservation is a durable booking record created by one of the client
// channels. It may precede payment confirmation (LINE flow) or follow it
// (web flow). A multi-hour booking carries every occupied hour in TimeSlots.
type Reservation struct {
	ID            string    `json:"id"`
	Date          string    `json:"date"`       // YYYY-MM-DD
	StartTime     string    `json:"start_time"` // HH:MM
	DurationHours int       `json:"duration_hours"`
	TimeSlots     []string  `json:"time_slots"`
	ProviderID    string    `json:"provider_id"`
	CustomerName  string    `json:"customer_name"`
	Phone         string    `json:"phone,omitempty"`
	Note          string    `json:"note,omitempty"`
	ServiceType   string    `json:"service_type,omitempty"`
	Channel       string    `json:"channel"`
	ChannelUserID string    `json:"channel_user_id,omitempty"`
	PaymentRef    string    `json:"payment_ref,omitempty"`
	PaymentStatus string    `json:"payment_status,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// PaymentRecord is a durable record of one payment attempt. AmountRead is
// nil when the receipt could not be parsed. Matched is true only when the
// read amount equals AmountExpected to the cent.
type PaymentRecord struct {
	ID             string    `json:"id"`
	RefCode        string    `json:"ref_code"`
	Date           string    `json:"date"`
	Time           string    `json:"time"`
	Hours          int       `json:"hours"`
	ProviderID     string    `json:"provider_id,omitempty"`
	ProviderName   string    `json:"provider_name,omitempty"`
	CustomerName   string    `json:"customer_name,omitempty"`
	Phone          string    `json:"phone,omitempty"`
	ServiceType    string    `json:"service_type,omitempty"`
	AmountExpected float64   `json:"amount_expected"`
	AmountRead     *float64  `json:"amount_read,omitempty"`
	Matched        bool      `json:"matched"`
	Status         string    `json:"status"`
	SlotID         string    `json:"slot_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// AbsenceWindow blocks a provider's calendar for part of a day. Whole-day
// closures are stored as 00:00-23:59. An empty ProviderID means the whole
// shop is closed.
type AbsenceWindow struct {
	ID         string `json:"id"`
	ProviderID string `json:"provider_id,omitempty"`
	Date       string `json:"date"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Note       string `json:"note,omitempty"`
}

// Covers reports whether the window blocks the given start time on the
// given date. Start is inclusive, end is exclusive.
func (w AbsenceWindow) Covers(date, hhmm string) bool {
	if w.Date != date {
		return false
	}
	return w.StartTime <= hhmm && hhmm < w.EndTime
}

// Hold is the ephemeral advisory claim on one slot, stored under
// slot_holds/{date}/{providerId}/{HH:MM}.
type Hold struct {
	Owner       string `json:"owner"`
	RefCode     string `json:"ref_code,omitempty"`
	CreatedAtMs int64  `json:"created_at_ms"`
	ExpiresAtMs int64  `json:"expires_at_ms"`
}

// LiveAt reports whether the hold still excludes other clients at the given
// moment. The skew allowance extends the hold's life so that a renewal
// racing a slightly fast clock is not treated as expired.
func (h Hold) LiveAt(now time.Time, skew time.Duration) bool {
	return h.ExpiresAtMs+skew.Milliseconds() > now.UnixMilli()
}

// SlotLock is the durable terminal record finalizing a booking against a
// slot identifier. Once Status is confirmed the identifier is permanently
// closed to new transactions.
type SlotLock struct {
	Locked       bool   `json:"locked"`
	Status       string `json:"status"`
	CustomerName string `json:"customer_name,omitempty"`
	ServiceType  string `json:"service_type,omitempty"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	Hours        int    `json:"hours"`
	ProviderID   string `json:"provider_id,omitempty"`
	PaymentRef   string `json:"payment_ref,omitempty"`
	CreatedAtMs  int64  `json:"created_at_ms"`
	UpdatedAtMs  int64  `json:"updated_at_ms"`
}

// Confirmed reports whether the lock permanently closes its slot.
func (l SlotLock) Confirmed() bool {
	return l.Locked || l.Status == StatusConfirmed
}
