// Package availability merges the independent and sometimes contradictory
// occupancy sources — reservations, confirmed payments, absence windows and
// live holds — into the single authoritative list of bookable start times.
package availability

import (
	"context"
	"fmt"
	"time"

	"salonbook/internal/models"
	"salonbook/internal/slots"

	"github.com/rs/zerolog"
)

// ReservationReader lists booking records for a date, optionally filtered
// to one provider (empty providerID means all).
type ReservationReader interface {
	ListReservations(ctx context.Context, date, providerID string) ([]models.Reservation, error)
}

// PaymentReader lists payment attempts for a date and provider. Payment
// records whose amount matched are first-class calendar occupants even
// before a reservation record exists for them.
type PaymentReader interface {
	ListPayments(ctx context.Context, date, providerID string) ([]models.PaymentRecord, error)
}

// AbsenceReader lists blocking windows relevant to a provider on a date,
// including shop-wide closures.
type AbsenceReader interface {
	ListAbsences(ctx context.Context, providerID, date string) ([]models.AbsenceWindow, error)
}

// HoldReader reads the live hold on one slot, nil when free.
type HoldReader interface {
	HoldAt(ctx context.Context, date, providerID, start string) (*models.Hold, error)
}

// Calculator computes available start times. Every query is an independent
// snapshot; nothing is cached between calls, so an administrative
// cancellation is visible on the next read.
type Calculator struct {
	hours        slots.BusinessHours
	reservations ReservationReader
	payments     PaymentReader
	absences     AbsenceReader
	holds        HoldReader
	skew         time.Duration
	now          func() time.Time
	logger       *zerolog.Logger
}

func NewCalculator(
	hours slots.BusinessHours,
	reservations ReservationReader,
	payments PaymentReader,
	absences AbsenceReader,
	holds HoldReader,
	skew time.Duration,
	logger *zerolog.Logger,
) *Calculator {
	return &Calculator{
		hours:        hours,
		reservations: reservations,
		payments:     payments,
		absences:     absences,
		holds:        holds,
		skew:         skew,
		now:          time.Now,
		logger:       logger,
	}
}

// SetNow overrides the clock; tests only.
func (c *Calculator) SetNow(now func() time.Time) { c.now = now }

// StartTimes returns the ordered bookable start times for a booking of
// `units` whole slots on the given date and provider. A hold owned by
// `owner` does not block the query, so a client re-checking its own
// in-progress slot sees it as available.
func (c *Calculator) StartTimes(ctx context.Context, date time.Time, providerID string, units int, owner string) ([]string, error) {
	if units < 1 {
		units = 1
	}

	now := c.now()
	dateStr := slots.DateLabel(date)
	candidates := c.hours.StartTimes(date, now)
	if len(candidates) == 0 {
		return nil, nil
	}

	reserved, err := c.reservedTimes(ctx, dateStr, providerID)
	if err != nil {
		return nil, err
	}

	windows, err := c.absences.ListAbsences(ctx, providerID, dateStr)
	if err != nil {
		return nil, fmt.Errorf("list absences: %w", err)
	}

	liveHolds, err := c.foreignHolds(ctx, dateStr, providerID, candidates, owner, now)
	if err != nil {
		return nil, err
	}

	blocked := func(t string) bool {
		if _, ok := reserved[t]; ok {
			return true
		}
		if _, ok := liveHolds[t]; ok {
			return true
		}
		for _, w := range windows {
			if w.Covers(dateStr, t) {
				return true
			}
		}
		return false
	}

	var out []string
	for i, start := range candidates {
		if i+units > len(candidates) {
			break
		}
		if !c.hours.RangeFits(candidates, start, units) {
			continue
		}

		ok := true
		for _, t := range c.hours.Expand(start, units) {
			if blocked(t) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, start)
		}
	}

	c.logger.Debug().
		Str("date", dateStr).
		Str("provider_id", providerID).
		Int("units", units).
		Int("candidates", len(candidates)).
		Int("available", len(out)).
		Msg("availability computed")
	return out, nil
}

// RangeFree reports whether one specific contiguous range is bookable right
// now. Used by the pending-reservation flow before issuing a payment ref.
func (c *Calculator) RangeFree(ctx context.Context, date time.Time, providerID, start string, units int, owner string) (bool, error) {
	times, err := c.StartTimes(ctx, date, providerID, units, owner)
	if err != nil {
		return false, err
	}
	for _, t := range times {
		if t == start {
			return true, nil
		}
	}
	return false, nil
}

// reservedTimes builds the set of occupied HH:MM labels from the two
// booking-record sources. Cancelled records never count; a matched or
// settled payment counts even without a reservation row.
func (c *Calculator) reservedTimes(ctx context.Context, date, providerID string) (map[string]struct{}, error) {
	reserved := make(map[string]struct{})

	rs, err := c.reservations.ListReservations(ctx, date, providerID)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	for _, r := range rs {
		if models.IsCancelledStatus(r.PaymentStatus) {
			continue
		}
		labels := r.TimeSlots
		if len(labels) == 0 {
			labels = c.hours.Expand(r.StartTime, maxInt(r.DurationHours, 1))
		}
		for _, t := range labels {
			reserved[t] = struct{}{}
		}
	}

	ps, err := c.payments.ListPayments(ctx, date, providerID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	for _, p := range ps {
		if models.IsCancelledStatus(p.Status) {
			continue
		}
		if !p.Matched && !models.IsPaidStatus(p.Status) {
			continue
		}
		for _, t := range c.hours.Expand(p.Time, maxInt(p.Hours, 1)) {
			reserved[t] = struct{}{}
		}
	}

	return reserved, nil
}

// foreignHolds reads the hold on every candidate slot and keeps the ones
// that are live and belong to somebody else.
func (c *Calculator) foreignHolds(ctx context.Context, date, providerID string, candidates []string, owner string, now time.Time) (map[string]struct{}, error) {
	held := make(map[string]struct{})
	if c.holds == nil {
		return held, nil
	}

	for _, t := range candidates {
		h, err := c.holds.HoldAt(ctx, date, providerID, t)
		if err != nil {
			return nil, fmt.Errorf("read hold %s: %w", t, err)
		}
		if h == nil {
			continue
		}
		if h.Owner != owner && h.LiveAt(now, c.skew) {
			held[t] = struct{}{}
		}
	}
	return held, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
