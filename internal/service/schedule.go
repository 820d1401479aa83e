package service

import (
	"context"
	"time"

	"salonbook/internal/models"
	"salonbook/internal/segments"
	"salonbook/internal/slots"
)

// Schedule returns the operator view of a provider's day: reservations and
// confirmed payments merged into contiguous appointment blocks. An empty
// providerID covers every provider.
func (s *BookingService) Schedule(ctx context.Context, date, providerID string) ([]segments.Segment, error) {
	reservations, err := s.db.ListReservations(ctx, date, providerID)
	if err != nil {
		return nil, err
	}
	payments, err := s.db.ListPayments(ctx, date, providerID)
	if err != nil {
		return nil, err
	}

	records := make([]segments.Record, 0, len(reservations)+len(payments))
	for _, r := range reservations {
		if rec, ok := segments.FromReservation(r, s.hours); ok {
			records = append(records, rec)
		}
	}
	for _, p := range payments {
		if rec, ok := segments.FromPayment(p, s.hours); ok {
			records = append(records, rec)
		}
	}
	return segments.Merge(records), nil
}

// AddAbsence blocks a window on a provider's calendar. WholeDay expands to
// the 00:00-23:59 closure; an empty providerID closes the whole shop.
func (s *BookingService) AddAbsence(ctx context.Context, providerID, date, start, end, note string, wholeDay bool) (*models.AbsenceWindow, error) {
	if providerID != "" {
		if _, err := s.Provider(providerID); err != nil {
			return nil, err
		}
	}
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		return nil, ErrValidation
	}
	if wholeDay {
		start, end = models.WholeDayStart, models.WholeDayEnd
	} else {
		// Окна сравниваются со слотами лексикографически, поэтому "9:00"
		// без нуля никогда бы не совпало. Нормализуем на входе.
		from, err := slots.ParseClock(start)
		if err != nil {
			return nil, ErrValidation
		}
		to, err := slots.ParseClock(end)
		if err != nil || from >= to {
			return nil, ErrValidation
		}
		start, end = slots.FormatClock(from), slots.FormatClock(to)
	}

	window := models.AbsenceWindow{
		ProviderID: providerID,
		Date:       date,
		StartTime:  start,
		EndTime:    end,
		Note:       note,
	}
	if err := s.db.CreateAbsence(ctx, &window); err != nil {
		return nil, err
	}
	return &window, nil
}

// RemoveAbsence reopens a previously blocked window.
func (s *BookingService) RemoveAbsence(ctx context.Context, id string) error {
	return s.db.DeleteAbsence(ctx, id)
}
