package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"salonbook/internal/amount"
	"salonbook/internal/availability"
	"salonbook/internal/database"
	"salonbook/internal/events"
	"salonbook/internal/hold"
	"salonbook/internal/lock"
	"salonbook/internal/metrics"
	"salonbook/internal/models"
	"salonbook/internal/ocr"
	"salonbook/internal/slots"

	"github.com/rs/zerolog"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrUnknownProvider = errors.New("unknown provider")
	ErrPastDate        = errors.New("date is in the past")
	ErrRangeTaken      = errors.New("requested time range is not available")
	ErrRefNotFound     = errors.New("payment reference not found")
)

// Settings carries the booking policy knobs from the config file.
type Settings struct {
	DepositPerHour float64
	AmountSalt     string
	MaxHours       int
	ReviewTTL      time.Duration
	RenewInterval  time.Duration
}

// BookingService ties the concurrency primitives, the durable collections
// and the payment disambiguation together into the booking flows.
type BookingService struct {
	db           *database.DB
	hours        slots.BusinessHours
	availability *availability.Calculator
	holds        *hold.Manager
	locks        *lock.Confirmer
	eventBus     *events.EventBus
	extractor    ocr.TextExtractor
	providers    map[string]models.Provider
	settings     Settings
	now          func() time.Time
	logger       *zerolog.Logger
}

func NewBookingService(
	db *database.DB,
	hours slots.BusinessHours,
	calc *availability.Calculator,
	holds *hold.Manager,
	locks *lock.Confirmer,
	eventBus *events.EventBus,
	extractor ocr.TextExtractor,
	providers []models.Provider,
	settings Settings,
	logger *zerolog.Logger,
) *BookingService {
	if settings.DepositPerHour <= 0 {
		settings.DepositPerHour = models.DefaultDepositPerHour
	}
	if settings.MaxHours <= 0 {
		settings.MaxHours = models.DefaultMaxBookingHours
	}
	if settings.ReviewTTL <= 0 {
		settings.ReviewTTL = models.ReviewHoldTTLSeconds * time.Second
	}
	if settings.RenewInterval <= 0 {
		settings.RenewInterval = models.HoldRenewIntervalSeconds * time.Second
	}
	byID := make(map[string]models.Provider, len(providers))
	for _, p := range providers {
		byID[p.ID] = p
	}
	return &BookingService{
		db:           db,
		hours:        hours,
		availability: calc,
		holds:        holds,
		locks:        locks,
		eventBus:     eventBus,
		extractor:    extractor,
		providers:    byID,
		settings:     settings,
		now:          time.Now,
		logger:       logger,
	}
}

// HoldRenewInterval tells clients how often a live hold should be renewed.
func (s *BookingService) HoldRenewInterval() time.Duration {
	return s.settings.RenewInterval
}

// SetNow overrides the clock; tests only.
func (s *BookingService) SetNow(now func() time.Time) { s.now = now }

// Provider resolves a provider id against the configured roster.
func (s *BookingService) Provider(id string) (models.Provider, error) {
	p, ok := s.providers[id]
	if !ok {
		return models.Provider{}, ErrUnknownProvider
	}
	return p, nil
}

// Providers returns the configured roster.
func (s *BookingService) Providers() []models.Provider {
	out := make([]models.Provider, 0, len(s.providers))
	for _, p := range s.providers {
		out = append(out, p)
	}
	return out
}

// AvailableStartTimes answers the availability query for one provider and
// booking length. Owner is the caller's session id; its own holds do not
// block the result.
func (s *BookingService) AvailableStartTimes(ctx context.Context, date time.Time, providerID string, units int, owner string) ([]string, error) {
	if _, err := s.Provider(providerID); err != nil {
		return nil, err
	}
	return s.availability.StartTimes(ctx, date, providerID, units, owner)
}

// AcquireHold takes or refreshes a soft hold on behalf of owner.
func (s *BookingService) AcquireHold(ctx context.Context, date, providerID, start, owner, refCode string, ttl time.Duration) (models.Hold, error) {
	if _, err := s.Provider(providerID); err != nil {
		return models.Hold{}, err
	}
	h, err := s.holds.Acquire(ctx, date, providerID, start, owner, refCode, ttl)
	if err != nil {
		if errors.Is(err, hold.ErrSlotLocked) {
			metrics.IncHold("conflict")
		}
		return h, err
	}
	metrics.IncHold("acquired")
	return h, nil
}

// RenewHold extends an owned live hold.
func (s *BookingService) RenewHold(ctx context.Context, date, providerID, start, owner string, ttl time.Duration) (models.Hold, error) {
	h, err := s.holds.Renew(ctx, date, providerID, start, owner, ttl)
	if err != nil {
		return h, err
	}
	metrics.IncHold("renewed")
	return h, nil
}

// ReleaseHold frees an owned hold. Releasing a missing hold is not an error.
func (s *BookingService) ReleaseHold(ctx context.Context, date, providerID, start, owner string) error {
	if err := s.holds.Release(ctx, date, providerID, start, owner); err != nil {
		return err
	}
	metrics.IncHold("released")
	return nil
}

// ReservationRequest is the input for a pending booking.
type ReservationRequest struct {
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	Hours         int    `json:"hours"`
	ProviderID    string `json:"provider_id"`
	CustomerName  string `json:"customer_name"`
	Phone         string `json:"phone"`
	Note          string `json:"note"`
	ServiceType   string `json:"service_type"`
	Channel       string `json:"channel"`
	ChannelUserID string `json:"channel_user_id"`
	Owner         string `json:"owner"`
}

// PendingReservation is a created booking awaiting payment, along with the
// exact transfer amount the customer must send.
type PendingReservation struct {
	Reservation models.Reservation `json:"reservation"`
	RefCode     string             `json:"ref_code"`
	Amount      float64            `json:"amount"`
}

// CreatePendingReservation validates the request, checks the range is
// free, issues a payment reference with its unique amount and persists the
// reservation in pending state.
func (s *BookingService) CreatePendingReservation(ctx context.Context, req ReservationRequest) (*PendingReservation, error) {
	if req.CustomerName == "" || req.Date == "" || req.StartTime == "" {
		return nil, fmt.Errorf("%w: customer name, date and start time are required", ErrValidation)
	}
	if req.Hours < 1 {
		req.Hours = 1
	}
	if req.Hours > s.settings.MaxHours {
		return nil, fmt.Errorf("%w: at most %d hours per booking", ErrValidation, s.settings.MaxHours)
	}
	if _, err := s.Provider(req.ProviderID); err != nil {
		return nil, err
	}

	date, err := time.Parse(models.DateLayout, req.Date)
	if err != nil {
		return nil, fmt.Errorf("%w: bad date %q", ErrValidation, req.Date)
	}
	// ISO-даты сравниваются лексикографически
	if req.Date < s.now().Format(models.DateLayout) {
		return nil, ErrPastDate
	}
	if _, err := slots.ParseClock(req.StartTime); err != nil {
		return nil, fmt.Errorf("%w: bad start time %q", ErrValidation, req.StartTime)
	}

	free, err := s.availability.RangeFree(ctx, date, req.ProviderID, req.StartTime, req.Hours, req.Owner)
	if err != nil {
		return nil, err
	}
	if !free {
		return nil, ErrRangeTaken
	}

	refCode := amount.NewPaymentRef()
	total := amount.Unique(s.settings.DepositPerHour*float64(req.Hours), refCode, s.settings.AmountSalt)

	channel := req.Channel
	if channel == "" {
		channel = models.ChannelWeb
	}

	reservation := models.Reservation{
		Date:          req.Date,
		StartTime:     req.StartTime,
		DurationHours: req.Hours,
		TimeSlots:     s.hours.Expand(req.StartTime, req.Hours),
		ProviderID:    req.ProviderID,
		CustomerName:  req.CustomerName,
		Phone:         req.Phone,
		Note:          req.Note,
		ServiceType:   req.ServiceType,
		Channel:       channel,
		ChannelUserID: req.ChannelUserID,
		PaymentRef:    refCode,
		PaymentStatus: models.StatusPending,
	}
	if err := s.db.CreateReservation(ctx, &reservation); err != nil {
		return nil, err
	}

	s.publishReservationEvent(events.EventReservationCreated, reservation)
	s.logger.Info().Str("reservation_id", reservation.ID).Str("ref_code", refCode).
		Float64("amount", total).Msg("pending reservation created")

	return &PendingReservation{Reservation: reservation, RefCode: refCode, Amount: total}, nil
}

// ConfirmRequest carries a payment proof for a pending reservation. Either
// Receipt (an image for OCR) or AmountRead is provided; AmountRead wins
// when both are set.
type ConfirmRequest struct {
	RefCode    string
	Owner      string
	Receipt    []byte
	AmountRead *float64
}

// ConfirmResult reports the confirmation outcome.
type ConfirmResult struct {
	Status         string               `json:"status"`
	Matched        bool                 `json:"matched"`
	AmountExpected float64              `json:"amount_expected"`
	AmountRead     *float64             `json:"amount_read,omitempty"`
	Reservation    *models.Reservation  `json:"reservation,omitempty"`
	Payment        models.PaymentRecord `json:"payment"`
}

// ConfirmBooking verifies the transferred amount against the reference's
// unique amount and, on a match, finalizes the slot through the hard-lock
// transaction. A mismatch is recorded for operator review and never locks
// the slot. When the slot was already confirmed by someone else the
// transaction aborts and no payment record is written.
func (s *BookingService) ConfirmBooking(ctx context.Context, req ConfirmRequest) (*ConfirmResult, error) {
	if req.RefCode == "" {
		return nil, fmt.Errorf("%w: ref code is required", ErrValidation)
	}

	reservation, err := s.db.GetReservationByPaymentRef(ctx, req.RefCode)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrRefNotFound
		}
		return nil, err
	}

	expected := amount.Unique(s.settings.DepositPerHour*float64(reservation.DurationHours), req.RefCode, s.settings.AmountSalt)

	// На время проверки чека холд владельца сжимается до короткого TTL:
	// зависший клиент не должен держать слот три минуты.
	if req.Owner != "" {
		if _, err := s.holds.Renew(ctx, reservation.Date, reservation.ProviderID, reservation.StartTime, req.Owner, s.settings.ReviewTTL); err != nil {
			s.logger.Debug().Err(err).Str("ref_code", req.RefCode).Msg("review hold renew skipped")
		}
	}

	amountRead := req.AmountRead
	if amountRead == nil && len(req.Receipt) > 0 && s.extractor != nil {
		text, err := s.extractor.ExtractText(ctx, req.Receipt)
		if err != nil {
			s.logger.Warn().Err(err).Str("ref_code", req.RefCode).Msg("receipt OCR failed")
		} else if v, ok := ocr.ExtractAmount(text); ok {
			amountRead = &v
		}
	}

	matched := amountRead != nil && amount.EqualCents(*amountRead, expected)
	provider, _ := s.Provider(reservation.ProviderID)
	slotID := slots.SlotID(reservation.ProviderID, reservation.Date, reservation.StartTime)

	payment := models.PaymentRecord{
		RefCode:        req.RefCode,
		Date:           reservation.Date,
		Time:           reservation.StartTime,
		Hours:          reservation.DurationHours,
		ProviderID:     reservation.ProviderID,
		ProviderName:   provider.Name,
		CustomerName:   reservation.CustomerName,
		Phone:          reservation.Phone,
		ServiceType:    reservation.ServiceType,
		AmountExpected: expected,
		AmountRead:     amountRead,
		Matched:        matched,
		SlotID:         slotID,
	}

	if matched {
		_, err := s.locks.Confirm(ctx, lock.Booking{
			SlotID:       slotID,
			CustomerName: reservation.CustomerName,
			ServiceType:  reservation.ServiceType,
			Date:         reservation.Date,
			Time:         reservation.StartTime,
			Hours:        reservation.DurationHours,
			ProviderID:   reservation.ProviderID,
			PaymentRef:   req.RefCode,
		})
		if err != nil {
			if errors.Is(err, lock.ErrSlotAlreadyBooked) {
				metrics.IncConfirm("slot_taken")
			} else {
				metrics.IncConfirm("error")
			}
			return nil, err
		}
		payment.Status = models.StatusConfirmed
	} else {
		payment.Status = models.StatusMismatch
	}

	if err := s.db.CreatePayment(ctx, &payment); err != nil {
		return nil, err
	}
	if err := s.db.UpdateReservationPaymentStatus(ctx, reservation.ID, payment.Status); err != nil {
		s.logger.Error().Err(err).Str("reservation_id", reservation.ID).
			Msg("failed to update reservation status")
	}
	reservation.PaymentStatus = payment.Status

	// Чужие потребители слота освобождаются сразу, не дожидаясь TTL.
	if req.Owner != "" {
		if err := s.holds.Release(ctx, reservation.Date, reservation.ProviderID, reservation.StartTime, req.Owner); err != nil {
			s.logger.Debug().Err(err).Msg("hold release after confirm skipped")
		}
	}

	eventType := events.EventBookingConfirmed
	if !matched {
		eventType = events.EventPaymentMismatch
		metrics.IncConfirm("mismatch")
	} else {
		metrics.IncConfirm("confirmed")
	}
	s.publishBookingEvent(eventType, payment)

	s.logger.Info().Str("ref_code", req.RefCode).Str("slot_id", slotID).
		Bool("matched", matched).Str("status", payment.Status).Msg("payment processed")

	return &ConfirmResult{
		Status:         payment.Status,
		Matched:        matched,
		AmountExpected: expected,
		AmountRead:     amountRead,
		Reservation:    reservation,
		Payment:        payment,
	}, nil
}

// CancelReservation hard-deletes a booking record and announces the
// cancellation so channel listeners can notify the customer. The freed
// time is visible to availability queries immediately.
func (s *BookingService) CancelReservation(ctx context.Context, id string) (*models.Reservation, error) {
	reservation, err := s.db.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.DeleteReservation(ctx, id); err != nil {
		return nil, err
	}

	s.publishReservationEvent(events.EventReservationCanceled, *reservation)
	s.logger.Info().Str("reservation_id", id).Str("date", reservation.Date).
		Str("provider_id", reservation.ProviderID).Msg("reservation cancelled")
	return reservation, nil
}

func (s *BookingService) publishReservationEvent(eventType string, r models.Reservation) {
	err := s.eventBus.PublishJSON(eventType, events.ReservationEventPayload{
		ReservationID: r.ID,
		Date:          r.Date,
		StartTime:     r.StartTime,
		Hours:         r.DurationHours,
		ProviderID:    r.ProviderID,
		CustomerName:  r.CustomerName,
		Channel:       r.Channel,
		ChannelUserID: r.ChannelUserID,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}

func (s *BookingService) publishBookingEvent(eventType string, p models.PaymentRecord) {
	payload := events.BookingEventPayload{
		RefCode:        p.RefCode,
		SlotID:         p.SlotID,
		Date:           p.Date,
		Time:           p.Time,
		Hours:          p.Hours,
		ProviderID:     p.ProviderID,
		ProviderName:   p.ProviderName,
		CustomerName:   p.CustomerName,
		Phone:          p.Phone,
		ServiceType:    p.ServiceType,
		AmountExpected: p.AmountExpected,
		Status:         p.Status,
	}
	if p.AmountRead != nil {
		payload.AmountRead = *p.AmountRead
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}
