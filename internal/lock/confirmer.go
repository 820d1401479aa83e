// Package lock implements the hard-lock confirmation transaction: the
// single point where a slot becomes permanently booked. Everything upstream
// (holds, availability) is advisory; only this transaction's outcome is
// authoritative.
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"salonbook/internal/models"
	"salonbook/internal/slots"
	"salonbook/internal/store"

	"github.com/rs/zerolog"
)

// ErrSlotAlreadyBooked is returned when the slot identifier is already
// confirmed. The transaction aborts without writing.
var ErrSlotAlreadyBooked = errors.New("slot_already_booked")

// Booking carries the details written into the lock record on success.
type Booking struct {
	SlotID       string
	CustomerName string
	ServiceType  string
	Date         string
	Time         string
	Hours        int
	ProviderID   string
	PaymentRef   string
}

// Confirmer finalizes bookings against the flat slot-identifier namespace.
type Confirmer struct {
	store  store.Store
	now    func() time.Time
	logger *zerolog.Logger
}

func NewConfirmer(st store.Store, logger *zerolog.Logger) *Confirmer {
	return &Confirmer{store: st, now: time.Now, logger: logger}
}

// SetNow overrides the clock; tests only.
func (c *Confirmer) SetNow(now func() time.Time) { c.now = now }

// Confirm atomically transitions the slot's lock record to confirmed. If a
// confirmed record already exists the transaction aborts and
// ErrSlotAlreadyBooked is returned; an unconfirmed leftover record is
// overwritten, keeping its original creation time.
func (c *Confirmer) Confirm(ctx context.Context, b Booking) (models.SlotLock, error) {
	if b.SlotID == "" {
		return models.SlotLock{}, errors.New("slot id is required")
	}

	nowMs := c.now().UnixMilli()
	next := models.SlotLock{
		Locked:       true,
		Status:       models.StatusConfirmed,
		CustomerName: b.CustomerName,
		ServiceType:  b.ServiceType,
		Date:         b.Date,
		Time:         b.Time,
		Hours:        b.Hours,
		ProviderID:   b.ProviderID,
		PaymentRef:   b.PaymentRef,
		CreatedAtMs:  nowMs,
		UpdatedAtMs:  nowMs,
	}

	key := slots.LockKey(b.SlotID)
	res, err := c.store.CompareAndSet(ctx, key, func(current []byte) ([]byte, error) {
		if current != nil {
			var cur models.SlotLock
			if err := json.Unmarshal(current, &cur); err == nil {
				if cur.Confirmed() {
					return nil, store.ErrAbort
				}
				if cur.CreatedAtMs != 0 {
					next.CreatedAtMs = cur.CreatedAtMs
				}
			}
		}
		return json.Marshal(next)
	})
	if err != nil {
		return models.SlotLock{}, fmt.Errorf("confirm slot %s: %w", b.SlotID, err)
	}
	if !res.Committed {
		c.logger.Info().Str("slot_id", b.SlotID).Msg("slot already booked")
		return models.SlotLock{}, ErrSlotAlreadyBooked
	}

	c.logger.Info().
		Str("slot_id", b.SlotID).
		Str("payment_ref", b.PaymentRef).
		Msg("slot confirmed")
	return next, nil
}

// Get reads the current lock record, nil when the slot was never finalized.
func (c *Confirmer) Get(ctx context.Context, slotID string) (*models.SlotLock, error) {
	raw, err := c.store.Read(ctx, slots.LockKey(slotID))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	var l models.SlotLock
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, fmt.Errorf("decode slot lock: %w", err)
	}
	return &l, nil
}
