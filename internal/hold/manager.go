// Package hold implements the TTL-based advisory lock giving one client
// exclusive in-progress rights to a slot while it completes payment.
package hold

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

var (
	// ErrSlotLocked is returned when another live owner holds the slot.
	ErrSlotLocked = errors.New("slot_locked")

	// ErrNotOwner is returned when a renew or release comes from a client
	// that does not own the current hold. The record is left unchanged.
	ErrNotOwner = errors.New("not_owner")
)

// Manager mediates all hold operations through the store's compare-and-set
// primitive. There is no in-process state: every client races on the store
// key itself.
type Manager struct {
	store  store.Store
	ttl    time.Duration
	skew   time.Duration
	now    func() time.Time
	logger *zerolog.Logger
}

func NewManager(st store.Store, ttl, skew time.Duration, logger *zerolog.Logger) *Manager {
	if ttl <= 0 {
		ttl = models.DefaultHoldTTLSeconds * time.Second
	}
	if skew < 0 {
		skew = 0
	}
	return &Manager{
		store:  st,
		ttl:    ttl,
		skew:   skew,
		now:    time.Now,
		logger: logger,
	}
}

// SetNow overrides the clock; tests only.
func (m *Manager) SetNow(now func() time.Time) { m.now = now }

// Acquire claims the slot for owner. Success when the key is free, the
// current hold has expired (beyond the skew allowance), or the caller
// already owns a live hold. An expired hold always goes through the free
// transition: a prior owner keeps no privileged claim once its TTL lapsed.
// On conflict the current hold is returned alongside ErrSlotLocked and
// nothing is written.
func (m *Manager) Acquire(ctx context.Context, date, providerID, start, owner, refCode string, ttl time.Duration) (models.Hold, error) {
	if date == "" || providerID == "" || start == "" || owner == "" {
		return models.Hold{}, errors.New("date, provider, start time and owner are required")
	}
	if ttl <= 0 {
		ttl = m.ttl
	}

	now := m.now()
	next := models.Hold{
		Owner:       owner,
		RefCode:     refCode,
		CreatedAtMs: now.UnixMilli(),
		ExpiresAtMs: now.Add(ttl).UnixMilli(),
	}

	key := slots.HoldKey(date, providerID, start)
	var conflict models.Hold

	res, err := m.store.CompareAndSet(ctx, key, func(current []byte) ([]byte, error) {
		if current == nil {
			return json.Marshal(next)
		}

		var cur models.Hold
		if err := json.Unmarshal(current, &cur); err != nil {
			// Corrupt record: treat as free rather than wedging the slot.
			return json.Marshal(next)
		}

		if !cur.LiveAt(now, m.skew) || cur.Owner == owner {
			next.CreatedAtMs = cur.CreatedAtMs
			if cur.Owner != owner {
				next.CreatedAtMs = now.UnixMilli()
			}
			return json.Marshal(next)
		}

		conflict = cur
		return nil, store.ErrAbort
	})
	if err != nil {
		return models.Hold{}, fmt.Errorf("acquire hold %s: %w", key, err)
	}
	if !res.Committed {
		m.logger.Debug().
			Str("key", key).
			Str("owner", owner).
			Str("held_by", conflict.Owner).
			Int64("expires_at_ms", conflict.ExpiresAtMs).
			Msg("hold conflict")
		return conflict, ErrSlotLocked
	}

	return next, nil
}

// Renew extends the expiry of a live hold owned by the caller. Renewal is
// advisory: callers fire it periodically and tolerate failure, but a renew
// from a stale client (expired or superseded hold) reports ErrNotOwner and
// never resurrects the claim.
func (m *Manager) Renew(ctx context.Context, date, providerID, start, owner string, ttl time.Duration) (models.Hold, error) {
	if ttl <= 0 {
		ttl = m.ttl
	}

	now := m.now()
	key := slots.HoldKey(date, providerID, start)
	var renewed models.Hold

	res, err := m.store.CompareAndSet(ctx, key, func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, store.ErrAbort
		}
		var cur models.Hold
		if err := json.Unmarshal(current, &cur); err != nil {
			return nil, store.ErrAbort
		}
		if cur.Owner != owner || !cur.LiveAt(now, m.skew) {
			return nil, store.ErrAbort
		}

		renewed = cur
		renewed.ExpiresAtMs = now.Add(ttl).UnixMilli()
		return json.Marshal(renewed)
	})
	if err != nil {
		return models.Hold{}, fmt.Errorf("renew hold %s: %w", key, err)
	}
	if !res.Committed {
		return models.Hold{}, ErrNotOwner
	}
	return renewed, nil
}

// Release removes the caller's hold. Releasing a missing hold succeeds (the
// desired state already holds); releasing someone else's live hold reports
// ErrNotOwner and leaves the record in place.
func (m *Manager) Release(ctx context.Context, date, providerID, start, owner string) error {
	key := slots.HoldKey(date, providerID, start)

	res, err := m.store.CompareAndSet(ctx, key, func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, nil
		}
		var cur models.Hold
		if err := json.Unmarshal(current, &cur); err != nil {
			return nil, nil
		}
		if cur.Owner != owner {
			return nil, store.ErrAbort
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("release hold %s: %w", key, err)
	}
	if !res.Committed {
		return ErrNotOwner
	}
	return nil
}

// HoldAt reads the current hold on a slot, nil when none exists. Expired
// records are returned as-is; callers decide liveness via LiveAt.
func (m *Manager) HoldAt(ctx context.Context, date, providerID, start string) (*models.Hold, error) {
	raw, err := m.store.Read(ctx, slots.HoldKey(date, providerID, start))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	var h models.Hold
	if err := json.Unmarshal(raw, &h); err != nil {
		return nil, fmt.Errorf("decode hold: %w", err)
	}
	return &h, nil
}

// WatchSlot subscribes to hold changes on one slot, delivering the new hold
// (nil after release/expiry-delete) to fn.
func (m *Manager) WatchSlot(ctx context.Context, date, providerID, start string, fn func(*models.Hold)) (store.Unsubscribe, error) {
	return m.store.Watch(ctx, slots.HoldKey(date, providerID, start), func(value []byte) {
		if value == nil {
			fn(nil)
			return
		}
		var h models.Hold
		if err := json.Unmarshal(value, &h); err != nil {
			return
		}
		fn(&h)
	})
}

// Skew exposes the configured clock-skew allowance for liveness checks made
// outside the manager (availability filtering).
func (m *Manager) Skew() time.Duration { return m.skew }
