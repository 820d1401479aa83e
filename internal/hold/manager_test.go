package hold

import (
	"context"
	"testing"
	"time"

	"salonbook/internal/models"
	"salonbook/internal/store"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, base time.Time) (*Manager, *time.Time) {
	t.Helper()
	logger := zerolog.Nop()
	m := NewManager(store.NewMemory(), 180*time.Second, 2*time.Second, &logger)
	now := base
	m.SetNow(func() time.Time { return now })
	return m, &now
}

var baseTime = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func TestAcquireFreeSlot(t *testing.T) {
	m, _ := newTestManager(t, baseTime)
	ctx := context.Background()

	h, err := m.Acquire(ctx, "2026-03-14", "b1", "14:00", "client-a", "R1", 0)
	require.NoError(t, err)
	assert.Equal(t, "client-a", h.Owner)
	assert.Equal(t, "R1", h.RefCode)
	assert.Equal(t, baseTime.UnixMilli(), h.CreatedAtMs)
	assert.Equal(t, baseTime.Add(180*time.Second).UnixMilli(), h.ExpiresAtMs)
}

func TestAcquireMutualExclusion(t *testing.T) {
	m, _ := newTestManager(t, baseTime)
	ctx := context.Background()

	_, err := m.Acquire(ctx, "2026-03-14", "b1", "14:00", "client-a", "R1", 0)
	require.NoError(t, err)

	conflict, err := m.Acquire(ctx, "2026-03-14", "b1", "14:00", "client-b", "R2", 0)
	assert.ErrorIs(t, err, ErrSlotLocked)
	assert.Equal(t, "client-a", conflict.Owner, "conflict reply exposes the current holder")

	// другой слот того же мастера свободен
	_, err = m.Acquire(ctx, "2026-03-14", "b1", "15:00", "client-b", "R2", 0)
	assert.NoError(t, err)
}

func TestAcquireSameOwnerRefreshes(t *testing.T) {
	m, now := newTestManager(t, baseTime)
	ctx := context.Background()

	first, err := m.Acquire(ctx, "2026-03-14", "b1", "14:00", "client-a", "R1", 0)
	require.NoError(t, err)

	*now = baseTime.Add(30 * time.Second)
	second, err := m.Acquire(ctx, "2026-03-14", "b1", "14:00", "client-a", "R1", 0)
	require.NoError(t, err)

	assert.Equal(t, first.CreatedAtMs, second.CreatedAtMs, "same owner keeps original creation time")
	assert.Greater(t, second.ExpiresAtMs, first.ExpiresAtMs)
}

func TestAcquireExpiredTakeover(t *testing.T) {
	m, now := newTestManager(t, baseTime)
	ctx := context.Background()

	_, err := m.Acquire(ctx, "2026-03-14", "b1", "14:00", "client-a", "R1", 0)
	require.NoError(t, err)

	// TTL 180с + skew 2с: на 181-й секунде ещё жив
	*now = baseTime.Add(181 * time.Second)
	_, err = m.Acquire(ctx, "2026-03-14", "b1", "14:00", "client-b", "R2", 0)
	assert.ErrorIs(t, err, ErrSlotLocked)

	// за пределами skew — перехват
	*now = baseTime.Add(183 * time.Second)
	h, err := m.Acquire(ctx, "2026-03-14", "b1", "14:00", "client-b", "R2", 0)
	require.NoError(t, err)
	assert.Equal(t, "client-b", h.Owner)
	assert.Equal(t, now.UnixMilli(), h.CreatedAtMs, "takeover resets creation time")
}

func TestRenew(t *testing.T) {
	m, now := newTestManager(t, baseTime)
	ctx := context.Background()

	_, err := m.Acquire(ctx, "2026-03-14", "b1", "14:00", "client-a", "R1", 0)
	require.NoError(t, err)

	*now = baseTime.Add(10 * time.Second)
	h, err := m.Renew(ctx, "2026-03-14", "b1", "14:00", "client-a", 25*time.Second)
	require.NoError(t, err)
	assert.Equal(t, now.Add(25*time.Second).UnixMilli(), h.ExpiresAtMs)

	// чужой renew отвергается
	_, err = m.Renew(ctx, "2026-03-14", "b1", "14:00", "client-b", 0)
	assert.ErrorIs(t, err, ErrNotOwner)

	// после истечения renew не воскрешает холд
	*now = baseTime.Add(10 * time.Minute)
	_, err = m.Renew(ctx, "2026-03-14", "b1", "14:00", "client-a", 0)
	assert.ErrorIs(t, err, ErrNotOwner)

	// renew несуществующего холда
	_, err = m.Renew(ctx, "2026-03-14", "b1", "15:00", "client-a", 0)
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestRelease(t *testing.T) {
	m, _ := newTestManager(t, baseTime)
	ctx := context.Background()

	_, err := m.Acquire(ctx, "2026-03-14", "b1", "14:00", "client-a", "R1", 0)
	require.NoError(t, err)

	// чужой release не трогает запись
	err = m.Release(ctx, "2026-03-14", "b1", "14:00", "client-b")
	assert.ErrorIs(t, err, ErrNotOwner)

	h, err := m.HoldAt(ctx, "2026-03-14", "b1", "14:00")
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "client-a", h.Owner)

	// свой release удаляет
	require.NoError(t, m.Release(ctx, "2026-03-14", "b1", "14:00", "client-a"))
	h, err = m.HoldAt(ctx, "2026-03-14", "b1", "14:00")
	require.NoError(t, err)
	assert.Nil(t, h)

	// повторный release — не ошибка
	assert.NoError(t, m.Release(ctx, "2026-03-14", "b1", "14:00", "client-a"))
}

func TestWatchSlot(t *testing.T) {
	m, _ := newTestManager(t, baseTime)
	ctx := context.Background()

	var owners []string
	unsub, err := m.WatchSlot(ctx, "2026-03-14", "b1", "14:00", func(h *models.Hold) {
		if h == nil {
			owners = append(owners, "")
		} else {
			owners = append(owners, h.Owner)
		}
	})
	require.NoError(t, err)
	defer unsub()

	_, err = m.Acquire(ctx, "2026-03-14", "b1", "14:00", "client-a", "R1", 0)
	require.NoError(t, err)
	require.NoError(t, m.Release(ctx, "2026-03-14", "b1", "14:00", "client-a"))

	assert.Equal(t, []string{"client-a", ""}, owners)
}
