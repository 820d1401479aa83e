package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"salonbook/internal/availability"
	"salonbook/internal/config"
	"salonbook/internal/database"
	"salonbook/internal/events"
	"salonbook/internal/hold"
	"salonbook/internal/lock"
	"salonbook/internal/models"
	"salonbook/internal/service"
	"salonbook/internal/slots"
	"salonbook/internal/store"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, cfg config.APIConfig) *HTTPServer {
	t.Helper()
	logger := zerolog.Nop()

	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	st := store.NewMemory()
	skew := 2 * time.Second
	holds := hold.NewManager(st, 180*time.Second, skew, &logger)
	locks := lock.NewConfirmer(st, &logger)
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	holds.SetNow(func() time.Time { return now })

	calc := availability.NewCalculator(slots.Default(), db, db, db, holds, skew, &logger)
	calc.SetNow(func() time.Time { return now })

	svc := service.NewBookingService(db, slots.Default(), calc, holds, locks,
		events.NewEventBus(), nil,
		[]models.Provider{{ID: "b1", Name: "Mint"}},
		service.Settings{DepositPerHour: 100, AmountSalt: "pepper"}, &logger)
	svc.SetNow(func() time.Time { return now })

	return NewHTTPServer(cfg, svc, nil, &logger)
}

func openConfig() config.APIConfig {
	return config.APIConfig{Enabled: false, HTTP: config.APIHTTPConfig{Port: 0}}
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func getPath(h http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAvailabilityEndpoint(t *testing.T) {
	srv := newTestServer(t, openConfig())
	h := srv.Handler()

	rec := getPath(h, "/api/v1/availability?provider_id=b1&date=2026-03-14")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		StartTimes []string `json:"start_times"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.StartTimes, "10:00")
	assert.NotContains(t, resp.StartTimes, "12:00", "обед не в выдаче")

	// обязательные параметры
	assert.Equal(t, http.StatusBadRequest, getPath(h, "/api/v1/availability?provider_id=b1").Code)
	assert.Equal(t, http.StatusBadRequest, getPath(h, "/api/v1/availability?provider_id=b1&date=14-03-2026").Code)
	assert.Equal(t, http.StatusNotFound, getPath(h, "/api/v1/availability?provider_id=ghost&date=2026-03-14").Code)
}

func TestHoldEndpoints(t *testing.T) {
	srv := newTestServer(t, openConfig())
	h := srv.Handler()

	body := map[string]any{
		"date": "2026-03-14", "provider_id": "b1",
		"start_time": "14:00", "owner": "client-a",
	}
	rec := postJSON(t, h, "/api/v1/hold/acquire", body)
	require.Equal(t, http.StatusOK, rec.Code)

	// ответ подсказывает клиенту период продления
	var acquired struct {
		Hold          models.Hold `json:"hold"`
		RenewInterval int         `json:"renew_interval_seconds"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &acquired))
	assert.Equal(t, "client-a", acquired.Hold.Owner)
	assert.Equal(t, 10, acquired.RenewInterval)

	// конфликтующий захват возвращает 409 вместе с текущим холдом
	body["owner"] = "client-b"
	rec = postJSON(t, h, "/api/v1/hold/acquire", body)
	require.Equal(t, http.StatusConflict, rec.Code)
	var conflict struct {
		Hold models.Hold `json:"hold"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conflict))
	assert.Equal(t, "client-a", conflict.Hold.Owner)

	// продление чужого холда
	rec = postJSON(t, h, "/api/v1/hold/renew", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	body["owner"] = "client-a"
	rec = postJSON(t, h, "/api/v1/hold/renew", body)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, h, "/api/v1/hold/release", body)
	assert.Equal(t, http.StatusOK, rec.Code)

	// GET на POST-эндпоинт
	assert.Equal(t, http.StatusMethodNotAllowed, getPath(h, "/api/v1/hold/acquire").Code)
}

func TestReservationAndConfirmFlow(t *testing.T) {
	srv := newTestServer(t, openConfig())
	h := srv.Handler()

	rec := postJSON(t, h, "/api/v1/reservations", map[string]any{
		"date": "2026-03-14", "start_time": "14:00", "hours": 1,
		"provider_id": "b1", "customer_name": "Alice",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var pending struct {
		RefCode string  `json:"ref_code"`
		Amount  float64 `json:"amount"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pending))
	require.NotEmpty(t, pending.RefCode)

	rec = postJSON(t, h, "/api/v1/booking/confirm", map[string]any{
		"ref_code": pending.RefCode, "amount_read": pending.Amount,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var result struct {
		Matched bool   `json:"matched"`
		Status  string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Matched)
	assert.Equal(t, models.StatusConfirmed, result.Status)

	// неизвестный реф-код
	rec = postJSON(t, h, "/api/v1/booking/confirm", map[string]any{
		"ref_code": "RNOPE", "amount_read": 100.24,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// битый base64 в чеке
	rec = postJSON(t, h, "/api/v1/booking/confirm", map[string]any{
		"ref_code": pending.RefCode, "receipt": "%%%not-base64%%%",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfirmConflictOnBookedSlot(t *testing.T) {
	srv := newTestServer(t, openConfig())
	h := srv.Handler()

	first := postJSON(t, h, "/api/v1/reservations", map[string]any{
		"date": "2026-03-14", "start_time": "14:00", "hours": 1,
		"provider_id": "b1", "customer_name": "Alice",
	})
	require.Equal(t, http.StatusCreated, first.Code)

	// вторая заявка на тот же диапазон отклоняется ещё на создании
	second := postJSON(t, h, "/api/v1/reservations", map[string]any{
		"date": "2026-03-14", "start_time": "14:00", "hours": 1,
		"provider_id": "b1", "customer_name": "Bob",
	})
	assert.Equal(t, http.StatusConflict, second.Code)
}

func TestLegacyShapedBodies(t *testing.T) {
	srv := newTestServer(t, openConfig())
	h := srv.Handler()

	// старый канал шлёт свои имена полей — camelCase и line_user_id
	rec := postJSON(t, h, "/api/v1/reservations", map[string]any{
		"name":             "Alice",
		"barber":           "b1",
		"appointment_date": "2026-03-14",
		"appointment_time": "14:00",
		"durationHours":    2,
		"line_user_id":     "U12345",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var pending struct {
		Reservation models.Reservation `json:"reservation"`
		RefCode     string             `json:"ref_code"`
		Amount      float64            `json:"amount"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pending))
	assert.Equal(t, "Alice", pending.Reservation.CustomerName)
	assert.Equal(t, "b1", pending.Reservation.ProviderID)
	assert.Equal(t, []string{"14:00", "15:00"}, pending.Reservation.TimeSlots)
	assert.Equal(t, "U12345", pending.Reservation.ChannelUserID)

	// подтверждение в легаси-форме
	rec = postJSON(t, h, "/api/v1/booking/confirm", map[string]any{
		"refCode":    pending.RefCode,
		"amountRead": pending.Amount,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result struct {
		Matched bool `json:"matched"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Matched)

	// отмена в форме исходного клиента
	rec = postJSON(t, h, "/api/v1/reservations/cancel", map[string]any{
		"reservationId": pending.Reservation.ID,
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, h, "/api/v1/reservations/cancel", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAbsenceEndpoints(t *testing.T) {
	srv := newTestServer(t, openConfig())
	h := srv.Handler()

	rec := postJSON(t, h, "/api/v1/absences", map[string]any{
		"provider_id": "b1", "date": "2026-03-14", "whole_day": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		Absence models.AbsenceWindow `json:"absence"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.Absence.ID)

	avail := getPath(h, "/api/v1/availability?provider_id=b1&date=2026-03-14")
	var resp struct {
		StartTimes []string `json:"start_times"`
	}
	require.NoError(t, json.Unmarshal(avail.Body.Bytes(), &resp))
	assert.Empty(t, resp.StartTimes)

	rec = postJSON(t, h, "/api/v1/absences/remove", map[string]any{"id": created.Absence.ID})
	assert.Equal(t, http.StatusOK, rec.Code)

	// легаси-кодировка флага
	rec = postJSON(t, h, "/api/v1/absences", map[string]any{
		"barber": "b1", "date": "2026-03-15", "whole_day": "1",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, models.WholeDayStart, created.Absence.StartTime)
	assert.Equal(t, models.WholeDayEnd, created.Absence.EndTime)
}

func TestAuthAndPermissions(t *testing.T) {
	cfg := config.APIConfig{
		Enabled: true,
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			APIKeys: []config.APIClientKey{
				{Key: "reader-key", Name: "widget", Permissions: []string{"read:availability"}},
				{Key: "admin-key", Name: "admin"}, // без списка — allow-all
			},
		},
	}
	srv := newTestServer(t, cfg)
	h := srv.Handler()

	withKey := func(method, path, key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, bytes.NewReader([]byte("{}")))
		if key != "" {
			req.Header.Set("x-api-key", key)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	// без ключа
	assert.Equal(t, http.StatusUnauthorized,
		withKey(http.MethodGet, "/api/v1/providers", "").Code)
	// неизвестный ключ
	assert.Equal(t, http.StatusUnauthorized,
		withKey(http.MethodGet, "/api/v1/providers", "bogus").Code)
	// read-ключ читает
	assert.Equal(t, http.StatusOK,
		withKey(http.MethodGet, "/api/v1/providers", "reader-key").Code)
	// но не пишет
	assert.Equal(t, http.StatusForbidden,
		withKey(http.MethodPost, "/api/v1/hold/acquire", "reader-key").Code)
	// admin-ключ без списка прав проходит всюду
	rec := withKey(http.MethodPost, "/api/v1/absences/remove", "admin-key")
	assert.NotEqual(t, http.StatusForbidden, rec.Code)
	assert.NotEqual(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := config.APIConfig{
		Enabled:   true,
		RateLimit: config.APIRateLimitConfig{RPS: 1, Burst: 2},
	}
	srv := newTestServer(t, cfg)
	h := srv.Handler()

	var tooMany int
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/providers", nil)
		req.Header.Set("x-api-key", "same-client")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			tooMany++
		}
	}
	assert.Equal(t, 3, tooMany, "burst в два запроса, остальное режется")
}

func TestExportNotConfigured(t *testing.T) {
	srv := newTestServer(t, openConfig())
	rec := getPath(srv.Handler(), "/api/v1/export/audit?from=2026-03-01&to=2026-03-31")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestUnknownFieldRejected(t *testing.T) {
	srv := newTestServer(t, openConfig())
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/hold/acquire",
		bytes.NewReader([]byte(`{"date":"2026-03-14","bogus_field":1}`)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
