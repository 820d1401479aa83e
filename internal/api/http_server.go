package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"salonbook/internal/config"
	"salonbook/internal/database"
	"salonbook/internal/hold"
	"salonbook/internal/lock"
	"salonbook/internal/metrics"
	"salonbook/internal/models"
	"salonbook/internal/service"

	"github.com/rs/zerolog"
)

// Exporter builds an audit workbook for a date span.
type Exporter interface {
	Export(ctx context.Context, from, to string) (string, error)
}

// HTTPServer exposes the booking API.
type HTTPServer struct {
	cfg      config.APIConfig
	booking  *service.BookingService
	exporter Exporter
	server   *http.Server
	auth     *HTTPAuth
	logger   *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, booking *service.BookingService, exporter Exporter, logger *zerolog.Logger) *HTTPServer {
	mux := http.NewServeMux()
	srv := &HTTPServer{cfg: cfg, booking: booking, exporter: exporter, logger: logger}
	srv.auth = NewHTTPAuth(cfg)

	mux.HandleFunc("/api/v1/availability", srv.handleAvailability)
	mux.HandleFunc("/api/v1/providers", srv.handleProviders)
	mux.HandleFunc("/api/v1/hold/acquire", srv.handleHoldAcquire)
	mux.HandleFunc("/api/v1/hold/renew", srv.handleHoldRenew)
	mux.HandleFunc("/api/v1/hold/release", srv.handleHoldRelease)
	mux.HandleFunc("/api/v1/reservations", srv.handleCreateReservation)
	mux.HandleFunc("/api/v1/reservations/cancel", srv.handleCancelReservation)
	mux.HandleFunc("/api/v1/booking/confirm", srv.handleConfirm)
	mux.HandleFunc("/api/v1/schedule", srv.handleSchedule)
	mux.HandleFunc("/api/v1/absences", srv.handleAddAbsence)
	mux.HandleFunc("/api/v1/absences/remove", srv.handleRemoveAbsence)
	mux.HandleFunc("/api/v1/export/audit", srv.handleExportAudit)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

// Handler returns the full middleware chain; tests drive it directly.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("availability")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	providerID := strings.TrimSpace(q.Get("provider_id"))
	dateStr := strings.TrimSpace(q.Get("date"))
	if providerID == "" || dateStr == "" {
		writeError(w, http.StatusBadRequest, "provider_id and date are required")
		return
	}

	date, err := time.Parse(models.DateLayout, dateStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	hours := 1
	if raw := strings.TrimSpace(q.Get("hours")); raw != "" {
		hours, err = strconv.Atoi(raw)
		if err != nil || hours < 1 {
			writeError(w, http.StatusBadRequest, "invalid hours")
			return
		}
	}
	owner := strings.TrimSpace(q.Get("owner"))

	startTimes, err := s.booking.AvailableStartTimes(r.Context(), date, providerID, hours, owner)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if startTimes == nil {
		startTimes = []string{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"date":        dateStr,
		"provider_id": providerID,
		"hours":       hours,
		"start_times": startTimes,
	})
}

func (s *HTTPServer) handleProviders(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("providers")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": s.booking.Providers()})
}

type holdRequest struct {
	Date       string `json:"date"`
	ProviderID string `json:"provider_id"`
	StartTime  string `json:"start_time"`
	Owner      string `json:"owner"`
	RefCode    string `json:"ref_code"`
	TTLSeconds int    `json:"ttl_seconds"`
}

func (s *HTTPServer) handleHoldAcquire(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("hold_acquire")
	var body holdRequest
	if !s.decodeBody(w, r, &body) {
		return
	}

	h, err := s.booking.AcquireHold(r.Context(), body.Date, body.ProviderID, body.StartTime,
		body.Owner, body.RefCode, time.Duration(body.TTLSeconds)*time.Second)
	if err != nil {
		if errors.Is(err, hold.ErrSlotLocked) {
			writeJSON(w, http.StatusConflict, map[string]any{
				"error": "slot is held by another client",
				"hold":  h,
			})
			return
		}
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"hold":                   h,
		"renew_interval_seconds": int(s.booking.HoldRenewInterval().Seconds()),
	})
}

func (s *HTTPServer) handleHoldRenew(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("hold_renew")
	var body holdRequest
	if !s.decodeBody(w, r, &body) {
		return
	}

	h, err := s.booking.RenewHold(r.Context(), body.Date, body.ProviderID, body.StartTime,
		body.Owner, time.Duration(body.TTLSeconds)*time.Second)
	if err != nil {
		if errors.Is(err, hold.ErrNotOwner) {
			writeError(w, http.StatusForbidden, "hold is not owned by caller")
			return
		}
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hold": h})
}

func (s *HTTPServer) handleHoldRelease(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("hold_release")
	var body holdRequest
	if !s.decodeBody(w, r, &body) {
		return
	}

	if err := s.booking.ReleaseHold(r.Context(), body.Date, body.ProviderID, body.StartTime, body.Owner); err != nil {
		if errors.Is(err, hold.ErrNotOwner) {
			writeError(w, http.StatusForbidden, "hold is not owned by caller")
			return
		}
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"released": true})
}

func (s *HTTPServer) handleCreateReservation(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("reservation_create")
	// Тела приходят и от веб-клиента, и от легаси-вебхуков с их именами
	// полей, поэтому декодируем сырую запись и прогоняем через алиасы.
	var raw map[string]any
	if !s.decodeBody(w, r, &raw) {
		return
	}

	pending, err := s.booking.CreatePendingReservation(r.Context(), service.ReservationRequestFromRecord(raw))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, pending)
}

func (s *HTTPServer) handleCancelReservation(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("reservation_cancel")
	var raw map[string]any
	if !s.decodeBody(w, r, &raw) {
		return
	}
	id := models.StringField(raw, "reservation_id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "reservation id is required")
		return
	}

	reservation, err := s.booking.CancelReservation(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": reservation})
}

func (s *HTTPServer) handleConfirm(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("booking_confirm")
	var raw map[string]any
	if !s.decodeBody(w, r, &raw) {
		return
	}

	req := service.ConfirmRequestFromRecord(raw)
	if receipt := models.StringField(raw, "receipt"); receipt != "" {
		img, err := base64.StdEncoding.DecodeString(receipt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "receipt must be base64-encoded")
			return
		}
		req.Receipt = img
	}

	result, err := s.booking.ConfirmBooking(r.Context(), req)
	if err != nil {
		if errors.Is(err, lock.ErrSlotAlreadyBooked) {
			writeError(w, http.StatusConflict, "slot was already booked")
			return
		}
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleSchedule(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("schedule")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	dateStr := strings.TrimSpace(q.Get("date"))
	if dateStr == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}
	if _, err := time.Parse(models.DateLayout, dateStr); err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}
	providerID := strings.TrimSpace(q.Get("provider_id"))

	schedule, err := s.booking.Schedule(r.Context(), dateStr, providerID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": dateStr, "segments": schedule})
}

func (s *HTTPServer) handleAddAbsence(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("absence_add")
	var raw map[string]any
	if !s.decodeBody(w, r, &raw) {
		return
	}

	window, err := s.booking.AddAbsence(r.Context(),
		models.StringField(raw, "provider_id"),
		models.StringField(raw, "date"),
		models.StringField(raw, "start_time"),
		models.StringField(raw, "end_time"),
		models.StringField(raw, "note"),
		models.Boolish(raw["whole_day"]))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"absence": window})
}

func (s *HTTPServer) handleRemoveAbsence(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("absence_remove")
	var body struct {
		ID string `json:"id"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}

	if err := s.booking.RemoveAbsence(r.Context(), body.ID); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": true})
}

func (s *HTTPServer) handleExportAudit(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("export_audit")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.exporter == nil {
		writeError(w, http.StatusNotImplemented, "export is not configured")
		return
	}

	q := r.URL.Query()
	from := strings.TrimSpace(q.Get("from"))
	to := strings.TrimSpace(q.Get("to"))
	if from == "" || to == "" {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}

	path, err := s.exporter.Export(r.Context(), from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"file_path": path})
}

func (s *HTTPServer) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrPastDate):
		writeError(w, http.StatusBadRequest, "date is in the past")
	case errors.Is(err, service.ErrUnknownProvider):
		writeError(w, http.StatusNotFound, "unknown provider")
	case errors.Is(err, service.ErrRefNotFound):
		writeError(w, http.StatusNotFound, "payment reference not found")
	case errors.Is(err, service.ErrRangeTaken):
		writeError(w, http.StatusConflict, "requested time range is not available")
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		s.logger.Error().Err(err).Msg("internal error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
