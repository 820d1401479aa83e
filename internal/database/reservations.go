package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"salonbook/internal/models"

	"github.com/google/uuid"
)

const reservationColumns = `id, date, start_time, duration_hours, time_slots, provider_id,
	customer_name, phone, note, service_type, channel, channel_user_id,
	payment_ref, payment_status, created_at`

// CreateReservation persists a booking record. A missing ID is generated.
func (db *DB) CreateReservation(ctx context.Context, r *models.Reservation) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.PaymentStatus == "" {
		r.PaymentStatus = models.StatusPending
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	query := `INSERT INTO reservations (` + reservationColumns + `)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query,
		r.ID,
		r.Date,
		r.StartTime,
		r.DurationHours,
		strings.Join(r.TimeSlots, ","),
		r.ProviderID,
		r.CustomerName,
		r.Phone,
		r.Note,
		r.ServiceType,
		r.Channel,
		r.ChannelUserID,
		r.PaymentRef,
		r.PaymentStatus,
		r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create reservation: %w", err)
	}
	return nil
}

// GetReservation returns one booking record by id.
func (db *DB) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`
	row := db.QueryRowContext(ctx, query, id)

	r, err := scanReservation(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	return r, nil
}

// DeleteReservation hard-deletes a booking record. Cancellation is
// modelled as deletion; there is no modify-time operation.
func (db *DB) DeleteReservation(ctx context.Context, id string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete reservation: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListReservations returns the booking records for a date; an empty
// providerID returns every provider's records.
func (db *DB) ListReservations(ctx context.Context, date, providerID string) ([]models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE date = ?`
	args := []any{date}
	if providerID != "" {
		query += ` AND provider_id = ?`
		args = append(args, providerID)
	}
	query += ` ORDER BY start_time ASC, created_at ASC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	defer rows.Close()

	var out []models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// ListReservationsByRange returns booking records across a date span,
// inclusive, ordered by date and start time. Used by the audit export.
func (db *DB) ListReservationsByRange(ctx context.Context, from, to string) ([]models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations
	          WHERE date >= ? AND date <= ? ORDER BY date ASC, start_time ASC`
	rows, err := db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations by range: %w", err)
	}
	defer rows.Close()

	var out []models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// GetReservationByPaymentRef finds the pending booking a payment reference
// was issued for.
func (db *DB) GetReservationByPaymentRef(ctx context.Context, refCode string) (*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE payment_ref = ?`
	row := db.QueryRowContext(ctx, query, refCode)

	r, err := scanReservation(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation by payment ref: %w", err)
	}
	return r, nil
}

// UpdateReservationPaymentStatus flips a booking's payment status.
func (db *DB) UpdateReservationPaymentStatus(ctx context.Context, id, status string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE reservations SET payment_status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update reservation payment status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (*models.Reservation, error) {
	var (
		r         models.Reservation
		timeSlots string
		phone     sql.NullString
		note      sql.NullString
		service   sql.NullString
		chUserID  sql.NullString
		payRef    sql.NullString
	)
	err := row.Scan(
		&r.ID, &r.Date, &r.StartTime, &r.DurationHours, &timeSlots, &r.ProviderID,
		&r.CustomerName, &phone, &note, &service, &r.Channel, &chUserID,
		&payRef, &r.PaymentStatus, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if timeSlots != "" {
		r.TimeSlots = strings.Split(timeSlots, ",")
	}
	r.Phone = phone.String
	r.Note = note.String
	r.ServiceType = service.String
	r.ChannelUserID = chUserID.String
	r.PaymentRef = payRef.String
	return &r, nil
}
