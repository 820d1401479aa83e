package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"salonbook/internal/models"

	"github.com/google/uuid"
)

const paymentColumns = `id, ref_code, date, time, hours, provider_id, provider_name,
	customer_name, phone, service_type, amount_expected, amount_read,
	matched, status, slot_id, created_at`

// CreatePayment records one payment attempt. Mismatched attempts are
// stored too so operators can review them later.
func (db *DB) CreatePayment(ctx context.Context, p *models.PaymentRecord) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = models.StatusPending
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	var amountRead sql.NullFloat64
	if p.AmountRead != nil {
		amountRead = sql.NullFloat64{Float64: *p.AmountRead, Valid: true}
	}

	query := `INSERT INTO payments (` + paymentColumns + `)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query,
		p.ID,
		p.RefCode,
		p.Date,
		p.Time,
		p.Hours,
		p.ProviderID,
		p.ProviderName,
		p.CustomerName,
		p.Phone,
		p.ServiceType,
		p.AmountExpected,
		amountRead,
		p.Matched,
		p.Status,
		p.SlotID,
		p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetPayment returns one payment attempt by id.
func (db *DB) GetPayment(ctx context.Context, id string) (*models.PaymentRecord, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = ?`
	row := db.QueryRowContext(ctx, query, id)

	p, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

// ListPayments returns the payment attempts for a date; an empty
// providerID returns every provider's attempts.
func (db *DB) ListPayments(ctx context.Context, date, providerID string) ([]models.PaymentRecord, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE date = ?`
	args := []any{date}
	if providerID != "" {
		query += ` AND provider_id = ?`
		args = append(args, providerID)
	}
	query += ` ORDER BY time ASC, created_at ASC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var out []models.PaymentRecord
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// ListPaymentsByRange returns payment attempts across a date span,
// inclusive. Used by the audit export.
func (db *DB) ListPaymentsByRange(ctx context.Context, from, to string) ([]models.PaymentRecord, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments
	          WHERE date >= ? AND date <= ? ORDER BY date ASC, time ASC`
	rows, err := db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments by range: %w", err)
	}
	defer rows.Close()

	var out []models.PaymentRecord
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// UpdatePaymentStatus flips a payment attempt's status, e.g. when an
// operator resolves a mismatch by hand.
func (db *DB) UpdatePaymentStatus(ctx context.Context, id, status string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE payments SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// DeletePayment removes a payment attempt.
func (db *DB) DeletePayment(ctx context.Context, id string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM payments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete payment: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPayment(row rowScanner) (*models.PaymentRecord, error) {
	var (
		p          models.PaymentRecord
		providerID sql.NullString
		provName   sql.NullString
		custName   sql.NullString
		phone      sql.NullString
		service    sql.NullString
		amountRead sql.NullFloat64
		slotID     sql.NullString
	)
	err := row.Scan(
		&p.ID, &p.RefCode, &p.Date, &p.Time, &p.Hours, &providerID, &provName,
		&custName, &phone, &service, &p.AmountExpected, &amountRead,
		&p.Matched, &p.Status, &slotID, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.ProviderID = providerID.String
	p.ProviderName = provName.String
	p.CustomerName = custName.String
	p.Phone = phone.String
	p.ServiceType = service.String
	p.SlotID = slotID.String
	if amountRead.Valid {
		v := amountRead.Float64
		p.AmountRead = &v
	}
	return &p, nil
}
